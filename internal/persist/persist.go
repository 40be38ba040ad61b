// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package persist keeps a SQLite journal of polling ticks and of what
// happened to each message they fetched.
//
// The journal is write-only from the poller's point of view: it is
// never consulted when deciding what to fetch or write.
package persist

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/matta/mailsnip/internal/poll"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	_ "github.com/mattn/go-sqlite3"
)

var (
	createTableSql = []string{
		// The ticks table holds one row per polling tick.
		//
		// Field: tick_id
		//
		//   Random UUID assigned when the tick started.
		//
		// Field: started, finished
		//
		//   Unix time in nanoseconds.
		//
		// Field: listed, written, skipped, failed
		//
		//   Unread messages listed, and how many of the fetched
		//   messages were written, skipped because no file name
		//   could be derived, or failed to write.
		//
		// Field: error
		//
		//   The error that ended the tick early, or NULL.
		`
CREATE TABLE IF NOT EXISTS ticks (
tick_id TEXT NOT NULL PRIMARY KEY,
started INTEGER NOT NULL,
finished INTEGER NOT NULL,
listed INTEGER NOT NULL,
written INTEGER NOT NULL,
skipped INTEGER NOT NULL,
failed INTEGER NOT NULL,
error TEXT
);`,
		// The message_outcomes table records what happened to each
		// fetched message.
		//
		// Field: message_id
		//
		//   The remote service's id for the message.
		//
		// Field: file
		//
		//   Path written, or NULL.
		//
		// Field: skipped
		//
		//   1 if no file name could be derived.
		//
		// Field: reason
		//
		//   Why the message was not written, or NULL.
		`
CREATE TABLE IF NOT EXISTS message_outcomes (
tick_id TEXT NOT NULL,
message_id TEXT NOT NULL,
file TEXT,
skipped INTEGER NOT NULL,
reason TEXT,
PRIMARY KEY (tick_id, message_id)
FOREIGN KEY (tick_id) REFERENCES ticks (tick_id)
);`,
	}
)

type DB struct {
	db  *sql.DB
	log logrus.FieldLogger
}

type Tx struct {
	tx *sql.Tx
}

// Tick is a journaled tick.
type Tick struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Listed   int
	Written  int
	Skipped  int
	Failed   int
	Error    string
}

func dsnFromPath(path string, addValues url.Values) (string, error) {
	var u *url.URL
	if !strings.HasPrefix(path, "file:") {
		u = &url.URL{Scheme: "file", Opaque: path}
	} else {
		var err error
		u, err = url.Parse(path)
		if err != nil {
			return "", err
		}
	}
	values := u.Query()
	for k, v := range addValues {
		for _, item := range v {
			values.Add(k, item)
		}
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

func Open(ctx context.Context, path string, log logrus.FieldLogger) (*DB, error) {
	// The _busy_timeout is a SQLite extension that controls how
	// long SQLite will poll before giving up.
	var busyTimeout = int(time.Minute) / int(time.Millisecond)

	dsn, err := dsnFromPath(path, url.Values{
		"_busy_timeout": {fmt.Sprintf("%d", busyTimeout)},
		"_foreign_keys": {"1"}})
	if err != nil {
		return nil, errors.Wrapf(err,
			"Open(%q) failed: could not form a DB DSN from "+
				"the given path",
			path)
	}
	log.Debugf("opening journal at %q", dsn)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err,
			"Open(%q) failed: could not open database at %q",
			path, dsn)
	}

	if err = initSchema(ctx, db, log); err != nil {
		db.Close()
		return nil, errors.Wrapf(err,
			"Open(%q) failed: could not initialize the "+
				"database schema", path)
	}

	return &DB{db: db, log: log}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction failed")
	}
	return &Tx{tx}, nil
}

func (tx *Tx) Commit() error {
	return tx.tx.Commit()
}

func (tx *Tx) Rollback() error {
	return tx.tx.Rollback()
}

func initSchema(ctx context.Context, db *sql.DB, log logrus.FieldLogger) error {
	for _, sql := range createTableSql {
		log.Debugf("SQL Exec: %q", sql)
		if _, err := db.ExecContext(ctx, sql); err != nil {
			return errors.Wrapf(err, "while executing %q", sql)
		}
	}

	return nil
}

// RecordTick journals r and its message outcomes in one transaction.
// Satisfies poll.Journal.
func (db *DB) RecordTick(ctx context.Context, r *poll.TickReport) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.InsertTick(ctx, r); err != nil {
		return err
	}
	for _, o := range r.Outcomes {
		if err := tx.InsertOutcome(ctx, r.ID, o); err != nil {
			return err
		}
	}
	return errors.Wrap(tx.Commit(), "transaction commit failed")
}

func (tx *Tx) InsertTick(ctx context.Context, r *poll.TickReport) error {
	const q = `
INSERT INTO ticks
	(tick_id, started, finished, listed, written, skipped, failed, error)
	values ($1, $2, $3, $4, $5, $6, $7, $8)`
	var tickErr sql.NullString
	if r.Err != nil {
		tickErr = sql.NullString{String: r.Err.Error(), Valid: true}
	}
	_, err := tx.tx.ExecContext(ctx, q, r.ID, r.Started.UnixNano(), r.Finished.UnixNano(),
		r.Listed, r.Written, r.Skipped, r.Failed, tickErr)
	if err != nil {
		return errors.Wrap(err, "db insert of tick failed")
	}
	return nil
}

func (tx *Tx) InsertOutcome(ctx context.Context, tickID string, o poll.Outcome) error {
	const q = `
INSERT OR REPLACE INTO message_outcomes
	(tick_id, message_id, file, skipped, reason)
	values ($1, $2, $3, $4, $5)`
	file := sql.NullString{String: o.File, Valid: o.File != ""}
	reason := sql.NullString{String: o.Reason, Valid: o.Reason != ""}
	skipped := 0
	if o.Skipped {
		skipped = 1
	}
	if _, err := tx.tx.ExecContext(ctx, q, tickID, o.MessageID, file, skipped, reason); err != nil {
		return errors.Wrapf(err, "db insert of outcome for %q failed", o.MessageID)
	}
	return nil
}

// RecentTicks returns up to limit journaled ticks, newest first.
func (db *DB) RecentTicks(ctx context.Context, limit int) ([]Tick, error) {
	const q = `
SELECT tick_id, started, finished, listed, written, skipped, failed, error
FROM ticks
ORDER BY started DESC
LIMIT $1`
	rows, err := db.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, errors.Wrap(err, "db query failed in RecentTicks")
	}
	defer rows.Close()

	var ticks []Tick
	for rows.Next() {
		var t Tick
		var started, finished int64
		var tickErr sql.NullString
		if err := rows.Scan(&t.ID, &started, &finished, &t.Listed, &t.Written,
			&t.Skipped, &t.Failed, &tickErr); err != nil {
			return nil, errors.Wrap(err, "db scan failed in RecentTicks")
		}
		t.Started = time.Unix(0, started)
		t.Finished = time.Unix(0, finished)
		t.Error = tickErr.String
		ticks = append(ticks, t)
	}
	return ticks, errors.Wrap(rows.Err(), "db iteration failed in RecentTicks")
}

// Outcomes returns the journaled message outcomes of one tick.
func (db *DB) Outcomes(ctx context.Context, tickID string) ([]poll.Outcome, error) {
	const q = `
SELECT message_id, file, skipped, reason
FROM message_outcomes
WHERE tick_id = $1
ORDER BY rowid`
	rows, err := db.db.QueryContext(ctx, q, tickID)
	if err != nil {
		return nil, errors.Wrap(err, "db query failed in Outcomes")
	}
	defer rows.Close()

	var out []poll.Outcome
	for rows.Next() {
		var o poll.Outcome
		var file, reason sql.NullString
		var skipped int
		if err := rows.Scan(&o.MessageID, &file, &skipped, &reason); err != nil {
			return nil, errors.Wrap(err, "db scan failed in Outcomes")
		}
		o.File, o.Reason, o.Skipped = file.String, reason.String, skipped != 0
		out = append(out, o)
	}
	return out, errors.Wrap(rows.Err(), "db iteration failed in Outcomes")
}
