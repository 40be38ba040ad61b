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

// Package poll periodically moves unread messages from a mail service
// into a Writer.
//
// Each tick lists the unread messages in a folder, fetches them,
// marks all of them read and then persists each one.  Ticks never
// overlap: the next one is scheduled an interval after the previous
// one finished.
package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matta/mailsnip/internal/jsondir"
	"github.com/matta/mailsnip/internal/message"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultFolder           = "INBOX"
	DefaultInterval         = 10 * time.Second
	DefaultFetchConcurrency = 1
)

var ErrAlreadyRunning = errors.New("poller already running")

// CollaboratorError is a failure of the mail service.  It ends the
// tick it happened in.
type CollaboratorError struct {
	// Name of the failing operation.
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type Options struct {
	// Folder (GMail label, IMAP mailbox) to poll.
	Folder string

	// Time between the end of one tick and the start of the next.
	Interval time.Duration

	// Maximum number of messages fetched at once.
	FetchConcurrency int

	Log     logrus.FieldLogger
	Metrics *Metrics // may be nil
	Journal Journal  // may be nil
}

type Poller struct {
	svc  MailService
	w    Writer
	opts Options

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

func New(svc MailService, w Writer, opts Options) *Poller {
	if opts.Folder == "" {
		opts.Folder = DefaultFolder
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = DefaultFetchConcurrency
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Poller{svc: svc, w: w, opts: opts}
}

// Run ticks until ctx is cancelled.  Cancellation is only observed
// between ticks; a tick in flight runs to completion.  A stop that
// arrives during a tick takes effect while waiting for the next one:
// that tick is scheduled but never starts, and Run returns as soon as
// the stop is seen.
func (p *Poller) Run(ctx context.Context) error {
	tickCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return nil
		}
		p.Tick(tickCtx)

		t := time.NewTimer(p.opts.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Start runs the poller in the background.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Running {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.state, p.cancel, p.done = Running, cancel, done

	go func() {
		defer close(done)
		p.Run(ctx)
		p.mu.Lock()
		p.state, p.cancel = Idle, nil
		p.mu.Unlock()
		cancel()
	}()
	return nil
}

// Stop asks a started poller to stop.  It does not wait; see Wait.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// Wait blocks until a started poller has stopped.
func (p *Poller) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// State reports Running from Start until the poller has observed a
// Stop.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Tick performs one list, fetch, mark read, persist pass.
func (p *Poller) Tick(ctx context.Context) *TickReport {
	r := &TickReport{ID: uuid.NewString(), Started: time.Now()}
	log := p.opts.Log.WithField("tick", r.ID)
	log.Debug("Started iteration")

	r.Err = p.tick(ctx, log, r)
	r.Finished = time.Now()
	if r.Err != nil {
		entry := log.WithError(r.Err)
		var ce *CollaboratorError
		if errors.As(r.Err, &ce) {
			entry = entry.WithField("op", ce.Op)
		}
		entry.Error("Error occurred during iteration")
	}

	p.opts.Metrics.observe(r)
	if p.opts.Journal != nil {
		if err := p.opts.Journal.RecordTick(ctx, r); err != nil {
			log.WithError(err).WithField("op", "RecordTick").Error("unable to journal iteration")
		}
	}
	log.WithField("elapsed", r.Finished.Sub(r.Started)).Debug("Finished iteration")
	return r
}

func (p *Poller) tick(ctx context.Context, log *logrus.Entry, r *TickReport) error {
	ids, err := p.svc.ListUnread(ctx, p.opts.Folder)
	if err != nil {
		return &CollaboratorError{Op: "ListUnread", Err: err}
	}
	r.Listed = len(ids)
	if len(ids) == 0 {
		log.Info("No new messages")
		return nil
	}
	log.Infof("You have %d new messages.", len(ids))

	records, err := p.fetch(ctx, ids)
	if err != nil {
		return err
	}
	r.Fetched = len(records)

	// Every listed message is marked read, whether or not it can
	// be persisted below.
	if err := p.svc.MarkRead(ctx, ids); err != nil {
		return &CollaboratorError{Op: "MarkRead", Err: err}
	}

	for _, rec := range records {
		r.Outcomes = append(r.Outcomes, p.persist(log, rec))
	}
	for _, o := range r.Outcomes {
		switch {
		case o.Skipped:
			r.Skipped++
		case o.File == "":
			r.Failed++
		default:
			r.Written++
		}
	}
	return nil
}

// fetch gets and extracts every message, keeping the order of ids.
func (p *Poller) fetch(ctx context.Context, ids []message.ID) ([]*message.Record, error) {
	records := make([]*message.Record, len(ids))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(p.opts.FetchConcurrency)
	for i, id := range ids {
		grp.Go(func() error {
			if gctx.Err() != nil {
				return nil // an earlier fetch failed
			}
			raw, err := p.svc.GetMessage(gctx, id)
			if err != nil {
				return &CollaboratorError{Op: "GetMessage", Err: errors.Wrapf(err, "message %s", id.PermID)}
			}
			if raw == nil {
				return &CollaboratorError{Op: "GetMessage", Err: errors.Errorf("message %s: nothing returned", id.PermID)}
			}
			rec := message.Extract(raw.Headers, raw.Snippet)
			rec.Source = id
			records[i] = rec
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (p *Poller) persist(log *logrus.Entry, rec *message.Record) Outcome {
	o := Outcome{MessageID: rec.Source.PermID}
	path, err := p.w.Persist(rec)
	if err == nil {
		o.File = path
		log.WithField("file", path).Debug("message saved")
		return o
	}
	o.Reason = err.Error()
	o.Skipped = jsondir.IsSkipped(err)
	log.WithError(err).WithFields(logrus.Fields{
		"op":      "Persist",
		"message": rec.Source.PermID,
		"skipped": o.Skipped,
	}).Error("message not saved")
	return o
}
