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

// Package jsondir stores normalized messages as one JSON file each in
// a directory.
package jsondir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/matta/mailsnip/internal/filename"
	"github.com/matta/mailsnip/internal/message"
	"github.com/pkg/errors"
)

const (
	dirFileMode     = 0700
	messageFileMode = 0600
)

// SkippedError reports a record that could not be named, and so was
// not written.
type SkippedError struct {
	// The remote message the record was built from.
	Source message.ID

	Err error
}

func (e *SkippedError) Error() string {
	return fmt.Sprintf("persistence skipped for message %q: %v", e.Source.PermID, e.Err)
}

func (e *SkippedError) Unwrap() error { return e.Err }

// IsSkipped reports whether err is, or wraps, a *SkippedError.
func IsSkipped(err error) bool {
	var s *SkippedError
	return errors.As(err, &s)
}

type Service struct {
	// Directory the message files are written to.
	path string
}

// New returns a Service writing to path, creating the directory if
// needed.  An empty path means the current directory.
func New(path string) (*Service, error) {
	if path == "" {
		path = "."
	}
	if err := os.MkdirAll(path, dirFileMode); err != nil {
		return nil, errors.Wrapf(err, "creating output directory %q", path)
	}
	return &Service{path: path}, nil
}

func (s *Service) Path() string {
	return s.path
}

// Name returns the base file name for rec: "<HH-MM-SS> <id>.json".
func Name(rec *message.Record) (string, error) {
	tm, err := filename.FormatTime(rec.Date)
	if err != nil {
		return "", &SkippedError{Source: rec.Source, Err: err}
	}
	id, err := filename.Sanitize(rec.MessageID)
	if err != nil {
		return "", &SkippedError{Source: rec.Source, Err: err}
	}
	return fmt.Sprintf("%s %s.json", tm, id), nil
}

// Persist writes rec to its file, replacing any file of the same name,
// and returns the path written.  Records whose name cannot be derived
// yield a *SkippedError and nothing is written.
func (s *Service) Persist(rec *message.Record) (string, error) {
	name, err := Name(rec)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return "", errors.Wrapf(err, "encoding message %q", rec.Source.PermID)
	}

	path := filepath.Join(s.path, name)
	if err := writeFile(path, buf.Bytes()); err != nil {
		return "", errors.Wrapf(err, "writing %q", path)
	}
	return path, nil
}

// writeFile replaces path with data via a temporary file in the same
// directory, so readers see either the old or the new content.
func writeFile(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".mailsnip-*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(messageFileMode); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
