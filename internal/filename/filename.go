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

// Package filename derives the parts of a stored message's file name
// from its Message-ID and Date headers.
package filename

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/emersion/go-message/mail"
	"github.com/pkg/errors"
)

var (
	ErrInvalidIdentifier = errors.New("invalid message identifier")
	ErrDateParse         = errors.New("unparsable message date")
)

// Characters that may not appear in a file name on common systems.
const forbidden = `\/:*?"<>|`

// timeLayout renders HH-MM-SS.
const timeLayout = "15-04-05"

// Full day and month names, shortened to the three letter forms RFC
// 5322 uses.
var longNames = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday|` +
	`january|february|march|april|june|july|august|september|october|november|december)\b`)

var leadingWeekday = regexp.MustCompile(`(?i)^(mon|tue|wed|thu|fri|sat|sun),?\s+`)

func shortNames(s string) string {
	return longNames.ReplaceAllStringFunc(s, func(name string) string {
		return strings.ToUpper(name[:1]) + strings.ToLower(name[1:3])
	})
}

// Sanitize converts a raw Message-ID into a token usable in a file
// name.  Everything from the first '@' on is dropped, then every
// forbidden character is removed.  An empty result is valid.
func Sanitize(id *string) (string, error) {
	if id == nil {
		return "", ErrInvalidIdentifier
	}
	s := *id
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(forbidden, r) {
			return -1
		}
		return r
	}, s), nil
}

// FormatTime parses a message date and renders its time of day as
// HH-MM-SS in the date's own zone.
func FormatTime(date *string) (string, error) {
	if date == nil {
		return "", errors.Wrap(ErrDateParse, "no date")
	}
	t, err := ParseDate(*date)
	if err != nil {
		return "", err
	}
	return t.Format(timeLayout), nil
}

// ParseDate parses the free form dates found in mail headers.  RFC
// 5322 dates keep their offset; dates without a zone are taken as
// UTC.
func ParseDate(s string) (time.Time, error) {
	s = shortNames(strings.TrimSpace(s))
	var h mail.Header
	h.Set("Date", s)
	if t, err := h.Date(); err == nil {
		return t, nil
	}
	t, err := dateparse.ParseIn(leadingWeekday.ReplaceAllString(s, ""), time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrDateParse, "%q: %v", s, err)
	}
	return t, nil
}
