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

package message

// Extract builds a Record from a message's headers and snippet.
//
// Header names are matched exactly.  When a header repeats, the last
// value wins.  Headers that are absent leave the field nil.
func Extract(headers []HeaderField, snippet string) *Record {
	r := &Record{Body: snippet}
	for _, h := range headers {
		v := h.Value
		switch h.Name {
		case "To":
			r.To = &v
		case "From":
			r.From = &v
		case "Subject":
			r.Subject = &v
		case "Message-ID":
			r.MessageID = &v
		case "Date":
			r.Date = &v
		}
	}
	return r
}
