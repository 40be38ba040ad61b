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

package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/matta/mailsnip/internal/message"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"google.golang.org/api/option"
)

const messagesPath = "/gmail/v1/users/me/messages"

// fakeGmail serves a small subset of the Gmail REST API.
type fakeGmail struct {
	mu          sync.Mutex
	pages       [][]string
	messages    map[string]map[string]interface{}
	throttle    int
	gets        int
	batches     [][]string
	removed     []string
	listQueries []string
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == "GET" && r.URL.Path == messagesPath:
		q := r.URL.Query()
		f.listQueries = append(f.listQueries, q.Get("labelIds")+" "+q.Get("q"))
		page := 0
		if tok := q.Get("pageToken"); tok != "" {
			fmt.Sscanf(tok, "page%d", &page)
		}
		resp := map[string]interface{}{}
		var msgs []map[string]string
		for _, id := range f.pages[page] {
			msgs = append(msgs, map[string]string{"id": id, "threadId": "t" + id})
		}
		resp["messages"] = msgs
		resp["resultSizeEstimate"] = len(msgs)
		if page+1 < len(f.pages) {
			resp["nextPageToken"] = fmt.Sprintf("page%d", page+1)
		}
		json.NewEncoder(w).Encode(resp)

	case r.Method == "POST" && r.URL.Path == messagesPath+"/batchModify":
		var req struct {
			Ids            []string `json:"ids"`
			RemoveLabelIds []string `json:"removeLabelIds"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.batches = append(f.batches, req.Ids)
		f.removed = append(f.removed, req.RemoveLabelIds...)
		w.WriteHeader(http.StatusNoContent)

	case r.Method == "GET" && strings.HasPrefix(r.URL.Path, messagesPath+"/"):
		id := strings.TrimPrefix(r.URL.Path, messagesPath+"/")
		f.gets++
		if f.throttle > 0 {
			f.throttle--
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":429,"message":"slow down"}}`))
			return
		}
		msg, ok := f.messages[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":404,"message":"Not Found","errors":[{"reason":"notFound"}]}}`))
			return
		}
		json.NewEncoder(w).Encode(msg)

	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
	}
}

func newTestService(t *testing.T, f *fakeGmail) *GmailService {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	log, _ := test.NewNullLogger()
	s, err := New(context.Background(), srv.Client(), log, option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return s
}

func TestListUnread(t *testing.T) {
	f := &fakeGmail{pages: [][]string{{"a", "b"}, {"c"}}}
	s := newTestService(t, f)

	got, err := s.ListUnread(context.Background(), "INBOX")
	if err != nil {
		t.Fatalf("ListUnread() = %v", err)
	}
	want := []message.ID{
		{PermID: "a", ThreadID: "ta", Mailbox: "INBOX"},
		{PermID: "b", ThreadID: "tb", Mailbox: "INBOX"},
		{PermID: "c", ThreadID: "tc", Mailbox: "INBOX"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListUnread() mismatch (-want +got):\n%s", diff)
	}
	for _, q := range f.listQueries {
		if q != "INBOX is:unread" {
			t.Errorf("list query = %q, want %q", q, "INBOX is:unread")
		}
	}
}

func TestListUnreadEmpty(t *testing.T) {
	s := newTestService(t, &fakeGmail{pages: [][]string{{}}})
	got, err := s.ListUnread(context.Background(), "INBOX")
	if err != nil {
		t.Fatalf("ListUnread() = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ListUnread() = %v, want none", got)
	}
}

func TestGetMessage(t *testing.T) {
	f := &fakeGmail{
		throttle: 1,
		messages: map[string]map[string]interface{}{
			"a": {
				"id":       "a",
				"threadId": "ta",
				"snippet":  "hi bob",
				"payload": map[string]interface{}{
					"headers": []map[string]string{
						{"name": "To", "value": "bob@example.com"},
						{"name": "Date", "value": "Fri, 14 Aug 2020 00:10:55 +0300"},
					},
				},
			},
		},
	}
	s := newTestService(t, f)

	got, err := s.GetMessage(context.Background(), message.ID{PermID: "a", Mailbox: "INBOX"})
	if err != nil {
		t.Fatalf("GetMessage() = %v", err)
	}
	want := &message.Raw{
		ID: message.ID{PermID: "a", ThreadID: "ta", Mailbox: "INBOX"},
		Headers: []message.HeaderField{
			{Name: "To", Value: "bob@example.com"},
			{Name: "Date", Value: "Fri, 14 Aug 2020 00:10:55 +0300"},
		},
		Snippet: "hi bob",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetMessage() mismatch (-want +got):\n%s", diff)
	}
}

func TestGetMessageThrottledGivesUp(t *testing.T) {
	f := &fakeGmail{throttle: math.MaxInt}
	s := newTestService(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := s.GetMessage(ctx, message.ID{PermID: "a"})
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("GetMessage() = %v, want %v", err, ErrThrottled)
	}
	if ctx.Err() != nil {
		t.Errorf("GetMessage() returned only after the deadline")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if want := maxThrottleRetries + 1; f.gets != want {
		t.Errorf("server saw %d requests, want %d", f.gets, want)
	}
}

func TestGetMessageNotFound(t *testing.T) {
	s := newTestService(t, &fakeGmail{})
	_, err := s.GetMessage(context.Background(), message.ID{PermID: "gone"})
	if !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("GetMessage() = %v, want %v", err, ErrMessageNotFound)
	}
}

func TestMarkReadBatches(t *testing.T) {
	f := &fakeGmail{}
	s := newTestService(t, f)

	var ids []message.ID
	for i := 0; i < 2*batchModifyMax+1; i++ {
		ids = append(ids, message.ID{PermID: fmt.Sprint(i)})
	}
	if err := s.MarkRead(context.Background(), ids); err != nil {
		t.Fatalf("MarkRead() = %v", err)
	}
	var sizes []int
	for _, b := range f.batches {
		sizes = append(sizes, len(b))
	}
	if diff := cmp.Diff([]int{batchModifyMax, batchModifyMax, 1}, sizes); diff != "" {
		t.Errorf("batch sizes mismatch (-want +got):\n%s", diff)
	}
	for _, l := range f.removed {
		if l != unreadLabel {
			t.Errorf("removed label %q, want %q", l, unreadLabel)
		}
	}
}

func TestMarkReadNothing(t *testing.T) {
	f := &fakeGmail{}
	s := newTestService(t, f)
	if err := s.MarkRead(context.Background(), nil); err != nil {
		t.Fatalf("MarkRead(nil) = %v", err)
	}
	if len(f.batches) != 0 {
		t.Errorf("MarkRead(nil) issued %d calls, want 0", len(f.batches))
	}
}
