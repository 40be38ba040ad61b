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

package tracehttp

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestRoundTripRedactsAndPreservesBody(t *testing.T) {
	var gotBody, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotAuth = r.Header.Get("Authorization")
		io.WriteString(w, "pong")
	}))
	defer srv.Close()

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	client := &http.Client{Transport: Wrap(nil, log)}

	req, err := http.NewRequest("POST", srv.URL, strings.NewReader("ping"))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if gotBody != "ping" {
		t.Errorf("server saw body %q, want %q", gotBody, "ping")
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("server saw Authorization %q, want %q", gotAuth, "Bearer secret")
	}
	if string(body) != "pong" {
		t.Errorf("client saw body %q, want %q", body, "pong")
	}

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}
	for _, e := range entries {
		if strings.Contains(e.Message, "secret") {
			t.Errorf("log entry leaks credentials: %q", e.Message)
		}
	}
	if !strings.Contains(entries[0].Message, "Authorization: "+redacted) {
		t.Errorf("request dump %q lacks redacted Authorization header", entries[0].Message)
	}
	if !strings.Contains(entries[1].Message, "pong") {
		t.Errorf("response dump %q lacks body", entries[1].Message)
	}
}
