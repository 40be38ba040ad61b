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
	"net/http"
	"net/http/httputil"

	"github.com/sirupsen/logrus"
)

const redacted = "REDACTED"

// traceTransport is an http.RoundTripper that logs the request and
// response at debug level while delegating the real work to another
// http.RoundTripper.  Credentials are never logged.
type traceTransport struct {
	delegate http.RoundTripper
	log      logrus.FieldLogger
}

// RoundTrip logs a dump of the request and response while delegating
// the round trip to the delegate.
func (t *traceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := redact(req)
	dump, err := httputil.DumpRequest(r, true)
	// DumpRequest drains the shared body and leaves a fresh copy
	// on r.
	req.Body = r.Body
	if err == nil {
		t.log.WithField("method", req.Method).Debug(string(dump))
	}
	resp, err := t.delegate.RoundTrip(req)
	if err != nil {
		t.log.WithError(err).WithField("url", req.URL.String()).Debug("round trip failed")
		return resp, err
	}
	if dump, dumpErr := httputil.DumpResponse(resp, true); dumpErr == nil {
		t.log.WithField("status", resp.StatusCode).Debug(string(dump))
	}
	return resp, nil
}

// redact returns a shallow copy of req with credential headers
// replaced.  The body is shared with req.
func redact(req *http.Request) *http.Request {
	if req.Header.Get("Authorization") == "" && req.Header.Get("X-Goog-Api-Key") == "" {
		return req
	}
	r := req.Clone(req.Context())
	r.Body = req.Body
	for _, h := range []string{"Authorization", "X-Goog-Api-Key"} {
		if r.Header.Get(h) != "" {
			r.Header.Set(h, redacted)
		}
	}
	return r
}

func Wrap(d http.RoundTripper, log logrus.FieldLogger) http.RoundTripper {
	if d == nil {
		d = http.DefaultTransport
	}
	return &traceTransport{delegate: d, log: log}
}

// Inject a traceTransport into http.DefaultTransport
func WrapDefaultTransport(log logrus.FieldLogger) {
	http.DefaultTransport = Wrap(http.DefaultTransport, log)
}
