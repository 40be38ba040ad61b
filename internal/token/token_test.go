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

package token

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"
)

func sampleToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "access",
		TokenType:    "Bearer",
		RefreshToken: "refresh",
		Expiry:       time.Date(2020, 8, 14, 0, 10, 55, 0, time.UTC),
	}
}

func checkRoundTrip(t *testing.T, s Store) {
	t.Helper()
	if _, err := s.Load(); err != ErrNotFound {
		t.Fatalf("Load() on empty store = %v, want %v", err, ErrNotFound)
	}
	want := sampleToken()
	if err := s.Save(want); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken ||
		got.TokenType != want.TokenType || !got.Expiry.Equal(want.Expiry) {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	s := &FileStore{Path: path}
	checkRoundTrip(t, s)

	stat, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if mode := stat.Mode().Perm(); mode != tokenFileMode {
		t.Errorf("token file mode = %o, want %o", mode, tokenFileMode)
	}
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte("not json"), 0600); err != nil {
		t.Fatal(err)
	}
	s := &FileStore{Path: path}
	if _, err := s.Load(); err == nil || err == ErrNotFound {
		t.Errorf("Load() = %v, want a decode error", err)
	}
}

func TestKeyringStore(t *testing.T) {
	s := &KeyringStore{Ring: keyring.NewArrayKeyring(nil), Key: keyringKey}
	checkRoundTrip(t, s)
}
