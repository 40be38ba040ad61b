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

/*
Package token stores OAuth 2.0 tokens between runs.

Two stores are provided: a JSON file readable only by the owner, and
the operating system's keyring (macOS Keychain, the freedesktop
Secret Service, Windows Credential Manager, pass, or an encrypted file
as a last resort).
*/
package token

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	dirFileMode   = 0700
	tokenFileMode = 0600

	keyringService = "mailsnip"
	keyringKey     = "gmail-oauth-token"
)

// ErrNotFound is returned by Load when no token has been saved.
var ErrNotFound = errors.New("no saved token")

// Store loads and saves a single OAuth 2.0 token.
type Store interface {
	Load() (*oauth2.Token, error)
	Save(*oauth2.Token) error
}

// FileStore keeps the token as JSON in a file.
type FileStore struct {
	Path string
}

func (s *FileStore) Load() (*oauth2.Token, error) {
	b, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading token file %q", s.Path)
	}
	return decode(b)
}

func (s *FileStore) Save(tok *oauth2.Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return errors.Wrap(err, "encoding token")
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), dirFileMode); err != nil {
		return errors.Wrapf(err, "creating token directory for %q", s.Path)
	}
	if err := os.WriteFile(s.Path, b, tokenFileMode); err != nil {
		return errors.Wrapf(err, "writing token file %q", s.Path)
	}
	return nil
}

// KeyringStore keeps the token in a keyring.
type KeyringStore struct {
	Ring keyring.Keyring
	Key  string
}

// OpenKeyring opens the system keyring.  fileDir is used by the
// encrypted file backend when no system keyring is available.
func OpenKeyring(fileDir string) (*KeyringStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.TerminalPrompt,
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening keyring")
	}
	return &KeyringStore{Ring: ring, Key: keyringKey}, nil
}

func (s *KeyringStore) Load() (*oauth2.Token, error) {
	item, err := s.Ring.Get(s.Key)
	if err == keyring.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q from keyring", s.Key)
	}
	return decode(item.Data)
}

func (s *KeyringStore) Save(tok *oauth2.Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return errors.Wrap(err, "encoding token")
	}
	err = s.Ring.Set(keyring.Item{
		Key:   s.Key,
		Data:  b,
		Label: "mailsnip Gmail token",
	})
	if err != nil {
		return errors.Wrapf(err, "writing %q to keyring", s.Key)
	}
	return nil
}

func decode(b []byte) (*oauth2.Token, error) {
	tok := &oauth2.Token{}
	if err := json.Unmarshal(b, tok); err != nil {
		return nil, errors.Wrap(err, "decoding token")
	}
	return tok, nil
}
