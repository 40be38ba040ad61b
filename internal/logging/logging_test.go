package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailsnip.log")
	log, closer, err := New(Options{Level: "debug", Format: "json", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", log.GetLevel())
	}
	log.WithField("tick", "t1").Info("No new messages")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log line %q is not JSON: %v", data, err)
	}
	if entry["msg"] != "No new messages" || entry["tick"] != "t1" || entry["level"] != "info" {
		t.Errorf("log entry = %v", entry)
	}
}

func TestNewAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailsnip.log")
	if err := os.WriteFile(path, []byte("earlier\n"), 0600); err != nil {
		t.Fatal(err)
	}
	log, closer, err := New(Options{Level: "info", Format: "text", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	log.Info("later")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) <= len("earlier\n") || string(data[:8]) != "earlier\n" {
		t.Errorf("log file = %q, want appended output", data)
	}
}

func TestNewInvalid(t *testing.T) {
	if _, _, err := New(Options{Level: "loud", Format: "text"}); err == nil {
		t.Error("New with bad level succeeded")
	}
	if _, _, err := New(Options{Level: "info", Format: "xml"}); err == nil {
		t.Error("New with bad format succeeded")
	}
	if _, _, err := New(Options{Level: "info", File: "x.log", MaxSizeMB: -1}); err == nil {
		t.Error("New with negative size succeeded")
	}
}

func TestNewRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mailsnip.log")
	log, closer, err := New(Options{Level: "info", Format: "text", File: path, MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	line := strings.Repeat("x", 4096)
	for i := 0; i < 400; i++ { // about 1.6MB
		log.Info(line)
	}
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) < 2 {
		t.Fatalf("found %d files in log dir, want the active log plus a rotated one", len(entries))
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() > 1<<20 {
		t.Errorf("active log is %d bytes, want at most 1MB", info.Size())
	}
}
