package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/oauth2"
)

func TestReadClient(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "client.json")
	if err := os.WriteFile(file, []byte(`{"installed":{}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	if b, err := readClient(`{"web":{}}`, file); err != nil || string(b) != `{"web":{}}` {
		t.Errorf("inline JSON should win, got %q, %v", b, err)
	}
	if b, err := readClient("", file); err != nil || string(b) != `{"installed":{}}` {
		t.Errorf("file: got %q, %v", b, err)
	}
	if _, err := readClient("", filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := readClient("", ""); err == nil {
		t.Error("expected error without client")
	}
}

func TestSaveToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := saveToken(path, &oauth2.Token{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("saveToken() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions = %o, want 600", perm)
	}

	raw, _ := os.ReadFile(path)
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		t.Fatal(err)
	}
	if tok.RefreshToken != "r" {
		t.Errorf("refresh token = %q", tok.RefreshToken)
	}
}
