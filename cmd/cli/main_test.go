package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func withTmpConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "privault")
}

func Test_cfgDir_And_Paths(t *testing.T) {
	base := withTmpConfig(t)
	if got := cfgDir(); got != base {
		t.Fatalf("cfgDir=%q, want %q", got, base)
	}
	if !strings.HasPrefix(vaultPath(), base) || !strings.HasSuffix(vaultPath(), "vault.db") {
		t.Fatalf("vaultPath unexpected: %s", vaultPath())
	}
	if !strings.HasPrefix(tokenPath(), base) || !strings.HasSuffix(tokenPath(), "token.json") {
		t.Fatalf("tokenPath unexpected: %s", tokenPath())
	}
	if !strings.HasPrefix(keyPath(), base) || !strings.HasSuffix(keyPath(), "key.bin") {
		t.Fatalf("keyPath unexpected: %s", keyPath())
	}
}

func Test_token_SaveLoad(t *testing.T) {
	_ = withTmpConfig(t)

	if _, err := loadToken(); err == nil {
		t.Fatalf("expected error when token file missing")
	}
	if err := saveToken("tok", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("saveToken: %v", err)
	}
	tok, err := loadToken()
	if err != nil || tok != "tok" {
		t.Fatalf("loadToken: tok=%q err=%v", tok, err)
	}
	if err := saveToken("tok2", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("saveToken expired: %v", err)
	}
	if _, err := loadToken(); err == nil {
		t.Fatalf("want error for expired token")
	}
}

func Test_key_SaveLoad(t *testing.T) {
	_ = withTmpConfig(t)

	if _, err := loadKey(); err == nil {
		t.Fatalf("expected error when key missing")
	}
	key := []byte{1, 2, 3}
	if err := saveKey(key); err != nil {
		t.Fatalf("saveKey: %v", err)
	}
	got, err := loadKey()
	if err != nil || string(got) != string(key) {
		t.Fatalf("loadKey mismatch: %v %v", got, err)
	}
	fi, err := os.Stat(keyPath())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("key file mode = %o, want 0600", fi.Mode().Perm())
	}
}

func Test_username_SaveLoad(t *testing.T) {
	_ = withTmpConfig(t)

	if _, err := loadUsername(); err == nil {
		t.Fatalf("expected error when username missing")
	}
	if err := saveUsername("alice\n"); err != nil {
		t.Fatalf("saveUsername: %v", err)
	}
	got, err := loadUsername()
	if err != nil || got != "alice" {
		t.Fatalf("loadUsername: %q %v", got, err)
	}
}

func Test_printJSON_WritesPretty(t *testing.T) {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() { os.Stdout = old }()

	printJSON(map[string]any{"a": 1})
	_ = w.Close()
	out, _ := io.ReadAll(r)

	var m map[string]any
	if json.Unmarshal(out, &m) != nil || m["a"] != float64(1) {
		t.Fatalf("printJSON produced invalid json: %s", string(out))
	}
	if !bytes.Contains(out, []byte("\n")) {
		t.Fatalf("printJSON should indent")
	}
}
