// Command pv is the privault CLI client. It keeps a local encrypted vault
// in a bbolt file and can reconcile it against a remote privault server.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/privault/privault/internal/repository/bolt"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "privault")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "privault")
}

func vaultPath() string { return filepath.Join(cfgDir(), "vault.db") }
func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }
func keyPath() string   { return filepath.Join(cfgDir(), "key.bin") }
func userPath() string  { return filepath.Join(cfgDir(), "user") }

func saveToken(tok string, exp time.Time) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	f, err := os.Create(tokenPath())
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login with -remote first)")
	}
	return tf.AccessToken, nil
}

// The unwrapped vault key is cached between invocations so every command
// does not re-prompt for the master password. 0600, owner-only.
func saveKey(key []byte) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	return os.WriteFile(keyPath(), key, 0o600)
}

func loadKey() ([]byte, error) {
	key, err := os.ReadFile(keyPath())
	if err != nil {
		return nil, errors.New("vault locked; run: pv login")
	}
	return key, nil
}

func saveUsername(name string) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	return os.WriteFile(userPath(), []byte(strings.TrimSpace(name)), 0o600)
}

func loadUsername() (string, error) {
	b, err := os.ReadFile(userPath())
	if err != nil {
		return "", errors.New("not logged in; run: pv login")
	}
	return strings.TrimSpace(string(b)), nil
}

// ---- prompts ----

func promptSecret(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func openVault() (*bolt.Store, error) {
	_ = os.MkdirAll(cfgDir(), 0o700)
	return bolt.Open(vaultPath())
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: pv <command> [flags]

commands:
  register   create an account in the local vault (and remotely with -remote)
  login      unlock the vault; with -remote also obtain an API token
  logout     lock the vault and drop cached token/key
  add        store a new credential
  list       list credential names
  show       decrypt and print one credential
  update     change a credential's payload and/or name
  delete     remove a credential
  sync       reconcile the local vault with the remote server
  keyring    set|clear the master password in the OS keyring`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	var err error
	switch os.Args[1] {
	case "register":
		err = cmdRegister(os.Args[2:])
	case "login":
		err = cmdLogin(os.Args[2:])
	case "logout":
		err = cmdLogout()
	case "add":
		err = cmdAdd(os.Args[2:])
	case "list":
		err = cmdList()
	case "show":
		err = cmdShow(os.Args[2:])
	case "update":
		err = cmdUpdate(os.Args[2:])
	case "delete":
		err = cmdDelete(os.Args[2:])
	case "sync":
		err = cmdSync(os.Args[2:])
	case "keyring":
		err = cmdKeyring(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fatal(err)
	}
}
