package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/zalando/go-keyring"

	"github.com/privault/privault/internal/crypto/vaultcrypto"
	"github.com/privault/privault/internal/errs"
	"github.com/privault/privault/internal/limiter"
	"github.com/privault/privault/internal/model"
	"github.com/privault/privault/internal/remote"
	"github.com/privault/privault/internal/service"
)

const keyringService = "privault"

// genericAuthMsg covers both bad passwords and undecryptable key material,
// so the two cases cannot be told apart from the output.
const genericAuthMsg = "invalid credentials"

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

// cmdRegister creates the account locally and, when -remote is set, mirrors
// it to the server with the same key material so either copy of the vault
// can be unlocked with the master password.
func cmdRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	username := fs.String("username", "", "account name")
	remoteURL := fs.String("remote", "", "server base URL (optional)")
	_ = fs.Parse(args)
	if *username == "" {
		return errors.New("missing -username")
	}

	password, err := promptSecret("Master password: ")
	if err != nil {
		return err
	}
	confirm, err := promptSecret("Repeat password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}

	store, err := openVault()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := withTimeout()
	defer cancel()

	auth := service.NewAuthService(store.Users(), limiter.Nop{})
	u, err := auth.Register(ctx, *username, password, nil)
	if err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return errors.New("username already exists, choose a different one")
		}
		return err
	}

	if *remoteURL != "" {
		cli := remote.New(*remoteURL, "", nil)
		err := cli.Register(ctx, remote.RegisterRequest{
			Username:   *username,
			Password:   password,
			KekSalt:    u.KekSalt,
			WrappedKey: u.WrappedKey,
		})
		if err != nil {
			return fmt.Errorf("registered locally, remote registration failed: %w", err)
		}
	}

	fmt.Println("registered", *username)
	return nil
}

// cmdLogin verifies the master password, caches the unwrapped vault key and
// (with -remote) an API token for sync.
func cmdLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "account name")
	remoteURL := fs.String("remote", "", "server base URL (optional)")
	useKeyring := fs.Bool("keyring", false, "read the master password from the OS keyring")
	_ = fs.Parse(args)
	if *username == "" {
		return errors.New("missing -username")
	}

	var password string
	var err error
	if *useKeyring {
		if password, err = keyring.Get(keyringService, *username); err != nil {
			return fmt.Errorf("keyring: %w", err)
		}
	} else if password, err = promptSecret("Master password: "); err != nil {
		return err
	}

	store, err := openVault()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := withTimeout()
	defer cancel()

	auth := service.NewAuthService(store.Users(), limiter.Nop{})
	u, err := auth.LoginWithIP(ctx, *username, password, "local")
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			return errors.New(genericAuthMsg)
		}
		return err
	}
	key, err := service.UnlockVaultKey(u, password)
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) || errors.Is(err, errs.ErrDecryption) {
			return errors.New(genericAuthMsg)
		}
		return err
	}
	if err := saveKey(key); err != nil {
		return err
	}
	if err := saveUsername(*username); err != nil {
		return err
	}

	if *remoteURL != "" {
		cli := remote.New(*remoteURL, "", nil)
		resp, err := cli.Login(ctx, *username, password)
		if err != nil {
			return fmt.Errorf("local vault unlocked, remote login failed: %w", err)
		}
		if err := saveToken(resp.AccessToken, time.Now().Add(time.Hour)); err != nil {
			return err
		}
	}

	fmt.Println("vault unlocked")
	return nil
}

func cmdLogout() error {
	_ = os.Remove(keyPath())
	_ = os.Remove(tokenPath())
	_ = os.Remove(userPath())
	fmt.Println("vault locked")
	return nil
}

// session loads the logged-in user ID and cached vault key.
func session(ctx context.Context, users userLookup) (uuid.UUID, []byte, error) {
	name, err := loadUsername()
	if err != nil {
		return uuid.Nil, nil, err
	}
	u, err := users.GetByUsername(ctx, name)
	if err != nil {
		return uuid.Nil, nil, err
	}
	key, err := loadKey()
	if err != nil {
		return uuid.Nil, nil, err
	}
	return u.ID, key, nil
}

type userLookup interface {
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

func cmdAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	name := fs.String("name", "", "credential name")
	_ = fs.Parse(args)
	if *name == "" {
		return errors.New("missing -name")
	}

	data, err := promptSecret("Secret data: ")
	if err != nil {
		return err
	}

	store, err := openVault()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := withTimeout()
	defer cancel()

	userID, key, err := session(ctx, store.Users())
	if err != nil {
		return err
	}
	ct, err := vaultcrypto.EncryptString(key, data)
	if err != nil {
		return err
	}

	vault := service.NewVaultService(store.Credentials(), service.NewLocks())
	c, err := vault.Add(ctx, userID, *name, ct)
	if err != nil {
		return err
	}
	fmt.Println("added", c.Name, c.ID)
	return nil
}

func cmdList() error {
	store, err := openVault()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := withTimeout()
	defer cancel()

	userID, _, err := session(ctx, store.Users())
	if err != nil {
		return err
	}
	vault := service.NewVaultService(store.Credentials(), service.NewLocks())
	creds, err := vault.List(ctx, userID)
	if err != nil {
		return err
	}
	type row struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	out := make([]row, 0, len(creds))
	for i := range creds {
		out = append(out, row{ID: creds[i].ID.String(), Name: creds[i].Name, UpdatedAt: creds[i].UpdatedAt})
	}
	printJSON(out)
	return nil
}

// cmdShow decrypts one credential. Decryption happens here, at the read
// boundary, so its cost and failure mode stay visible.
func cmdShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	name := fs.String("name", "", "credential name")
	_ = fs.Parse(args)
	if *name == "" {
		return errors.New("missing -name")
	}

	store, err := openVault()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := withTimeout()
	defer cancel()

	userID, key, err := session(ctx, store.Users())
	if err != nil {
		return err
	}
	c, err := store.Credentials().GetByName(ctx, userID, *name)
	if err != nil {
		return err
	}
	plain, err := vaultcrypto.DecryptString(key, c.Ciphertext)
	if err != nil {
		if errors.Is(err, errs.ErrDecryption) {
			return errors.New(genericAuthMsg)
		}
		return err
	}
	fmt.Printf("%s: %s\n", c.Name, plain)
	return nil
}

func cmdUpdate(args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	name := fs.String("name", "", "credential name")
	rename := fs.String("rename", "", "new credential name (optional)")
	keepData := fs.Bool("keep-data", false, "rename only, keep current payload")
	_ = fs.Parse(args)
	if *name == "" {
		return errors.New("missing -name")
	}

	store, err := openVault()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := withTimeout()
	defer cancel()

	userID, key, err := session(ctx, store.Users())
	if err != nil {
		return err
	}
	c, err := store.Credentials().GetByName(ctx, userID, *name)
	if err != nil {
		return err
	}

	var ct model.Ciphertext
	if !*keepData {
		data, err := promptSecret("New secret data: ")
		if err != nil {
			return err
		}
		if ct, err = vaultcrypto.EncryptString(key, data); err != nil {
			return err
		}
	}

	vault := service.NewVaultService(store.Credentials(), service.NewLocks())
	updated, err := vault.Update(ctx, userID, c.ID, ct, *rename)
	if err != nil {
		return err
	}
	fmt.Println("updated", updated.Name)
	return nil
}

func cmdDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	name := fs.String("name", "", "credential name")
	_ = fs.Parse(args)
	if *name == "" {
		return errors.New("missing -name")
	}

	store, err := openVault()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := withTimeout()
	defer cancel()

	userID, _, err := session(ctx, store.Users())
	if err != nil {
		return err
	}
	c, err := store.Credentials().GetByName(ctx, userID, *name)
	if err != nil {
		return err
	}
	vault := service.NewVaultService(store.Credentials(), service.NewLocks())
	if err := vault.Delete(ctx, userID, c.ID); err != nil {
		return err
	}
	fmt.Println("deleted", *name)
	return nil
}

// cmdSync runs a full push-then-pull reconciliation against the server.
func cmdSync(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	remoteURL := fs.String("remote", "", "server base URL")
	_ = fs.Parse(args)
	if *remoteURL == "" {
		return errors.New("missing -remote")
	}
	token, err := loadToken()
	if err != nil {
		return err
	}

	store, err := openVault()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	userID, _, err := session(ctx, store.Users())
	if err != nil {
		return err
	}

	cli := remote.New(*remoteURL, token, nil)
	syncer := service.NewSyncer(store.Credentials(), cli, service.NewLocks())
	res, err := syncer.Sync(ctx, userID)
	if err != nil {
		return err
	}
	fmt.Printf("pushed %d, pulled %d new, %d updated\n", res.Pushed, res.Created, res.Updated)
	if res.Partial() {
		fmt.Fprintln(os.Stderr, "warning: sync incomplete, re-run to finish")
		if res.PushErr != nil {
			fmt.Fprintf(os.Stderr, "  push: %s\n", res.PushErr)
		}
		if res.PullErr != nil {
			fmt.Fprintf(os.Stderr, "  pull: %s\n", res.PullErr)
		}
	}
	return nil
}

// cmdKeyring stores or removes the master password in the OS keyring.
func cmdKeyring(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: pv keyring set|clear -username <name>")
	}
	fs := flag.NewFlagSet("keyring", flag.ExitOnError)
	username := fs.String("username", "", "account name")
	_ = fs.Parse(args[1:])
	if *username == "" {
		return errors.New("missing -username")
	}

	switch args[0] {
	case "set":
		password, err := promptSecret("Master password: ")
		if err != nil {
			return err
		}

		// verify before storing
		store, err := openVault()
		if err != nil {
			return err
		}
		defer store.Close()
		ctx, cancel := withTimeout()
		defer cancel()
		auth := service.NewAuthService(store.Users(), limiter.Nop{})
		if _, err := auth.LoginWithIP(ctx, *username, password, "local"); err != nil {
			return errors.New(genericAuthMsg)
		}

		if err := keyring.Set(keyringService, *username, password); err != nil {
			return fmt.Errorf("keyring: %w", err)
		}
		fmt.Println("password saved to keyring")
		return nil
	case "clear":
		if err := keyring.Delete(keyringService, *username); err != nil {
			return fmt.Errorf("keyring: %w", err)
		}
		fmt.Println("password removed from keyring")
		return nil
	default:
		return errors.New("usage: pv keyring set|clear -username <name>")
	}
}
