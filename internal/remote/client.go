// Package remote implements the HTTP client for the vault service API.
// Network and remote-side failures surface as errs.ErrTransport so the
// syncer can tell them apart from local storage errors. No retries here:
// callers wanting resilience wrap calls with their own backoff.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/privault/privault/internal/errs"
	"github.com/privault/privault/internal/model"
)

// Client talks to the vault service. The zero value is not usable; use New.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New constructs a client for the given base URL. httpClient may be nil,
// in which case http.DefaultClient is used.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, token: token, http: httpClient}
}

// RegisterRequest is the registration payload. Key material is prepared on
// the client, so the server never handles the unwrapped vault key.
type RegisterRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	KekSalt    []byte `json:"kek_salt"`
	WrappedKey []byte `json:"wrapped_key"`
}

// LoginResponse carries the access token and the key-material bootstrap.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	KekSalt     []byte `json:"kek_salt"`
	WrappedKey  []byte `json:"wrapped_key"`
}

// Register creates an account on the remote service.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	return c.call(ctx, http.MethodPost, "/api/register", req, nil)
}

// Login authenticates and returns the token plus wrapped key material.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var out LoginResponse
	in := map[string]string{"username": username, "password": password}
	if err := c.call(ctx, http.MethodPost, "/api/login", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetToken installs the bearer token used by authenticated calls.
func (c *Client) SetToken(token string) { c.token = token }

// FetchCredentials returns the authenticated user's full remote set.
func (c *Client) FetchCredentials(ctx context.Context) ([]model.SyncRecord, error) {
	var out []model.SyncRecord
	if err := c.call(ctx, http.MethodGet, "/api/sync/credentials", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PushCredential sends one record for the remote to merge.
func (c *Client) PushCredential(ctx context.Context, rec model.SyncRecord) error {
	return c.call(ctx, http.MethodPost, "/api/sync/credential", rec, nil)
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %v: %w", method, path, err, errs.ErrTransport)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, errs.ErrTransport)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %v: %w", method, path, err, errs.ErrTransport)
	}
	return nil
}
