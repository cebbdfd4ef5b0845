// Package client is the Go counterpart of the browser client: it wraps every
// outbound API call in the token-refresh protocol. An expired access token
// triggers one cookie-borne refresh and one retry of the original request,
// never more; an unrecoverable refresh tears the local session down.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

var ErrSessionExpired = errors.New("session expired")

type Config struct {
	// BaseURL is the API origin, e.g. "http://localhost:8080".
	BaseURL string
	// Durable holds the access token across context restarts (remember me).
	Durable TokenStore
	// Ephemeral holds the access token for this context only.
	Ephemeral TokenStore
	// OnSessionExpired fires when a refresh fails and the local session has
	// been cleared; the browser equivalent is the redirect to /login.
	OnSessionExpired func()
	// HTTPClient is optional; a cookie jar is attached if it lacks one. The
	// jar is what carries the refresh cookie, exactly like a browser.
	HTTPClient *http.Client
}

type Client struct {
	baseURL          string
	http             *http.Client
	durable          TokenStore
	ephemeral        TokenStore
	onSessionExpired func()
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base url is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}

	durable := cfg.Durable
	if durable == nil {
		durable = NewMemoryStore()
	}
	ephemeral := cfg.Ephemeral
	if ephemeral == nil {
		ephemeral = NewMemoryStore()
	}

	return &Client{
		baseURL:          baseURL,
		http:             httpClient,
		durable:          durable,
		ephemeral:        ephemeral,
		onSessionExpired: cfg.OnSessionExpired,
	}, nil
}

// Register creates an account. The returned token is cached in the ephemeral
// store: registration never sets a refresh cookie, so the session lasts only
// until the access token expires or the user logs in properly.
func (c *Client) Register(ctx context.Context, name, email, password string) (Session, error) {
	var session Session
	err := c.postJSON(ctx, "/api/auth/register", map[string]any{
		"name":     name,
		"email":    email,
		"password": password,
	}, http.StatusCreated, &session)
	if err != nil {
		return Session{}, err
	}

	if err := c.ephemeral.SetToken(session.Token); err != nil {
		return Session{}, err
	}

	return session, nil
}

// Login authenticates and records the remember-me choice by placing the
// access token in the durable or ephemeral store. The refresh cookie set by
// the server lands in the cookie jar on its own.
func (c *Client) Login(ctx context.Context, email, password string, rememberMe bool) (Session, error) {
	var session Session
	err := c.postJSON(ctx, "/api/auth/login", map[string]any{
		"email":      email,
		"password":   password,
		"rememberMe": rememberMe,
	}, http.StatusOK, &session)
	if err != nil {
		return Session{}, err
	}

	target, other := c.ephemeral, c.durable
	if rememberMe {
		target, other = c.durable, c.ephemeral
	}
	if err := target.SetToken(session.Token); err != nil {
		return Session{}, err
	}
	if err := other.Clear(); err != nil {
		return Session{}, err
	}

	return session, nil
}

// Logout clears the local token stores and asks the server to expire the
// refresh cookie. Already-issued access tokens stay valid until they expire
// on their own.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.clearTokens(); err != nil {
		return err
	}

	resp, err := c.send(ctx, http.MethodPost, "/api/auth/logout", nil, "")
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("logout failed with status %d", resp.StatusCode)
	}

	return nil
}

// Do performs an authenticated request with the single-retry refresh
// protocol:
//
//	request -> 401 -> refresh via cookie -> retry once -> done
//
// A failed refresh clears the local session, fires OnSessionExpired, and
// hands the ORIGINAL 401 response back to the caller. The retry's outcome,
// success or failure, is final; a second 401 is never retried.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = encoded
	}

	token, holder, err := c.currentToken()
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	newToken, refreshErr := c.refresh(ctx)
	if refreshErr != nil {
		_ = c.clearTokens()
		if c.onSessionExpired != nil {
			c.onSessionExpired()
		}
		return resp, nil
	}

	// Keep the remember-me choice: the new token goes wherever the old one
	// lived.
	if err := holder.SetToken(newToken); err != nil {
		drainAndClose(resp.Body)
		return nil, err
	}

	drainAndClose(resp.Body)
	return c.send(ctx, method, path, payload, newToken)
}

func (c *Client) refresh(ctx context.Context) (string, error) {
	resp, err := c.send(ctx, http.MethodPost, "/api/auth/refresh", nil, "")
	if err != nil {
		return "", err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", ErrSessionExpired
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if body.Token == "" {
		return "", ErrSessionExpired
	}

	return body.Token, nil
}

// currentToken mirrors the browser client's lookup order: durable store
// first, then ephemeral. The returned store is where a refreshed token must
// be written back; with no token anywhere it defaults to the ephemeral store.
func (c *Client) currentToken() (string, TokenStore, error) {
	token, err := c.durable.Token()
	if err != nil {
		return "", nil, err
	}
	if token != "" {
		return token, c.durable, nil
	}

	token, err = c.ephemeral.Token()
	if err != nil {
		return "", nil, err
	}

	return token, c.ephemeral, nil
}

func (c *Client) clearTokens() error {
	if err := c.durable.Clear(); err != nil {
		return err
	}
	return c.ephemeral.Clear()
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, wantStatus int, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	resp, err := c.send(ctx, http.MethodPost, path, payload, "")
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != wantStatus {
		return decodeAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

func decodeAPIError(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err == nil && body.Message != "" {
		return fmt.Errorf("api error (status %d): %s", resp.StatusCode, body.Message)
	}

	return fmt.Errorf("api error (status %d)", resp.StatusCode)
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<20))
	_ = body.Close()
}
