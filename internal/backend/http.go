package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// HTTPClient talks to the game backend over JSON/HTTP.
//
// Snapshot fetches (user data, achievements) are idempotent and retried with
// exponential backoff. Session requests, submissions and purchase
// verification are never retried here: their at-most-once guarantees live in
// the orchestrator and the purchase processor, and a transport-level retry
// would silently break them.
type HTTPClient struct {
	base       *url.URL
	authToken  string
	http       *http.Client
	maxRetries uint64
}

// HTTPClientConfig configures an HTTPClient.
type HTTPClientConfig struct {
	BaseURL        string
	AuthToken      string
	RequestTimeout time.Duration
	FetchRetries   uint64
}

// NewHTTPClient creates a backend client for the given base URL.
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("backend: invalid base URL %q: %w", cfg.BaseURL, err)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.FetchRetries
	if retries == 0 {
		retries = 3
	}
	return &HTTPClient{
		base:       base,
		authToken:  cfg.AuthToken,
		http:       &http.Client{Timeout: timeout},
		maxRetries: retries,
	}, nil
}

// RequestSession asks the server to grant a resource-gated session.
func (c *HTTPClient) RequestSession(ctx context.Context, mode Mode) (SessionGrant, error) {
	var grant SessionGrant
	body := map[string]string{"mode": string(mode)}
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", body, &grant); err != nil {
		return SessionGrant{}, err
	}
	return grant, nil
}

// SubmitGameplaySession settles one finished run. Not retried.
func (c *HTTPClient) SubmitGameplaySession(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	var res SubmitResult
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/submit", req, &res); err != nil {
		return SubmitResult{}, err
	}
	return res, nil
}

// LoadUserData fetches the authoritative player snapshot, with retry.
func (c *HTTPClient) LoadUserData(ctx context.Context) (UserData, error) {
	var data UserData
	err := c.fetchWithRetry(ctx, "/v1/userdata", &data)
	return data, err
}

// VerifyPurchase submits a store receipt for server-side verification. Not
// retried; an unverified purchase is redelivered by the upstream store.
func (c *HTTPClient) VerifyPurchase(ctx context.Context, productID, receipt string) (VerifyResult, error) {
	var res VerifyResult
	body := map[string]string{"productId": productID, "receipt": receipt}
	if err := c.do(ctx, http.MethodPost, "/v1/purchases/verify", body, &res); err != nil {
		return VerifyResult{}, err
	}
	return res, nil
}

// FetchAchievementSnapshot fetches achievement defs and states, with retry.
func (c *HTTPClient) FetchAchievementSnapshot(ctx context.Context) (AchievementSnapshot, error) {
	var snap AchievementSnapshot
	err := c.fetchWithRetry(ctx, "/v1/achievements", &snap)
	return snap, err
}

func (c *HTTPClient) fetchWithRetry(ctx context.Context, path string, out any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)

	return backoff.Retry(func() error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	}, policy)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	u := c.base.JoinPath(path)

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: cannot encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("backend: cannot build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend: %s %s returned %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: cannot decode %s %s response: %w", method, path, err)
	}
	return nil
}
