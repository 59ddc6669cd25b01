// Package graph implements the remote repository API client: client-credential
// authentication, resilient requests with retry/backoff/rate-limit handling,
// and continuation-link pagination. Two client instances run in the service,
// one scoped to document libraries and one to mailboxes; both share this
// implementation.
package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"sitedex/pkg/logging"
)

const (
	// tokenRefreshWindow is how close to expiry a cached token is still
	// considered usable.
	tokenRefreshWindow = 5 * time.Minute

	// defaultRetryAfter is used when a rate-limit response omits the
	// Retry-After header.
	defaultRetryAfter = 60 * time.Second

	// maxBodySnippet bounds how much of an error response body is kept
	// for diagnostics.
	maxBodySnippet = 512
)

// ErrAuth wraps token-acquisition failures. These surface immediately to the
// caller and are never retried by the request ladder, so credential or
// permission misconfiguration is distinguishable from transient failure.
var ErrAuth = errors.New("token acquisition failed")

// StatusError is a non-2xx response from the remote API.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote API returned %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

// IsNotFound reports whether err is a 404 response. Callers treat these as
// valid absence (e.g. a user without a mailbox), not as failures.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// IsPermissionDenied reports whether err is a 403 response or an
// insufficient-scope token failure. These are fatal for the calling
// operation and carry actionable detail about the missing grant.
func IsPermissionDenied(err error) bool {
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusForbidden {
		return true
	}
	return errors.Is(err, ErrAuth)
}

// Options configures a Client.
type Options struct {
	// Name labels this client instance in logs ("drive", "mailbox").
	Name string

	// Endpoint is the API base URL, e.g. https://graph.microsoft.com/v1.0.
	Endpoint string

	// TokenURL is the client-credential token endpoint.
	TokenURL string

	ClientID     string
	ClientSecret string

	// Scopes requested during the credential exchange.
	Scopes []string

	// Retries is the attempt budget per request. Zero means 3.
	Retries int

	// Timeout wraps each individual request attempt. Zero means 30s.
	Timeout time.Duration

	// HTTPClient overrides the transport, primarily for tests.
	HTTPClient *http.Client
}

// Client issues authenticated, retried, paginated requests against the
// remote API. Safe for use from the single crawl goroutine plus status
// readers; the token cache is internally synchronized.
type Client struct {
	name     string
	endpoint string
	http     *http.Client
	creds    clientcredentials.Config
	retries  int
	timeout  time.Duration
	log      *logging.Logger

	tokenMu     chan struct{} // 1-slot semaphore guarding the token cache
	token       string
	tokenExpiry time.Time

	// sleep is swapped out by tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a client. The token is acquired lazily on first use.
func New(opts Options) *Client {
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	name := opts.Name
	if name == "" {
		name = "graph"
	}

	c := &Client{
		name:     name,
		endpoint: opts.Endpoint,
		http:     httpClient,
		creds: clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
			Scopes:       opts.Scopes,
		},
		retries: opts.Retries,
		timeout: opts.Timeout,
		log:     logging.Get("graph").With("client", name),
		tokenMu: make(chan struct{}, 1),
		sleep:   sleepCtx,
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Authenticate returns a valid access token, reusing the cached one until
// it is within five minutes of expiry. A failed exchange surfaces
// immediately with the provider's error code attached.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	select {
	case c.tokenMu <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-c.tokenMu }()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenRefreshWindow)) {
		return c.token, nil
	}

	c.log.Info("acquiring access token")
	// The oauth2 transport is bypassed on purpose: the retry ladder needs
	// to see raw response statuses, so requests attach the bearer token
	// themselves.
	tok, err := c.creds.Token(context.WithValue(ctx, oauth2.HTTPClient, c.http))
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			return "", fmt.Errorf("%w: %s (code %s)", ErrAuth, rerr.ErrorDescription, rerr.ErrorCode)
		}
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: provider returned no access token", ErrAuth)
	}

	c.token = tok.AccessToken
	c.tokenExpiry = tok.Expiry
	c.log.Info("access token acquired", "expires", tok.Expiry.Format(time.RFC3339))
	return c.token, nil
}

// ClearToken drops the cached token so the next request acquires a fresh
// one. Useful after permission grants change.
func (c *Client) ClearToken() {
	c.tokenMu <- struct{}{}
	c.token = ""
	c.tokenExpiry = time.Time{}
	<-c.tokenMu
	c.log.Info("token cache cleared")
}

// Request issues one API request with the retry ladder applied:
//
//   - 429: sleep for the server-specified Retry-After (default 60s) and
//     retry without consuming an attempt
//   - 500/502/503: exponential backoff (2^attempt seconds), consume attempt
//   - timeout: same exponential backoff
//   - 403/404: returned immediately (permission errors are fatal,
//     not-found is meaningful absence; retrying either is useless)
//   - anything else: exponential backoff until attempts are exhausted,
//     then the error propagates
//
// Each attempt is independently wrapped in the per-request timeout.
func (c *Client) Request(ctx context.Context, method, rawurl string, query url.Values) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.retries; attempt++ {
		body, retryAfter, err := c.do(ctx, method, rawurl, query)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		var se *StatusError
		if errors.As(err, &se) {
			switch se.StatusCode {
			case http.StatusTooManyRequests:
				c.log.Warn("rate limited", "retry_after", retryAfter)
				if serr := c.sleep(ctx, retryAfter); serr != nil {
					return nil, serr
				}
				attempt-- // a rate-limit wait does not consume an attempt
				continue
			case http.StatusForbidden, http.StatusNotFound:
				return nil, err
			}
		}
		if errors.Is(err, ErrAuth) {
			return nil, err
		}

		if attempt == c.retries-1 {
			break
		}
		wait := time.Duration(1<<uint(attempt)) * time.Second
		c.log.Warn("request failed, retrying", "error", err, "wait", wait,
			"attempt", attempt+1, "budget", c.retries)
		if serr := c.sleep(ctx, wait); serr != nil {
			return nil, serr
		}
	}

	c.log.Error("request failed after all attempts", "url", rawurl, "error", lastErr)
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.retries, lastErr)
}

// do performs a single attempt under the per-request timeout.
func (c *Client) do(ctx context.Context, method, rawurl string, query url.Values) ([]byte, time.Duration, error) {
	token, err := c.Authenticate(ctx)
	if err != nil {
		return nil, 0, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := rawurl
	if len(query) > 0 {
		parsed, perr := url.Parse(rawurl)
		if perr != nil {
			return nil, 0, fmt.Errorf("parsing request url: %w", perr)
		}
		q := parsed.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Set(k, v)
			}
		}
		parsed.RawQuery = q.Encode()
		u = parsed.String()
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := defaultRetryAfter
		if h := resp.Header.Get("Retry-After"); h != "" {
			if secs, perr := strconv.Atoi(h); perr == nil && secs >= 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))
		return nil, retryAfter, &StatusError{
			StatusCode: resp.StatusCode,
			URL:        u,
			Body:       string(snippet),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))
		return nil, 0, &StatusError{
			StatusCode: resp.StatusCode,
			URL:        u,
			Body:       string(snippet),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response: %w", err)
	}
	return body, 0, nil
}
