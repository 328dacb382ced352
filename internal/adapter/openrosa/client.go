// Package openrosa talks to an OpenRosa form server: it fetches the form
// list, downloads form definitions with their media, and probes whether
// the server is reachable.
package openrosa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/hogliux/collect/internal/collect"
	"github.com/hogliux/collect/internal/domain"
	"github.com/hogliux/collect/internal/platform/retry"
)

const (
	versionHeader  = "X-OpenRosa-Version"
	openRosaV1     = "1.0"
	maxBodyBytes   = 32 << 20
	breakerName    = "openrosa"
	defaultFormDir = "forms"
)

// EndpointFunc resolves the form list URL from current preferences.
type EndpointFunc func(ctx context.Context) (string, error)

// BreakerObserver is told about circuit breaker transitions.
type BreakerObserver interface {
	BreakerStateChanged(name, from, to string)
}

type Config struct {
	Session   *collect.Session
	FormList  EndpointFunc
	Forms     domain.FormRepository
	FormsDir  string
	Clock     clockwork.Clock
	Retry     retry.Policy
	Logger    *slog.Logger
	Observer  BreakerObserver
	DialLimit time.Duration
}

type Client struct {
	http      *http.Client
	session   *collect.Session
	formList  EndpointFunc
	forms     domain.FormRepository
	formsDir  string
	clock     clockwork.Clock
	policy    retry.Policy
	logger    *slog.Logger
	breaker   *gobreaker.CircuitBreaker
	dialLimit time.Duration
}

// DefaultRetryPolicy retries each form file a few times before giving up.
func DefaultRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:      3,
		InitialBackoff:   500 * time.Millisecond,
		RateLimitBackoff: 2 * time.Second,
		MaxBackoff:       4 * time.Second,
	}
}

func NewClient(cfg Config) *Client {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy()
	}
	policy.Clock = clock
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
			logger.Warn("Retrying form server request", "attempt", attempt, "backoff", backoff, "error", err)
		}
	}
	dialLimit := cfg.DialLimit
	if dialLimit <= 0 {
		dialLimit = 3 * time.Second
	}
	formsDir := cfg.FormsDir
	if formsDir == "" {
		formsDir = defaultFormDir
	}

	c := &Client{
		http:      cfg.Session.HTTPClient(),
		session:   cfg.Session,
		formList:  cfg.FormList,
		forms:     cfg.Forms,
		formsDir:  formsDir,
		clock:     clock,
		policy:    policy,
		logger:    logger,
		dialLimit: dialLimit,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Form server circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
			if cfg.Observer != nil {
				cfg.Observer.BreakerStateChanged(name, from.String(), to.String())
			}
		},
	})
	return c
}

// StatusError is a non-2xx response from the form server.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %s", e.URL, e.Status)
}

// client errors are the caller's problem, not a sign of a sick server
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Code < 500
}

// get fetches rawURL through the breaker. A 401 is answered once with the
// session's credentials for the host, if it still holds any.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, rawURL)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("form server unavailable: %w", err)
		}
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	resp, err := c.do(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		creds, ok := c.session.Credentials().Get(u.Host)
		if !ok {
			return nil, &StatusError{URL: rawURL, Code: resp.StatusCode, Status: resp.Status}
		}
		resp, err = c.do(ctx, u, &creds)
		if err != nil {
			return nil, err
		}
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode, Status: resp.Status}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, u *url.URL, creds *collect.Credentials) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(versionHeader, openRosaV1)
	req.Header.Set("Accept", "text/xml, application/xml")
	if creds != nil {
		req.SetBasicAuth(creds.Username, creds.Password)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", u.Redacted(), err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	_ = resp.Body.Close()
}

// classify maps a request failure onto the retry policy.
func classify(err error) retry.Action {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return retry.Stop
	}
	if errors.Is(err, errHashMismatch) {
		return retry.Retry
	}
	var se *StatusError
	if errors.As(err, &se) {
		return retry.HTTPStatus(se.Code)
	}
	return retry.Retry
}
