package ergast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Sentinel errors for API fetch outcomes.
var (
	// ErrNoData indicates the endpoint permanently has no data for the
	// requested unit (4xx other than 429). Not a failure.
	ErrNoData = errors.New("no data for endpoint")

	// ErrRetriesExhausted indicates the per-unit retry budget ran out.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrMalformedResponse indicates the API returned a body that does
	// not decode as an Ergast envelope.
	ErrMalformedResponse = errors.New("malformed API response")
)

// DefaultBaseURL is the public Ergast-compatible API endpoint.
const DefaultBaseURL = "https://api.jolpi.ca/ergast/f1"

// defaultPageLimit is the page size requested from the API. The server
// caps limit at 100.
const defaultPageLimit = 100

type (
	// Sleeper suspends the caller for a duration, honoring context
	// cancellation. Injectable so retry tests never actually sleep.
	Sleeper interface {
		Sleep(ctx context.Context, d time.Duration) error
	}

	// Doer issues a single HTTP request. Satisfied by *http.Client.
	Doer interface {
		Do(req *http.Request) (*http.Response, error)
	}

	// Payload is one successfully fetched API page: the raw body as
	// persisted to the payload store, plus its decoded envelope.
	Payload struct {
		Body     []byte
		Envelope *Envelope
	}

	// ClientConfig holds settings for the API client.
	ClientConfig struct {
		// BaseURL is the API root without a trailing slash.
		BaseURL string

		// PageLimit is the per-request page size.
		PageLimit int

		// Limiter configures the adaptive backoff bounds.
		Limiter LimiterConfig
	}

	// Client fetches Ergast endpoints with adaptive rate limiting and
	// bounded retries. Not safe for concurrent use; the pipeline issues
	// requests sequentially.
	Client struct {
		baseURL   string
		pageLimit int
		http      Doer
		limiter   *Limiter
		sleeper   Sleeper
		logger    *slog.Logger
	}
)

// realSleeper sleeps on the wall clock.
type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewClient creates an API client with production HTTP transport and sleeper.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	return newClient(cfg, &http.Client{Timeout: 30 * time.Second}, realSleeper{}, logger)
}

// newClient wires an explicit transport and sleeper. Tests use this with
// httptest servers and a recording sleeper.
func newClient(cfg ClientConfig, doer Doer, sleeper Sleeper, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.PageLimit <= 0 {
		cfg.PageLimit = defaultPageLimit
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:   cfg.BaseURL,
		pageLimit: cfg.PageLimit,
		http:      doer,
		limiter:   NewLimiter(cfg.Limiter),
		sleeper:   sleeper,
		logger:    logger,
	}
}

// NewClientForTesting exposes the injectable constructor to other packages'
// tests.
func NewClientForTesting(cfg ClientConfig, doer Doer, sleeper Sleeper, logger *slog.Logger) *Client {
	return newClient(cfg, doer, sleeper, logger)
}

// Limiter returns the client's shared backoff state.
func (c *Client) Limiter() *Limiter {
	return c.limiter
}

// Fetch retrieves a single page of an endpoint, retrying transient and
// rate-limited responses with adaptive backoff.
//
// The endpoint is the path under the API root without the ".json" suffix,
// e.g. "2023/5/results". The first attempt is issued without a retry delay
// (the pace limiter still enforces base spacing between requests); each
// retry sleeps the limiter's current delay first.
//
// Returns ErrNoData for 4xx responses other than 429, and
// ErrRetriesExhausted (wrapping the last failure) when the retry budget
// runs out.
func (c *Client) Fetch(ctx context.Context, endpoint string) (*Payload, error) {
	return c.fetchPage(ctx, endpoint, 0)
}

// FetchPages retrieves every page of an endpoint, following the envelope's
// total/offset pagination until all rows are consumed.
func (c *Client) FetchPages(ctx context.Context, endpoint string) ([]*Payload, error) {
	var pages []*Payload

	offset := 0

	for {
		page, err := c.fetchPage(ctx, endpoint, offset)
		if err != nil {
			return nil, err
		}

		pages = append(pages, page)

		md := page.Envelope.MRData

		next := md.OffsetCount() + md.LimitCount()
		if next >= md.TotalCount() || md.LimitCount() == 0 {
			return pages, nil
		}

		offset = next
	}
}

func (c *Client) fetchPage(ctx context.Context, endpoint string, offset int) (*Payload, error) {
	requestURL := fmt.Sprintf("%s/%s.json?%s", c.baseURL, endpoint, url.Values{
		"limit":  {strconv.Itoa(c.pageLimit)},
		"offset": {strconv.Itoa(offset)},
	}.Encode())

	streak := 0

	var (
		lastErr  error
		nextWait time.Duration
	)

	for {
		if streak > 0 {
			if err := c.sleeper.Sleep(ctx, nextWait); err != nil {
				return nil, fmt.Errorf("fetch interrupted: %w", err)
			}
		}

		if err := c.limiter.Pace().Wait(ctx); err != nil {
			return nil, fmt.Errorf("fetch interrupted: %w", err)
		}

		payload, outcome, retryAfter, err := c.attempt(ctx, requestURL)

		switch outcome {
		case OutcomeSuccess:
			c.limiter.NextDelay(OutcomeSuccess, 0)

			return payload, nil

		case OutcomeRateLimited:
			streak++
			lastErr = err

			nextWait = c.limiter.NextDelay(OutcomeRateLimited, retryAfter)
			c.logger.Warn("rate limited by API",
				slog.String("endpoint", endpoint),
				slog.Int("streak", streak),
				slog.Duration("next_delay", nextWait))

		case OutcomeTransientError:
			// Permanent client-side outcomes arrive on this path too;
			// attempt distinguishes them via the error.
			if errors.Is(err, ErrNoData) || errors.Is(err, ErrMalformedResponse) {
				return nil, err
			}

			if ctx.Err() != nil {
				return nil, fmt.Errorf("fetch interrupted: %w", ctx.Err())
			}

			streak++
			lastErr = err

			nextWait = c.limiter.NextDelay(OutcomeTransientError, 0)
			c.logger.Warn("transient API failure",
				slog.String("endpoint", endpoint),
				slog.Int("streak", streak),
				slog.Duration("next_delay", nextWait),
				slog.String("error", err.Error()))
		}

		if c.limiter.ShouldAbort(streak) {
			return nil, fmt.Errorf("%w: %s: %s", ErrRetriesExhausted, endpoint, lastErr)
		}
	}
}

// attempt issues one request and classifies the result.
func (c *Client) attempt(ctx context.Context, requestURL string) (*Payload, Outcome, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, OutcomeTransientError, 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, OutcomeTransientError, 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, OutcomeTransientError, 0, fmt.Errorf("read response body: %w", err)
		}

		env, err := ParseEnvelope(body)
		if err != nil {
			return nil, OutcomeTransientError, 0, err
		}

		return &Payload{Body: body, Envelope: env}, OutcomeSuccess, 0, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, OutcomeRateLimited, parseRetryAfter(resp.Header.Get("Retry-After")),
			fmt.Errorf("status %d", resp.StatusCode)

	case resp.StatusCode >= 500:
		return nil, OutcomeTransientError, 0, fmt.Errorf("status %d", resp.StatusCode)

	default:
		// Remaining 4xx codes mean the unit has no data (future rounds,
		// resources that never existed for a season).
		return nil, OutcomeTransientError, 0,
			fmt.Errorf("%w: status %d", ErrNoData, resp.StatusCode)
	}
}

// parseRetryAfter interprets a Retry-After header as either delay seconds
// or an HTTP date. Unparseable values count as zero.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}

	return 0
}
