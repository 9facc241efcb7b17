// Package client implements the rate-limited, cached lookup client for the
// yoinker detection service. One GET per identifier, addressed by the hex
// SHA-256 of the identifier, with bounded retries for transient failures
// and unbounded fixed-delay retries for throttling.
package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/just-h/yoinker-detector/pkg/cache"
	"github.com/just-h/yoinker-detector/pkg/ratelimit"
)

// Prometheus metrics for lookup requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yd_requests_total",
		Help: "Total outbound lookup requests by HTTP status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "yd_request_duration_seconds",
		Help:    "Outbound lookup request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yd_errors_total",
		Help: "Total lookup attempt errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yd_retries_total",
		Help: "Total retry attempts by error class",
	}, []string{"class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yd_retry_exhausted_total",
		Help: "Total lookups that exhausted the transient retry budget",
	}, []string{"class"})
)

// DefaultBaseURL is the yoinker detection service endpoint.
const DefaultBaseURL = "https://yd.just-h.party/"

// Config holds the lookup client configuration.
type Config struct {
	// BaseURL of the reputation service; the hashed identifier is appended.
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// TransientRetries bounds retries for transient/timeout/transport
	// failures, in addition to the initial attempt.
	TransientRetries int

	// TransientBackoff is the fixed delay before a budgeted retry.
	TransientBackoff time.Duration

	// ThrottleBackoff is the fixed delay after a 429. Throttling retries
	// have no attempt ceiling.
	ThrottleBackoff time.Duration

	// Timeout is the transport-level timeout per request.
	Timeout time.Duration
}

// DefaultConfig returns the service defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:          DefaultBaseURL,
		UserAgent:        "yoinker-detector/1.0",
		TransientRetries: 3,
		TransientBackoff: 1 * time.Second,
		ThrottleBackoff:  60 * time.Second,
		Timeout:          10 * time.Second,
	}
}

// Client looks up identifiers against the reputation service through the
// cache resolver and the rate limiter.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Window
	resolver   *cache.Resolver
	config     Config
	logger     zerolog.Logger
}

// New creates a lookup client.
func New(cfg Config, limiter *ratelimit.Window, resolver *cache.Resolver) (*Client, error) {
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("cache resolver is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		resolver:   resolver,
		config:     cfg,
		logger:     log.With().Str("component", "lookup-client").Logger(),
	}, nil
}

// HashID returns the hex SHA-256 of an identifier, the path component
// the service is queried by. Raw identifiers never go over the wire.
func HashID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// Lookup resolves one identifier: cache tiers first, then the network
// under the rate limiter with retry. It never returns a hard failure;
// anything unrecoverable within the retry budget yields Unresolved, and
// terminal results are fed back into the memo tier before returning.
func (c *Client) Lookup(ctx context.Context, id string) cache.Result {
	// Resolve reports tier errors itself and degrades them to a miss, so
	// any non-nil error here means the network lookup must run.
	if res, err := c.resolver.Resolve(ctx, id); err == nil {
		return *res
	}

	url := c.config.BaseURL + HashID(id)
	budget := c.config.TransientRetries
	attempt := 1

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return cache.Result{Outcome: cache.OutcomeUnresolved, Err: err}
		}

		c.logger.Debug().
			Str("user_id", id).
			Int("attempt", attempt).
			Msg("Requesting lookup")

		res, err := c.attempt(ctx, id, url)
		if err == nil {
			c.resolver.Store(ctx, id, res)
			return res
		}

		var lerr *LookupError
		if !errors.As(err, &lerr) {
			// Context cancellation surfaces undecorated.
			return cache.Result{Outcome: cache.OutcomeUnresolved, Err: err}
		}
		errorsTotal.WithLabelValues(string(lerr.Class)).Inc()

		if !consumesBudget(lerr.Class) {
			c.logger.Warn().
				Str("user_id", id).
				Dur("backoff", c.config.ThrottleBackoff).
				Msg("Throttled by service - backing off")
			retriesTotal.WithLabelValues(string(lerr.Class)).Inc()
			if err := sleepCtx(ctx, c.config.ThrottleBackoff); err != nil {
				return cache.Result{Outcome: cache.OutcomeUnresolved, Err: err}
			}
			continue
		}

		if budget == 0 {
			retryExhaustedTotal.WithLabelValues(string(lerr.Class)).Inc()
			c.logger.Warn().
				Err(lerr).
				Str("user_id", id).
				Int("attempts", attempt).
				Msg("Retry budget exhausted - giving up for this run")
			return cache.Result{Outcome: cache.OutcomeUnresolved, Err: lerr}
		}
		budget--
		attempt++

		retriesTotal.WithLabelValues(string(lerr.Class)).Inc()
		c.logger.Debug().
			Err(lerr).
			Str("user_id", id).
			Int("attempt", attempt).
			Msg("Retrying after transient failure")
		if err := sleepCtx(ctx, c.config.TransientBackoff); err != nil {
			return cache.Result{Outcome: cache.OutcomeUnresolved, Err: err}
		}
	}
}

// attempt performs one outbound request. A nil error means a terminal
// result (Found or NotFound); every failure comes back as *LookupError
// for classification by the retry loop.
func (c *Client) attempt(ctx context.Context, id, url string) (cache.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return cache.Result{}, &LookupError{Class: ErrorClassTransport, Err: err}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return cache.Result{}, ctx.Err()
		}
		return cache.Result{}, &LookupError{Class: classifyTransport(err), Err: err}
	}
	defer resp.Body.Close()

	// The call reached the service; it counts against the quota.
	c.limiter.Record()
	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	switch resp.StatusCode {
	case http.StatusOK:
		var rec cache.Record
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			return cache.Result{}, &LookupError{
				StatusCode: resp.StatusCode,
				Class:      ErrorClassTransient,
				Err:        fmt.Errorf("decode response: %w", err),
			}
		}
		if rec.UserID == "" {
			rec.UserID = id
		}
		if rec.IsYoinker {
			return cache.Result{Outcome: cache.OutcomeFound, Record: &rec}, nil
		}
		return cache.Result{Outcome: cache.OutcomeNotFound}, nil

	case http.StatusNotFound:
		return cache.Result{Outcome: cache.OutcomeNotFound}, nil

	case http.StatusTooManyRequests:
		return cache.Result{}, &LookupError{StatusCode: resp.StatusCode, Class: ErrorClassThrottled}

	default:
		return cache.Result{}, &LookupError{StatusCode: resp.StatusCode, Class: ErrorClassTransient}
	}
}

// sleepCtx sleeps for d unless the context ends first.
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

// SetHTTPClient replaces the transport (for testing).
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}
