package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/greengrass-edge/shadow-sync/internal/shadowid"
	"github.com/greengrass-edge/shadow-sync/internal/sync"
)

// DefaultBaseURL is a placeholder device-data service endpoint; deployments
// always override it from configuration.
const DefaultBaseURL = "https://device-data.iot.example.com"

// Retry policy: base 1s, factor 2x, max 60s, ±25%
// jitter, max 5 retries. Grounded directly on the Graph client's constants
// and retry loop shape.
const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "shadow-sync/0.1"
)

// TokenSource provides bearer tokens for the device-data service. Defined
// at the consumer (cloud/), per "accept interfaces, return structs."
type TokenSource interface {
	Token() (string, error)
}

// Client is an HTTP implementation of sync.CloudClient against the
// device-data service's shadow REST surface, modeled on the Graph client:
// request construction, bearer auth, retry with exponential backoff, and
// status-code error classification, plus an outbound rate limiter the
// Graph client has no equivalent of.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	limiter    *rate.Limiter
	logger     *slog.Logger

	// sleepFunc waits between retries; overridable in tests.
	sleepFunc func(ctx context.Context, d time.Duration) error

	reachable atomic.Bool
}

// NewClient creates a device-data service client. maxOutboundPerSecond <= 0
// disables rate limiting (an unlimited *rate.Limiter).
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, maxOutboundPerSecond float64, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	var limiter *rate.Limiter
	if maxOutboundPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(maxOutboundPerSecond), int(math.Max(1, maxOutboundPerSecond)))
	} else {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		limiter:    limiter,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
	c.reachable.Store(true)

	return c
}

// Connected reports the last-sampled reachability of the device-data
// service's host, satisfying sync.ConnectivityProbe. It never blocks: the
// actual network probe runs on the goroutine started by ProbeConnectivity.
func (c *Client) Connected() bool {
	return c.reachable.Load()
}

// ProbeConnectivity samples TCP reachability of the device-data service's
// host on a dedicated goroutine at the given interval, updating the value
// Connected reports (mirrors CapacityGate's single-dedicated-sampler
// discipline in internal/sync/capacity.go). Returns once ctx is canceled.
func (c *Client) ProbeConnectivity(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.sampleReachability()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sampleReachability()
		}
	}
}

func (c *Client) sampleReachability() {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		c.reachable.Store(false)

		return
	}

	host := u.Host
	if u.Port() == "" {
		if u.Scheme == "https" {
			host += ":443"
		} else {
			host += ":80"
		}
	}

	conn, err := net.DialTimeout("tcp", host, 3*time.Second)
	if err != nil {
		c.reachable.Store(false)

		return
	}

	conn.Close()
	c.reachable.Store(true)
}

type wireDocument struct {
	State    sync.State    `json:"state"`
	Metadata sync.Metadata `json:"metadata,omitempty"`
	Version  int64         `json:"version"`
	Timestamp int64        `json:"timestamp,omitempty"`
}

func shadowPath(id shadowid.Identity) string {
	path := fmt.Sprintf("/things/%s/shadow", url.PathEscape(id.ThingName))
	if id.ShadowName == "" {
		return path
	}

	return path + "?name=" + url.QueryEscape(id.ShadowName)
}

// GetShadow fetches the current cloud document and version for id.
func (c *Client) GetShadow(ctx context.Context, id shadowid.Identity) (*sync.Document, int64, error) {
	resp, err := c.doRetry(ctx, http.MethodGet, shadowPath(id), nil)
	if err != nil {
		return nil, 0, ClassifySync(err)
	}
	defer resp.Body.Close()

	var wire wireDocument
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, 0, sync.Fatal("decoding cloud shadow document", err)
	}

	doc := &sync.Document{State: wire.State, Metadata: wire.Metadata, Version: wire.Version, Timestamp: wire.Timestamp}

	return doc, wire.Version, nil
}

// UpdateShadow pushes doc to the cloud with an optimistic-concurrency
// expected version, returning the new cloud version.
func (c *Client) UpdateShadow(ctx context.Context, id shadowid.Identity, doc *sync.Document, expectedVersion int64) (int64, error) {
	wire := wireDocument{State: doc.State, Metadata: doc.Metadata, Version: expectedVersion}

	raw, err := json.Marshal(wire)
	if err != nil {
		return 0, sync.InvalidArguments("encoding update for cloud: " + err.Error())
	}

	resp, err := c.doRetry(ctx, http.MethodPost, shadowPath(id), bytes.NewReader(raw))
	if err != nil {
		return 0, ClassifySync(err)
	}
	defer resp.Body.Close()

	var ack struct {
		Version int64 `json:"version"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return 0, sync.Fatal("decoding cloud update acknowledgement", err)
	}

	return ack.Version, nil
}

// DeleteShadow deletes the cloud document for id.
func (c *Client) DeleteShadow(ctx context.Context, id shadowid.Identity) error {
	resp, err := c.doRetry(ctx, http.MethodDelete, shadowPath(id), nil)
	if err != nil {
		return ClassifySync(err)
	}
	defer resp.Body.Close()

	return nil
}

// doRetry executes an authenticated, rate-limited HTTP request with retry
// on transient failures, mirroring the Graph client's doRetry loop.
func (c *Client) doRetry(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	reqURL := c.baseURL + path

	var payload []byte

	if body != nil {
		var err error

		payload, err = io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("cloud: reading request body: %w", err)
		}
	}

	var attempt int

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("cloud: rate limiter: %w", err)
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		resp, err := c.doOnce(ctx, method, reqURL, bodyReader)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("cloud: request canceled: %w", ctx.Err())
			}

			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method), slog.String("path", path),
					slog.Int("attempt", attempt+1), slog.Duration("backoff", backoff),
					slog.String("error", err.Error()))

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("cloud: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("cloud: %s %s failed after %d retries: %w", method, path, maxRetries, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		reqID := resp.Header.Get("request-id")

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method), slog.String("path", path),
				slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff))

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("cloud: request canceled: %w", err)
			}

			attempt++

			continue
		}

		return nil, &CloudError{StatusCode: resp.StatusCode, RequestID: reqID, Message: string(errBody), Err: classifyStatus(resp.StatusCode)}
	}
}

func (c *Client) doOnce(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if c.token != nil {
		tok, err := c.token.Token()
		if err != nil {
			return nil, fmt.Errorf("obtaining token: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+tok)
	}

	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// retryBackoff honors a Retry-After header on throttling responses before
// falling back to calculated backoff.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1)
	backoff += jitter

	return time.Duration(backoff)
}

func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
