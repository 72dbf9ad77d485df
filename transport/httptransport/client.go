// Package httptransport provides an HTTP implementation of the medsync
// Transport interface, plus a matching server-side handler.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	medsync "github.com/dosetrack/medsync"
	syncErrors "github.com/dosetrack/medsync/errors"
	"github.com/dosetrack/medsync/logging"
)

// Limits defines response size limits for the HTTP client.
type Limits struct {
	MaxBodyBytes int64 // Maximum response body size in bytes
}

// Client implements medsync.Transport over HTTP.
//
// The remote API surface is small:
//
//	GET  /v1/snapshot   -> DomainSnapshot JSON
//	POST /v1/mutations  <- QueueItem JSON
//	PUT  /v1/snapshot   <- DomainSnapshot JSON
type Client struct {
	baseURL string
	http    *http.Client
	limits  Limits
	limiter *rate.Limiter
	logger  *logging.Logger
}

// Compile-time check against the transport interface.
var _ medsync.Transport = (*Client)(nil)

// ClientOption configures a Client using the functional options pattern.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(cl *http.Client) ClientOption {
	return func(c *Client) {
		c.http = cl
	}
}

// WithLimits sets the response size limits.
func WithLimits(l Limits) ClientOption {
	return func(c *Client) {
		c.limits = l
	}
}

// WithRateLimit throttles outgoing requests to r requests per second with
// the given burst. Useful when the sync daemon shares an API quota with the
// interactive client.
func WithRateLimit(r rate.Limit, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(r, burst)
	}
}

// WithClientLogger sets a custom logger.
func WithClientLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates an HTTP transport client with functional options.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limits: Limits{
			MaxBodyBytes: 8 << 20, // 8MB
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = logging.WithComponent(logging.Component("http-transport"))
	}

	return c
}

// BaseURL returns the base URL for the client.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchSnapshot retrieves the current server snapshot via GET /v1/snapshot.
func (c *Client) FetchSnapshot(ctx context.Context) (medsync.DomainSnapshot, error) {
	var snapshot medsync.DomainSnapshot

	if err := c.wait(ctx, syncErrors.OpFetch); err != nil {
		return snapshot, err
	}

	url := c.baseURL + "/v1/snapshot"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return snapshot, syncErrors.New(syncErrors.OpFetch, fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("snapshot fetch failed",
			slog.String("error", err.Error()),
			slog.String("url", url))
		return snapshot, syncErrors.NewNetworkError(syncErrors.OpFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return snapshot, c.statusError(syncErrors.OpFetch, resp)
	}

	body := io.LimitReader(resp.Body, c.limits.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&snapshot); err != nil {
		return medsync.DomainSnapshot{}, syncErrors.New(syncErrors.OpFetch, fmt.Errorf("failed to decode snapshot: %w", err))
	}

	c.logger.Debug("snapshot fetched",
		slog.Int("logs", len(snapshot.MedicationLogs)),
		slog.Int("prescriptions", len(snapshot.Prescriptions)))
	return snapshot, nil
}

// SubmitMutation replays a queued mutation via POST /v1/mutations.
func (c *Client) SubmitMutation(ctx context.Context, item medsync.QueueItem) error {
	if err := c.wait(ctx, syncErrors.OpSubmit); err != nil {
		return err
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return syncErrors.New(syncErrors.OpSubmit, fmt.Errorf("failed to marshal queue item: %w", err))
	}

	url := c.baseURL + "/v1/mutations"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return syncErrors.New(syncErrors.OpSubmit, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("mutation submit failed",
			slog.String("error", err.Error()),
			slog.String("item_id", item.ID),
			slog.String("action", item.Action))
		return syncErrors.NewNetworkError(syncErrors.OpSubmit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusAccepted {
		return c.statusError(syncErrors.OpSubmit, resp)
	}

	c.logger.Debug("mutation submitted",
		slog.String("item_id", item.ID),
		slog.String("action", item.Action))
	return nil
}

// PushSnapshot writes a merged snapshot back via PUT /v1/snapshot.
func (c *Client) PushSnapshot(ctx context.Context, snapshot medsync.DomainSnapshot) error {
	if err := c.wait(ctx, syncErrors.OpPush); err != nil {
		return err
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return syncErrors.New(syncErrors.OpPush, fmt.Errorf("failed to marshal snapshot: %w", err))
	}

	url := c.baseURL + "/v1/snapshot"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return syncErrors.New(syncErrors.OpPush, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("snapshot push failed",
			slog.String("error", err.Error()),
			slog.String("url", url))
		return syncErrors.NewNetworkError(syncErrors.OpPush, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return c.statusError(syncErrors.OpPush, resp)
	}

	return nil
}

// Close does nothing; the underlying http.Client is managed externally.
func (c *Client) Close() error {
	return nil
}

// wait blocks until the rate limiter admits another request.
func (c *Client) wait(ctx context.Context, op syncErrors.Operation) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return syncErrors.New(op, fmt.Errorf("rate limiter: %w", err))
	}
	return nil
}

// statusError converts a non-success HTTP response into a SyncError. Server
// errors (5xx) and throttling (429) are retryable; client errors are not.
func (c *Client) statusError(op syncErrors.Operation, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("server error (status %d): %s", resp.StatusCode, string(body))

	c.logger.Error("request returned error status",
		slog.Int("status_code", resp.StatusCode),
		slog.String("operation", string(op)))

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return syncErrors.NewNetworkError(op, err).WithMetadata("status_code", resp.StatusCode)
	}
	return syncErrors.NewWithComponent(op, "transport", err).WithMetadata("status_code", resp.StatusCode)
}
