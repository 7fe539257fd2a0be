// Package sink implements the outbound HTTP client that POSTs batches of
// alerts to Alertmanager's v2 ingestion API, with retry and exponential
// backoff for transient failures.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/pbrane/onms-alertmanager-bridge/internal/config"
	"github.com/pbrane/onms-alertmanager-bridge/internal/events"
)

// Metrics is the narrow capability Sink needs to record outcomes.
type Metrics interface {
	RecordAlertsSent(n int)
	RecordAlertsFailed(n int)
	RecordAlertSendLatency(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordAlertsSent(int)                  {}
func (noopMetrics) RecordAlertsFailed(int)                {}
func (noopMetrics) RecordAlertSendLatency(time.Duration) {}

// Sink batches and POSTs alerts to Alertmanager.
type Sink struct {
	cfg        config.AlertmanagerConfig
	baseURL    string
	httpClient *http.Client
	metrics    Metrics
}

// New creates a Sink for the given Alertmanager configuration.
func New(cfg config.AlertmanagerConfig, metrics Metrics) *Sink {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Sink{
		cfg:     cfg,
		baseURL: cfg.URL,
		httpClient: &http.Client{
			Timeout: cfg.ConnectTimeout + cfg.ReadTimeout,
		},
		metrics: metrics,
	}
}

// Send POSTs a batch of alerts to Alertmanager, retrying transient failures
// with exponential backoff up to the configured max attempts. An empty
// batch is a no-op; when forwarding is disabled, Send does nothing at all.
// Failures are counted and dropped — the pipeline is never stalled by a
// slow or unreachable aggregator.
func (s *Sink) Send(alerts []*events.Alert) {
	if !s.cfg.Enabled || len(alerts) == 0 {
		return
	}

	start := time.Now()
	err := s.sendWithRetry(context.Background(), alerts)
	s.metrics.RecordAlertSendLatency(time.Since(start))

	if err != nil {
		slog.Error("failed to send alert batch to alertmanager", "count", len(alerts), "error", err)
		s.metrics.RecordAlertsFailed(len(alerts))
		return
	}
	s.metrics.RecordAlertsSent(len(alerts))
}

func (s *Sink) sendWithRetry(ctx context.Context, alerts []*events.Alert) error {
	body, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("marshalling alert batch: %w", err)
	}

	maxAttempts := s.cfg.Retry.MaxAttempts
	if maxAttempts < 0 {
		maxAttempts = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxAttempts; attempt++ {
		status, err := s.post(ctx, body)
		if err == nil && status >= 200 && status < 300 {
			if attempt > 0 {
				slog.Info("alert batch send succeeded after retry", "attempt", attempt+1)
			}
			return nil
		}

		retryable := isRetryable(status, err)
		lastErr = sendError(status, err)

		if !retryable {
			slog.Warn("alert batch send failed permanently", "status", status, "error", err)
			return lastErr
		}
		if attempt >= maxAttempts {
			slog.Warn("alert batch send exhausted retries", "attempts", attempt+1, "error", lastErr)
			return lastErr
		}

		backoff := calculateBackoff(s.cfg.Retry.Backoff, attempt)
		slog.Warn("alert batch send failed, retrying",
			"attempt", attempt+1, "max_attempts", maxAttempts+1, "backoff", backoff, "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

func (s *Sink) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+s.cfg.APIPath, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// isRetryable classifies a response/error as transient: any transport-level
// error, or a 5xx status. A 4xx status is a permanent failure.
func isRetryable(status int, err error) bool {
	if err != nil {
		return true
	}
	return status >= 500
}

func sendError(status int, err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("alertmanager returned status %d", status)
}

func calculateBackoff(initial time.Duration, attempt int) time.Duration {
	backoff := float64(initial) * math.Pow(2, float64(attempt))
	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	return time.Duration(backoff + jitter)
}

// Healthy probes /api/v2/status and reports whether Alertmanager is reachable.
func (s *Sink) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/v2/status", nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// StatusBody proxies the raw body of /api/v2/status, or a canned error body
// if the request fails.
func (s *Sink) StatusBody(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/v2/status", nil)
	if err != nil {
		return `{"error": "unable to connect to alertmanager"}`
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return `{"error": "unable to connect to alertmanager"}`
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return `{"error": "unable to connect to alertmanager"}`
	}
	return string(data)
}
