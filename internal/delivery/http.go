package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
	"github.com/vietddude/relay/internal/metrics"
)

// HealthStatus is a snapshot of upstream delivery health.
type HealthStatus struct {
	Available     bool
	ErrorRate     float64
	Latency       time.Duration
	LastSuccessAt time.Time
	LastFailureAt time.Time
}

// HTTPTransport delivers batches via POST <baseURL>/<endpoint> with a JSON
// body. A single payload is sent as a bare object; larger batches are
// array-wrapped.
type HTTPTransport struct {
	baseURL    string
	token      string
	httpClient *http.Client

	mu           sync.RWMutex
	health       HealthStatus
	totalLatency time.Duration
	successCount int
	failureCount int
	requestCount int
}

// NewHTTPTransport creates an HTTP transport for the given ingestion base URL.
func NewHTTPTransport(baseURL, token string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		health: HealthStatus{
			Available:     true,
			LastSuccessAt: time.Now(),
		},
	}
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, endpoint domain.Endpoint, payloads []domain.Payload) error {
	if len(payloads) == 0 {
		return nil
	}
	start := time.Now()

	var body any
	if len(payloads) == 1 {
		body = payloads[0]
	} else {
		body = payloads
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		t.recordFailure()
		return fmt.Errorf("marshal batch: %w", err)
	}

	url := t.baseURL + "/" + endpoint.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		t.recordFailure()
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		// Connect, DNS, TLS and timeout failures all surface here.
		t.recordFailure()
		metrics.UpstreamCalls.WithLabelValues(endpoint.String(), "network_error").Inc()
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	latency := time.Since(start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.recordFailure()
		metrics.UpstreamCalls.WithLabelValues(endpoint.String(), "network_error").Inc()
		return &NetworkError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		t.recordSuccess(latency)
		metrics.UpstreamCalls.WithLabelValues(endpoint.String(), "success").Inc()
		metrics.DeliveryLatency.WithLabelValues(endpoint.String()).Observe(latency.Seconds())
		return nil
	}

	t.recordFailure()

	if msg, ok := parseErrorBody(respBody); ok {
		metrics.UpstreamCalls.WithLabelValues(endpoint.String(), "rejected").Inc()
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	metrics.UpstreamCalls.WithLabelValues(endpoint.String(), "error").Inc()
	return fmt.Errorf("http %d: %s", resp.StatusCode, respBody)
}

// parseErrorBody extracts a structured error message from a rejection body
// of the form {"error": "...", "status": 0}.
func parseErrorBody(body []byte) (string, bool) {
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false
	}
	if parsed.Error == "" {
		return "", false
	}
	return parsed.Error, true
}

// GetHealth returns the transport's health snapshot.
func (t *HTTPTransport) GetHealth() HealthStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.health
}

// Close cleans up idle connections.
func (t *HTTPTransport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}

func (t *HTTPTransport) recordSuccess(latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.successCount++
	t.requestCount++
	t.totalLatency += latency
	t.health.LastSuccessAt = time.Now()
	t.health.Available = true

	if t.requestCount > 0 {
		t.health.ErrorRate = float64(t.failureCount) / float64(t.requestCount)
	}
	if t.successCount > 0 {
		t.health.Latency = t.totalLatency / time.Duration(t.successCount)
	}
}

func (t *HTTPTransport) recordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failureCount++
	t.requestCount++
	t.health.LastFailureAt = time.Now()

	if t.requestCount > 0 {
		t.health.ErrorRate = float64(t.failureCount) / float64(t.requestCount)
	}

	if t.health.ErrorRate > 0.5 {
		t.health.Available = false
	}
}
