package ingest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/vietddude/relay/internal/core/domain"
)

type fakeSink struct {
	mu       sync.Mutex
	requests []*domain.Request
}

func (f *fakeSink) Enqueue(r *domain.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r)
}

func (f *fakeSink) QueueDepth() int { return 0 }
func (f *fakeSink) RetryDepth() int { return 0 }

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestServer() (*Server, *fakeSink) {
	sink := &fakeSink{}
	return NewServer(sink, 0), sink
}

func post(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestTrackAcceptsSingleObject(t *testing.T) {
	s, sink := newTestServer()

	rec := post(t, s, "/track", `{"event":"signup","distinct_id":"u-1"}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if sink.count() != 1 {
		t.Fatalf("enqueued = %d, want 1", sink.count())
	}

	r := sink.requests[0]
	if r.Endpoint != domain.EndpointTrack {
		t.Errorf("endpoint = %v, want track", r.Endpoint)
	}
	if len(r.Payload) != 2 || r.Payload[0].Key != "event" || r.Payload[1].Key != "distinct_id" {
		t.Errorf("payload order lost: %+v", r.Payload)
	}
}

func TestTrackAcceptsArray(t *testing.T) {
	s, sink := newTestServer()

	rec := post(t, s, "/track", `[{"event":"a"},{"event":"b"},{"event":"c"}]`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if sink.count() != 3 {
		t.Fatalf("enqueued = %d, want 3", sink.count())
	}

	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if resp["queued"] != 3 {
		t.Errorf("queued = %d, want 3", resp["queued"])
	}
}

func TestProfileAndTransferRoutes(t *testing.T) {
	s, sink := newTestServer()

	post(t, s, "/profile", `{"distinct_id":"u-1","set":{"plan":"pro"}}`)
	post(t, s, "/transfer", `{"from":"u-1","to":"u-2"}`)

	if sink.count() != 2 {
		t.Fatalf("enqueued = %d, want 2", sink.count())
	}
	if sink.requests[0].Endpoint != domain.EndpointProfile {
		t.Errorf("first endpoint = %v, want profile", sink.requests[0].Endpoint)
	}
	if sink.requests[1].Endpoint != domain.EndpointTransfer {
		t.Errorf("second endpoint = %v, want transfer", sink.requests[1].Endpoint)
	}
}

func TestInvalidJSONRejected(t *testing.T) {
	s, sink := newTestServer()

	rec := post(t, s, "/track", `{"event":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if sink.count() != 0 {
		t.Errorf("enqueued = %d, want 0", sink.count())
	}
}

func TestEmptyBatchRejected(t *testing.T) {
	s, _ := newTestServer()

	rec := post(t, s, "/track", `[]`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/track", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHealthReportsDepths(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field = %v", resp["status"])
	}
}
