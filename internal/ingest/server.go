package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vietddude/relay/internal/core/domain"
)

// Sink accepts requests for asynchronous delivery. Implemented by
// dispatch.Dispatcher.
type Sink interface {
	Enqueue(r *domain.Request)
	QueueDepth() int
	RetryDepth() int
}

// Server exposes the HTTP ingress: one POST route per endpoint, plus
// health and metrics.
type Server struct {
	sink   Sink
	server *http.Server

	mu   sync.Mutex
	addr net.Addr
}

// NewServer creates an ingest server on the given port. Port 0 picks a
// free port; the bound address is available from Addr after Start.
func NewServer(sink Sink, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		sink: sink,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/track", s.handleEndpoint(domain.EndpointTrack))
	mux.HandleFunc("/profile", s.handleEndpoint(domain.EndpointProfile))
	mux.HandleFunc("/transfer", s.handleEndpoint(domain.EndpointTransfer))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start binds the listener and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	return s.server.Serve(ln)
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// handleEndpoint accepts a single JSON object or an array of objects and
// enqueues one request per object.
func (s *Server) handleEndpoint(endpoint domain.Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		payloads, err := decodePayloads(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		for _, p := range payloads {
			s.sink.Enqueue(domain.NewRequest(endpoint, p))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]int{"queued": len(payloads)})
	}
}

func decodePayloads(r *http.Request) ([]domain.Payload, error) {
	dec := json.NewDecoder(r.Body)

	// Peek at the first token to accept either an object or an array.
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty body")
	}

	if trimmed[0] == '[' {
		var batch []domain.Payload
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("invalid JSON array: %w", err)
		}
		if len(batch) == 0 {
			return nil, fmt.Errorf("empty batch")
		}
		return batch, nil
	}

	var single domain.Payload
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, fmt.Errorf("invalid JSON object: %w", err)
	}
	return []domain.Payload{single}, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"queue_depth": s.sink.QueueDepth(),
		"retry_depth": s.sink.RetryDepth(),
	})
}
