package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

func payload(event string) domain.Payload {
	return domain.Payload{
		{Key: "event", Value: event},
		{Key: "distinct_id", Value: "u-1"},
	}
}

func TestSendSinglePayloadIsBareObject(t *testing.T) {
	var gotBody []byte
	var gotPath, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "", 5*time.Second)
	err := tr.Send(context.Background(), domain.EndpointTrack, []domain.Payload{payload("signup")})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if gotPath != "/track" {
		t.Errorf("path = %s, want /track", gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("content-type = %s", gotContentType)
	}
	if gotBody[0] != '{' {
		t.Errorf("single payload must be a bare object, got %s", gotBody)
	}
}

func TestSendBatchIsArrayWrapped(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "", 5*time.Second)
	batch := []domain.Payload{payload("a"), payload("b"), payload("c")}
	if err := tr.Send(context.Background(), domain.EndpointTrack, batch); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	var decoded []json.RawMessage
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("batch body is not a JSON array: %v", err)
	}
	if len(decoded) != 3 {
		t.Errorf("array length = %d, want 3", len(decoded))
	}
}

func TestSendBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "secret-token", 5*time.Second)
	if err := tr.Send(context.Background(), domain.EndpointProfile, []domain.Payload{payload("p")}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("authorization = %q", gotAuth)
	}
}

func TestStructuredRejectionIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":0,"error":"invalid distinct_id"}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "", 5*time.Second)
	err := tr.Send(context.Background(), domain.EndpointTrack, []domain.Payload{payload("x")})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T (%v), want *APIError", err, err)
	}
	if apiErr.Message != "invalid distinct_id" {
		t.Errorf("message = %q", apiErr.Message)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
}

func TestUnparseableRejectionIsUnclassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("<html>gateway sad</html>"))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "", 5*time.Second)
	err := tr.Send(context.Background(), domain.EndpointTrack, []domain.Payload{payload("x")})

	if err == nil {
		t.Fatal("expected error for 500")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Error("unparseable body must not classify as APIError")
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		t.Error("HTTP-level rejection must not classify as NetworkError")
	}
}

func TestConnectionFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	tr := NewHTTPTransport(srv.URL, "", time.Second)
	err := tr.Send(context.Background(), domain.EndpointTrack, []domain.Payload{payload("x")})

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("error = %T (%v), want *NetworkError", err, err)
	}
}

func TestEmptyBatchIsNoOp(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, "", time.Second)
	if err := tr.Send(context.Background(), domain.EndpointTrack, nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if called {
		t.Error("empty batch must not hit the network")
	}
}
