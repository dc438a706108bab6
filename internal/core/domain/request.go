package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Endpoint identifies the remote ingestion endpoint a request targets.
type Endpoint int

const (
	EndpointTrack Endpoint = iota
	EndpointProfile
	EndpointTransfer
)

// String returns the endpoint's URL path segment.
func (e Endpoint) String() string {
	switch e {
	case EndpointTrack:
		return "track"
	case EndpointProfile:
		return "profile"
	case EndpointTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// Batchable reports whether multiple requests for this endpoint may be
// delivered in a single network call. Only track calls batch; profile and
// transfer calls always go out as singletons.
func (e Endpoint) Batchable() bool {
	return e == EndpointTrack
}

// ParseEndpoint maps a URL path segment back to an Endpoint.
func ParseEndpoint(s string) (Endpoint, error) {
	switch s {
	case "track":
		return EndpointTrack, nil
	case "profile":
		return EndpointProfile, nil
	case "transfer":
		return EndpointTransfer, nil
	default:
		return 0, fmt.Errorf("unknown endpoint %q", s)
	}
}

// Field is a single key/value entry of a payload.
type Field struct {
	Key   string
	Value any
}

// Payload is an insertion-ordered string-keyed mapping. Go maps do not
// preserve key order, so the payload is kept as a field slice with custom
// JSON encoding. Only top-level key order is preserved; nested objects
// decode as plain maps.
type Payload []Field

// Get returns the value for key, if present.
func (p Payload) Get(key string) (any, bool) {
	for _, f := range p {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Set replaces the value for key, or appends it if absent.
func (p Payload) Set(key string, value any) Payload {
	for i, f := range p {
		if f.Key == key {
			p[i].Value = value
			return p
		}
	}
	return append(p, Field{Key: key, Value: value})
}

// MarshalJSON encodes the payload as a JSON object in insertion order.
func (p Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", f.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal value for %q: %w", f.Key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving top-level key order.
func (p *Payload) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("payload must be a JSON object, got %v", tok)
	}

	out := Payload{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read payload key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("payload key is not a string: %v", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode payload value for %q: %w", key, err)
		}
		out = append(out, Field{Key: key, Value: value})
	}
	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read payload end: %w", err)
	}

	*p = out
	return nil
}

// Request is one unit of work: a single analytics call awaiting delivery.
// Producers hand a request to the engine at creation and never see it
// again; Retries and NextRetryAt are mutated only by the engine.
type Request struct {
	ID       string
	Endpoint Endpoint
	Payload  Payload

	// Retries counts delivery attempts beyond the first.
	Retries int
	// NextRetryAt is zero until the first transient failure.
	NextRetryAt time.Time
}

// NewRequest creates a request for the given endpoint and payload.
func NewRequest(endpoint Endpoint, payload Payload) *Request {
	return &Request{
		ID:       uuid.New().String(),
		Endpoint: endpoint,
		Payload:  payload,
	}
}
