// Package gatewaytest runs an in-process stand-in for the REST/RPC backend.
package gatewaytest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"offboarding/ocm/internal/gateway"
)

const AnonKey = "anon-test-key"

type Request struct {
	Method string
	Path   string
	Query  string
	Body   []byte
	Header http.Header
}

type Backend struct {
	Server *httptest.Server

	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []Request
}

func New(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{routes: make(map[string]http.HandlerFunc)}
	b.Server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.Server.Close)
	return b
}

func (b *Backend) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))
	b.mu.Lock()
	b.requests = append(b.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Body:   body,
		Header: r.Header.Clone(),
	})
	handler, ok := b.routes[r.Method+" "+r.URL.Path]
	b.mu.Unlock()
	if !ok {
		WriteJSON(w, http.StatusNotFound, map[string]string{"message": "route not found"})
		return
	}
	handler(w, r)
}

// Handle registers h for an exact method and path.
func (b *Backend) Handle(method, path string, h http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[method+" "+path] = h
}

// JSON registers a fixed response.
func (b *Backend) JSON(method, path string, status int, body any) {
	b.Handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, status, body)
	})
}

// RPC registers a fixed response for a named remote procedure.
func (b *Backend) RPC(function string, status int, body any) {
	b.JSON(http.MethodPost, "/rest/v1/rpc/"+function, status, body)
}

// Calls counts recorded requests for method and path.
func (b *Backend) Calls(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	count := 0
	for _, req := range b.requests {
		if req.Method == method && req.Path == path {
			count++
		}
	}
	return count
}

// Requests returns a copy of every request received so far.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Request, len(b.requests))
	copy(out, b.requests)
	return out
}

// Client returns a gateway client bound to token. An empty token yields an anonymous client.
func (b *Backend) Client(t testing.TB, token string) *gateway.Client {
	t.Helper()
	client, err := gateway.New(gateway.Options{BaseURL: b.Server.URL, AnonKey: AnonKey})
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}
	if token == "" {
		return client
	}
	return client.WithToken(token)
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}
