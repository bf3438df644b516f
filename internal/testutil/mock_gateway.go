// Package testutil provides testing utilities for the DataGateway client.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Endpoint paths served by the mock. Kept here so gateway tests can use the
// mock without an import cycle.
const (
	PathSession        = "/topcat/user/session"
	PathQueueFiles     = "/topcat/user/queue/files"
	PathDownloadStatus = "/topcat/user/downloads/status"
	PathRefreshSession = "/datagateway-api/sessions"
)

// DefaultSessionID is returned by the default login handler.
const DefaultSessionID = "test-session-id"

// MockResponse defines a canned response for a mock endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
}

// RecordedRequest is a request seen by the mock.
type RecordedRequest struct {
	Method string
	Path   string
	Form   url.Values
	Header http.Header
}

// MockGateway is a configurable mock DataGateway server for testing.
type MockGateway struct {
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	requests []RecordedRequest
	nextID   int
}

// NewMockGateway creates a mock server whose default handlers accept every
// request: login succeeds, each queued part gets the next download id starting
// at 1, and every status is COMPLETE.
func NewMockGateway() *MockGateway {
	m := &MockGateway{
		handlers: make(map[string]http.HandlerFunc),
		nextID:   1,
	}

	r := chi.NewRouter()
	r.Use(m.record)
	r.Post(PathSession, m.route(http.MethodPost, PathSession, m.defaultLogin))
	r.Post(PathQueueFiles, m.route(http.MethodPost, PathQueueFiles, m.defaultQueueFiles))
	r.Get(PathDownloadStatus, m.route(http.MethodGet, PathDownloadStatus, m.defaultStatus))
	r.Put(PathRefreshSession, m.route(http.MethodPut, PathRefreshSession, m.defaultRefresh))

	m.server = httptest.NewServer(r)
	return m
}

// URL returns the mock server URL.
func (m *MockGateway) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGateway) Close() {
	m.server.Close()
}

// SetHandler overrides the handler for a method and path.
func (m *MockGateway) SetHandler(method, path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[method+" "+path] = handler
}

// SetResponse configures a fixed response for a method and path.
func (m *MockGateway) SetResponse(method, path string, resp MockResponse) {
	m.SetHandler(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetStatusSequence makes the status endpoint answer each poll with the next
// entry of seq. The last entry repeats once the sequence is exhausted.
func (m *MockGateway) SetStatusSequence(seq ...[]string) {
	var mu sync.Mutex
	n := 0
	m.SetHandler(http.MethodGet, PathDownloadStatus, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		i := n
		if i >= len(seq) {
			i = len(seq) - 1
		}
		n++
		mu.Unlock()
		writeJSON(w, http.StatusOK, seq[i])
	})
}

// Requests returns a copy of every request seen so far.
func (m *MockGateway) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestsTo returns the requests made to path.
func (m *MockGateway) RequestsTo(path string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range m.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockGateway) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *MockGateway) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		m.mu.Lock()
		m.requests = append(m.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Form:   r.Form,
			Header: r.Header.Clone(),
		})
		m.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (m *MockGateway) route(method, path string, fallback http.HandlerFunc) http.HandlerFunc {
	key := method + " " + path
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		h, ok := m.handlers[key]
		m.mu.Unlock()
		if ok {
			h(w, r)
			return
		}
		fallback(w, r)
	}
}

func (m *MockGateway) defaultLogin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": DefaultSessionID})
}

func (m *MockGateway) defaultQueueFiles(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"downloadId": id,
		"notFound":   []string{},
	})
}

func (m *MockGateway) defaultStatus(w http.ResponseWriter, r *http.Request) {
	ids := r.Form["downloadIds"]
	statuses := make([]string, len(ids))
	for i := range ids {
		statuses[i] = "COMPLETE"
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (m *MockGateway) defaultRefresh(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// NotFoundHandler answers queue requests with the given download id and
// reports every file for which missing returns true as not found.
func NotFoundHandler(downloadID int, missing func(string) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		notFound := []string{}
		for _, f := range r.Form["files"] {
			if missing(f) {
				notFound = append(notFound, f)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"downloadId": downloadID,
			"notFound":   notFound,
		})
	}
}

// NewUnauthorizedResponse creates a 401 response like a rejected login.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"code":"SESSION","message":"Invalid username or password"}`,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"code":"INTERNAL","message":"Internal server error"}`,
	}
}

// Paths returns n distinct file paths of the form /dls/i22/data/2024/x/file_<i>.h5.
func Paths(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "/dls/i22/data/2024/cm12345-1/file_" + strconv.Itoa(i) + ".h5"
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
