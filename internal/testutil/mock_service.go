// Package testutil provides a configurable mock of the yoinker detection
// service for testing.
package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines one canned response from the mock service.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockService is a configurable stand-in for the reputation service.
// Identifiers are configured by their raw value; the server matches on
// the hashed path exactly like the real service.
type MockService struct {
	server *httptest.Server

	mu        sync.Mutex
	responses map[string][]MockResponse // path -> response sequence
	requests  map[string]int            // path -> request count
	total     int
}

// NewMockService starts the mock server.
func NewMockService() *MockService {
	m := &MockService{
		responses: make(map[string][]MockResponse),
		requests:  make(map[string]int),
	}

	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.total++
		m.requests[r.URL.Path]++
		seq, ok := m.responses[r.URL.Path]
		var resp MockResponse
		if ok && len(seq) > 0 {
			resp = seq[0]
			// Hold the last response for repeat requests.
			if len(seq) > 1 {
				m.responses[r.URL.Path] = seq[1:]
			}
		} else {
			resp = MockResponse{StatusCode: http.StatusNotFound, Body: `{"error": "not found"}`}
		}
		m.mu.Unlock()

		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}))

	return m
}

// URL returns the mock server base URL with a trailing slash, ready to
// use as the client's BaseURL.
func (m *MockService) URL() string {
	return m.server.URL + "/"
}

// Close shuts down the mock server.
func (m *MockService) Close() {
	m.server.Close()
}

// PathFor returns the request path the service expects for an identifier.
func PathFor(id string) string {
	sum := sha256.Sum256([]byte(id))
	return "/" + hex.EncodeToString(sum[:])
}

// Respond configures the response sequence for an identifier. Responses
// are served in order; the last one repeats.
func (m *MockService) Respond(id string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[PathFor(id)] = responses
}

// RequestsFor returns how many requests were made for an identifier.
func (m *MockService) RequestsFor(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[PathFor(id)]
}

// TotalRequests returns the total request count across all identifiers.
func (m *MockService) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Reset clears counters and configured responses.
func (m *MockService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = make(map[string][]MockResponse)
	m.requests = make(map[string]int)
	m.total = 0
}

// Positive builds a 200 response flagged as a yoinker.
func Positive(userID, userName, year, reason string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body: `{"userId": "` + userID + `", "userName": "` + userName +
			`", "isYoinker": true, "year": "` + year + `", "reason": "` + reason + `"}`,
	}
}

// Negative builds a 200 response with the yoinker flag cleared.
func Negative(userID string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"userId": "` + userID + `", "userName": "", "isYoinker": false, "year": "", "reason": ""}`,
	}
}

// NotFound builds a 404 response.
func NotFound() MockResponse {
	return MockResponse{StatusCode: http.StatusNotFound, Body: `{"error": "not found"}`}
}

// Throttled builds a 429 response.
func Throttled() MockResponse {
	return MockResponse{StatusCode: http.StatusTooManyRequests, Body: `{"error": "rate limit exceeded"}`}
}

// ServerError builds a 500 response.
func ServerError() MockResponse {
	return MockResponse{StatusCode: http.StatusInternalServerError, Body: `{"error": "internal"}`}
}

// Malformed builds a 200 response whose body is not valid JSON.
func Malformed() MockResponse {
	return MockResponse{StatusCode: http.StatusOK, Body: `{"isYoinker": tr`}
}
