package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// TestContext holds the HTTP client and the last response of a scenario.
type TestContext struct {
	BaseURL string
	client  *http.Client

	lastStatus int
	lastBody   []byte
	lastJSON   map[string]interface{}

	vars map[string]string
}

// NewTestContext targets E2E_BASE_URL, defaulting to a local server.
func NewTestContext() *TestContext {
	base := os.Getenv("E2E_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	return &TestContext{
		BaseURL: base,
		client:  &http.Client{Timeout: 10 * time.Second},
		vars:    make(map[string]string),
	}
}

func (tc *TestContext) reset() {
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastJSON = nil
	tc.vars = make(map[string]string)
}

// POST sends body as JSON. A nil body sends no payload.
func (tc *TestContext) POST(path string, body interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return tc.do(req)
}

// GET fetches path.
func (tc *TestContext) GET(path string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, tc.BaseURL+path, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	tc.lastStatus = resp.StatusCode
	tc.lastBody = body
	tc.lastJSON = nil
	var decoded map[string]interface{}
	if json.Unmarshal(body, &decoded) == nil {
		tc.lastJSON = decoded
	}
	return nil
}

// GetLastStatusCode returns the status of the last response.
func (tc *TestContext) GetLastStatusCode() int { return tc.lastStatus }

// GetLastResponseBody returns the raw body of the last response.
func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }

// GetResponseField returns a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	if tc.lastJSON == nil {
		return nil, fmt.Errorf("last response is not a JSON object: %s", tc.lastBody)
	}
	v, ok := tc.lastJSON[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", field, tc.lastBody)
	}
	return v, nil
}

// ResponseContains reports whether the last JSON response has field.
func (tc *TestContext) ResponseContains(field string) bool {
	_, ok := tc.lastJSON[field]
	return ok
}

// Set stores a scenario variable.
func (tc *TestContext) Set(key, value string) { tc.vars[key] = value }

// Get returns a scenario variable.
func (tc *TestContext) Get(key string) string { return tc.vars[key] }
