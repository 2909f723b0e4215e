package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockCallerName = "mock"

// MockCaller is a Caller for testing.
type MockCaller struct {
	// Responses are returned in order; the last one repeats once the
	// script is exhausted. Empty means a generic response.
	Responses []string

	// Configurable behavior
	Latency    time.Duration
	ShouldFail bool
	FailAfter  int // Fail after N requests (0 = never)
	Err        error

	// State
	requestCount atomic.Int64

	mu       sync.Mutex
	requests []*Request
}

// NewMockCaller creates a mock caller returning the given responses.
func NewMockCaller(responses ...string) *MockCaller {
	return &MockCaller{Responses: responses}
}

// Name returns the caller identifier.
func (c *MockCaller) Name() string {
	return MockCallerName
}

// Call returns the next scripted response.
func (c *MockCaller) Call(ctx context.Context, req *Request) (string, error) {
	count := c.requestCount.Add(1)

	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.ShouldFail {
		return "", c.failErr("mock caller configured to fail")
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		return "", c.failErr(fmt.Sprintf("mock caller failed after %d requests", c.FailAfter))
	}

	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if len(c.Responses) == 0 {
		return "mock response", nil
	}
	idx := int(count) - 1
	if idx >= len(c.Responses) {
		idx = len(c.Responses) - 1
	}
	return c.Responses[idx], nil
}

func (c *MockCaller) failErr(msg string) error {
	if c.Err != nil {
		return c.Err
	}
	return fmt.Errorf("%s", msg)
}

// RequestCount returns the number of calls made.
func (c *MockCaller) RequestCount() int64 {
	return c.requestCount.Load()
}

// Requests returns the recorded requests in call order.
func (c *MockCaller) Requests() []*Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Request, len(c.requests))
	copy(out, c.requests)
	return out
}

// Reset clears the counter and recorded requests.
func (c *MockCaller) Reset() {
	c.requestCount.Store(0)
	c.mu.Lock()
	c.requests = nil
	c.mu.Unlock()
}

// Verify interface
var _ Caller = (*MockCaller)(nil)
