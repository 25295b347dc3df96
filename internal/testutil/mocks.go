package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/kyleking/current/internal/llm"
	"github.com/kyleking/current/internal/prompt"
)

// MockGenerator implements llm.Generator and llm.ModelLister for testing
type MockGenerator struct {
	mu sync.RWMutex

	response  *llm.Response
	responder func(prompt.GenerationRequest) (*llm.Response, error)
	err       error
	delay     time.Duration
	models    []llm.Model
	requests  []prompt.GenerationRequest
	callCount int
}

// MockOption is a functional option for configuring MockGenerator
type MockOption func(*MockGenerator)

// WithText makes every call return a single candidate with text
func WithText(text string) MockOption {
	return func(m *MockGenerator) {
		m.response = NewResponse(text)
	}
}

// WithResponse sets the raw response returned by every call
func WithResponse(resp *llm.Response) MockOption {
	return func(m *MockGenerator) {
		m.response = resp
	}
}

// WithResponder computes the response from the request
func WithResponder(fn func(prompt.GenerationRequest) (*llm.Response, error)) MockOption {
	return func(m *MockGenerator) {
		m.responder = fn
	}
}

// WithError makes every call fail with err
func WithError(err error) MockOption {
	return func(m *MockGenerator) {
		m.err = err
	}
}

// WithDelay blocks each call for d or until the context is done
func WithDelay(d time.Duration) MockOption {
	return func(m *MockGenerator) {
		m.delay = d
	}
}

// WithModels sets the model listing
func WithModels(models ...llm.Model) MockOption {
	return func(m *MockGenerator) {
		m.models = models
	}
}

// NewMockGenerator creates a new mock generator with the given options
func NewMockGenerator(opts ...MockOption) *MockGenerator {
	mock := &MockGenerator{response: &llm.Response{}}

	for _, opt := range opts {
		opt(mock)
	}

	return mock
}

// Generate records the request and returns the configured outcome
func (m *MockGenerator) Generate(ctx context.Context, req prompt.GenerationRequest) (*llm.Response, error) {
	m.mu.Lock()
	m.callCount++
	m.requests = append(m.requests, req)
	delay, responder, resp, err := m.delay, m.responder, m.response, m.err
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}

	if responder != nil {
		return responder(req)
	}

	return resp, nil
}

// ListModels returns the configured models
func (m *MockGenerator) ListModels(_ context.Context) ([]llm.Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}

	return append([]llm.Model(nil), m.models...), nil
}

// Model returns a fixed model name
func (m *MockGenerator) Model() string {
	return TestModel
}

// CallCount returns how many times Generate was called
func (m *MockGenerator) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.callCount
}

// Requests returns a copy of every request received
func (m *MockGenerator) Requests() []prompt.GenerationRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]prompt.GenerationRequest(nil), m.requests...)
}

// LastRequest returns the most recent request, if any
func (m *MockGenerator) LastRequest() (prompt.GenerationRequest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.requests) == 0 {
		return prompt.GenerationRequest{}, false
	}

	return m.requests[len(m.requests)-1], true
}

// Reset clears recorded calls
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount = 0
	m.requests = nil
}
