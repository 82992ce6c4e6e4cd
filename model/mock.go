package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/edumesh/core"
)

// MockModel is a lightweight in-memory Model for tests and offline runs.
// Scripted responses are replayed in order; once the script is exhausted the
// model answers with a canned completion for the last user text.
type MockModel struct {
	info Info

	mu        sync.Mutex
	script    []Response
	responses map[string]string
	requests  []Request
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      "mock",
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion for an input text.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Script queues final responses returned by subsequent Generate calls.
func (m *MockModel) Script(responses ...Response) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, responses...)
	return m
}

// ScriptText queues a final text response.
func (m *MockModel) ScriptText(text string) *MockModel {
	return m.Script(Response{
		Content:      core.NewTextContent(core.RoleAssistant, text),
		FinishReason: "stop",
	})
}

// ScriptCall queues a response requesting one function call.
func (m *MockModel) ScriptCall(id, name, args string) *MockModel {
	return m.Script(Response{
		Content: core.Content{
			Role:  core.RoleAssistant,
			Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: id, Name: name, Arguments: args}}},
		},
		FinishReason: "tool_calls",
	})
}

// Requests returns the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Generate implements Model. With req.Stream text is first emitted rune by rune.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var next *Response
	if len(m.script) > 0 {
		r := m.script[0]
		m.script = m.script[1:]
		next = &r
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if next == nil {
			if len(req.Contents) == 0 {
				errCh <- fmt.Errorf("no contents provided")
				return
			}
			input := Text(req.Contents[len(req.Contents)-1])
			m.mu.Lock()
			full := m.responses[input]
			m.mu.Unlock()
			if full == "" {
				full = fmt.Sprintf("Mock response to: %s", input)
			}
			next = &Response{Content: core.NewTextContent(core.RoleAssistant, full), FinishReason: "stop"}
		}

		if req.Stream {
			for _, r := range Text(next.Content) {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Content: core.NewTextContent(core.RoleAssistant, string(r))}:
				}
			}
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- *next:
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
