package llm

import (
	"context"
	"sync"

	"github.com/skein-ai/skein/pkg/models"
)

// MockClient is a scripted Client for tests. Each call consumes the next
// entry in Responses; when the script is exhausted, the last entry repeats.
// Every call's message history is recorded in CallHistory.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	calls     int

	// OnCall, when set, overrides the scripted responses entirely.
	OnCall func(call int, messages []models.Message) string

	// CallHistory holds a snapshot of the messages passed to each call.
	CallHistory [][]models.Message

	// Model is reported as the producing model. Defaults to "mock".
	Model string
}

var _ Client = (*MockClient)(nil)

// NewMockClient creates a MockClient scripted with the given responses.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses, Model: "mock"}
}

// GenerateStream returns the next scripted response, delivering it as a
// single delta.
func (m *MockClient) GenerateStream(ctx context.Context, messages []models.Message, onDelta func(string)) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", m.Model, err
	}

	m.mu.Lock()
	call := m.calls
	m.calls++
	snapshot := make([]models.Message, len(messages))
	copy(snapshot, messages)
	m.CallHistory = append(m.CallHistory, snapshot)

	var response string
	if m.OnCall != nil {
		onCall := m.OnCall
		m.mu.Unlock()
		response = onCall(call, snapshot)
	} else {
		if len(m.responses) == 0 {
			m.mu.Unlock()
			return "", m.Model, nil
		}
		idx := call
		if idx >= len(m.responses) {
			idx = len(m.responses) - 1
		}
		response = m.responses[idx]
		m.mu.Unlock()
	}

	if onDelta != nil {
		onDelta(response)
	}
	return response, m.Model, nil
}

// Calls returns how many times GenerateStream has been invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
