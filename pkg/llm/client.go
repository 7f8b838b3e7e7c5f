// Package llm defines the language-model client contract used by the
// orchestrator and provides the OpenAI-compatible streaming implementation
// plus a scripted mock for tests.
package llm

import (
	"context"

	"github.com/skein-ai/skein/pkg/models"
)

// Client produces a full assistant message from a message history, streaming
// tokens as they arrive. Implementations must honor context cancellation on
// the stream: a cancelled context closes the stream cleanly and what has been
// received so far is treated as the final content.
type Client interface {
	// GenerateStream sends the conversation and returns the complete
	// assistant content and the model that produced it. onDelta, when
	// non-nil, is invoked with each incremental content fragment.
	GenerateStream(ctx context.Context, messages []models.Message, onDelta func(delta string)) (content string, model string, err error)
}
