package llm

import (
	"context"
	"strings"
)

// MockBackend echoes the last non-system input message back, token by token.
// A request carrying only system messages (a Generate call) echoes the last
// of those instead. It backs the "mock@mock" model for local development and
// tests, exercising the full streaming path without network access.
type MockBackend struct{}

func NewMockBackend() *MockBackend { return &MockBackend{} }

func (b *MockBackend) Name() string { return "mock" }

func (b *MockBackend) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	var echo string
	var promptTokens int
	for _, m := range req.Messages {
		promptTokens += len(strings.Fields(m.Content))
		if m.Role != RoleSystem {
			echo = m.Content
		}
	}
	if echo == "" && len(req.Messages) > 0 {
		echo = req.Messages[len(req.Messages)-1].Content
	}

	chunks := make(chan *CompletionChunk)
	go func() {
		defer close(chunks)
		words := strings.Fields(echo)
		for i, w := range words {
			if i > 0 {
				w = " " + w
			}
			select {
			case <-ctx.Done():
				chunks <- &CompletionChunk{Error: ctx.Err(), Done: true}
				return
			case chunks <- &CompletionChunk{Text: w}:
			}
		}
		chunks <- &CompletionChunk{
			Done:             true,
			PromptTokens:     promptTokens,
			CompletionTokens: len(words),
		}
	}()
	return chunks, nil
}
