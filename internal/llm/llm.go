// Package llm abstracts chat-completion backends behind a streaming
// interface. Backends are addressed as "backend@model" identifiers, e.g.
// "openai@gpt-4o" or "anthropic@claude-sonnet-4-20250514".
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Message roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionMessage is one turn of conversation sent to a backend.
type CompletionMessage struct {
	Role    string
	Content string
}

// CompletionRequest describes a single chat completion call.
type CompletionRequest struct {
	// Model is the backend-native model id, already stripped of the
	// "backend@" prefix.
	Model string

	Messages []CompletionMessage

	// Args carries sampling parameters such as temperature, top_p and
	// max_tokens. Unknown keys are ignored by backends that do not
	// support them.
	Args map[string]any
}

// CompletionChunk is one streamed piece of a backend response. Text chunks
// arrive as they are generated; the final chunk has Done set and carries the
// token usage when the backend reports it.
type CompletionChunk struct {
	Text  string
	Done  bool
	Error error

	PromptTokens     int
	CompletionTokens int
}

// Backend produces streaming chat completions. Complete returns immediately
// with a channel the backend closes when the stream ends; implementations
// must always send a final chunk with Done set (or Error on failure) before
// closing.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)
}

// Result is a fully drained completion.
type Result struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Collect drains a chunk channel into a single result. It returns the first
// streaming error encountered.
func Collect(chunks <-chan *CompletionChunk) (*Result, error) {
	var b strings.Builder
	res := &Result{}
	for chunk := range chunks {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		b.WriteString(chunk.Text)
		if chunk.PromptTokens > 0 {
			res.PromptTokens = chunk.PromptTokens
		}
		if chunk.CompletionTokens > 0 {
			res.CompletionTokens = chunk.CompletionTokens
		}
	}
	res.Text = b.String()
	return res, nil
}

// Chat is the non-streaming convenience over Complete.
func Chat(ctx context.Context, b Backend, req *CompletionRequest) (*Result, error) {
	chunks, err := b.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return Collect(chunks)
}

// Generate completes a bare instruction: the text is sent as a single system
// message with no conversation history.
func Generate(ctx context.Context, b Backend, model, instructions string, args map[string]any) (*Result, error) {
	return Chat(ctx, b, &CompletionRequest{
		Model:    model,
		Messages: []CompletionMessage{{Role: RoleSystem, Content: instructions}},
		Args:     args,
	})
}

// floatArg reads a numeric sampling argument, accepting the types YAML and
// JSON decoders produce.
func floatArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func intArg(args map[string]any, key string) (int, bool) {
	f, ok := floatArg(args, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// Registry maps backend names to implementations and resolves model
// identifiers of the form "backend@model".
type Registry struct {
	backends map[string]Backend
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend under its Name. Registering the same name twice
// replaces the earlier backend.
func (r *Registry) Register(b Backend) {
	r.backends[b.Name()] = b
}

// Backends returns the registered backend names.
func (r *Registry) Backends() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}

// Resolve splits a "backend@model" identifier and looks up the backend. An
// identifier without "@" resolves against the openai backend, which also
// serves OpenAI-compatible local inference endpoints.
func (r *Registry) Resolve(model string) (Backend, string, error) {
	backendName := "openai"
	modelName := model
	if i := strings.Index(model, "@"); i >= 0 {
		backendName = model[:i]
		modelName = model[i+1:]
	}
	if modelName == "" {
		return nil, "", fmt.Errorf("model missing in identifier %q", model)
	}
	b, ok := r.backends[backendName]
	if !ok {
		return nil, "", fmt.Errorf("unknown backend %q in model %q", backendName, model)
	}
	return b, modelName, nil
}
