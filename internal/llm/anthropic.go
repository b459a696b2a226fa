package llm

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// Messages API requires max_tokens; used when the request does not set one.
const anthropicDefaultMaxTokens = 4096

// AnthropicBackend streams completions from the Anthropic Messages API.
type AnthropicBackend struct {
	client anthropic.Client
}

type AnthropicOptions struct {
	APIKey  string
	BaseURL string

	// Timeout bounds a single API request. Zero leaves the client default.
	Timeout time.Duration
}

func NewAnthropicBackend(opts AnthropicOptions) *AnthropicBackend {
	options := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		options = append(options, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		options = append(options, option.WithRequestTimeout(opts.Timeout))
	}
	return &AnthropicBackend{client: anthropic.NewClient(options...)}
}

func (b *AnthropicBackend) Name() string { return "anthropic" }

func (b *AnthropicBackend) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: anthropicDefaultMaxTokens,
	}

	// Anthropic takes the system prompt separately from the turn list.
	var system []string
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			params.Messages = append(params.Messages,
				anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages,
				anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Text: strings.Join(system, "\n")},
		}
	}

	if t, ok := floatArg(req.Args, "temperature"); ok {
		params.Temperature = anthropic.Float(t)
	}
	if p, ok := floatArg(req.Args, "top_p"); ok {
		params.TopP = anthropic.Float(p)
	}
	if n, ok := intArg(req.Args, "max_tokens"); ok && n > 0 {
		params.MaxTokens = int64(n)
	}

	stream := b.client.Messages.NewStreaming(ctx, params)
	chunks := make(chan *CompletionChunk)
	go b.processStream(stream, chunks)
	return chunks, nil
}

func (b *AnthropicBackend) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- *CompletionChunk) {
	defer close(chunks)
	defer stream.Close()

	final := &CompletionChunk{Done: true}
	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			final.PromptTokens = int(start.Message.Usage.InputTokens)
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			if delta.Type == "text_delta" && delta.Text != "" {
				chunks <- &CompletionChunk{Text: delta.Text}
			}
		case "message_delta":
			delta := event.AsMessageDelta()
			if delta.Usage.OutputTokens > 0 {
				final.CompletionTokens = int(delta.Usage.OutputTokens)
			}
		}
	}
	if err := stream.Err(); err != nil {
		chunks <- &CompletionChunk{Error: err, Done: true}
		return
	}
	chunks <- final
}
