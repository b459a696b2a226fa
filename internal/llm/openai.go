package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/assistantd/internal/retry"
)

// OpenAIBackend talks to the OpenAI chat completions API, or to any endpoint
// speaking the same wire format (vLLM, llama.cpp server, LM Studio) via a
// custom base URL.
type OpenAIBackend struct {
	client *openai.Client
	retry  retry.Config
}

// OpenAIOptions configures the openai backend.
type OpenAIOptions struct {
	APIKey string

	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string

	// Timeout bounds a single API request. Zero leaves the client default.
	Timeout time.Duration

	MaxRetries int
	RetryDelay time.Duration
}

func NewOpenAIBackend(opts OpenAIOptions) *OpenAIBackend {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	}
	if opts.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	rc := retry.Fixed(opts.MaxRetries, opts.RetryDelay)
	if opts.MaxRetries <= 0 {
		rc = retry.Fixed(3, time.Second)
	}
	return &OpenAIBackend{
		client: openai.NewClientWithConfig(cfg),
		retry:  rc,
	}
}

func (b *OpenAIBackend) Name() string { return "openai" }

func (b *OpenAIBackend) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:  req.Model,
		Stream: true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	for _, m := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	if t, ok := floatArg(req.Args, "temperature"); ok {
		chatReq.Temperature = float32(t)
	}
	if p, ok := floatArg(req.Args, "top_p"); ok {
		chatReq.TopP = float32(p)
	}
	if n, ok := intArg(req.Args, "max_tokens"); ok {
		chatReq.MaxTokens = n
	}

	// Only stream creation is retried. Once tokens flow, a mid-stream
	// failure surfaces as an error chunk so partial output is not
	// silently duplicated.
	stream, err := retry.DoWithValue(ctx, b.retry, func() (*openai.ChatCompletionStream, error) {
		s, err := b.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil && !isRetryable(err) {
			return nil, retry.Permanent(err)
		}
		return s, err
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan *CompletionChunk)
	go b.processStream(ctx, stream, chunks)
	return chunks, nil
}

func (b *OpenAIBackend) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *CompletionChunk) {
	defer close(chunks)
	defer stream.Close()

	final := &CompletionChunk{Done: true}
	for {
		select {
		case <-ctx.Done():
			chunks <- &CompletionChunk{Error: ctx.Err(), Done: true}
			return
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				chunks <- final
				return
			}
			chunks <- &CompletionChunk{Error: err, Done: true}
			return
		}

		// The usage frame arrives with an empty choice list at the end
		// of the stream when stream_options.include_usage is set.
		if response.Usage != nil {
			final.PromptTokens = response.Usage.PromptTokens
			final.CompletionTokens = response.Usage.CompletionTokens
		}
		if len(response.Choices) == 0 {
			continue
		}
		if delta := response.Choices[0].Delta.Content; delta != "" {
			chunks <- &CompletionChunk{Text: delta}
		}
	}
}

func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	// Transport-level failures (connection reset, timeout) are worth a
	// second attempt.
	return true
}
