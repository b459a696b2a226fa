package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// httpExchange is the wire format for remote tools. The server receives the
// pending conversation and replies with replacements and merges.
type httpExchange struct {
	Messages        []Message      `json:"messages"`
	LLMArgs         map[string]any `json:"llm_args,omitempty"`
	MessageMetadata map[string]any `json:"message_metadata,omitempty"`
	Completed       bool           `json:"is_completed,omitempty"`
}

// HTTPTool delegates a pipeline step to a remote endpoint via POST. Failures
// are logged and the context passes through unchanged, so an unreachable
// remote tool degrades the run instead of failing it.
type HTTPTool struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewHTTPTool(url string, timeout time.Duration, logger *slog.Logger) *HTTPTool {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTool{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (t *HTTPTool) Execute(ctx context.Context, tc *Context) error {
	result, err := t.post(ctx, tc)
	if err != nil {
		t.logger.Warn("http tool failed", "url", t.url, "error", err)
		return nil
	}

	tc.Messages = result.Messages
	if tc.LLMArgs == nil {
		tc.LLMArgs = map[string]any{}
	}
	for k, v := range result.LLMArgs {
		tc.LLMArgs[k] = v
	}
	if tc.MessageMetadata == nil {
		tc.MessageMetadata = map[string]any{}
	}
	for k, v := range result.MessageMetadata {
		tc.MessageMetadata[k] = v
	}
	if result.Completed {
		tc.Completed = true
	}
	return nil
}

func (t *HTTPTool) post(ctx context.Context, tc *Context) (*httpExchange, error) {
	body, err := json.Marshal(httpExchange{
		Messages:        tc.Messages,
		LLMArgs:         tc.LLMArgs,
		MessageMetadata: tc.MessageMetadata,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status: %d", resp.StatusCode)
	}

	var result httpExchange
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
