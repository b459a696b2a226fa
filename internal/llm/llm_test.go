package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	r.Register(NewMockBackend())
	r.Register(NewOpenAIBackend(OpenAIOptions{APIKey: "sk-test"}))

	cases := []struct {
		model       string
		wantBackend string
		wantModel   string
		wantErr     bool
	}{
		{"mock@mock", "mock", "mock", false},
		{"openai@gpt-4o", "openai", "gpt-4o", false},
		{"gpt-4o", "openai", "gpt-4o", false},
		{"anthropic@claude-sonnet-4-20250514", "", "", true},
		{"mock@", "", "", true},
	}
	for _, tc := range cases {
		b, model, err := r.Resolve(tc.model)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Resolve(%q) expected error", tc.model)
			}
			continue
		}
		if err != nil {
			t.Errorf("Resolve(%q) error = %v", tc.model, err)
			continue
		}
		if b.Name() != tc.wantBackend || model != tc.wantModel {
			t.Errorf("Resolve(%q) = (%s, %s), want (%s, %s)",
				tc.model, b.Name(), model, tc.wantBackend, tc.wantModel)
		}
	}
}

func TestMockBackendEchoesLastNonSystemMessage(t *testing.T) {
	b := NewMockBackend()
	res, err := Chat(context.Background(), b, &CompletionRequest{
		Model: "mock",
		Messages: []CompletionMessage{
			{Role: RoleSystem, Content: "be helpful"},
			{Role: RoleUser, Content: "hello there"},
			{Role: RoleAssistant, Content: "hi"},
			{Role: RoleUser, Content: "echo this back"},
		},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if res.Text != "echo this back" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.CompletionTokens != 3 {
		t.Errorf("CompletionTokens = %d", res.CompletionTokens)
	}
	if res.PromptTokens == 0 {
		t.Error("PromptTokens = 0")
	}
}

func TestGenerateEchoesInstructionsOnMock(t *testing.T) {
	b := NewMockBackend()
	res, err := Generate(context.Background(), b, "mock", "summarize the docs", nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.Text != "summarize the docs" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.PromptTokens != 3 {
		t.Errorf("PromptTokens = %d", res.PromptTokens)
	}
}

func TestMockBackendStreamsTokenByToken(t *testing.T) {
	b := NewMockBackend()
	chunks, err := b.Complete(context.Background(), &CompletionRequest{
		Model:    "mock",
		Messages: []CompletionMessage{{Role: RoleUser, Content: "one two three"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	var texts []string
	var done bool
	for c := range chunks {
		if c.Error != nil {
			t.Fatalf("chunk error = %v", c.Error)
		}
		if c.Done {
			done = true
			continue
		}
		texts = append(texts, c.Text)
	}
	if !done {
		t.Error("no final done chunk")
	}
	if len(texts) != 3 || texts[0] != "one" || texts[1] != " two" || texts[2] != " three" {
		t.Errorf("texts = %q", texts)
	}
}

func TestOpenAIBackendHonorsTimeout(t *testing.T) {
	stall := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-stall
	}))
	defer srv.Close()
	defer close(stall)

	b := NewOpenAIBackend(OpenAIOptions{
		APIKey:     "sk-test",
		BaseURL:    srv.URL + "/v1",
		Timeout:    50 * time.Millisecond,
		MaxRetries: 1,
	})
	start := time.Now()
	_, err := b.Complete(context.Background(), &CompletionRequest{
		Model:    "gpt-4o",
		Messages: []CompletionMessage{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("Complete() expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("request did not time out promptly (%v)", elapsed)
	}
}

func TestFloatArgAcceptsDecoderTypes(t *testing.T) {
	args := map[string]any{
		"temperature": 0.7,
		"max_tokens":  512,
	}
	if v, ok := floatArg(args, "temperature"); !ok || v != 0.7 {
		t.Errorf("floatArg(temperature) = %v, %v", v, ok)
	}
	if v, ok := intArg(args, "max_tokens"); !ok || v != 512 {
		t.Errorf("intArg(max_tokens) = %v, %v", v, ok)
	}
	if _, ok := floatArg(args, "missing"); ok {
		t.Error("floatArg(missing) = ok")
	}
	if _, ok := floatArg(map[string]any{"temperature": "hot"}, "temperature"); ok {
		t.Error("floatArg(string) = ok")
	}
}

func TestCollectSurfacesStreamError(t *testing.T) {
	ch := make(chan *CompletionChunk, 2)
	ch <- &CompletionChunk{Text: "partial"}
	ch <- &CompletionChunk{Error: context.DeadlineExceeded, Done: true}
	close(ch)
	if _, err := Collect(ch); err == nil {
		t.Error("Collect() expected error")
	}
}
