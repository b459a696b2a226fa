package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/assistantd/internal/config"
	"github.com/haasonsaas/assistantd/internal/observability"
	"github.com/haasonsaas/assistantd/internal/vectorstore"
	"github.com/haasonsaas/assistantd/pkg/models"
)

type recordingTool struct {
	name     string
	order    *[]string
	complete bool
	err      error
}

func (t *recordingTool) Execute(_ context.Context, tc *Context) error {
	*t.order = append(*t.order, t.name)
	if t.complete {
		tc.Completed = true
	}
	return t.err
}

func TestPipelineRunsInOrder(t *testing.T) {
	var order []string
	registry := NewRegistry()
	registry.Register("a", &recordingTool{name: "a", order: &order})
	registry.Register("b", &recordingTool{name: "b", order: &order})

	pipeline := NewPipeline(registry, nil, nil)
	err := pipeline.Run(context.Background(), []models.ToolDescriptor{
		{Type: "b"}, {Type: "a"}, {Type: "b"},
	}, &Context{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(order) != 3 || order[0] != "b" || order[1] != "a" || order[2] != "b" {
		t.Errorf("order = %v", order)
	}
}

func TestPipelineSkipsUnknownTools(t *testing.T) {
	var order []string
	registry := NewRegistry()
	registry.Register("known", &recordingTool{name: "known", order: &order})

	pipeline := NewPipeline(registry, nil, nil)
	err := pipeline.Run(context.Background(), []models.ToolDescriptor{
		{Type: "missing"}, {Type: "known"},
	}, &Context{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(order) != 1 || order[0] != "known" {
		t.Errorf("order = %v", order)
	}
}

func TestPipelineStopsWhenCompleted(t *testing.T) {
	var order []string
	registry := NewRegistry()
	registry.Register("finisher", &recordingTool{name: "finisher", order: &order, complete: true})
	registry.Register("after", &recordingTool{name: "after", order: &order})

	tc := &Context{}
	pipeline := NewPipeline(registry, nil, nil)
	err := pipeline.Run(context.Background(), []models.ToolDescriptor{
		{Type: "finisher"}, {Type: "after"},
	}, tc)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !tc.Completed {
		t.Error("Completed = false")
	}
	if len(order) != 1 {
		t.Errorf("order = %v, tools ran past completion", order)
	}
}

func TestPipelineCountsToolExecutions(t *testing.T) {
	var order []string
	registry := NewRegistry()
	registry.Register("ok", &recordingTool{name: "ok", order: &order})
	registry.Register("bad", &recordingTool{name: "bad", order: &order, err: errors.New("boom")})

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	pipeline := NewPipeline(registry, nil, metrics)
	_ = pipeline.Run(context.Background(), []models.ToolDescriptor{
		{Type: "ok"}, {Type: "missing"}, {Type: "bad"},
	}, &Context{})

	cases := []struct {
		tool   string
		status string
		want   float64
	}{
		{"ok", "success", 1},
		{"missing", "skipped", 1},
		{"bad", "error", 1},
	}
	for _, tc := range cases {
		got := testutil.ToFloat64(metrics.ToolExecutionCounter.WithLabelValues(tc.tool, tc.status))
		if got != tc.want {
			t.Errorf("counter[%s,%s] = %v, want %v", tc.tool, tc.status, got, tc.want)
		}
	}
}

func TestPipelinePropagatesToolError(t *testing.T) {
	var order []string
	wantErr := errors.New("boom")
	registry := NewRegistry()
	registry.Register("bad", &recordingTool{name: "bad", order: &order, err: wantErr})

	pipeline := NewPipeline(registry, nil, nil)
	err := pipeline.Run(context.Background(), []models.ToolDescriptor{{Type: "bad"}}, &Context{})
	if !errors.Is(err, wantErr) {
		t.Errorf("Run() error = %v, want %v", err, wantErr)
	}
}

func TestRetrievalInjectsDocsBeforeLastMessage(t *testing.T) {
	ctx := context.Background()
	store, err := vectorstore.NewSQLiteStore("", vectorstore.NewHashEmbedder(64))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer store.Close()

	docs := []vectorstore.Document{
		{ID: "d1", Text: "the capital of france is paris"},
		{ID: "d2", Text: "unrelated text about gophers"},
	}
	if err := store.Index(ctx, "file_1", docs); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	tool := NewRetrievalTool(store, nil)
	tc := &Context{
		Messages: []Message{
			{Role: models.RoleUser, Content: "what is the capital of france"},
		},
		FileIDs:     []string{"file_1"},
		RunMetadata: map[string]any{},
	}
	if err := tool.Execute(ctx, tc); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	// instructions, begin marker, docs, end marker, original message
	if len(tc.Messages) != 5 {
		t.Fatalf("messages = %d, want 5", len(tc.Messages))
	}
	if tc.Messages[2].Kind != KindDocs {
		t.Errorf("Messages[2].Kind = %q", tc.Messages[2].Kind)
	}
	var payload []vectorstore.Record
	if err := json.Unmarshal([]byte(tc.Messages[2].Content), &payload); err != nil {
		t.Fatalf("docs payload: %v", err)
	}
	if last := tc.Messages[4]; last.Role != models.RoleUser || last.Content != "what is the capital of france" {
		t.Errorf("last message = %+v", last)
	}
}

func TestRetrievalSkipsWithoutCollections(t *testing.T) {
	store, err := vectorstore.NewSQLiteStore("", vectorstore.NewHashEmbedder(64))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer store.Close()

	tool := NewRetrievalTool(store, nil)
	tc := &Context{
		Messages:    []Message{{Role: models.RoleUser, Content: "hello"}},
		RunMetadata: map[string]any{},
	}
	if err := tool.Execute(context.Background(), tc); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(tc.Messages) != 1 {
		t.Errorf("messages = %d, retrieval ran without collections", len(tc.Messages))
	}
}

func TestRewriteReplacesLastUserMessage(t *testing.T) {
	chat := func(_ context.Context, _ []Message, _ map[string]any) (string, error) {
		return "what is the population of the city of paris\n", nil
	}
	tool := NewRewriteTool(chat, nil)
	tc := &Context{
		Messages: []Message{
			{Role: models.RoleUser, Content: "tell me about paris"},
			{Role: models.RoleAssistant, Content: "paris is the capital of france"},
			{Role: models.RoleUser, Content: "and its population?"},
		},
	}
	if err := tool.Execute(context.Background(), tc); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	want := "what is the population of the city of paris"
	if got := tc.Messages[2].Content; got != want {
		t.Errorf("rewritten content = %q", got)
	}
	if tc.MessageMetadata["iur"] != want {
		t.Errorf("iur metadata = %v", tc.MessageMetadata["iur"])
	}
}

func TestRewriteIgnoresNonUserTail(t *testing.T) {
	called := false
	chat := func(_ context.Context, _ []Message, _ map[string]any) (string, error) {
		called = true
		return "rewritten", nil
	}
	tool := NewRewriteTool(chat, nil)
	tc := &Context{
		Messages: []Message{{Role: models.RoleAssistant, Content: "hi"}},
	}
	if err := tool.Execute(context.Background(), tc); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if called {
		t.Error("chat called for assistant-tailed history")
	}
}

func TestDocSummaryRewritesDocsMessage(t *testing.T) {
	chat := func(_ context.Context, msgs []Message, _ map[string]any) (string, error) {
		if len(msgs) != 1 || msgs[0].Role != models.RoleSystem {
			t.Errorf("chat messages = %+v", msgs)
		}
		return "summarized answer", nil
	}
	tool := NewDocSummaryTool(chat)
	tc := &Context{
		Messages: []Message{
			{Role: models.RoleSystem, Content: `[{"text":"raw"}]`, Kind: KindDocs},
			{Role: models.RoleUser, Content: "question"},
		},
	}
	if err := tool.Execute(context.Background(), tc); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if tc.Messages[0].Content != "summarized answer" {
		t.Errorf("docs content = %q", tc.Messages[0].Content)
	}
}

func TestHTTPToolMergesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var in httpExchange
		if err := json.Unmarshal(body, &in); err != nil {
			t.Errorf("request body: %v", err)
		}
		json.NewEncoder(w).Encode(httpExchange{
			Messages:        append(in.Messages, Message{Role: models.RoleSystem, Content: "injected"}),
			LLMArgs:         map[string]any{"temperature": 0.5},
			MessageMetadata: map[string]any{"remote": true},
		})
	}))
	defer server.Close()

	tool := NewHTTPTool(server.URL, 0, nil)
	tc := &Context{
		Messages: []Message{{Role: models.RoleUser, Content: "hi"}},
		LLMArgs:  map[string]any{"temperature": 0.0},
	}
	if err := tool.Execute(context.Background(), tc); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(tc.Messages) != 2 || tc.Messages[1].Content != "injected" {
		t.Errorf("messages = %+v", tc.Messages)
	}
	if tc.LLMArgs["temperature"] != 0.5 {
		t.Errorf("llm args = %+v", tc.LLMArgs)
	}
	if tc.MessageMetadata["remote"] != true {
		t.Errorf("message metadata = %+v", tc.MessageMetadata)
	}
}

func TestHTTPToolFailureLeavesContextUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	tool := NewHTTPTool(server.URL, 0, nil)
	tc := &Context{Messages: []Message{{Role: models.RoleUser, Content: "hi"}}}
	if err := tool.Execute(context.Background(), tc); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(tc.Messages) != 1 || tc.Messages[0].Content != "hi" {
		t.Errorf("messages = %+v", tc.Messages)
	}
}

func TestBuildRegistry(t *testing.T) {
	store, err := vectorstore.NewSQLiteStore("", vectorstore.NewHashEmbedder(8))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer store.Close()

	chat := func(_ context.Context, _ []Message, _ map[string]any) (string, error) { return "", nil }
	registry, err := Build([]config.ToolConfig{
		{Name: "kb", Impl: "retrieval"},
		{Name: "iur", Impl: "rewrite"},
		{Name: "hook", Impl: "http", Args: map[string]any{"url": "http://localhost:1/tool"}},
	}, Deps{VectorStore: store, Chat: chat})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for _, name := range []string{"kb", "iur", "hook"} {
		if _, ok := registry.Get(name); !ok {
			t.Errorf("tool %s not registered", name)
		}
	}

	if _, err := Build([]config.ToolConfig{{Name: "x", Impl: "nope"}}, Deps{}); err == nil {
		t.Error("Build() accepted unknown impl")
	}
	if _, err := Build([]config.ToolConfig{{Name: "h", Impl: "http"}}, Deps{}); err == nil {
		t.Error("Build() accepted http tool without url")
	}
}
