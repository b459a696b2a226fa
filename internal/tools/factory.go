package tools

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/assistantd/internal/config"
	"github.com/haasonsaas/assistantd/internal/vectorstore"
)

// Deps carries the shared dependencies tool implementations draw on.
type Deps struct {
	VectorStore vectorstore.Store
	Chat        ChatFunc
	Logger      *slog.Logger
}

// Build constructs a Registry from the configured tool instances. Each entry
// names an instance and selects an implementation kind; the built-in kinds
// are "retrieval", "rewrite", "doc_summary" and "http".
func Build(configs []config.ToolConfig, deps Deps) (*Registry, error) {
	registry := NewRegistry()
	for _, tc := range configs {
		tool, err := build(tc, deps)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", tc.Name, err)
		}
		registry.Register(tc.Name, tool)
	}
	return registry, nil
}

func build(tc config.ToolConfig, deps Deps) (Tool, error) {
	switch tc.Impl {
	case "retrieval":
		if deps.VectorStore == nil {
			return nil, fmt.Errorf("retrieval requires a vector store")
		}
		return NewRetrievalTool(deps.VectorStore, deps.Logger), nil

	case "rewrite", "iur":
		if deps.Chat == nil {
			return nil, fmt.Errorf("rewrite requires a chat backend")
		}
		return NewRewriteTool(deps.Chat, deps.Logger), nil

	case "doc_summary":
		if deps.Chat == nil {
			return nil, fmt.Errorf("doc_summary requires a chat backend")
		}
		return NewDocSummaryTool(deps.Chat), nil

	case "http":
		url, _ := tc.Args["url"].(string)
		if url == "" {
			return nil, fmt.Errorf("http requires a url argument")
		}
		var timeout time.Duration
		if s, ok := tc.Args["timeout"].(string); ok {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, fmt.Errorf("invalid timeout %q: %w", s, err)
			}
			timeout = d
		}
		return NewHTTPTool(url, timeout, deps.Logger), nil

	default:
		return nil, fmt.Errorf("unknown implementation %q", tc.Impl)
	}
}
