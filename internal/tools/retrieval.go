package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/assistantd/internal/vectorstore"
	"github.com/haasonsaas/assistantd/pkg/models"
)

const retrievalInstructions = "Refer to the retrievals to generate your answer."

// Run metadata keys steering retrieval.
const (
	metaRetrievalCollection = "retrieval_collection"
	metaRetrievalLimit      = "retrieval_limit"
	metaRetrievalDistance   = "retrieval_distance"
)

const (
	defaultRetrievalLimit    = 20
	defaultRetrievalDistance = 1.0
)

// RetrievalTool searches the run's collections for chunks similar to the
// latest message and injects them as bracketed system messages right before
// the final turn.
type RetrievalTool struct {
	store  vectorstore.Store
	logger *slog.Logger
}

func NewRetrievalTool(store vectorstore.Store, logger *slog.Logger) *RetrievalTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalTool{store: store, logger: logger}
}

func (t *RetrievalTool) Execute(ctx context.Context, tc *Context) error {
	if len(tc.Messages) == 0 {
		t.logger.Debug("history empty, skipping retrieval")
		return nil
	}

	collections := append([]string(nil), tc.FileIDs...)
	if c, ok := tc.RunMetadata[metaRetrievalCollection].(string); ok && c != "" {
		collections = append(collections, c)
	}
	if len(collections) == 0 {
		t.logger.Debug("no retrieval collections, skipping retrieval")
		return nil
	}

	opts := vectorstore.SearchOptions{
		Limit:       defaultRetrievalLimit,
		MaxDistance: defaultRetrievalDistance,
	}
	if limit, ok := numericMeta(tc.RunMetadata, metaRetrievalLimit); ok {
		opts.Limit = int(limit)
	}
	if distance, ok := numericMeta(tc.RunMetadata, metaRetrievalDistance); ok {
		opts.MaxDistance = distance
	}

	query := tc.Messages[len(tc.Messages)-1].Content

	var docs []vectorstore.Record
	for _, collection := range collections {
		records, err := t.store.Search(ctx, collection, query, opts)
		if err != nil {
			// A missing collection is a configuration problem, not a
			// reason to fail the run.
			t.logger.Warn("retrieval search failed", "collection", collection, "error", err)
			continue
		}
		docs = append(docs, records...)
	}
	if len(docs) == 0 {
		return nil
	}

	payload, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode retrieval docs: %w", err)
	}

	last := tc.Messages[len(tc.Messages)-1]
	head := tc.Messages[:len(tc.Messages)-1]
	tc.Messages = append(append([]Message(nil), head...),
		Message{Role: models.RoleSystem, Content: retrievalInstructions},
		Message{Role: models.RoleSystem, Content: "<Retrievals Begin>"},
		Message{Role: models.RoleSystem, Content: string(payload), Kind: KindDocs},
		Message{Role: models.RoleSystem, Content: "<Retrievals End>"},
		last,
	)
	return nil
}

// numericMeta reads a metadata number that may arrive as JSON float64, int,
// or a numeric string.
func numericMeta(meta map[string]any, key string) (float64, bool) {
	switch v := meta[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
