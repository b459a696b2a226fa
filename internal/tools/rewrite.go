package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/assistantd/pkg/models"
)

const rewriteInstructions = `You are a text analysis assistant. Below is a conversation between an AI assistant and a user; "system" sets the assistant's persona, "user" is the user and "assistant" is the AI assistant:
-- conversation start --
%s
-- conversation end --
User question: %s
Acting as the user in this conversation, rewrite the question so it carries the user's complete intent on its own and is easy for the assistant to understand. Output only the rewritten question, with no preamble.
Rewritten question:`

// RewriteTool rewrites the final user message into a self-contained question
// using the surrounding history, so that retrieval and the model see the full
// intent. The rewritten text is recorded in the generated message's metadata
// under "iur".
type RewriteTool struct {
	chat   ChatFunc
	logger *slog.Logger
}

func NewRewriteTool(chat ChatFunc, logger *slog.Logger) *RewriteTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &RewriteTool{chat: chat, logger: logger}
}

func (t *RewriteTool) Execute(ctx context.Context, tc *Context) error {
	last := tc.LastMessage()
	if last == nil || last.Role != models.RoleUser || last.Content == "" {
		return nil
	}

	history := plainHistory(tc.Messages)
	prompt := fmt.Sprintf(rewriteInstructions, history, last.Content)

	rewritten, err := t.chat(ctx, []Message{{Role: models.RoleUser, Content: prompt}},
		map[string]any{"temperature": 0.0})
	if err != nil {
		return fmt.Errorf("rewrite completion: %w", err)
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return nil
	}

	t.logger.Info("rewrote user question", "original", last.Content, "rewritten", rewritten)

	tc.Messages[len(tc.Messages)-1].Content = rewritten
	if tc.MessageMetadata == nil {
		tc.MessageMetadata = map[string]any{}
	}
	tc.MessageMetadata["iur"] = rewritten
	return nil
}

// plainHistory flattens the conversation into "role: content" lines.
func plainHistory(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem, models.RoleUser, models.RoleAssistant:
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}
	return b.String()
}
