package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/assistantd/pkg/models"
)

const docSummaryInstructions = `You are a question answering analyst. Below is a JSON record of question and answer pairs.
<records start>
%s
<records end>

Generate a candidate answer to the new question from the records.
New question: %s
Candidate answer:`

// DocSummaryTool condenses the injected retrieval payload into a candidate
// answer for the pending question. It runs after retrieval and rewrites the
// docs message in place.
type DocSummaryTool struct {
	chat ChatFunc
}

func NewDocSummaryTool(chat ChatFunc) *DocSummaryTool {
	return &DocSummaryTool{chat: chat}
}

func (t *DocSummaryTool) Execute(ctx context.Context, tc *Context) error {
	if len(tc.Messages) == 0 {
		return nil
	}
	query := tc.Messages[len(tc.Messages)-1].Content

	var docs *Message
	for i := range tc.Messages {
		if tc.Messages[i].Kind == KindDocs {
			docs = &tc.Messages[i]
		}
	}
	if docs == nil {
		return nil
	}

	prompt := fmt.Sprintf(docSummaryInstructions, docs.Content, query)
	summary, err := t.chat(ctx, []Message{{Role: models.RoleSystem, Content: prompt}},
		map[string]any{"temperature": 0.0})
	if err != nil {
		return fmt.Errorf("doc summary completion: %w", err)
	}
	if summary = strings.TrimSpace(summary); summary != "" {
		docs.Content = summary
	}
	return nil
}
