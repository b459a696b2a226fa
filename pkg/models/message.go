package models

import "strings"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageText is a single text value inside a content block.
type MessageText struct {
	Value string `json:"value"`
}

// MessageContent is one structured content block of a message. Only text
// blocks are produced today; the type field keeps the wire format open.
type MessageContent struct {
	Type string        `json:"type"`
	Text []MessageText `json:"text,omitempty"`
}

// Message is one immutable turn in a thread.
type Message struct {
	ID          string           `json:"id"`
	Object      string           `json:"object"`
	CreatedAt   int64            `json:"created_at"`
	ThreadID    string           `json:"thread_id"`
	AssistantID string           `json:"assistant_id,omitempty"`
	RunID       string           `json:"run_id,omitempty"`
	Role        string           `json:"role"`
	Content     []MessageContent `json:"content"`
	FileIDs     []string         `json:"file_ids,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`

	UserID string `json:"user_id,omitempty"`
	OrgID  string `json:"org_id,omitempty"`
	Tag    string `json:"-"`

	IsDeleted bool  `json:"-"`
	DeletedAt int64 `json:"-"`
}

// TextContent wraps a plain string into the structured content format.
func TextContent(s string) []MessageContent {
	return []MessageContent{{Type: "text", Text: []MessageText{{Value: s}}}}
}

// PlainText flattens the message content back to a plain string. The
// round trip through TextContent is lossless.
func (m *Message) PlainText() string {
	var b strings.Builder
	for _, c := range m.Content {
		if c.Type != "text" {
			continue
		}
		for _, t := range c.Text {
			b.WriteString(t.Value)
		}
	}
	return b.String()
}
