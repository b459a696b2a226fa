package models

// ToolDescriptor names a pipeline tool kind plus its per-run arguments.
// The ordered tools list on an assistant or run controls pipeline execution
// order during run execution.
type ToolDescriptor struct {
	Type string         `json:"type"`
	Args map[string]any `json:"args,omitempty"`
}

// Assistant is a reusable configuration bundle: default model, instructions,
// tool list and file references. Runs inherit any field the client omitted.
type Assistant struct {
	ID           string           `json:"id"`
	Object       string           `json:"object"`
	CreatedAt    int64            `json:"created_at"`
	Name         string           `json:"name,omitempty"`
	Description  string           `json:"description,omitempty"`
	Model        string           `json:"model"`
	Instructions string           `json:"instructions,omitempty"`
	Tools        []ToolDescriptor `json:"tools"`
	FileIDs      []string         `json:"file_ids,omitempty"`
	Metadata     map[string]any   `json:"metadata,omitempty"`

	UserID string `json:"user_id,omitempty"`
	OrgID  string `json:"org_id,omitempty"`
	Tag    string `json:"-"`

	IsDeleted bool  `json:"-"`
	DeletedAt int64 `json:"-"`
}
