package models

// Thread is an ordered conversation container owning zero or more messages.
// Deleting a thread cascades to its messages in both soft and hard mode.
type Thread struct {
	ID        string         `json:"id"`
	Object    string         `json:"object"`
	CreatedAt int64          `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	UserID string `json:"user_id,omitempty"`
	OrgID  string `json:"org_id,omitempty"`
	Tag    string `json:"-"`

	IsDeleted bool  `json:"-"`
	DeletedAt int64 `json:"-"`
}
