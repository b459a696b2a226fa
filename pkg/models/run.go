package models

// Run status values. The state machine is
// queued -> in_progress -> {completed | failed}; both end states are
// terminal. Cancellation is accepted by the API but not wired to interrupt
// an in-flight execution, so "cancelled" is never reached.
const (
	RunStatusQueued     = "queued"
	RunStatusInProgress = "in_progress"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"
)

// RunErrorCodeServer is the error code recorded when run execution fails for
// any reason other than an explicit client mistake.
const RunErrorCodeServer = "server_error"

// RunError is the structured last_error recorded on a failed run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Run is one execution attempt of an assistant against a thread. It is
// created queued by a client request and mutated only by the run executor
// and the modify/cancel API.
type Run struct {
	ID             string           `json:"id"`
	Object         string           `json:"object"`
	CreatedAt      int64            `json:"created_at"`
	ThreadID       string           `json:"thread_id"`
	AssistantID    string           `json:"assistant_id"`
	Model          string           `json:"model,omitempty"`
	Instructions   string           `json:"instructions,omitempty"`
	Tools          []ToolDescriptor `json:"tools"`
	Status         string           `json:"status"`
	RequiredAction map[string]any   `json:"required_action,omitempty"`
	LastError      *RunError        `json:"last_error,omitempty"`
	FileIDs        []string         `json:"file_ids,omitempty"`
	Metadata       map[string]any   `json:"metadata,omitempty"`

	ExpiresAt   int64 `json:"expires_at,omitempty"`
	StartedAt   int64 `json:"started_at,omitempty"`
	FailedAt    int64 `json:"failed_at,omitempty"`
	CompletedAt int64 `json:"completed_at,omitempty"`

	UserID string `json:"user_id,omitempty"`
	OrgID  string `json:"org_id,omitempty"`
	Tag    string `json:"-"`

	IsDeleted bool  `json:"-"`
	DeletedAt int64 `json:"-"`
}

// MetaBool reports whether a metadata key holds a true value.
func (r *Run) MetaBool(key string) bool {
	if r.Metadata == nil {
		return false
	}
	b, _ := r.Metadata[key].(bool)
	return b
}

// RunStep is the persisted shape of a single step within a run. Steps are an
// accepted API surface but are not recorded during execution.
type RunStep struct {
	ID          string         `json:"id"`
	Object      string         `json:"object"`
	CreatedAt   int64          `json:"created_at"`
	AssistantID string         `json:"assistant_id"`
	ThreadID    string         `json:"thread_id"`
	RunID       string         `json:"run_id"`
	Type        string         `json:"type"`
	Status      string         `json:"status"`
	StepDetails map[string]any `json:"step_details,omitempty"`
	LastError   *RunError      `json:"last_error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
