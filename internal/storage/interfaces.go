// Package storage persists assistants, threads, messages and runs. It
// provides CRUD with optimistic soft-delete and cursor pagination, backed by
// either memory or SQLite.
package storage

import (
	"context"
	"errors"

	"github.com/haasonsaas/assistantd/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// DeleteMode selects soft (mark deleted) or hard (remove row) deletion.
type DeleteMode string

const (
	SoftDelete DeleteMode = "soft"
	HardDelete DeleteMode = "hard"
)

// ListOptions configures cursor-paginated queries. After/Before reference
// object ids; Order is "asc" or "desc" by creation time.
type ListOptions struct {
	Limit  int
	Order  string
	After  string
	Before string
	UserID string
	OrgID  string
	Tag    string
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return 20
	}
	return o.Limit
}

func (o ListOptions) descending() bool {
	return o.Order != "asc"
}

// AssistantStore persists assistant configurations.
type AssistantStore interface {
	Create(ctx context.Context, assistant *models.Assistant) error
	Get(ctx context.Context, id string) (*models.Assistant, error)
	Update(ctx context.Context, assistant *models.Assistant) error
	Delete(ctx context.Context, id string, mode DeleteMode) error
	List(ctx context.Context, opts ListOptions) ([]*models.Assistant, bool, error)
}

// ThreadStore persists threads. Delete cascades to the thread's messages in
// the same mode.
type ThreadStore interface {
	Create(ctx context.Context, thread *models.Thread) error
	Get(ctx context.Context, id string) (*models.Thread, error)
	Update(ctx context.Context, thread *models.Thread) error
	Delete(ctx context.Context, id string, mode DeleteMode) error
	List(ctx context.Context, opts ListOptions) ([]*models.Thread, bool, error)
}

// MessageStore persists messages scoped to a thread.
type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	Get(ctx context.Context, id string) (*models.Message, error)
	Update(ctx context.Context, msg *models.Message) error
	Delete(ctx context.Context, id string, mode DeleteMode) error
	List(ctx context.Context, threadID string, opts ListOptions) ([]*models.Message, bool, error)
}

// RunStore persists runs scoped to a thread.
type RunStore interface {
	Create(ctx context.Context, run *models.Run) error
	Get(ctx context.Context, id string) (*models.Run, error)
	Update(ctx context.Context, run *models.Run) error
	Delete(ctx context.Context, id string, mode DeleteMode) error
	List(ctx context.Context, threadID string, opts ListOptions) ([]*models.Run, bool, error)
}

// StoreSet groups the storage dependencies handed to the API layer and the
// run executor.
type StoreSet struct {
	Assistants AssistantStore
	Threads    ThreadStore
	Messages   MessageStore
	Runs       RunStore

	closer func() error
}

// Close releases any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
