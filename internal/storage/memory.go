package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/assistantd/pkg/models"
)

// paginate sorts items by creation time (id as tiebreak), applies the
// after/before cursors relative to that order, and truncates to the limit.
// The second return value reports whether more items remain past the cursor
// window.
func paginate[T any](items []T, id func(T) string, created func(T) int64, opts ListOptions) ([]T, bool) {
	sort.Slice(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if ci != cj {
			if opts.descending() {
				return ci > cj
			}
			return ci < cj
		}
		if opts.descending() {
			return id(items[i]) > id(items[j])
		}
		return id(items[i]) < id(items[j])
	})

	if opts.After != "" {
		for i := range items {
			if id(items[i]) == opts.After {
				items = items[i+1:]
				break
			}
		}
	}
	if opts.Before != "" {
		for i := range items {
			if id(items[i]) == opts.Before {
				items = items[:i]
				break
			}
		}
	}

	limit := opts.limit()
	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	return items, hasMore
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// MemoryAssistantStore provides an in-memory AssistantStore.
type MemoryAssistantStore struct {
	mu         sync.RWMutex
	assistants map[string]*models.Assistant
}

// NewMemoryAssistantStore creates an in-memory assistant store.
func NewMemoryAssistantStore() *MemoryAssistantStore {
	return &MemoryAssistantStore{assistants: make(map[string]*models.Assistant)}
}

func (s *MemoryAssistantStore) Create(ctx context.Context, assistant *models.Assistant) error {
	if assistant == nil || assistant.ID == "" {
		return fmt.Errorf("assistant id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.assistants[assistant.ID]; exists {
		return ErrAlreadyExists
	}
	clone := *assistant
	s.assistants[assistant.ID] = &clone
	return nil
}

func (s *MemoryAssistantStore) Get(ctx context.Context, id string) (*models.Assistant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assistant, ok := s.assistants[id]
	if !ok || assistant.IsDeleted {
		return nil, ErrNotFound
	}
	clone := *assistant
	return &clone, nil
}

func (s *MemoryAssistantStore) Update(ctx context.Context, assistant *models.Assistant) error {
	if assistant == nil || assistant.ID == "" {
		return fmt.Errorf("assistant id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.assistants[assistant.ID]
	if !ok || existing.IsDeleted {
		return ErrNotFound
	}
	clone := *assistant
	s.assistants[assistant.ID] = &clone
	return nil
}

func (s *MemoryAssistantStore) Delete(ctx context.Context, id string, mode DeleteMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	assistant, ok := s.assistants[id]
	if !ok || assistant.IsDeleted {
		return ErrNotFound
	}
	if mode == HardDelete {
		delete(s.assistants, id)
		return nil
	}
	assistant.IsDeleted = true
	assistant.DeletedAt = nowMillis()
	return nil
}

func (s *MemoryAssistantStore) List(ctx context.Context, opts ListOptions) ([]*models.Assistant, bool, error) {
	s.mu.RLock()
	items := make([]*models.Assistant, 0, len(s.assistants))
	for _, a := range s.assistants {
		if a.IsDeleted {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		if opts.OrgID != "" && a.OrgID != opts.OrgID {
			continue
		}
		if opts.Tag != "" && a.Tag != opts.Tag {
			continue
		}
		clone := *a
		items = append(items, &clone)
	}
	s.mu.RUnlock()

	page, hasMore := paginate(items,
		func(a *models.Assistant) string { return a.ID },
		func(a *models.Assistant) int64 { return a.CreatedAt },
		opts)
	return page, hasMore, nil
}

// MemoryMessageStore provides an in-memory MessageStore.
type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages map[string]*models.Message
}

// NewMemoryMessageStore creates an in-memory message store.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{messages: make(map[string]*models.Message)}
}

func (s *MemoryMessageStore) Create(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("message id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[msg.ID]; exists {
		return ErrAlreadyExists
	}
	clone := *msg
	s.messages[msg.ID] = &clone
	return nil
}

func (s *MemoryMessageStore) Get(ctx context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok || msg.IsDeleted {
		return nil, ErrNotFound
	}
	clone := *msg
	return &clone, nil
}

func (s *MemoryMessageStore) Update(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("message id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.messages[msg.ID]
	if !ok || existing.IsDeleted {
		return ErrNotFound
	}
	clone := *msg
	s.messages[msg.ID] = &clone
	return nil
}

func (s *MemoryMessageStore) Delete(ctx context.Context, id string, mode DeleteMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok || msg.IsDeleted {
		return ErrNotFound
	}
	if mode == HardDelete {
		delete(s.messages, id)
		return nil
	}
	msg.IsDeleted = true
	msg.DeletedAt = nowMillis()
	return nil
}

func (s *MemoryMessageStore) List(ctx context.Context, threadID string, opts ListOptions) ([]*models.Message, bool, error) {
	s.mu.RLock()
	items := make([]*models.Message, 0)
	for _, m := range s.messages {
		if m.IsDeleted || m.ThreadID != threadID {
			continue
		}
		if opts.UserID != "" && m.UserID != opts.UserID {
			continue
		}
		if opts.Tag != "" && m.Tag != opts.Tag {
			continue
		}
		clone := *m
		items = append(items, &clone)
	}
	s.mu.RUnlock()

	page, hasMore := paginate(items,
		func(m *models.Message) string { return m.ID },
		func(m *models.Message) int64 { return m.CreatedAt },
		opts)
	return page, hasMore, nil
}

// deleteByThread marks or removes all messages of a thread; used for the
// thread delete cascade.
func (s *MemoryMessageStore) deleteByThread(threadID string, mode DeleteMode, deletedAt int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.messages {
		if m.ThreadID != threadID {
			continue
		}
		if mode == HardDelete {
			delete(s.messages, id)
			continue
		}
		m.IsDeleted = true
		m.DeletedAt = deletedAt
	}
}

// MemoryThreadStore provides an in-memory ThreadStore. It holds a reference
// to the message store so thread deletion can cascade.
type MemoryThreadStore struct {
	mu       sync.RWMutex
	threads  map[string]*models.Thread
	messages *MemoryMessageStore
}

// NewMemoryThreadStore creates an in-memory thread store cascading deletes
// into the given message store.
func NewMemoryThreadStore(messages *MemoryMessageStore) *MemoryThreadStore {
	return &MemoryThreadStore{threads: make(map[string]*models.Thread), messages: messages}
}

func (s *MemoryThreadStore) Create(ctx context.Context, thread *models.Thread) error {
	if thread == nil || thread.ID == "" {
		return fmt.Errorf("thread id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.threads[thread.ID]; exists {
		return ErrAlreadyExists
	}
	clone := *thread
	s.threads[thread.ID] = &clone
	return nil
}

func (s *MemoryThreadStore) Get(ctx context.Context, id string) (*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	thread, ok := s.threads[id]
	if !ok || thread.IsDeleted {
		return nil, ErrNotFound
	}
	clone := *thread
	return &clone, nil
}

func (s *MemoryThreadStore) Update(ctx context.Context, thread *models.Thread) error {
	if thread == nil || thread.ID == "" {
		return fmt.Errorf("thread id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.threads[thread.ID]
	if !ok || existing.IsDeleted {
		return ErrNotFound
	}
	clone := *thread
	s.threads[thread.ID] = &clone
	return nil
}

func (s *MemoryThreadStore) Delete(ctx context.Context, id string, mode DeleteMode) error {
	s.mu.Lock()
	thread, ok := s.threads[id]
	if !ok || thread.IsDeleted {
		s.mu.Unlock()
		return ErrNotFound
	}
	deletedAt := nowMillis()
	if mode == HardDelete {
		delete(s.threads, id)
	} else {
		thread.IsDeleted = true
		thread.DeletedAt = deletedAt
	}
	s.mu.Unlock()

	if s.messages != nil {
		s.messages.deleteByThread(id, mode, deletedAt)
	}
	return nil
}

func (s *MemoryThreadStore) List(ctx context.Context, opts ListOptions) ([]*models.Thread, bool, error) {
	s.mu.RLock()
	items := make([]*models.Thread, 0, len(s.threads))
	for _, t := range s.threads {
		if t.IsDeleted {
			continue
		}
		if opts.UserID != "" && t.UserID != opts.UserID {
			continue
		}
		if opts.OrgID != "" && t.OrgID != opts.OrgID {
			continue
		}
		clone := *t
		items = append(items, &clone)
	}
	s.mu.RUnlock()

	page, hasMore := paginate(items,
		func(t *models.Thread) string { return t.ID },
		func(t *models.Thread) int64 { return t.CreatedAt },
		opts)
	return page, hasMore, nil
}

// MemoryRunStore provides an in-memory RunStore.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*models.Run
}

// NewMemoryRunStore creates an in-memory run store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]*models.Run)}
}

func (s *MemoryRunStore) Create(ctx context.Context, run *models.Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return ErrAlreadyExists
	}
	clone := *run
	s.runs[run.ID] = &clone
	return nil
}

func (s *MemoryRunStore) Get(ctx context.Context, id string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok || run.IsDeleted {
		return nil, ErrNotFound
	}
	clone := *run
	return &clone, nil
}

func (s *MemoryRunStore) Update(ctx context.Context, run *models.Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[run.ID]
	if !ok || existing.IsDeleted {
		return ErrNotFound
	}
	clone := *run
	s.runs[run.ID] = &clone
	return nil
}

func (s *MemoryRunStore) Delete(ctx context.Context, id string, mode DeleteMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.IsDeleted {
		return ErrNotFound
	}
	if mode == HardDelete {
		delete(s.runs, id)
		return nil
	}
	run.IsDeleted = true
	run.DeletedAt = nowMillis()
	return nil
}

func (s *MemoryRunStore) List(ctx context.Context, threadID string, opts ListOptions) ([]*models.Run, bool, error) {
	s.mu.RLock()
	items := make([]*models.Run, 0)
	for _, r := range s.runs {
		if r.IsDeleted {
			continue
		}
		if threadID != "" && r.ThreadID != threadID {
			continue
		}
		if opts.UserID != "" && r.UserID != opts.UserID {
			continue
		}
		if opts.OrgID != "" && r.OrgID != opts.OrgID {
			continue
		}
		clone := *r
		items = append(items, &clone)
	}
	s.mu.RUnlock()

	page, hasMore := paginate(items,
		func(r *models.Run) string { return r.ID },
		func(r *models.Run) int64 { return r.CreatedAt },
		opts)
	return page, hasMore, nil
}

// NewMemoryStores constructs a StoreSet backed by memory.
func NewMemoryStores() StoreSet {
	messages := NewMemoryMessageStore()
	return StoreSet{
		Assistants: NewMemoryAssistantStore(),
		Threads:    NewMemoryThreadStore(messages),
		Messages:   messages,
		Runs:       NewMemoryRunStore(),
	}
}
