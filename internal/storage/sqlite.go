package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/haasonsaas/assistantd/pkg/models"
)

// NewSQLiteStores opens (or creates) a SQLite database at path and returns a
// StoreSet backed by it. An empty path opens an in-memory database.
func NewSQLiteStores(path string) (StoreSet, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps in-memory databases coherent and sidesteps
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return StoreSet{}, err
	}

	messages := &sqliteMessageStore{db: db}
	return StoreSet{
		Assistants: &sqliteAssistantStore{db: db},
		Threads:    &sqliteThreadStore{db: db, messages: messages},
		Messages:   messages,
		Runs:       &sqliteRunStore{db: db},
		closer:     db.Close,
	}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS assistants (
			id TEXT PRIMARY KEY,
			object TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			instructions TEXT NOT NULL DEFAULT '',
			tools TEXT NOT NULL DEFAULT '',
			file_ids TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			org_id TEXT NOT NULL DEFAULT '',
			tag TEXT NOT NULL DEFAULT '',
			is_deleted INTEGER NOT NULL DEFAULT 0,
			deleted_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			object TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL DEFAULT 0,
			metadata TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			org_id TEXT NOT NULL DEFAULT '',
			tag TEXT NOT NULL DEFAULT '',
			is_deleted INTEGER NOT NULL DEFAULT 0,
			deleted_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			object TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL DEFAULT 0,
			thread_id TEXT NOT NULL DEFAULT '',
			assistant_id TEXT NOT NULL DEFAULT '',
			run_id TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			file_ids TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			org_id TEXT NOT NULL DEFAULT '',
			tag TEXT NOT NULL DEFAULT '',
			is_deleted INTEGER NOT NULL DEFAULT 0,
			deleted_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			object TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL DEFAULT 0,
			thread_id TEXT NOT NULL DEFAULT '',
			assistant_id TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			instructions TEXT NOT NULL DEFAULT '',
			tools TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			required_action TEXT NOT NULL DEFAULT '',
			last_error TEXT NOT NULL DEFAULT '',
			file_ids TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '',
			expires_at INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL DEFAULT 0,
			failed_at INTEGER NOT NULL DEFAULT 0,
			completed_at INTEGER NOT NULL DEFAULT 0,
			user_id TEXT NOT NULL DEFAULT '',
			org_id TEXT NOT NULL DEFAULT '',
			tag TEXT NOT NULL DEFAULT '',
			is_deleted INTEGER NOT NULL DEFAULT 0,
			deleted_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_thread ON runs(thread_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_assistants_created ON assistants(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_threads_created ON threads(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func toJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json column: %w", err)
	}
	return string(data), nil
}

func fromJSON(data string, v any) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}

// cursorWindow appends cursor predicates ordered by (created_at, id). A
// cursor referencing an unknown id is ignored, matching the memory store.
func cursorWindow(ctx context.Context, db *sql.DB, table string, opts ListOptions, where *string, args *[]any) error {
	apply := func(cursor string, after bool) error {
		var createdAt int64
		err := db.QueryRowContext(ctx,
			"SELECT created_at FROM "+table+" WHERE id = ?", cursor).Scan(&createdAt)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		// "after" means later in the requested order.
		gt := after != opts.descending()
		op := "<"
		if gt {
			op = ">"
		}
		*where += fmt.Sprintf(" AND (created_at %s ? OR (created_at = ? AND id %s ?))", op, op)
		*args = append(*args, createdAt, createdAt, cursor)
		return nil
	}

	if opts.After != "" {
		if err := apply(opts.After, true); err != nil {
			return err
		}
	}
	if opts.Before != "" {
		if err := apply(opts.Before, false); err != nil {
			return err
		}
	}
	return nil
}

func orderClause(opts ListOptions) string {
	if opts.descending() {
		return " ORDER BY created_at DESC, id DESC"
	}
	return " ORDER BY created_at ASC, id ASC"
}

func scopeFilter(opts ListOptions, where *string, args *[]any) {
	if opts.UserID != "" {
		*where += " AND user_id = ?"
		*args = append(*args, opts.UserID)
	}
	if opts.OrgID != "" {
		*where += " AND org_id = ?"
		*args = append(*args, opts.OrgID)
	}
	if opts.Tag != "" {
		*where += " AND tag = ?"
		*args = append(*args, opts.Tag)
	}
}

func softDelete(ctx context.Context, db *sql.DB, table, id string, mode DeleteMode) error {
	var res sql.Result
	var err error
	if mode == HardDelete {
		res, err = db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ? AND is_deleted = 0", id)
	} else {
		res, err = db.ExecContext(ctx,
			"UPDATE "+table+" SET is_deleted = 1, deleted_at = ? WHERE id = ? AND is_deleted = 0",
			nowMillis(), id)
	}
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type sqliteAssistantStore struct {
	db *sql.DB
}

func (s *sqliteAssistantStore) Create(ctx context.Context, a *models.Assistant) error {
	tools, err := toJSON(a.Tools)
	if err != nil {
		return err
	}
	fileIDs, err := toJSON(a.FileIDs)
	if err != nil {
		return err
	}
	metadata, err := toJSON(a.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO assistants
		(id, object, created_at, name, description, model, instructions, tools, file_ids, metadata, user_id, org_id, tag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Object, a.CreatedAt, a.Name, a.Description, a.Model, a.Instructions,
		tools, fileIDs, metadata, a.UserID, a.OrgID, a.Tag)
	if err != nil {
		return fmt.Errorf("insert assistant: %w", err)
	}
	return nil
}

func (s *sqliteAssistantStore) scanRow(row *sql.Row) (*models.Assistant, error) {
	var a models.Assistant
	var tools, fileIDs, metadata string
	var isDeleted int
	err := row.Scan(&a.ID, &a.Object, &a.CreatedAt, &a.Name, &a.Description, &a.Model,
		&a.Instructions, &tools, &fileIDs, &metadata, &a.UserID, &a.OrgID, &a.Tag, &isDeleted, &a.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.IsDeleted = isDeleted != 0
	if err := fromJSON(tools, &a.Tools); err != nil {
		return nil, err
	}
	if err := fromJSON(fileIDs, &a.FileIDs); err != nil {
		return nil, err
	}
	if err := fromJSON(metadata, &a.Metadata); err != nil {
		return nil, err
	}
	return &a, nil
}

const assistantColumns = "id, object, created_at, name, description, model, instructions, tools, file_ids, metadata, user_id, org_id, tag, is_deleted, deleted_at"

func (s *sqliteAssistantStore) Get(ctx context.Context, id string) (*models.Assistant, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+assistantColumns+" FROM assistants WHERE id = ? AND is_deleted = 0", id)
	return s.scanRow(row)
}

func (s *sqliteAssistantStore) Update(ctx context.Context, a *models.Assistant) error {
	tools, err := toJSON(a.Tools)
	if err != nil {
		return err
	}
	fileIDs, err := toJSON(a.FileIDs)
	if err != nil {
		return err
	}
	metadata, err := toJSON(a.Metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE assistants SET
		name = ?, description = ?, model = ?, instructions = ?, tools = ?, file_ids = ?, metadata = ?
		WHERE id = ? AND is_deleted = 0`,
		a.Name, a.Description, a.Model, a.Instructions, tools, fileIDs, metadata, a.ID)
	if err != nil {
		return fmt.Errorf("update assistant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteAssistantStore) Delete(ctx context.Context, id string, mode DeleteMode) error {
	return softDelete(ctx, s.db, "assistants", id, mode)
}

func (s *sqliteAssistantStore) List(ctx context.Context, opts ListOptions) ([]*models.Assistant, bool, error) {
	where := "is_deleted = 0"
	args := []any{}
	scopeFilter(opts, &where, &args)
	if err := cursorWindow(ctx, s.db, "assistants", opts, &where, &args); err != nil {
		return nil, false, err
	}
	limit := opts.limit()
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+assistantColumns+" FROM assistants WHERE "+where+orderClause(opts)+" LIMIT ?", args...)
	if err != nil {
		return nil, false, fmt.Errorf("list assistants: %w", err)
	}
	defer rows.Close()

	var items []*models.Assistant
	for rows.Next() {
		var a models.Assistant
		var tools, fileIDs, metadata string
		var isDeleted int
		if err := rows.Scan(&a.ID, &a.Object, &a.CreatedAt, &a.Name, &a.Description, &a.Model,
			&a.Instructions, &tools, &fileIDs, &metadata, &a.UserID, &a.OrgID, &a.Tag, &isDeleted, &a.DeletedAt); err != nil {
			return nil, false, err
		}
		if err := fromJSON(tools, &a.Tools); err != nil {
			return nil, false, err
		}
		if err := fromJSON(fileIDs, &a.FileIDs); err != nil {
			return nil, false, err
		}
		if err := fromJSON(metadata, &a.Metadata); err != nil {
			return nil, false, err
		}
		items = append(items, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	return items, hasMore, nil
}

type sqliteThreadStore struct {
	db       *sql.DB
	messages *sqliteMessageStore
}

const threadColumns = "id, object, created_at, metadata, user_id, org_id, tag, is_deleted, deleted_at"

func (s *sqliteThreadStore) Create(ctx context.Context, t *models.Thread) error {
	metadata, err := toJSON(t.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO threads
		(id, object, created_at, metadata, user_id, org_id, tag)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Object, t.CreatedAt, metadata, t.UserID, t.OrgID, t.Tag)
	if err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}
	return nil
}

func (s *sqliteThreadStore) Get(ctx context.Context, id string) (*models.Thread, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+threadColumns+" FROM threads WHERE id = ? AND is_deleted = 0", id)
	var t models.Thread
	var metadata string
	var isDeleted int
	err := row.Scan(&t.ID, &t.Object, &t.CreatedAt, &metadata, &t.UserID, &t.OrgID, &t.Tag, &isDeleted, &t.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.IsDeleted = isDeleted != 0
	if err := fromJSON(metadata, &t.Metadata); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *sqliteThreadStore) Update(ctx context.Context, t *models.Thread) error {
	metadata, err := toJSON(t.Metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE threads SET metadata = ? WHERE id = ? AND is_deleted = 0", metadata, t.ID)
	if err != nil {
		return fmt.Errorf("update thread: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteThreadStore) Delete(ctx context.Context, id string, mode DeleteMode) error {
	if err := softDelete(ctx, s.db, "threads", id, mode); err != nil {
		return err
	}
	// Cascade to the thread's messages.
	if mode == HardDelete {
		_, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE thread_id = ?", id)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE messages SET is_deleted = 1, deleted_at = ? WHERE thread_id = ? AND is_deleted = 0",
		nowMillis(), id)
	return err
}

func (s *sqliteThreadStore) List(ctx context.Context, opts ListOptions) ([]*models.Thread, bool, error) {
	where := "is_deleted = 0"
	args := []any{}
	scopeFilter(opts, &where, &args)
	if err := cursorWindow(ctx, s.db, "threads", opts, &where, &args); err != nil {
		return nil, false, err
	}
	limit := opts.limit()
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+threadColumns+" FROM threads WHERE "+where+orderClause(opts)+" LIMIT ?", args...)
	if err != nil {
		return nil, false, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var items []*models.Thread
	for rows.Next() {
		var t models.Thread
		var metadata string
		var isDeleted int
		if err := rows.Scan(&t.ID, &t.Object, &t.CreatedAt, &metadata, &t.UserID, &t.OrgID, &t.Tag, &isDeleted, &t.DeletedAt); err != nil {
			return nil, false, err
		}
		if err := fromJSON(metadata, &t.Metadata); err != nil {
			return nil, false, err
		}
		items = append(items, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	return items, hasMore, nil
}

type sqliteMessageStore struct {
	db *sql.DB
}

const messageColumns = "id, object, created_at, thread_id, assistant_id, run_id, role, content, file_ids, metadata, user_id, org_id, tag, is_deleted, deleted_at"

func (s *sqliteMessageStore) Create(ctx context.Context, m *models.Message) error {
	content, err := toJSON(m.Content)
	if err != nil {
		return err
	}
	fileIDs, err := toJSON(m.FileIDs)
	if err != nil {
		return err
	}
	metadata, err := toJSON(m.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO messages
		(id, object, created_at, thread_id, assistant_id, run_id, role, content, file_ids, metadata, user_id, org_id, tag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Object, m.CreatedAt, m.ThreadID, m.AssistantID, m.RunID, m.Role,
		content, fileIDs, metadata, m.UserID, m.OrgID, m.Tag)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func scanMessage(scan func(dest ...any) error) (*models.Message, error) {
	var m models.Message
	var content, fileIDs, metadata string
	var isDeleted int
	if err := scan(&m.ID, &m.Object, &m.CreatedAt, &m.ThreadID, &m.AssistantID, &m.RunID,
		&m.Role, &content, &fileIDs, &metadata, &m.UserID, &m.OrgID, &m.Tag, &isDeleted, &m.DeletedAt); err != nil {
		return nil, err
	}
	m.IsDeleted = isDeleted != 0
	if err := fromJSON(content, &m.Content); err != nil {
		return nil, err
	}
	if err := fromJSON(fileIDs, &m.FileIDs); err != nil {
		return nil, err
	}
	if err := fromJSON(metadata, &m.Metadata); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *sqliteMessageStore) Get(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id = ? AND is_deleted = 0", id)
	m, err := scanMessage(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

func (s *sqliteMessageStore) Update(ctx context.Context, m *models.Message) error {
	metadata, err := toJSON(m.Metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET metadata = ? WHERE id = ? AND is_deleted = 0", metadata, m.ID)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteMessageStore) Delete(ctx context.Context, id string, mode DeleteMode) error {
	return softDelete(ctx, s.db, "messages", id, mode)
}

func (s *sqliteMessageStore) List(ctx context.Context, threadID string, opts ListOptions) ([]*models.Message, bool, error) {
	where := "is_deleted = 0 AND thread_id = ?"
	args := []any{threadID}
	scopeFilter(opts, &where, &args)
	if err := cursorWindow(ctx, s.db, "messages", opts, &where, &args); err != nil {
		return nil, false, err
	}
	limit := opts.limit()
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE "+where+orderClause(opts)+" LIMIT ?", args...)
	if err != nil {
		return nil, false, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var items []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, false, err
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	return items, hasMore, nil
}

type sqliteRunStore struct {
	db *sql.DB
}

const runColumns = "id, object, created_at, thread_id, assistant_id, model, instructions, tools, status, required_action, last_error, file_ids, metadata, expires_at, started_at, failed_at, completed_at, user_id, org_id, tag, is_deleted, deleted_at"

func (s *sqliteRunStore) encode(r *models.Run) (tools, requiredAction, lastError, fileIDs, metadata string, err error) {
	if tools, err = toJSON(r.Tools); err != nil {
		return
	}
	if requiredAction, err = toJSON(r.RequiredAction); err != nil {
		return
	}
	if r.LastError != nil {
		if lastError, err = toJSON(r.LastError); err != nil {
			return
		}
	}
	if fileIDs, err = toJSON(r.FileIDs); err != nil {
		return
	}
	metadata, err = toJSON(r.Metadata)
	return
}

func (s *sqliteRunStore) Create(ctx context.Context, r *models.Run) error {
	tools, requiredAction, lastError, fileIDs, metadata, err := s.encode(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO runs
		(id, object, created_at, thread_id, assistant_id, model, instructions, tools, status, required_action, last_error, file_ids, metadata, expires_at, started_at, failed_at, completed_at, user_id, org_id, tag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Object, r.CreatedAt, r.ThreadID, r.AssistantID, r.Model, r.Instructions,
		tools, r.Status, requiredAction, lastError, fileIDs, metadata,
		r.ExpiresAt, r.StartedAt, r.FailedAt, r.CompletedAt, r.UserID, r.OrgID, r.Tag)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func scanRun(scan func(dest ...any) error) (*models.Run, error) {
	var r models.Run
	var tools, requiredAction, lastError, fileIDs, metadata string
	var isDeleted int
	if err := scan(&r.ID, &r.Object, &r.CreatedAt, &r.ThreadID, &r.AssistantID, &r.Model,
		&r.Instructions, &tools, &r.Status, &requiredAction, &lastError, &fileIDs, &metadata,
		&r.ExpiresAt, &r.StartedAt, &r.FailedAt, &r.CompletedAt,
		&r.UserID, &r.OrgID, &r.Tag, &isDeleted, &r.DeletedAt); err != nil {
		return nil, err
	}
	r.IsDeleted = isDeleted != 0
	if err := fromJSON(tools, &r.Tools); err != nil {
		return nil, err
	}
	if err := fromJSON(requiredAction, &r.RequiredAction); err != nil {
		return nil, err
	}
	if lastError != "" {
		r.LastError = &models.RunError{}
		if err := fromJSON(lastError, r.LastError); err != nil {
			return nil, err
		}
	}
	if err := fromJSON(fileIDs, &r.FileIDs); err != nil {
		return nil, err
	}
	if err := fromJSON(metadata, &r.Metadata); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *sqliteRunStore) Get(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE id = ? AND is_deleted = 0", id)
	r, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *sqliteRunStore) Update(ctx context.Context, r *models.Run) error {
	tools, requiredAction, lastError, fileIDs, metadata, err := s.encode(r)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET
		model = ?, instructions = ?, tools = ?, status = ?, required_action = ?, last_error = ?,
		file_ids = ?, metadata = ?, expires_at = ?, started_at = ?, failed_at = ?, completed_at = ?
		WHERE id = ? AND is_deleted = 0`,
		r.Model, r.Instructions, tools, r.Status, requiredAction, lastError,
		fileIDs, metadata, r.ExpiresAt, r.StartedAt, r.FailedAt, r.CompletedAt, r.ID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteRunStore) Delete(ctx context.Context, id string, mode DeleteMode) error {
	return softDelete(ctx, s.db, "runs", id, mode)
}

func (s *sqliteRunStore) List(ctx context.Context, threadID string, opts ListOptions) ([]*models.Run, bool, error) {
	where := "is_deleted = 0"
	args := []any{}
	if threadID != "" {
		where += " AND thread_id = ?"
		args = append(args, threadID)
	}
	scopeFilter(opts, &where, &args)
	if err := cursorWindow(ctx, s.db, "runs", opts, &where, &args); err != nil {
		return nil, false, err
	}
	limit := opts.limit()
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE "+where+orderClause(opts)+" LIMIT ?", args...)
	if err != nil {
		return nil, false, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var items []*models.Run
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, false, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	return items, hasMore, nil
}
