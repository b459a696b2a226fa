package vectorstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteStore keeps documents and embeddings in a single SQLite table and
// ranks by cosine distance computed in process. Collections stay small (one
// per uploaded file), so a brute-force scan per query is adequate.
type SQLiteStore struct {
	db       *sql.DB
	embedder Embedder
}

func NewSQLiteStore(path string, embedder Embedder) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, embedder: embedder}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT NOT NULL,
			collection TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '',
			embedding BLOB,
			PRIMARY KEY (collection, id)
		)
	`)
	if err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	_, err = s.db.Exec("CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection)")
	if err != nil {
		return fmt.Errorf("create collection index: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Index(ctx context.Context, collection string, docs []Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO documents (id, collection, content, metadata, embedding)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		id := doc.ID
		if id == "" {
			id = uuid.New().String()
		}
		embedding, err := s.embedder.Embed(ctx, doc.Text)
		if err != nil {
			return fmt.Errorf("embed document %s: %w", id, err)
		}
		metadata := ""
		if doc.Metadata != nil {
			data, err := json.Marshal(doc.Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata for %s: %w", id, err)
			}
			metadata = string(data)
		}
		if _, err := stmt.ExecContext(ctx, id, collection, doc.Text, metadata, encodeEmbedding(embedding)); err != nil {
			return fmt.Errorf("insert document %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Search(ctx context.Context, collection, query string, opts SearchOptions) ([]Record, error) {
	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content, metadata, embedding FROM documents WHERE collection = ?", collection)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", collection, err)
	}
	defer rows.Close()

	var records []Record
	found := false
	for rows.Next() {
		found = true
		var id, content, metadata string
		var blob []byte
		if err := rows.Scan(&id, &content, &metadata, &blob); err != nil {
			return nil, err
		}
		rec := Record{
			ID:       id,
			Text:     content,
			Distance: cosineDistance(queryEmbedding, decodeEmbedding(blob)),
		}
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
			}
		}
		if opts.MaxDistance > 0 && rec.Distance >= opts.MaxDistance {
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Distance < records[j].Distance })
	if limit := opts.limit(); len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *SQLiteStore) DeleteCollection(ctx context.Context, collection string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = ?", collection)
	return err
}

func (s *SQLiteStore) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT collection FROM documents ORDER BY collection")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeEmbedding(embedding []float32) []byte {
	buf := new(bytes.Buffer)
	for _, v := range embedding {
		binary.Write(buf, binary.LittleEndian, math.Float32bits(v))
	}
	return buf.Bytes()
}

func decodeEmbedding(data []byte) []float32 {
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}
