package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/finsight/pulse/internal/util"
	"github.com/finsight/pulse/pkg/store"
)

// DocumentStorage is the Postgres-backed document store. It also implements
// store.EmbeddingStore on a sidecar table so index rebuilds can reuse
// previously computed vectors.
type DocumentStorage struct {
	conn *pgxpool.Pool
}

// NewDocumentStorageParams defines the configuration for creating a new
// DocumentStorage.
type NewDocumentStorageParams struct {
	Conn *pgxpool.Pool
}

// NewDocumentStorage creates a document store on top of an existing pgx pool.
func NewDocumentStorage(params NewDocumentStorageParams) (*DocumentStorage, error) {
	if params.Conn == nil {
		return nil, fmt.Errorf("pgx document storage: nil connection pool")
	}
	return &DocumentStorage{conn: params.Conn}, nil
}

func (s *DocumentStorage) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	row := s.conn.QueryRow(
		ctx,
		`SELECT payload FROM documents WHERE collection = $1 AND doc_id = $2`,
		collection, id,
	)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, id, err)
	}

	return &store.Document{ID: id, Payload: payload}, nil
}

func (s *DocumentStorage) Set(ctx context.Context, collection, id string, payload []byte) error {
	sanitized := util.SanitizePostgresText(string(payload))
	_, err := s.conn.Exec(
		ctx,
		`INSERT INTO documents (collection, doc_id, payload, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (collection, doc_id)
		 DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`,
		collection, id, []byte(sanitized),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *DocumentStorage) Delete(ctx context.Context, collection, id string) error {
	_, err := s.conn.Exec(
		ctx,
		`DELETE FROM documents WHERE collection = $1 AND doc_id = $2`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *DocumentStorage) Scan(ctx context.Context, collection string, limit int) ([]store.Document, error) {
	query := `SELECT doc_id, payload FROM documents WHERE collection = $1 ORDER BY updated_at`
	args := []any{collection}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan collection %s: %w", collection, err)
	}
	defer rows.Close()

	var out []store.Document
	for rows.Next() {
		var doc store.Document
		if err := rows.Scan(&doc.ID, &doc.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate collection %s: %w", collection, err)
	}

	return out, nil
}

// SetEmbedding persists the embedding vector for a document. Implements the
// store.EmbeddingStore capability.
func (s *DocumentStorage) SetEmbedding(ctx context.Context, collection, id string, embedding []float32) error {
	_, err := s.conn.Exec(
		ctx,
		`INSERT INTO document_embeddings (collection, doc_id, embedding)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (collection, doc_id)
		 DO UPDATE SET embedding = EXCLUDED.embedding`,
		collection, id, pgvector.NewVector(embedding),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding %s/%s: %w", collection, id, err)
	}
	return nil
}

// GetEmbedding returns the stored embedding for a document, or
// store.ErrNotFound when none was persisted.
func (s *DocumentStorage) GetEmbedding(ctx context.Context, collection, id string) ([]float32, error) {
	row := s.conn.QueryRow(
		ctx,
		`SELECT embedding FROM document_embeddings WHERE collection = $1 AND doc_id = $2`,
		collection, id,
	)

	var vec pgvector.Vector
	if err := row.Scan(&vec); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get embedding %s/%s: %w", collection, id, err)
	}

	return vec.Slice(), nil
}
