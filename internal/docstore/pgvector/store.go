package pgvector

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	pgvec "github.com/pgvector/pgvector-go"

	"github.com/querypilot/querypilot/internal/docstore"
)

// Store persists schema documents in Postgres with a pgvector column
// and searches them by cosine distance.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping vector store db: %w", err)
	}
	return nil
}

func (s *Store) ReplaceDeployment(ctx context.Context, deploymentID string, docs []docstore.Document) error {
	if deploymentID == "" {
		return fmt.Errorf("deployment id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace deployment: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_document WHERE deployment_id = $1`, deploymentID); err != nil {
		return fmt.Errorf("clear deployment documents: %w", err)
	}

	query := `
INSERT INTO schema_document (document_id, deployment_id, name, kind, content, embedding)
VALUES ($1, $2, $3, $4, $5, $6)`
	for _, doc := range docs {
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, query, id, deploymentID, doc.Name, doc.Kind, doc.Content, pgvec.NewVector(doc.Embedding)); err != nil {
			return fmt.Errorf("insert document %q: %w", doc.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace deployment: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, deploymentID string, embedding []float32, topK int) ([]docstore.SearchResult, error) {
	if topK <= 0 {
		topK = 10
	}

	query := `
SELECT document_id, deployment_id, name, kind, content, created_at,
       1 - (embedding <=> $2) AS score
FROM schema_document
WHERE deployment_id = $1
ORDER BY embedding <=> $2 ASC
LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, deploymentID, pgvec.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]docstore.SearchResult, 0, topK)
	for rows.Next() {
		var result docstore.SearchResult
		if err := rows.Scan(
			&result.Document.ID,
			&result.Document.DeploymentID,
			&result.Document.Name,
			&result.Document.Kind,
			&result.Document.Content,
			&result.Document.CreatedAt,
			&result.Score,
		); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

func (s *Store) ListDocuments(ctx context.Context, deploymentID string) ([]docstore.Document, error) {
	query := `
SELECT document_id, deployment_id, name, kind, content, embedding, created_at
FROM schema_document
WHERE deployment_id = $1
ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := make([]docstore.Document, 0)
	for rows.Next() {
		var doc docstore.Document
		var embedding pgvec.Vector
		if err := rows.Scan(
			&doc.ID,
			&doc.DeploymentID,
			&doc.Name,
			&doc.Kind,
			&doc.Content,
			&embedding,
			&doc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		doc.Embedding = embedding.Slice()
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return docs, nil
}

func (s *Store) ListDeployments(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT deployment_id
FROM schema_document
ORDER BY deployment_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	deployments := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deployment row: %w", err)
		}
		deployments = append(deployments, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployment rows: %w", err)
	}
	return deployments, nil
}

func (s *Store) DeleteDeployment(ctx context.Context, deploymentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM schema_document WHERE deployment_id = $1`, deploymentID)
	if err != nil {
		return fmt.Errorf("delete deployment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete deployment rows affected: %w", err)
	}
	if affected == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

var _ docstore.Store = (*Store)(nil)
