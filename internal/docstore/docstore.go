// Package docstore defines the document storage contract used by the
// indexing and retrieval services. Documents are rendered schema
// descriptions scoped to a deployment and searched by embedding
// similarity.
package docstore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("document not found")

// Document is one indexed unit of schema context. Content holds the
// rendered DDL text handed to the generation prompt.
type Document struct {
	ID           string
	DeploymentID string
	Name         string
	Kind         string
	Content      string
	Embedding    []float32
	CreatedAt    time.Time
}

// SearchResult pairs a document with its similarity score, higher is
// closer.
type SearchResult struct {
	Document Document
	Score    float64
}

type Store interface {
	// ReplaceDeployment atomically swaps the documents indexed for a
	// deployment.
	ReplaceDeployment(ctx context.Context, deploymentID string, docs []Document) error
	Search(ctx context.Context, deploymentID string, embedding []float32, topK int) ([]SearchResult, error)
	ListDocuments(ctx context.Context, deploymentID string) ([]Document, error)
	ListDeployments(ctx context.Context) ([]string, error)
	DeleteDeployment(ctx context.Context, deploymentID string) error
	HealthCheck(ctx context.Context) error
}
