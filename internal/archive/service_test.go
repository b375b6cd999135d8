package archive

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/querypilot/querypilot/internal/docstore"
	"github.com/querypilot/querypilot/internal/storage"
)

func TestProcessOnceArchivesEachDeployment(t *testing.T) {
	created := time.Date(2026, time.February, 19, 8, 0, 0, 0, time.UTC)
	docs := &fakeDocs{
		deployments: []string{"deploy-1", "deploy-2"},
		documents: map[string][]docstore.Document{
			"deploy-1": {{ID: "a", DeploymentID: "deploy-1", Name: "orders", Kind: "model", Content: "ddl", CreatedAt: created}},
			"deploy-2": {{ID: "b", DeploymentID: "deploy-2", Name: "users", Kind: "model", Content: "ddl", CreatedAt: created}},
		},
	}
	store := &fakeObjectStore{}

	service := &Service{
		Docs:        docs,
		ObjectStore: store,
		Clock:       func() time.Time { return time.Date(2026, time.February, 19, 9, 0, 0, 0, time.UTC) },
	}

	if err := service.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("ProcessOnce() error = %v", err)
	}

	if len(store.keys) != 2 {
		t.Fatalf("archived objects = %d, want 2", len(store.keys))
	}
	want := "archives/deploy-1/date=2026-02-19/documents-1771491600.parquet"
	if store.keys[0] != want {
		t.Fatalf("first key = %q, want %q", store.keys[0], want)
	}
	if store.contentTypes[0] != storage.ContentTypeParquet {
		t.Fatalf("content type = %q", store.contentTypes[0])
	}
}

func TestProcessOnceSkipsEmptyDeployments(t *testing.T) {
	docs := &fakeDocs{deployments: []string{"deploy-1"}}
	store := &fakeObjectStore{}
	service := &Service{Docs: docs, ObjectStore: store}

	if err := service.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("ProcessOnce() error = %v", err)
	}
	if len(store.keys) != 0 {
		t.Fatalf("archived objects = %d, want 0", len(store.keys))
	}
}

func TestProcessOncePrunesArchivesOfDeletedDeployments(t *testing.T) {
	docs := &fakeDocs{deployments: []string{"deploy-1"}}
	store := &fakeObjectStore{existing: []string{
		"archives/deploy-1/date=2026-02-18/documents-1771400000.parquet",
		"archives/gone/date=2026-02-18/documents-1771400000.parquet",
	}}
	service := &Service{Docs: docs, ObjectStore: store}

	if err := service.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("ProcessOnce() error = %v", err)
	}

	if len(store.deleted) != 1 {
		t.Fatalf("deleted = %v, want one pruned object", store.deleted)
	}
	if store.deleted[0] != "archives/gone/date=2026-02-18/documents-1771400000.parquet" {
		t.Fatalf("pruned key = %q", store.deleted[0])
	}
}

type fakeDocs struct {
	deployments []string
	documents   map[string][]docstore.Document
}

func (f *fakeDocs) ReplaceDeployment(context.Context, string, []docstore.Document) error { return nil }

func (f *fakeDocs) Search(context.Context, string, []float32, int) ([]docstore.SearchResult, error) {
	return nil, nil
}

func (f *fakeDocs) ListDocuments(_ context.Context, deploymentID string) ([]docstore.Document, error) {
	return f.documents[deploymentID], nil
}

func (f *fakeDocs) ListDeployments(context.Context) ([]string, error) {
	return f.deployments, nil
}

func (f *fakeDocs) DeleteDeployment(context.Context, string) error { return nil }

func (f *fakeDocs) HealthCheck(context.Context) error { return nil }

type fakeObjectStore struct {
	keys         []string
	contentTypes []string
	existing     []string
	deleted      []string
}

func (f *fakeObjectStore) Put(_ context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	f.keys = append(f.keys, key)
	f.contentTypes = append(f.contentTypes, opts.ContentType)
	_, _ = io.Copy(io.Discard, body)
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

func (f *fakeObjectStore) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrObjectNotFound
}

func (f *fakeObjectStore) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var infos []storage.ObjectInfo
	for _, key := range append(append([]string{}, f.existing...), f.keys...) {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, storage.ObjectInfo{Key: key})
		}
	}
	return infos, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}
