package archive

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/querypilot/querypilot/internal/docstore"
)

func TestEncodeDocumentsToParquet(t *testing.T) {
	created := time.Date(2026, time.February, 19, 10, 0, 0, 0, time.UTC)
	docs := []docstore.Document{
		{
			ID:           "doc-1",
			DeploymentID: "deploy-1",
			Name:         "orders",
			Kind:         "model",
			Content:      "CREATE TABLE orders (id INTEGER)",
			Embedding:    []float32{0.1, 0.2},
			CreatedAt:    created,
		},
		{
			ID:           "doc-2",
			DeploymentID: "deploy-1",
			Name:         "customers",
			Kind:         "model",
			Content:      "CREATE TABLE customers (id INTEGER)",
			CreatedAt:    created.Add(time.Minute),
		},
	}

	result, err := EncodeDocumentsToParquet(docs)
	if err != nil {
		t.Fatalf("EncodeDocumentsToParquet() error = %v", err)
	}
	if result.RecordCount != 2 {
		t.Fatalf("RecordCount = %d", result.RecordCount)
	}
	if len(result.Data) == 0 {
		t.Fatal("expected non-empty parquet payload")
	}

	reader := parquet.NewGenericReader[parquetDocument](bytes.NewReader(result.Data))
	defer func() { _ = reader.Close() }()
	rows := make([]parquetDocument, 2)
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader.Read() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("read rows = %d", count)
	}
	if rows[0].DocumentID != "doc-1" || rows[1].DocumentID != "doc-2" {
		t.Fatalf("unexpected document ids: %+v", rows)
	}
	if rows[0].CreatedAtUnixMs != created.UnixMilli() {
		t.Fatalf("created_at = %d", rows[0].CreatedAtUnixMs)
	}
}

func TestEncodeDocumentsToParquetRequiresRows(t *testing.T) {
	if _, err := EncodeDocumentsToParquet(nil); err == nil {
		t.Fatal("expected error for empty document slice")
	}
}
