package archive

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/querypilot/querypilot/internal/docstore"
)

type ParquetEncodeResult struct {
	Data        []byte
	RecordCount int64
}

type parquetDocument struct {
	DocumentID      string `parquet:"document_id"`
	DeploymentID    string `parquet:"deployment_id"`
	Name            string `parquet:"name"`
	Kind            string `parquet:"kind"`
	Content         string `parquet:"content"`
	CreatedAtUnixMs int64  `parquet:"created_at_unix_ms"`
}

// EncodeDocumentsToParquet serializes indexed documents for offline
// analysis. Embeddings are dropped, the vector store remains their
// system of record.
func EncodeDocumentsToParquet(docs []docstore.Document) (ParquetEncodeResult, error) {
	if len(docs) == 0 {
		return ParquetEncodeResult{}, fmt.Errorf("documents are required")
	}

	rows := make([]parquetDocument, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, parquetDocument{
			DocumentID:      doc.ID,
			DeploymentID:    doc.DeploymentID,
			Name:            doc.Name,
			Kind:            doc.Kind,
			Content:         doc.Content,
			CreatedAtUnixMs: doc.CreatedAt.UnixMilli(),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetDocument](buf)
	if _, err := writer.Write(rows); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return ParquetEncodeResult{Data: buf.Bytes(), RecordCount: int64(len(rows))}, nil
}
