// Package archive periodically exports the indexed documents of every
// deployment to the object store as parquet files, keeping an offline
// copy of what the assistant is grounded on.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/querypilot/querypilot/internal/docstore"
	"github.com/querypilot/querypilot/internal/storage"
)

type Service struct {
	Docs        docstore.Store
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
	Clock       func() time.Time
}

type Config struct {
	Interval  time.Duration
	CreatedBy string
}

func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	ticker := time.NewTicker(s.Config.Interval)
	defer ticker.Stop()

	for {
		if err := s.ProcessOnce(ctx); err != nil {
			if s.Logger != nil {
				s.Logger.ErrorContext(ctx, "archive cycle failed", slog.Any("error", err))
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessOnce exports one parquet file per deployment that currently
// has documents, then prunes archives of deployments that no longer
// exist in the document store.
func (s *Service) ProcessOnce(ctx context.Context) error {
	s.ensureDefaults()

	deployments, err := s.Docs.ListDeployments(ctx)
	if err != nil {
		return fmt.Errorf("list deployments: %w", err)
	}

	live := make(map[string]bool, len(deployments))
	for _, deploymentID := range deployments {
		live[deploymentID] = true
		if err := s.archiveDeployment(ctx, deploymentID); err != nil {
			return err
		}
	}
	return s.pruneDeleted(ctx, live)
}

func (s *Service) pruneDeleted(ctx context.Context, live map[string]bool) error {
	objects, err := s.ObjectStore.List(ctx, storage.ArchivePrefix)
	if err != nil {
		return fmt.Errorf("list archives: %w", err)
	}

	for _, object := range objects {
		deploymentID, ok := storage.DeploymentFromArchivePath(object.Key)
		if !ok || live[deploymentID] {
			continue
		}
		if err := s.ObjectStore.Delete(ctx, object.Key); err != nil {
			return fmt.Errorf("prune archive %q: %w", object.Key, err)
		}
		if s.Logger != nil {
			s.Logger.InfoContext(ctx, "pruned archive of deleted deployment",
				slog.String("deployment_id", deploymentID),
				slog.String("object_path", object.Key),
			)
		}
	}
	return nil
}

func (s *Service) archiveDeployment(ctx context.Context, deploymentID string) error {
	docs, err := s.Docs.ListDocuments(ctx, deploymentID)
	if err != nil {
		return fmt.Errorf("list documents for %q: %w", deploymentID, err)
	}
	if len(docs) == 0 {
		return nil
	}

	encoded, err := EncodeDocumentsToParquet(docs)
	if err != nil {
		return fmt.Errorf("encode documents for %q: %w", deploymentID, err)
	}

	key, err := storage.BuildArchivePath(deploymentID, s.Clock())
	if err != nil {
		return fmt.Errorf("build archive path: %w", err)
	}

	info, err := s.ObjectStore.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: storage.ContentTypeParquet})
	if err != nil {
		return fmt.Errorf("put archive object: %w", err)
	}

	if s.Logger != nil {
		s.Logger.InfoContext(ctx, "archived deployment documents",
			slog.String("deployment_id", deploymentID),
			slog.Int64("record_count", encoded.RecordCount),
			slog.Int64("file_size_bytes", info.Size),
			slog.String("object_path", key),
			slog.String("created_by", s.Config.CreatedBy),
		)
	}
	return nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Config.Interval <= 0 {
		s.Config.Interval = time.Hour
	}
	if s.Config.CreatedBy == "" {
		s.Config.CreatedBy = "querypilot-archiver"
	}
}
