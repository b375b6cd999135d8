// Package indexing prepares deployments: it parses a deployed MDL
// manifest, renders its models into DDL context documents, embeds them
// and swaps them into the document store. Preparation is a job like any
// other, polled through the same status endpoints.
package indexing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/querypilot/querypilot/internal/docstore"
	"github.com/querypilot/querypilot/internal/job"
	"github.com/querypilot/querypilot/internal/llm"
	"github.com/querypilot/querypilot/internal/mdl"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/pipeline"
	"github.com/querypilot/querypilot/internal/storage"
)

type Dependencies struct {
	Jobs      *job.Store
	Embedder  llm.Embedder
	Docs      docstore.Store
	Manifests *mdl.Registry
	Logger    *slog.Logger

	// Archive receives a copy of every deployed manifest. Optional;
	// preparation succeeds without it.
	Archive storage.ObjectStore

	BaseContext context.Context
	Clock       func() time.Time
}

type Service struct {
	deps Dependencies
}

func NewService(deps Dependencies) (*Service, error) {
	if deps.Jobs == nil {
		return nil, fmt.Errorf("job store is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Docs == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if deps.Manifests == nil {
		deps.Manifests = mdl.NewRegistry()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Service{deps: deps}, nil
}

type PreparationRequest struct {
	MDL          json.RawMessage `json:"mdl"`
	DeploymentID string          `json:"deployment_id,omitempty"`
}

type PreparationResponse struct {
	DeploymentID string `json:"deployment_id"`
	Documents    int    `json:"documents"`
}

// SubmitPreparation validates the manifest up front and indexes it in
// the background. The deployment ID defaults to a hash of the manifest,
// so re-deploying identical semantics is idempotent.
func (s *Service) SubmitPreparation(req PreparationRequest) (job.Job, error) {
	if len(bytes.TrimSpace(req.MDL)) == 0 {
		return job.Job{}, fmt.Errorf("mdl is required")
	}
	manifest, err := mdl.Parse(req.MDL)
	if err != nil {
		return job.Job{}, err
	}
	deploymentID := req.DeploymentID
	if deploymentID == "" {
		deploymentID = mdl.Hash(req.MDL)
	}

	j := s.deps.Jobs.Create(job.KindSemanticsPreparation, job.StatusIndexing)

	stages := []pipeline.Stage{
		{
			Name: "render",
			Run: func(_ context.Context, _ pipeline.Values) (any, error) {
				return renderDocuments(deploymentID, manifest), nil
			},
		},
		{
			Name: "embed",
			Need: []string{"render"},
			Run: func(ctx context.Context, in pipeline.Values) (any, error) {
				docs := in["render"].([]docstore.Document)
				texts := make([]string, 0, len(docs))
				for _, doc := range docs {
					texts = append(texts, doc.Content)
				}
				embeddings, err := s.deps.Embedder.BatchEmbed(ctx, texts)
				if err != nil {
					return nil, fmt.Errorf("embed documents: %w", err)
				}
				if len(embeddings) != len(docs) {
					return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(embeddings), len(docs))
				}
				for i := range docs {
					docs[i].Embedding = embeddings[i]
				}
				return docs, nil
			},
		},
		{
			Name: "store",
			Need: []string{"embed"},
			Run: func(ctx context.Context, in pipeline.Values) (any, error) {
				docs := in["embed"].([]docstore.Document)
				if err := s.deps.Docs.ReplaceDeployment(ctx, deploymentID, docs); err != nil {
					return nil, fmt.Errorf("replace deployment documents: %w", err)
				}
				s.deps.Manifests.Put(deploymentID, manifest)
				observability.AddIndexedDocuments(len(docs))
				s.archiveManifest(ctx, deploymentID, req.MDL)
				return len(docs), nil
			},
		},
	}

	p, err := pipeline.New(stages...)
	if err != nil {
		return job.Job{}, err
	}

	go func() {
		checkpoint := func(context.Context) (bool, error) {
			return s.deps.Jobs.Checkpoint(j.ID)
		}
		values, err := p.Execute(s.deps.BaseContext, pipeline.Values{}, checkpoint)
		if err != nil {
			if errors.Is(err, pipeline.ErrStopped) {
				s.deps.Logger.Info("preparation stopped", "query_id", j.ID, "deployment_id", deploymentID)
				return
			}
			s.deps.Logger.Error("preparation failed", "query_id", j.ID, "deployment_id", deploymentID, "error", err)
			if failErr := s.deps.Jobs.Fail(j.ID, "indexing_failed", err.Error()); failErr != nil && !errors.Is(failErr, job.ErrTerminal) {
				s.deps.Logger.Error("record preparation failure", "query_id", j.ID, "error", failErr)
			}
			return
		}

		raw, err := json.Marshal(PreparationResponse{
			DeploymentID: deploymentID,
			Documents:    values["store"].(int),
		})
		if err != nil {
			_ = s.deps.Jobs.Fail(j.ID, "internal_error", err.Error())
			return
		}
		if err := s.deps.Jobs.Finish(j.ID, raw); err != nil && !errors.Is(err, job.ErrTerminal) {
			s.deps.Logger.Error("finish preparation", "query_id", j.ID, "error", err)
		}
	}()
	return j, nil
}

func (s *Service) Status(id string) (job.Job, error) {
	return s.deps.Jobs.Get(id)
}

func (s *Service) Stop(id string) error {
	return s.deps.Jobs.RequestStop(id)
}

// archiveManifest writes the raw manifest to the object store. Losing
// the archive does not fail the deployment.
func (s *Service) archiveManifest(ctx context.Context, deploymentID string, raw json.RawMessage) {
	if s.deps.Archive == nil {
		return
	}
	key, err := storage.BuildManifestPath(deploymentID, s.deps.Clock())
	if err != nil {
		s.deps.Logger.Warn("build manifest archive path", "deployment_id", deploymentID, "error", err)
		return
	}
	_, err = s.deps.Archive.Put(ctx, key, bytes.NewReader(raw), int64(len(raw)), storage.PutOptions{ContentType: storage.ContentTypeJSON})
	if err != nil {
		s.deps.Logger.Warn("archive manifest", "deployment_id", deploymentID, "key", key, "error", err)
	}
}

func renderDocuments(deploymentID string, manifest mdl.Manifest) []docstore.Document {
	docs := make([]docstore.Document, 0, len(manifest.Models)+len(manifest.Metrics)+len(manifest.Views))
	for _, model := range manifest.Models {
		docs = append(docs, docstore.Document{
			DeploymentID: deploymentID,
			Name:         model.Name,
			Kind:         "model",
			Content:      manifest.ModelDDL(model),
		})
	}
	for _, metric := range manifest.Metrics {
		docs = append(docs, docstore.Document{
			DeploymentID: deploymentID,
			Name:         metric.Name,
			Kind:         "metric",
			Content:      manifest.MetricDDL(metric),
		})
	}
	for _, view := range manifest.Views {
		docs = append(docs, docstore.Document{
			DeploymentID: deploymentID,
			Name:         view.Name,
			Kind:         "view",
			Content:      manifest.ViewDDL(view),
		})
	}
	return docs
}
