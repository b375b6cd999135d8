package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/querypilot/querypilot/internal/observability"
)

// ErrStopped is returned when a checkpoint reports the owning job was stopped
// before the next stage started.
var ErrStopped = errors.New("pipeline stopped")

// Values carries named stage outputs (and seed inputs) through a run.
type Values map[string]any

// CheckpointFunc is consulted between stages; returning true aborts the run
// with ErrStopped. It is never invoked while a stage call is in flight.
type CheckpointFunc func(ctx context.Context) (bool, error)

// Stage is one named async step. Needs lists the value names that must be
// present before Run starts: either another stage's name or a seed input.
type Stage struct {
	Name string
	Need []string
	Run  func(ctx context.Context, in Values) (any, error)
}

// Pipeline executes stages as a dependency graph, running independent stages
// concurrently. A stage failure cancels the remaining stages and surfaces the
// first error.
type Pipeline struct {
	stages []Stage
}

func New(stages ...Stage) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}

	byName := make(map[string]Stage, len(stages))
	for _, stage := range stages {
		if stage.Name == "" {
			return nil, fmt.Errorf("stage name is required")
		}
		if stage.Run == nil {
			return nil, fmt.Errorf("stage %q has no run function", stage.Name)
		}
		if _, dup := byName[stage.Name]; dup {
			return nil, fmt.Errorf("duplicate stage name %q", stage.Name)
		}
		byName[stage.Name] = stage
	}
	if err := checkAcyclic(byName); err != nil {
		return nil, err
	}

	return &Pipeline{stages: stages}, nil
}

// Execute runs the graph to completion. Seed values satisfy dependencies that
// are not stage names. The returned Values holds the seeds plus every stage
// output keyed by stage name.
func (p *Pipeline) Execute(ctx context.Context, seed Values, checkpoint CheckpointFunc) (Values, error) {
	stageNames := make(map[string]struct{}, len(p.stages))
	for _, stage := range p.stages {
		stageNames[stage.Name] = struct{}{}
	}
	for _, stage := range p.stages {
		for _, need := range stage.Need {
			if _, ok := stageNames[need]; ok {
				continue
			}
			if _, ok := seed[need]; !ok {
				return nil, fmt.Errorf("stage %q needs %q, which is neither a stage nor a seed value", stage.Name, need)
			}
		}
	}

	var mu sync.Mutex
	results := make(Values, len(seed)+len(p.stages))
	for name, value := range seed {
		results[name] = value
	}

	done := make(map[string]chan struct{}, len(p.stages))
	for _, stage := range p.stages {
		done[stage.Name] = make(chan struct{})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, stage := range p.stages {
		g.Go(func() error {
			for _, need := range stage.Need {
				ch, ok := done[need]
				if !ok {
					continue
				}
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-ch:
				}
			}

			if checkpoint != nil {
				stopped, err := checkpoint(gctx)
				if err != nil {
					return fmt.Errorf("checkpoint before stage %q: %w", stage.Name, err)
				}
				if stopped {
					return ErrStopped
				}
			}

			mu.Lock()
			in := make(Values, len(results))
			for name, value := range results {
				in[name] = value
			}
			mu.Unlock()

			start := time.Now()
			out, err := stage.Run(gctx, in)
			observability.ObservePipelineStage(stage.Name, time.Since(start))
			if err != nil {
				return fmt.Errorf("stage %q: %w", stage.Name, err)
			}

			mu.Lock()
			results[stage.Name] = out
			mu.Unlock()
			close(done[stage.Name])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func checkAcyclic(stages map[string]Stage) error {
	const (
		unvisited = 0
		visiting  = 1
		finished  = 2
	)
	state := make(map[string]int, len(stages))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("stage dependency cycle through %q", name)
		case finished:
			return nil
		}
		state[name] = visiting
		for _, need := range stages[name].Need {
			if _, ok := stages[need]; !ok {
				continue
			}
			if err := visit(need); err != nil {
				return err
			}
		}
		state[name] = finished
		return nil
	}

	for name := range stages {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}
