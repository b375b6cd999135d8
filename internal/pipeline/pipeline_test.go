package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecuteOrdersStagesByDependency(t *testing.T) {
	p, err := New(
		Stage{
			Name: "retrieve",
			Need: []string{"embed"},
			Run: func(_ context.Context, in Values) (any, error) {
				return in["embed"].(string) + "->retrieve", nil
			},
		},
		Stage{
			Name: "embed",
			Need: []string{"question"},
			Run: func(_ context.Context, in Values) (any, error) {
				return in["question"].(string) + "->embed", nil
			},
		},
		Stage{
			Name: "generate",
			Need: []string{"retrieve"},
			Run: func(_ context.Context, in Values) (any, error) {
				return in["retrieve"].(string) + "->generate", nil
			},
		},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	out, err := p.Execute(context.Background(), Values{"question": "q"}, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out["generate"] != "q->embed->retrieve->generate" {
		t.Fatalf("generate output = %v", out["generate"])
	}
}

func TestExecuteRunsIndependentStagesConcurrently(t *testing.T) {
	var running atomic.Int32
	var peak atomic.Int32

	slowStage := func(name string) Stage {
		return Stage{
			Name: name,
			Run: func(ctx context.Context, _ Values) (any, error) {
				current := running.Add(1)
				for {
					observed := peak.Load()
					if current <= observed || peak.CompareAndSwap(observed, current) {
						break
					}
				}
				defer running.Add(-1)
				select {
				case <-time.After(50 * time.Millisecond):
					return name, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
		}
	}

	p, err := New(slowStage("a"), slowStage("b"), slowStage("c"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := p.Execute(context.Background(), nil, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if peak.Load() < 2 {
		t.Fatalf("peak concurrency = %d, want >= 2", peak.Load())
	}
}

func TestExecutePropagatesStageFailure(t *testing.T) {
	var downstream atomic.Bool

	p, err := New(
		Stage{
			Name: "explode",
			Run: func(context.Context, Values) (any, error) {
				return nil, fmt.Errorf("provider unavailable")
			},
		},
		Stage{
			Name: "after",
			Need: []string{"explode"},
			Run: func(context.Context, Values) (any, error) {
				downstream.Store(true)
				return nil, nil
			},
		},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = p.Execute(context.Background(), nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != `stage "explode": provider unavailable` {
		t.Fatalf("error = %q", got)
	}
	if downstream.Load() {
		t.Fatal("dependent stage ran after failure")
	}
}

func TestExecuteStopsAtCheckpoint(t *testing.T) {
	var calls atomic.Int32

	p, err := New(
		Stage{
			Name: "first",
			Run: func(context.Context, Values) (any, error) {
				calls.Add(1)
				return "ok", nil
			},
		},
		Stage{
			Name: "second",
			Need: []string{"first"},
			Run: func(context.Context, Values) (any, error) {
				calls.Add(1)
				return "ok", nil
			},
		},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var checkpoints atomic.Int32
	_, err = p.Execute(context.Background(), nil, func(context.Context) (bool, error) {
		// Let the first stage through, stop before the second.
		return checkpoints.Add(1) > 1, nil
	})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("stage calls = %d", calls.Load())
	}
}

func TestNewRejectsCyclesAndDuplicates(t *testing.T) {
	_, err := New(
		Stage{Name: "a", Need: []string{"b"}, Run: func(context.Context, Values) (any, error) { return nil, nil }},
		Stage{Name: "b", Need: []string{"a"}, Run: func(context.Context, Values) (any, error) { return nil, nil }},
	)
	if err == nil {
		t.Fatal("cycle should be rejected")
	}

	_, err = New(
		Stage{Name: "a", Run: func(context.Context, Values) (any, error) { return nil, nil }},
		Stage{Name: "a", Run: func(context.Context, Values) (any, error) { return nil, nil }},
	)
	if err == nil {
		t.Fatal("duplicate names should be rejected")
	}
}

func TestExecuteRejectsUnsatisfiableDependency(t *testing.T) {
	p, err := New(
		Stage{Name: "solo", Need: []string{"missing"}, Run: func(context.Context, Values) (any, error) { return nil, nil }},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := p.Execute(context.Background(), nil, nil); err == nil {
		t.Fatal("missing seed dependency should be rejected")
	}
}
