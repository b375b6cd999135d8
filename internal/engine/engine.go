// Package engine validates candidate SQL against the deployed schema
// before it is returned to callers. A validator either accepts the
// statement, rejects it with an engine error message, or fails when the
// engine itself is unreachable.
package engine

import (
	"context"

	"github.com/querypilot/querypilot/internal/mdl"
)

// ValidationResult reports the outcome of a dry run. Error carries the
// engine message when Valid is false.
type ValidationResult struct {
	Valid bool
	Error string
}

type Validator interface {
	DryRun(ctx context.Context, manifest mdl.Manifest, sql string) (ValidationResult, error)
	Name() string
}

// NoopValidator accepts every statement. Used when no engine is
// configured.
type NoopValidator struct{}

func (NoopValidator) DryRun(ctx context.Context, manifest mdl.Manifest, sql string) (ValidationResult, error) {
	return ValidationResult{Valid: true}, nil
}

func (NoopValidator) Name() string { return "none" }

var _ Validator = NoopValidator{}
