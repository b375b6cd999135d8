// Package duckdb validates candidate SQL against an in-memory DuckDB
// instance. The deployed models are materialized as empty tables so the
// planner can resolve names and types without touching real data.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/querypilot/querypilot/internal/engine"
	"github.com/querypilot/querypilot/internal/mdl"
)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Name() string { return "duckdb" }

func (v *Validator) DryRun(ctx context.Context, manifest mdl.Manifest, sqlText string) (engine.ValidationResult, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return engine.ValidationResult{Valid: false, Error: "sql is empty"}, nil
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return engine.ValidationResult{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	for _, model := range manifest.Models {
		ddl, err := materializeDDL(model)
		if err != nil {
			return engine.ValidationResult{}, err
		}
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return engine.ValidationResult{}, fmt.Errorf("materialize model %q: %w", model.Name, err)
		}
	}
	for _, view := range manifest.Views {
		statement := stripTrailingSemicolons(view.Statement)
		if statement == "" {
			continue
		}
		viewSQL := fmt.Sprintf(`CREATE VIEW %s AS %s`, quoteIdent(view.Name), statement)
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			return engine.ValidationResult{}, fmt.Errorf("materialize view %q: %w", view.Name, err)
		}
	}

	if _, err := db.ExecContext(ctx, "EXPLAIN "+sqlText); err != nil {
		return engine.ValidationResult{Valid: false, Error: err.Error()}, nil
	}
	return engine.ValidationResult{Valid: true}, nil
}

// materializeDDL builds an executable CREATE TABLE from a model.
// Relationship columns and calculated expressions are skipped, they do
// not exist on the physical table.
func materializeDDL(model mdl.Model) (string, error) {
	columns := make([]string, 0, len(model.Columns))
	for _, column := range model.Columns {
		if column.Relationship != "" || column.IsCalculated {
			continue
		}
		columns = append(columns, fmt.Sprintf("%s %s", quoteIdent(column.Name), mapColumnType(column.Type)))
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("model %q has no physical columns", model.Name)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(model.Name), strings.Join(columns, ", ")), nil
}

var safeTypePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\([0-9, ]+\))?$`)

// mapColumnType passes well-formed type names through and falls back to
// VARCHAR for anything DuckDB would choke on. Name resolution is what
// the dry run checks, not exact type fidelity.
func mapColumnType(typeName string) string {
	typeName = strings.TrimSpace(typeName)
	if typeName == "" || !safeTypePattern.MatchString(typeName) {
		return "VARCHAR"
	}
	return typeName
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

var _ engine.Validator = (*Validator)(nil)
