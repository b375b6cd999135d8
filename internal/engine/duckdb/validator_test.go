package duckdb

import (
	"context"
	"testing"

	"github.com/querypilot/querypilot/internal/mdl"
)

func validatorManifest(t *testing.T) mdl.Manifest {
	t.Helper()
	manifest, err := mdl.Parse([]byte(`{
		"models": [
			{
				"name": "orders",
				"columns": [
					{"name": "id", "type": "INTEGER"},
					{"name": "customer_id", "type": "INTEGER"},
					{"name": "total", "type": "DOUBLE"},
					{"name": "customer", "relationship": "orders_customer"}
				]
			},
			{
				"name": "customers",
				"columns": [
					{"name": "id", "type": "INTEGER"},
					{"name": "name", "type": "VARCHAR"}
				]
			}
		],
		"relationships": [
			{
				"name": "orders_customer",
				"models": ["orders", "customers"],
				"joinType": "MANY_TO_ONE",
				"condition": "orders.customer_id = customers.id"
			}
		]
	}`))
	if err != nil {
		t.Fatalf("mdl.Parse() error = %v", err)
	}
	return manifest
}

func TestDryRunAcceptsResolvableSQL(t *testing.T) {
	validator := NewValidator()

	result, err := validator.DryRun(context.Background(), validatorManifest(t), `
SELECT c.name, SUM(o.total) AS revenue
FROM orders o
JOIN customers c ON o.customer_id = c.id
GROUP BY c.name;`)
	if err != nil {
		t.Fatalf("DryRun() error = %v", err)
	}
	if !result.Valid {
		t.Fatalf("result = %+v, want valid", result)
	}
}

func TestDryRunRejectsUnknownColumn(t *testing.T) {
	validator := NewValidator()

	result, err := validator.DryRun(context.Background(), validatorManifest(t), "SELECT discount FROM orders")
	if err != nil {
		t.Fatalf("DryRun() error = %v", err)
	}
	if result.Valid {
		t.Fatal("result should be invalid for unknown column")
	}
	if result.Error == "" {
		t.Fatal("result.Error should carry the planner message")
	}
}

func TestDryRunRejectsEmptySQL(t *testing.T) {
	validator := NewValidator()

	result, err := validator.DryRun(context.Background(), validatorManifest(t), "  ;; ")
	if err != nil {
		t.Fatalf("DryRun() error = %v", err)
	}
	if result.Valid {
		t.Fatal("result should be invalid for empty sql")
	}
}

func TestMaterializeDDLSkipsRelationshipColumns(t *testing.T) {
	manifest := validatorManifest(t)

	ddl, err := materializeDDL(manifest.Models[0])
	if err != nil {
		t.Fatalf("materializeDDL() error = %v", err)
	}
	want := `CREATE TABLE "orders" ("id" INTEGER, "customer_id" INTEGER, "total" DOUBLE)`
	if ddl != want {
		t.Fatalf("ddl = %q, want %q", ddl, want)
	}
}

func TestMapColumnTypeFallsBackToVarchar(t *testing.T) {
	cases := map[string]string{
		"INTEGER":       "INTEGER",
		"DECIMAL(10,2)": "DECIMAL(10,2)",
		"":              "VARCHAR",
		"weird; drop":   "VARCHAR",
	}
	for input, want := range cases {
		if got := mapColumnType(input); got != want {
			t.Fatalf("mapColumnType(%q) = %q, want %q", input, got, want)
		}
	}
}
