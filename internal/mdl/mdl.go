// Package mdl models the semantic Model Definition Language document that
// callers deploy alongside their questions. The manifest is treated as
// opaque user data except for parsing and rendering into DDL-style context
// strings for indexing and prompting.
package mdl

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Manifest struct {
	Catalog       string         `json:"catalog,omitempty"`
	Schema        string         `json:"schema,omitempty"`
	Models        []Model        `json:"models"`
	Relationships []Relationship `json:"relationships,omitempty"`
	Metrics       []Metric       `json:"metrics,omitempty"`
	Views         []View         `json:"views,omitempty"`
}

type Model struct {
	Name           string            `json:"name"`
	TableReference string            `json:"tableReference,omitempty"`
	RefSQL         string            `json:"refSql,omitempty"`
	Columns        []Column          `json:"columns"`
	PrimaryKey     string            `json:"primaryKey,omitempty"`
	Properties     map[string]string `json:"properties,omitempty"`
}

type Column struct {
	Name         string            `json:"name"`
	Type         string            `json:"type,omitempty"`
	Expression   string            `json:"expression,omitempty"`
	Relationship string            `json:"relationship,omitempty"`
	IsCalculated bool              `json:"isCalculated,omitempty"`
	NotNull      bool              `json:"notNull,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`
}

type Relationship struct {
	Name      string   `json:"name"`
	Models    []string `json:"models"`
	JoinType  string   `json:"joinType"`
	Condition string   `json:"condition"`
}

type Metric struct {
	Name       string   `json:"name"`
	BaseObject string   `json:"baseObject"`
	Dimensions []Column `json:"dimension,omitempty"`
	Measures   []Column `json:"measure,omitempty"`
}

type View struct {
	Name       string            `json:"name"`
	Statement  string            `json:"statement"`
	Properties map[string]string `json:"properties,omitempty"`
}

func Parse(raw []byte) (Manifest, error) {
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("parse mdl manifest: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

func (m Manifest) Validate() error {
	if len(m.Models) == 0 {
		return fmt.Errorf("mdl manifest has no models")
	}
	seen := make(map[string]struct{}, len(m.Models))
	for _, model := range m.Models {
		if strings.TrimSpace(model.Name) == "" {
			return fmt.Errorf("mdl model with empty name")
		}
		if _, dup := seen[model.Name]; dup {
			return fmt.Errorf("duplicate mdl model %q", model.Name)
		}
		seen[model.Name] = struct{}{}
		if len(model.Columns) == 0 {
			return fmt.Errorf("mdl model %q has no columns", model.Name)
		}
		columns := make(map[string]struct{}, len(model.Columns))
		for _, column := range model.Columns {
			if strings.TrimSpace(column.Name) == "" {
				return fmt.Errorf("mdl model %q has a column with empty name", model.Name)
			}
			if _, dup := columns[column.Name]; dup {
				return fmt.Errorf("mdl model %q has duplicate column %q", model.Name, column.Name)
			}
			columns[column.Name] = struct{}{}
		}
	}
	for _, rel := range m.Relationships {
		if len(rel.Models) != 2 {
			return fmt.Errorf("mdl relationship %q must reference exactly two models", rel.Name)
		}
		for _, name := range rel.Models {
			if _, ok := seen[name]; !ok {
				return fmt.Errorf("mdl relationship %q references unknown model %q", rel.Name, name)
			}
		}
	}
	return nil
}

// ModelDDL renders one model as a commented CREATE TABLE statement, the
// context unit handed to the embedder and the generation prompt.
func (m Manifest) ModelDDL(model Model) string {
	var b strings.Builder
	if description := model.Properties["description"]; description != "" {
		fmt.Fprintf(&b, "-- %s\n", description)
	}
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", model.Name)

	lines := make([]string, 0, len(model.Columns)+1)
	for _, column := range model.Columns {
		if column.Relationship != "" {
			continue
		}
		line := "  " + column.Name
		if column.Type != "" {
			line += " " + strings.ToUpper(column.Type)
		}
		if column.NotNull {
			line += " NOT NULL"
		}
		if description := column.Properties["description"]; description != "" {
			line += " -- " + description
		}
		lines = append(lines, line)
	}
	if model.PrimaryKey != "" {
		lines = append(lines, "  PRIMARY KEY ("+model.PrimaryKey+")")
	}
	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n)")

	for _, rel := range m.Relationships {
		if rel.Models[0] != model.Name && rel.Models[1] != model.Name {
			continue
		}
		fmt.Fprintf(&b, "\n-- relationship %s: %s %s ON %s", rel.Name, strings.Join(rel.Models, " <-> "), rel.JoinType, rel.Condition)
	}
	return b.String()
}

func (m Manifest) MetricDDL(metric Metric) string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- metric over %s\nCREATE VIEW %s AS SELECT\n", metric.BaseObject, metric.Name)
	lines := make([]string, 0, len(metric.Dimensions)+len(metric.Measures))
	for _, dim := range metric.Dimensions {
		lines = append(lines, "  "+dim.Name+" -- dimension")
	}
	for _, measure := range metric.Measures {
		line := "  " + measure.Name + " -- measure"
		if measure.Expression != "" {
			line = "  " + measure.Expression + " AS " + measure.Name + " -- measure"
		}
		lines = append(lines, line)
	}
	b.WriteString(strings.Join(lines, ",\n"))
	fmt.Fprintf(&b, "\nFROM %s", metric.BaseObject)
	return b.String()
}

func (m Manifest) ViewDDL(view View) string {
	return fmt.Sprintf("CREATE VIEW %s AS %s", view.Name, view.Statement)
}
