package cypher

import (
	"strings"
	"testing"
)

func TestStatementsSkipsComments(t *testing.T) {
	stmts := Statements("init_schema.cql")
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(stmts))
	}
	for _, s := range stmts {
		if strings.HasPrefix(s, "//") || !strings.HasPrefix(s, "CREATE") {
			t.Fatalf("unexpected statement %q", s)
		}
	}
}

func TestRenderLabelPattern(t *testing.T) {
	query := MustTemplate("upsert_nodes.cql", map[string]string{"LabelPattern": ":Item:StacNode"})
	if !strings.Contains(query, "SET n:Item:StacNode") {
		t.Fatalf("label pattern not rendered: %s", query)
	}
	if _, err := Render("missing.cql", nil); err == nil {
		t.Fatal("expected error for missing template")
	}
}
