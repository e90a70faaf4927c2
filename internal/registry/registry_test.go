package registry

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"worker-cli/internal/approval"
	"worker-cli/internal/attachments"
	"worker-cli/internal/sandbox"
)

func testDefinition(name string) *Definition {
	return &Definition{
		Name:         name,
		Instructions: "Summarize ${topic} for the caller.",
		Model:        "test-model",
		Sandboxes: map[string]sandbox.Config{
			"in": {Root: "/data/in", Mode: sandbox.ModeReadOnly},
		},
		AttachmentPolicy: &attachments.Policy{MaxCount: 2, MaxBytes: 1024},
		ToolRules: map[string]approval.Rule{
			"sandbox_write": {Allowed: true, ApprovalRequired: true, Description: "write output files"},
		},
		AllowWorkers: []string{"helper"},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	r := New(t.TempDir())
	def := testDefinition("summarizer")
	if err := r.Save(def, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := r.Load("summarizer")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(def, loaded) {
		t.Fatalf("round trip mismatch:\nsaved:  %+v\nloaded: %+v", def, loaded)
	}
}

func TestLoadNotFoundSuggests(t *testing.T) {
	r := New(t.TempDir())
	if err := r.Save(testDefinition("evaluator"), false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_, err := r.Load("evaluater")
	var notFound NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if len(notFound.Suggestions) == 0 || notFound.Suggestions[0] != "evaluator" {
		t.Fatalf("expected suggestion, got %v", notFound.Suggestions)
	}
}

func TestLoadRejectsBadDocuments(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)

	cases := []struct {
		name string
		body string
	}{
		{"broken", "instructions: [unclosed"},
		{"noinstructions", "name: noinstructions\n"},
		{"renamed", "name: other\ninstructions: hi\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := os.WriteFile(filepath.Join(dir, tc.name+".yaml"), []byte(tc.body), 0o644); err != nil {
				t.Fatalf("seed: %v", err)
			}
			_, err := r.Load(tc.name)
			var parseErr ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
		})
	}
}

func TestSaveLockedRequiresForce(t *testing.T) {
	r := New(t.TempDir())
	def := testDefinition("evaluator")
	if err := r.Save(def, false); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Lock it the way a host author would: via a forced save.
	def.Locked = true
	if err := r.Save(def, true); err != nil {
		t.Fatalf("Save(force): %v", err)
	}

	replacement := testDefinition("evaluator")
	replacement.Instructions = "replaced"
	err := r.Save(replacement, false)
	var locked LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError, got %v", err)
	}

	if err := r.Save(replacement, true); err != nil {
		t.Fatalf("Save(force) over locked: %v", err)
	}
	loaded, err := r.Load("evaluator")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Instructions != "replaced" {
		t.Fatalf("forced save did not take: %q", loaded.Instructions)
	}
}

func TestSaveNewDefinitionStartsUnlocked(t *testing.T) {
	r := New(t.TempDir())
	def := testDefinition("fresh")
	def.Locked = true
	if err := r.Save(def, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := r.Load("fresh")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Locked {
		t.Fatalf("new definition persisted locked")
	}
}

func TestListSorted(t *testing.T) {
	r := New(t.TempDir())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Save(testDefinition(name), false); err != nil {
			t.Fatalf("Save(%s): %v", name, err)
		}
	}
	names, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("List = %v, want %v", names, want)
	}
}

func TestRenderInstructions(t *testing.T) {
	def := testDefinition("summarizer")
	got := def.RenderInstructions(map[string]string{"topic": "tides"})
	if !strings.Contains(got, "tides") {
		t.Fatalf("substitution missed: %q", got)
	}
	// Unsupplied placeholders stay verbatim.
	got = def.RenderInstructions(map[string]string{"other": "x"})
	if !strings.Contains(got, "${topic}") {
		t.Fatalf("unknown placeholder rewritten: %q", got)
	}
}

func TestValidateRejectsBadAllowList(t *testing.T) {
	def := testDefinition("summarizer")
	def.AllowWorkers = []string{"../escape"}
	if err := def.Validate(); err == nil {
		t.Fatalf("expected validation error for allow_workers entry")
	}
}

func TestReadSchemaStaysInRoot(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)
	if err := os.WriteFile(filepath.Join(dir, "out.schema.json"), []byte(`{"type":"object"}`), 0o644); err != nil {
		t.Fatalf("seed schema: %v", err)
	}
	if _, err := r.ReadSchema("out.schema.json"); err != nil {
		t.Fatalf("ReadSchema: %v", err)
	}
	if _, err := r.ReadSchema("../out.schema.json"); err == nil {
		t.Fatalf("expected rejection of escaping schema ref")
	}
}
