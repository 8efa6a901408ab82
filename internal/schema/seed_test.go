package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSeedFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
}

func TestLoadSeedDir_MergesFilesInLexicalOrder(t *testing.T) {
	dir := t.TempDir()
	writeSeedFile(t, dir, "00_types.yaml", `
version: "9.9.9"
types:
  - name: rp_provision
    kind: anchor
    attributes:
      - name: restricts_ip_transfer
        value_kind: boolean
`)
	writeSeedFile(t, dir, "10_ontology.yaml", `
categories:
  - name: jcrew_protections
    order: 1
    provision_type: rp_provision
questions:
  - question_id: q_rp_020
    text: Does the provision restrict IP transfers?
    category: jcrew_protections
    question_order: 1
    target_attribute: restricts_ip_transfer
`)
	writeSeedFile(t, dir, "notes.txt", "ignored")

	seed, err := LoadSeedDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seed.Version != "9.9.9" {
		t.Fatalf("expected version 9.9.9, got %s", seed.Version)
	}
	if len(seed.Types) != 1 || len(seed.Questions) != 1 || len(seed.Categories) != 1 {
		t.Fatalf("unexpected merge: %d types, %d questions, %d categories",
			len(seed.Types), len(seed.Questions), len(seed.Categories))
	}
}

func TestLoadSeedDir_MissingVersionFails(t *testing.T) {
	dir := t.TempDir()
	writeSeedFile(t, dir, "00_types.yaml", `
types:
  - name: rp_provision
    kind: anchor
`)
	if _, err := LoadSeedDir(dir); err == nil {
		t.Fatalf("expected error for seed without version")
	}
}

func TestSeedPattern_ConditionJSONRoundTrips(t *testing.T) {
	dir := t.TempDir()
	writeSeedFile(t, dir, "30_patterns.yaml", `
version: "1"
patterns:
  - pattern_id: jcrew_vulnerable
    label: Vulnerable
    severity: high
    condition:
      all:
        - fact:
            field: q_rp_020
            equals: false
        - not:
            pattern: jcrew_blocker_present
`)
	seed, err := LoadSeedDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seed.Patterns) != 1 {
		t.Fatalf("expected one pattern, got %d", len(seed.Patterns))
	}
	raw, err := seed.Patterns[0].ConditionJSON()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, fragment := range []string{`"all"`, `"field":"q_rp_020"`, `"pattern":"jcrew_blocker_present"`} {
		if !strings.Contains(raw, fragment) {
			t.Fatalf("condition JSON missing %s: %s", fragment, raw)
		}
	}
}
