// ABOUTME: Tests for the archetype registry's default prompt and YAML-file override/merge behavior.
package archetype

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRegistryHasManager(t *testing.T) {
	reg := Default()
	if !reg.Has(DefaultArchetypeID) {
		t.Fatal("expected default registry to contain the manager archetype")
	}
	prompt, err := reg.Prompt(DefaultArchetypeID)
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if prompt == "" {
		t.Error("expected non-empty manager prompt")
	}
}

func TestPromptUnknownArchetypeErrors(t *testing.T) {
	reg := Default()
	if _, err := reg.Prompt("does-not-exist"); err == nil {
		t.Fatal("expected error for unknown archetype id")
	}
}

func TestLoadMergesAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archetypes.yaml")
	yaml := `archetypes:
  - id: merger
    displayName: Merger
    prompt: "You merge worker outputs into one coherent result."
  - id: manager
    displayName: Manager
    prompt: "Overridden manager prompt."
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !reg.Has("merger") {
		t.Error("expected merger archetype to be loaded")
	}
	prompt, err := reg.Prompt(DefaultArchetypeID)
	if err != nil {
		t.Fatalf("Prompt: %v", err)
	}
	if prompt != "Overridden manager prompt." {
		t.Errorf("expected file entry to override built-in manager prompt, got %q", prompt)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	reg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reg.Has(DefaultArchetypeID) {
		t.Error("expected defaults when file is missing")
	}
}
