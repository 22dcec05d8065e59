// ABOUTME: Archetype prompt registry: named roles (manager, merger, ...) mapped to system prompts.
// ABOUTME: Roles are YAML-loaded and merged over built-in defaults; prompts render through text/template.
package archetype

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Definition is one archetype's on-disk shape in archetypes.yaml.
type Definition struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"displayName"`
	// Prompt is executed as a text/template before use, so an archetype
	// definition may reference fields of the template data (currently none
	// are bound; a plain-text prompt round-trips unchanged).
	Prompt string `yaml:"prompt"`
}

// file is the top-level shape of archetypes.yaml.
type file struct {
	Archetypes []Definition `yaml:"archetypes"`
}

// DefaultArchetypeID names the built-in manager prompt, always present.
const DefaultArchetypeID = "manager"

// defaultManagerPrompt is the built-in system prompt for the manager role.
const defaultManagerPrompt = `You are the manager agent for this swarm. You coordinate worker
agents: decide what work to delegate, spawn workers for distinct subtasks, and report
results back to the human user. You are the only agent the human addresses directly.

When a worker reports back, decide whether its output is final or needs follow-up.
Narrate significant decisions so the human can follow along.`

// Registry resolves an archetypeId to a system prompt string.
type Registry struct {
	byID map[string]Definition
}

// Default returns a Registry containing only the built-in manager archetype.
func Default() *Registry {
	return &Registry{byID: map[string]Definition{
		DefaultArchetypeID: {ID: DefaultArchetypeID, DisplayName: "Manager", Prompt: defaultManagerPrompt},
	}}
}

// Load reads archetypes.yaml from path and merges its definitions into a
// Registry seeded with the built-in defaults; entries in the file override
// built-ins with the same id.
func Load(path string) (*Registry, error) {
	reg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return nil, fmt.Errorf("read archetypes file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse archetypes file: %w", err)
	}
	for _, def := range f.Archetypes {
		if def.ID == "" {
			return nil, fmt.Errorf("archetype definition missing id")
		}
		if _, err := template.New(def.ID).Parse(def.Prompt); err != nil {
			return nil, fmt.Errorf("archetype %q: parse prompt template: %w", def.ID, err)
		}
		reg.byID[def.ID] = def
	}
	return reg, nil
}

// Prompt returns the rendered system prompt for archetypeId, or an error if unknown.
func (r *Registry) Prompt(archetypeID string) (string, error) {
	def, ok := r.byID[archetypeID]
	if !ok {
		return "", fmt.Errorf("unknown archetype %q", archetypeID)
	}
	return render(def.Prompt)
}

// Has reports whether archetypeId is registered.
func (r *Registry) Has(archetypeID string) bool {
	_, ok := r.byID[archetypeID]
	return ok
}

// render compiles prompt as a text/template and executes it against an
// empty data set. A plain-text prompt with no template actions round-trips
// unchanged; a malformed template fails registry loading rather than
// surfacing a garbled prompt at dispatch time. The child consumes the
// result directly as developerInstructions text.
func render(prompt string) (string, error) {
	tmpl, err := template.New("archetype").Parse(prompt)
	if err != nil {
		return "", fmt.Errorf("parse archetype prompt template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{}{}); err != nil {
		return "", fmt.Errorf("render archetype prompt: %w", err)
	}
	return buf.String(), nil
}
