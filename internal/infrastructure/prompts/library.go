// Package prompts loads the named prompt templates used by the answer
// pipeline and the ingestion worker.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Library renders templates by name. It is safe for concurrent use.
type Library struct {
	templates map[string]*template.Template
}

// Default returns the built-in library.
func Default() (*Library, error) {
	return Parse(defaultPrompts)
}

// Load reads overrides from path and layers them over the built-in prompts.
// An empty path returns the defaults.
func Load(path string) (*Library, error) {
	lib, err := Default()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return lib, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	overrides, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	for name, tmpl := range overrides.templates {
		lib.templates[name] = tmpl
	}
	return lib, nil
}

func Parse(raw []byte) (*Library, error) {
	var sources map[string]string
	if err := yaml.Unmarshal(raw, &sources); err != nil {
		return nil, fmt.Errorf("parse prompts yaml: %w", err)
	}
	lib := &Library{templates: make(map[string]*template.Template, len(sources))}
	for name, text := range sources {
		tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %q: %w", name, err)
		}
		lib.templates[name] = tmpl
	}
	return lib, nil
}

func (l *Library) Render(name string, data any) (string, error) {
	tmpl, ok := l.templates[name]
	if !ok {
		return "", fmt.Errorf("prompt %q not found", name)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// Names lists the loaded template names in order.
func (l *Library) Names() []string {
	out := make([]string, 0, len(l.templates))
	for name := range l.templates {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
