// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package templates

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danielhkuo/consensus-engine/models"
)

//go:embed builtin.yaml
var builtinYAML []byte

var ErrUnknownTemplate = errors.New("unknown template")

// Template is a named, ordered set of choices a proposal can be seeded with.
type Template struct {
	Name    string                  `yaml:"name" json:"name"`
	Title   string                  `yaml:"title" json:"title"`
	Choices []models.TemplateChoice `yaml:"choices" json:"choices"`
}

type file struct {
	Templates []Template `yaml:"templates"`
}

// Registry holds templates by name in definition order.
type Registry struct {
	byName map[string]Template
	order  []string
}

// Builtin returns a registry with only the embedded templates.
func Builtin() (*Registry, error) {
	r := &Registry{byName: map[string]Template{}}
	if err := r.add(builtinYAML); err != nil {
		return nil, fmt.Errorf("built-in templates: %w", err)
	}
	return r, nil
}

// Load returns the built-in templates extended by the YAML file at path.
// A template in the file replaces a built-in one with the same name.
// An empty path loads only the built-ins.
func Load(path string) (*Registry, error) {
	r, err := Builtin()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates: %w", err)
	}
	if err := r.add(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func (r *Registry) add(data []byte) error {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid template YAML: %w", err)
	}

	for _, t := range f.Templates {
		if err := validate(t); err != nil {
			return err
		}
		if _, exists := r.byName[t.Name]; !exists {
			r.order = append(r.order, t.Name)
		}
		r.byName[t.Name] = t
	}
	return nil
}

func validate(t Template) error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("template without a name")
	}
	if len(t.Choices) == 0 {
		return fmt.Errorf("template %q has no choices", t.Name)
	}
	for i, c := range t.Choices {
		if strings.TrimSpace(c.Text) == "" {
			return fmt.Errorf("template %q choice %d has no text", t.Name, i+1)
		}
	}
	return nil
}

func (r *Registry) Get(name string) (Template, error) {
	t, ok := r.byName[name]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	return t, nil
}

// Choices returns a copy of the named template's choices.
func (r *Registry) Choices(name string) ([]models.TemplateChoice, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	out := make([]models.TemplateChoice, len(t.Choices))
	copy(out, t.Choices)
	return out, nil
}

// List returns all templates in definition order.
func (r *Registry) List() []Template {
	out := make([]Template, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
