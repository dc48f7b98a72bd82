// Package messages renders chat messages from YAML template files.
//
// Each file holds one template group named after the file (without .yaml), and
// maps message keys to text/template strings interpolated with named parameters.
package messages

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var defaultTemplates embed.FS

// ErrUnknownMessage is returned when the catalog has no template for a (group, key).
var ErrUnknownMessage = errors.New("unknown message")

// Catalog holds parsed templates keyed by (group, key).
type Catalog struct {
	groups map[string]map[string]*template.Template
}

// Default returns a catalog with the built-in templates.
func Default() (*Catalog, error) {
	c := &Catalog{groups: make(map[string]map[string]*template.Template)}
	if err := c.loadFS(defaultTemplates, "templates"); err != nil {
		return nil, err
	}
	return c, nil
}

// Load returns the built-in templates overridden by any YAML files in dir.
// An empty dir returns the defaults only.
func Load(dir string) (*Catalog, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return c, nil
	}
	if err := c.loadFS(os.DirFS(dir), "."); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) loadFS(fsys fs.FS, dir string) error {
	names, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", name, err)
		}

		var raw map[string]string
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		group := strings.TrimSuffix(path.Base(name), ".yaml")
		if err := c.add(group, raw); err != nil {
			return fmt.Errorf("template %s: %w", name, err)
		}
	}

	return nil
}

func (c *Catalog) add(group string, raw map[string]string) error {
	tmpls, ok := c.groups[group]
	if !ok {
		tmpls = make(map[string]*template.Template, len(raw))
		c.groups[group] = tmpls
	}

	for key, text := range raw {
		t, err := template.New(group + "/" + key).Option("missingkey=error").Parse(text)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", key, err)
		}
		tmpls[key] = t
	}

	return nil
}

// Render executes the template for (group, key) with params.
// Returns ErrUnknownMessage if the catalog has no such template.
func (c *Catalog) Render(group, key string, params map[string]any) (string, error) {
	t, ok := c.groups[group][key]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrUnknownMessage, group, key)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("failed to render %s/%s: %w", group, key, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

// Groups returns the sorted group names.
func (c *Catalog) Groups() []string {
	groups := make([]string, 0, len(c.groups))
	for g := range c.groups {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// Keys returns the sorted message keys of a group.
func (c *Catalog) Keys(group string) []string {
	keys := make([]string, 0, len(c.groups[group]))
	for k := range c.groups[group] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
