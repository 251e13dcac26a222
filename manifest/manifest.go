// Package manifest loads declarative tool definitions from YAML and binds
// them to Go handlers.
//
// A manifest keeps names, descriptions, and JSON Schemas in one document that
// non-Go reviewers can audit; the behavior stays in code as a Handler per
// declared name:
//
//	tools:
//	  - name: multiply
//	    description: Multiplies two integers.
//	    schema:
//	      type: object
//	      properties:
//	        firstInt: {type: integer}
//	        secondInt: {type: integer}
//	      required: [firstInt, secondInt]
//	    timeout: 5s
//	    tags: [math]
package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skosovsky/dispatchy"
)

// Decl is one declared tool.
type Decl struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Schema      map[string]any `yaml:"schema"`
	Timeout     string         `yaml:"timeout"`
	Tags        []string       `yaml:"tags"`
	Dangerous   bool           `yaml:"dangerous"`
	Strict      bool           `yaml:"strict"`
}

// Manifest is a set of tool declarations.
type Manifest struct {
	Tools []Decl `yaml:"tools"`
}

// Handler executes one declared tool. It receives the schema-validated raw
// JSON argument object and returns the JSON-encoded result.
type Handler func(ctx context.Context, argsJSON []byte) ([]byte, error)

// Load parses and validates a manifest from r. Unknown YAML fields are
// rejected so typos in declarations fail loudly.
func Load(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadFile parses and validates the manifest at path.
func LoadFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

func (m *Manifest) validate() error {
	if len(m.Tools) == 0 {
		return errors.New("manifest: no tools declared")
	}
	seen := make(map[string]struct{}, len(m.Tools))
	for i, d := range m.Tools {
		if d.Name == "" {
			return fmt.Errorf("manifest: tool at index %d has no name", i)
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("manifest: duplicate tool %q", d.Name)
		}
		seen[d.Name] = struct{}{}
		if len(d.Schema) == 0 {
			return fmt.Errorf("manifest: tool %q has no schema", d.Name)
		}
		if d.Timeout != "" {
			if _, err := time.ParseDuration(d.Timeout); err != nil {
				return fmt.Errorf("manifest: tool %q: bad timeout %q: %w", d.Name, d.Timeout, err)
			}
		}
	}
	return nil
}

// Build constructs the dynamic tool for this declaration with fn as its handler.
func (d Decl) Build(fn Handler) (dispatchy.Tool, error) {
	var opts []dispatchy.ToolOption
	if d.Timeout != "" {
		timeout, err := time.ParseDuration(d.Timeout)
		if err != nil {
			return nil, fmt.Errorf("manifest: tool %q: bad timeout %q: %w", d.Name, d.Timeout, err)
		}
		opts = append(opts, dispatchy.WithTimeout(timeout))
	}
	if len(d.Tags) > 0 {
		opts = append(opts, dispatchy.WithTags(d.Tags...))
	}
	if d.Dangerous {
		opts = append(opts, dispatchy.WithDangerous())
	}
	if d.Strict {
		opts = append(opts, dispatchy.WithStrict())
	}
	return dispatchy.NewDynamicTool(d.Name, d.Description, d.Schema, fn, opts...)
}

// Register builds a dynamic tool for every declaration in m and registers the
// lot on reg. The binding must be exact: a declaration without a handler, or
// a handler without a declaration, fails before anything is registered.
func Register(reg *dispatchy.Registry, m *Manifest, handlers map[string]Handler) error {
	declared := make(map[string]struct{}, len(m.Tools))
	var missing []string
	for _, d := range m.Tools {
		declared[d.Name] = struct{}{}
		if _, ok := handlers[d.Name]; !ok {
			missing = append(missing, d.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("manifest: no handler for declared tool(s): %s", strings.Join(missing, ", "))
	}

	var extra []string
	for name := range handlers {
		if _, ok := declared[name]; !ok {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		slices.Sort(extra)
		return fmt.Errorf("manifest: handler(s) without declaration: %s", strings.Join(extra, ", "))
	}

	tools := make([]dispatchy.Tool, 0, len(m.Tools))
	for _, d := range m.Tools {
		t, err := d.Build(handlers[d.Name])
		if err != nil {
			return err
		}
		tools = append(tools, t)
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}
