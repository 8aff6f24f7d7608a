// Package fragment loads ordered configuration fragments from YAML sources.
//
// A fragment is one unit of configuration input, typically one file. Nested
// mappings are flattened into dotted key paths at load time, and every key
// keeps the line/column it was read from so provenance can point back into
// the source file. Load order is explicit state (the Index field), never
// incidental map iteration order.
package fragment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Key is one flattened configuration key contributed by a fragment.
// Line and Col are 1-indexed positions of the value in the source.
type Key struct {
	Path  string
	Value any
	Line  int
	Col   int
}

// Fragment is an immutable, ordered unit of configuration input. Keys hold
// the flattened dotted paths in document order.
type Fragment struct {
	Name  string
	Index int
	Keys  []Key
}

// FragmentFormatError reports fragment content that is not a valid mapping.
// It aborts the entire load; no partial configuration is produced.
type FragmentFormatError struct {
	Name   string
	Reason string
}

func (e *FragmentFormatError) Error() string {
	return fmt.Sprintf("fragment %s: %s", e.Name, e.Reason)
}

// Parse decodes a single fragment from raw YAML content. The document must
// be a mapping (or empty); anything else is a FragmentFormatError. The
// caller assigns Index.
func Parse(name string, data []byte) (*Fragment, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &FragmentFormatError{Name: name, Reason: fmt.Sprintf("invalid YAML: %v", err)}
	}

	frag := &Fragment{Name: name}

	// Empty documents contribute no keys but are not an error.
	if root.Kind == 0 || len(root.Content) == 0 {
		return frag, nil
	}

	doc := root.Content[0]
	if doc.Kind == yaml.ScalarNode && doc.Tag == "!!null" {
		return frag, nil
	}
	if doc.Kind != yaml.MappingNode {
		return nil, &FragmentFormatError{Name: name, Reason: "top-level content is not a mapping"}
	}

	if err := frag.flatten(doc, ""); err != nil {
		return nil, err
	}
	return frag, nil
}

// flatten walks a mapping node, appending dotted-path keys in document order.
func (f *Fragment) flatten(node *yaml.Node, prefix string) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		valueNode := node.Content[i+1]

		if keyNode.Kind != yaml.ScalarNode {
			return &FragmentFormatError{
				Name:   f.Name,
				Reason: fmt.Sprintf("non-scalar mapping key at line %d", keyNode.Line),
			}
		}

		path := keyNode.Value
		if prefix != "" {
			path = prefix + "." + path
		}

		// Aliases resolve to their anchor target before inspection.
		if valueNode.Kind == yaml.AliasNode && valueNode.Alias != nil {
			valueNode = valueNode.Alias
		}

		if valueNode.Kind == yaml.MappingNode {
			if err := f.flatten(valueNode, path); err != nil {
				return err
			}
			continue
		}

		var value any
		if err := valueNode.Decode(&value); err != nil {
			return &FragmentFormatError{
				Name:   f.Name,
				Reason: fmt.Sprintf("cannot decode value of %s: %v", path, err),
			}
		}
		f.Keys = append(f.Keys, Key{
			Path:  path,
			Value: value,
			Line:  valueNode.Line,
			Col:   valueNode.Column,
		})
	}
	return nil
}

// Load reads and parses one fragment file. The file path becomes the
// fragment's source identifier.
func Load(path string) (*Fragment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fragment: %w", err)
	}
	return Parse(path, data)
}

// LoadOrdered loads every path in the given order, assigning consecutive
// load indices. The first failure aborts the whole load.
func LoadOrdered(paths []string) ([]*Fragment, error) {
	fragments := make([]*Fragment, 0, len(paths))
	for i, path := range paths {
		frag, err := Load(path)
		if err != nil {
			return nil, err
		}
		frag.Index = i
		fragments = append(fragments, frag)
	}
	return fragments, nil
}

// DiscoverDir returns the YAML files directly under dir, sorted by name so
// the load order is deterministic across platforms.
func DiscoverDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list fragment directory: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yml" || ext == ".yaml" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
