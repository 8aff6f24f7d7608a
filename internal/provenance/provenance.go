// Package provenance tracks which configuration fragment last supplied each
// resolved key path, and how the value was resolved.
//
// Entries live in a flat map keyed by dotted path (JOBS.SIM.WALLCLOCK) for
// O(1) access, with nested export/import for serialization alongside the
// resolved configuration. The tracker always holds the last writer only;
// overwritten history is not kept.
package provenance

import (
	"fmt"
	"sort"
	"time"
)

// Kind records how a key's final value came to be.
type Kind string

const (
	// KindDirect — the value was written as-is by its source fragment.
	KindDirect Kind = "direct"
	// KindImmediate — the value contained %KEY% tokens resolved against the
	// in-progress merge state of its source fragment.
	KindImmediate Kind = "immediate"
	// KindDeferred — the value contained %^KEY% tokens resolved against the
	// fully merged configuration.
	KindDeferred Kind = "deferred"
)

// Entry is the provenance record for a single key path: the fragment that
// last wrote the value, where in that fragment it appeared, and how the
// value was resolved. Line and Col are 1-indexed; zero means unavailable.
type Entry struct {
	Source    string
	Kind      Kind
	Line      int
	Col       int
	Timestamp time.Time
}

func (e Entry) String() string {
	loc := ""
	if e.Line > 0 {
		loc = fmt.Sprintf(":%d", e.Line)
		if e.Col > 0 {
			loc += fmt.Sprintf(":%d", e.Col)
		}
	}
	return fmt.Sprintf("%s%s (%s)", e.Source, loc, e.Kind)
}

// toMap converts an entry to its serialized mapping form. The "file" key
// doubles as the leaf marker during nested import. Timestamp is stored as
// unix seconds; line/col are omitted when unavailable.
func (e Entry) toMap() map[string]any {
	m := map[string]any{
		"file":      e.Source,
		"kind":      string(e.Kind),
		"timestamp": float64(e.Timestamp.UnixNano()) / float64(time.Second),
	}
	if e.Line > 0 {
		m["line"] = e.Line
	}
	if e.Col > 0 {
		m["col"] = e.Col
	}
	return m
}

// entryFromMap is the inverse of toMap. Unknown keys are ignored.
func entryFromMap(m map[string]any) Entry {
	e := Entry{}
	if v, ok := m["file"].(string); ok {
		e.Source = v
	}
	if v, ok := m["kind"].(string); ok {
		e.Kind = Kind(v)
	} else {
		e.Kind = KindDirect
	}
	e.Line = intField(m, "line")
	e.Col = intField(m, "col")
	if ts, ok := floatField(m, "timestamp"); ok {
		e.Timestamp = time.Unix(0, int64(ts*float64(time.Second)))
	}
	return e
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func floatField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Tracker is the authoritative map from resolved key path to provenance
// entry. The merge builder updates it in the same step as every value
// write, so it can never drift from the configuration it describes.
//
// The merge pipeline is strictly single-threaded; the tracker carries no
// locking of its own.
type Tracker struct {
	entries map[string]Entry
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]Entry)}
}

// Track records the provenance for a key path, overwriting any previous
// entry (last writer wins). A zero Timestamp is filled with the current
// time.
func (t *Tracker) Track(path string, e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	t.entries[path] = e
}

// SetKind upgrades the resolution kind of an existing entry, keeping the
// source untouched. Returns false if the path is not tracked.
func (t *Tracker) SetKind(path string, kind Kind) bool {
	e, ok := t.entries[path]
	if !ok {
		return false
	}
	e.Kind = kind
	t.entries[path] = e
	return true
}

// Get returns the entry for a key path.
func (t *Tracker) Get(path string) (Entry, bool) {
	e, ok := t.entries[path]
	return e, ok
}

// Delete removes the entry for a key path, if any. The merge builder calls
// this when a write shadows previously merged keys, keeping the tracker in
// lockstep with the configuration.
func (t *Tracker) Delete(path string) {
	delete(t.entries, path)
}

// Has reports whether a key path is tracked.
func (t *Tracker) Has(path string) bool {
	_, ok := t.entries[path]
	return ok
}

// Paths returns every tracked key path, sorted.
func (t *Tracker) Paths() []string {
	paths := make([]string, 0, len(t.entries))
	for p := range t.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of tracked key paths.
func (t *Tracker) Len() int {
	return len(t.entries)
}

// Clear drops all entries, resetting the tracker for a fresh assembly.
func (t *Tracker) Clear() {
	t.entries = make(map[string]Entry)
}

// ExportNested converts the flat map into a nested mapping mirroring the
// configuration hierarchy, each leaf holding the serialized entry. This is
// the shape written into the experiment document's PROVENANCE section.
func (t *Tracker) ExportNested() map[string]any {
	result := make(map[string]any)
	for _, path := range t.Paths() {
		keys := splitPath(path)
		current := result
		collided := false
		for _, key := range keys[:len(keys)-1] {
			next, ok := current[key]
			if !ok {
				child := make(map[string]any)
				current[key] = child
				current = child
				continue
			}
			child, ok := next.(map[string]any)
			if !ok {
				// A leaf entry already sits where this path needs a branch.
				// Cannot happen when the tracker mirrors a valid configuration.
				collided = true
				break
			}
			current = child
		}
		if !collided {
			current[keys[len(keys)-1]] = t.entries[path].toMap()
		}
	}
	return result
}

// ImportNested restores entries from the nested serialized form, the
// inverse of ExportNested. A mapping containing a "file" key is treated as
// a leaf entry; anything else recurses. Non-mapping values are ignored.
func (t *Tracker) ImportNested(nested map[string]any) {
	t.importNested(nested, "")
}

func (t *Tracker) importNested(nested map[string]any, prefix string) {
	for key, value := range nested {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		m, ok := toStringMap(value)
		if !ok {
			continue
		}
		if _, leaf := m["file"]; leaf {
			t.entries[path] = entryFromMap(m)
			continue
		}
		t.importNested(m, path)
	}
}

// toStringMap normalizes the two mapping shapes yaml.v3 can hand back.
func toStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	}
	return nil, false
}

func splitPath(path string) []string {
	var keys []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			keys = append(keys, path[start:i])
			start = i + 1
		}
	}
	return append(keys, path[start:])
}
