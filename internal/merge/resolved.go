package merge

import (
	"sort"
	"strings"

	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/placeholder"
	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/provenance"
)

// TrackProvenanceKey toggles serialization of the PROVENANCE section in
// the experiment document. The in-memory tracker always runs regardless;
// this only controls output.
const TrackProvenanceKey = "CONFIG.TRACK_PROVENANCE"

// Resolved is the fully merged and resolved configuration. It is frozen:
// nothing mutates it after Finalize, so rendering and serialization can
// share it freely.
type Resolved struct {
	values  map[string]any
	tracker *provenance.Tracker
	safe    placeholder.SafeSet
	sources []string
}

// Get returns the value at a dotted key path.
func (r *Resolved) Get(path string) (any, bool) {
	v, ok := r.values[path]
	return v, ok
}

// GetString returns the stringified value at a dotted key path.
func (r *Resolved) GetString(path string) (string, bool) {
	v, ok := r.values[path]
	if !ok {
		return "", false
	}
	return Stringify(v), true
}

// Has reports whether a key path exists.
func (r *Resolved) Has(path string) bool {
	_, ok := r.values[path]
	return ok
}

// Bool reads a boolean key, returning def when absent or not a bool.
func (r *Resolved) Bool(path string, def bool) bool {
	if v, ok := r.values[path].(bool); ok {
		return v
	}
	return def
}

// Int reads an integer key, returning def when absent or not numeric.
func (r *Resolved) Int(path string, def int) int {
	switch v := r.values[path].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Len returns the number of resolved key paths.
func (r *Resolved) Len() int {
	return len(r.values)
}

// Paths returns every key path, sorted.
func (r *Resolved) Paths() []string {
	paths := make([]string, 0, len(r.values))
	for p := range r.values {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Sources returns the fragment identifiers in load order.
func (r *Resolved) Sources() []string {
	out := make([]string, len(r.sources))
	copy(out, r.sources)
	return out
}

// Provenance returns the tracker describing this configuration. Exactly
// one entry exists per key path.
func (r *Resolved) Provenance() *provenance.Tracker {
	return r.tracker
}

// SafePlaceholders returns the effective safe set, including names the
// merged data listed under SAFE_PLACEHOLDERS.
func (r *Resolved) SafePlaceholders() placeholder.SafeSet {
	return r.safe
}

// Lookup adapts the resolved configuration for placeholder substitution.
func (r *Resolved) Lookup() placeholder.Lookup {
	return func(key string) (string, bool) {
		return r.GetString(key)
	}
}

// TrackProvenance reports whether the experiment document should carry the
// PROVENANCE section. Defaults to true when CONFIG.TRACK_PROVENANCE is
// absent.
func (r *Resolved) TrackProvenance() bool {
	return r.Bool(TrackProvenanceKey, true)
}

// Nested rebuilds the hierarchical mapping from the flat key paths, for
// YAML serialization. The merge write discipline guarantees no path is
// both a leaf and a branch.
func (r *Resolved) Nested() map[string]any {
	result := make(map[string]any)
	for _, path := range r.Paths() {
		keys := strings.Split(path, ".")
		current := result
		for _, key := range keys[:len(keys)-1] {
			next, ok := current[key].(map[string]any)
			if !ok {
				next = make(map[string]any)
				current[key] = next
			}
			current = next
		}
		current[keys[len(keys)-1]] = r.values[path]
	}
	return result
}
