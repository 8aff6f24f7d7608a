// Package merge folds ordered configuration fragments into a single
// resolved configuration with an attached provenance map.
//
// The Builder is explicit mutable state passed through the pipeline: each
// AddFragment call merges one fragment (last writer wins) and immediately
// runs the %KEY% substitution pass over the strings that fragment
// contributed, so immediate placeholders only ever see data merged up to
// and including their own fragment. Finalize runs the global %^KEY% pass
// against a snapshot of the fully merged state and freezes the result.
package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/fragment"
	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/placeholder"
	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/provenance"
)

// SafePlaceholdersKey is the configuration key whose list value extends the
// Safe-Placeholder Set for the deferred pass and template rendering.
const SafePlaceholdersKey = "SAFE_PLACEHOLDERS"

// ProvenanceInconsistencyError reports a key present in the configuration
// with no provenance entry, or the reverse. Either way it is an internal
// invariant violation, never expected in normal operation, and fatal.
type ProvenanceInconsistencyError struct {
	Path   string
	Reason string
}

func (e *ProvenanceInconsistencyError) Error() string {
	return fmt.Sprintf("provenance inconsistency at %s: %s", e.Path, e.Reason)
}

// Builder accumulates fragments in load order. It is not safe for
// concurrent use; the pipeline is strictly sequential because both
// last-writer-wins and immediate-placeholder semantics depend on order.
type Builder struct {
	values    map[string]any
	tracker   *provenance.Tracker
	safe      placeholder.SafeSet
	sources   []string
	finalized bool
}

// NewBuilder returns an empty builder. The safe set is fixed for the whole
// merge; a nil set means nothing is exempt.
func NewBuilder(safe placeholder.SafeSet) *Builder {
	if safe == nil {
		safe = placeholder.NewSafeSet()
	}
	return &Builder{
		values:  make(map[string]any),
		tracker: provenance.NewTracker(),
		safe:    safe,
	}
}

// AddFragment merges one fragment's keys into the configuration, records
// provenance for every key written, then runs the immediate substitution
// pass over the string values this fragment contributed.
func (b *Builder) AddFragment(frag *fragment.Fragment) error {
	if b.finalized {
		return fmt.Errorf("merge builder already finalized")
	}

	// Merge step: write values and provenance in lockstep, in document
	// order. Provenance starts as direct even for values that still hold
	// placeholder tokens; the resolution passes upgrade the kind later.
	touched := make([]string, 0, len(frag.Keys))
	seen := make(map[string]struct{}, len(frag.Keys))
	for _, key := range frag.Keys {
		b.write(key.Path, key.Value, provenance.Entry{
			Source: frag.Name,
			Kind:   provenance.KindDirect,
			Line:   key.Line,
			Col:    key.Col,
		})
		if _, dup := seen[key.Path]; !dup {
			seen[key.Path] = struct{}{}
			touched = append(touched, key.Path)
		}
	}

	// Immediate pass: only this fragment's strings, against the state as
	// merged so far. Each value is scanned exactly once.
	for _, path := range touched {
		s, ok := b.values[path].(string)
		if !ok {
			continue
		}
		res, err := placeholder.Substitute(s, placeholder.Immediate, b.lookup, b.safe, frag.Name)
		if err != nil {
			return err
		}
		if res.Substituted {
			b.values[path] = res.Text
			b.tracker.SetKind(path, provenance.KindImmediate)
		}
	}

	b.sources = append(b.sources, frag.Name)
	return nil
}

// write stores one key path, replacing value and provenance entry
// unconditionally. Writing a leaf also clears any entries the nested
// equivalent of this write would shadow: descendants of the path, and
// ancestor leaves the path now turns into mappings.
func (b *Builder) write(path string, value any, entry provenance.Entry) {
	prefix := path + "."
	for existing := range b.values {
		if strings.HasPrefix(existing, prefix) {
			delete(b.values, existing)
			b.tracker.Delete(existing)
		}
	}
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			ancestor := path[:i]
			if _, ok := b.values[ancestor]; ok {
				delete(b.values, ancestor)
				b.tracker.Delete(ancestor)
			}
		}
	}

	b.values[path] = value
	b.tracker.Track(path, entry)
}

func (b *Builder) lookup(key string) (string, bool) {
	v, ok := b.values[key]
	if !ok {
		return "", false
	}
	return Stringify(v), true
}

// Finalize runs the deferred substitution pass against a frozen snapshot
// of the merged state, verifies provenance consistency, and returns the
// immutable resolved configuration. The builder cannot be reused after.
func (b *Builder) Finalize() (*Resolved, error) {
	if b.finalized {
		return nil, fmt.Errorf("merge builder already finalized")
	}

	// SAFE_PLACEHOLDERS listed in the merged data join the safe set now.
	// They cannot retroactively affect immediate passes that already ran.
	safe := placeholder.NewSafeSet(b.safe.Names()...)
	for _, name := range stringList(b.values[SafePlaceholdersKey]) {
		safe.Add(name)
	}

	// Deferred lookups read the pre-pass snapshot so every %^KEY% resolves
	// against the state after all fragments merged, independent of the
	// order this loop rewrites values in.
	snapshot := make(map[string]any, len(b.values))
	for path, v := range b.values {
		snapshot[path] = v
	}
	lookup := func(key string) (string, bool) {
		v, ok := snapshot[key]
		if !ok {
			return "", false
		}
		return Stringify(v), true
	}

	paths := make([]string, 0, len(b.values))
	for path := range b.values {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		s, ok := b.values[path].(string)
		if !ok {
			continue
		}
		context := path
		if entry, ok := b.tracker.Get(path); ok {
			context = entry.Source
		}
		res, err := placeholder.Substitute(s, placeholder.Deferred, lookup, safe, context)
		if err != nil {
			return nil, err
		}
		if res.Substituted {
			b.values[path] = res.Text
			b.tracker.SetKind(path, provenance.KindDeferred)
		}
	}

	if err := b.verify(); err != nil {
		return nil, err
	}

	b.finalized = true
	return &Resolved{
		values:  b.values,
		tracker: b.tracker,
		safe:    safe,
		sources: b.sources,
	}, nil
}

// verify checks the configuration and the provenance map describe exactly
// the same key set.
func (b *Builder) verify() error {
	for path := range b.values {
		if !b.tracker.Has(path) {
			return &ProvenanceInconsistencyError{Path: path, Reason: "key has no provenance entry"}
		}
	}
	if b.tracker.Len() != len(b.values) {
		for _, path := range b.tracker.Paths() {
			if _, ok := b.values[path]; !ok {
				return &ProvenanceInconsistencyError{Path: path, Reason: "provenance entry has no key"}
			}
		}
	}
	return nil
}

// Assemble is the one-shot pipeline: merge every fragment in order, then
// finalize.
func Assemble(fragments []*fragment.Fragment, safe placeholder.SafeSet) (*Resolved, error) {
	builder := NewBuilder(safe)
	for _, frag := range fragments {
		if err := builder.AddFragment(frag); err != nil {
			return nil, err
		}
	}
	return builder.Finalize()
}

// Stringify renders a configuration value for textual substitution.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// stringList coerces a YAML list value into its string elements. Non-list
// and non-string content is ignored.
func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
