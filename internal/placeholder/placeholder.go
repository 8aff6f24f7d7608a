// Package placeholder implements token scanning and substitution for the
// two placeholder surface forms used in configuration fragments and job
// script templates: %KEY% (immediate) and %^KEY% (deferred).
package placeholder

import (
	"fmt"
	"regexp"
	"strings"
)

// tokenPattern matches a full placeholder token. Group 1 captures the
// optional deferred marker, group 2 the bare key name. Key names follow
// dotted-path syntax (JOBS.SIM.WALLCLOCK) with underscores and dashes.
var tokenPattern = regexp.MustCompile(`%(\^?)([A-Za-z0-9_][A-Za-z0-9_.\-]*)%`)

// Form selects which token forms a substitution pass operates on.
// Forms combine as a bitmask; tokens of an unselected form are left
// verbatim so a later pass can pick them up.
type Form uint8

const (
	// Immediate selects %KEY% tokens, resolved against in-progress merge state.
	Immediate Form = 1 << iota
	// Deferred selects %^KEY% tokens, resolved against the final merged state.
	Deferred

	// Any selects both forms. Used by the script renderer, which runs after
	// the configuration is fully resolved, where both forms behave identically.
	Any = Immediate | Deferred
)

func (f Form) String() string {
	switch f {
	case Immediate:
		return "immediate"
	case Deferred:
		return "deferred"
	case Any:
		return "any"
	}
	return fmt.Sprintf("form(%d)", uint8(f))
}

// Lookup resolves a bare key name to its stringified value. The second
// return value reports whether the key exists in the relevant snapshot.
type Lookup func(key string) (string, bool)

// SafeSet holds key names exempt from substitution. Tokens naming a safe
// key are emitted verbatim, markers included, in both forms.
type SafeSet map[string]struct{}

// NewSafeSet builds a SafeSet from bare key names.
func NewSafeSet(names ...string) SafeSet {
	s := make(SafeSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Add inserts a name into the set.
func (s SafeSet) Add(name string) {
	s[name] = struct{}{}
}

// Contains reports whether name is exempt from substitution.
func (s SafeSet) Contains(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s[name]
	return ok
}

// Names returns the set contents; order is not specified.
func (s SafeSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	return names
}

// UnresolvedPlaceholderError reports a placeholder whose key is absent from
// the configuration snapshot it was resolved against and is not listed in
// the Safe-Placeholder Set.
type UnresolvedPlaceholderError struct {
	Key     string // bare key name inside the token
	Form    Form   // surface form of the offending token
	Context string // fragment or template the token appeared in
}

func (e *UnresolvedPlaceholderError) Error() string {
	return fmt.Sprintf("unresolved %s placeholder %q in %s", e.Form, e.Key, e.Context)
}

// Result reports what a substitution pass did to one string.
type Result struct {
	Text        string
	Substituted bool // at least one token was replaced
}

// Substitute performs a single substitution pass over s for the selected
// token forms. Replacement is textual: the full token is replaced by the
// looked-up value. Resolved values are never re-scanned; nested tokens
// inside a substituted value survive to the output untouched (no fixpoint
// iteration).
//
// Tokens of an unselected form and tokens naming a safe key are left
// verbatim. A selected, non-safe token whose key fails the lookup yields
// an UnresolvedPlaceholderError naming the key and context.
func Substitute(s string, forms Form, lookup Lookup, safe SafeSet, context string) (Result, error) {
	if !containsToken(s, forms, safe) {
		return Result{Text: s}, nil
	}

	matches := tokenPattern.FindAllStringSubmatchIndex(s, -1)

	var b strings.Builder
	b.Grow(len(s))
	last := 0
	substituted := false

	for _, m := range matches {
		start, end := m[0], m[1]
		form := Immediate
		if m[3] > m[2] { // deferred marker present
			form = Deferred
		}
		key := s[m[4]:m[5]]

		b.WriteString(s[last:start])
		last = end

		if forms&form == 0 || safe.Contains(key) {
			// Not this pass's token, or exempt: emit verbatim.
			b.WriteString(s[start:end])
			continue
		}

		value, ok := lookup(key)
		if !ok {
			return Result{}, &UnresolvedPlaceholderError{Key: key, Form: form, Context: context}
		}
		b.WriteString(value)
		substituted = true
	}
	b.WriteString(s[last:])

	return Result{Text: b.String(), Substituted: substituted}, nil
}

// containsToken reports whether s holds at least one placeholder token of
// the selected forms, ignoring safe keys.
func containsToken(s string, forms Form, safe SafeSet) bool {
	for _, m := range tokenPattern.FindAllStringSubmatch(s, -1) {
		form := Immediate
		if m[1] == "^" {
			form = Deferred
		}
		if forms&form != 0 && !safe.Contains(m[2]) {
			return true
		}
	}
	return false
}
