package placeholder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestSubstitute_ImmediateForm(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"other_variable": "something",
		"x":              "something",
	})

	t.Run("replaces immediate tokens", func(t *testing.T) {
		res, err := Substitute("%other_variable%/%x%", Immediate, lookup, nil, "frag.yml")
		require.NoError(t, err)
		assert.Equal(t, "something/something", res.Text)
		assert.True(t, res.Substituted)
	})

	t.Run("leaves deferred tokens for the later pass", func(t *testing.T) {
		res, err := Substitute("%other_variable%/%^model.version%/%x%", Immediate, lookup, nil, "frag.yml")
		require.NoError(t, err)
		assert.Equal(t, "something/%^model.version%/something", res.Text)
		assert.True(t, res.Substituted)
	})

	t.Run("unresolved key fails with typed error", func(t *testing.T) {
		_, err := Substitute("%missing%", Immediate, lookup, nil, "frag.yml")
		require.Error(t, err)

		var unresolved *UnresolvedPlaceholderError
		require.True(t, errors.As(err, &unresolved))
		assert.Equal(t, "missing", unresolved.Key)
		assert.Equal(t, "frag.yml", unresolved.Context)
		assert.Equal(t, Immediate, unresolved.Form)
	})
}

func TestSubstitute_DeferredForm(t *testing.T) {
	lookup := mapLookup(map[string]string{"model.version": "last"})

	res, err := Substitute("v=%^model.version%", Deferred, lookup, nil, "frag.yml")
	require.NoError(t, err)
	assert.Equal(t, "v=last", res.Text)

	// Immediate tokens are not this pass's business.
	res, err = Substitute("%not_defined%", Deferred, lookup, nil, "frag.yml")
	require.NoError(t, err)
	assert.Equal(t, "%not_defined%", res.Text)
	assert.False(t, res.Substituted)
}

func TestSubstitute_AnyForm(t *testing.T) {
	lookup := mapLookup(map[string]string{"A": "1", "B": "2"})

	res, err := Substitute("%A%-%^B%", Any, lookup, nil, "job.tmpl")
	require.NoError(t, err)
	assert.Equal(t, "1-2", res.Text)
}

func TestSubstitute_SafeSet(t *testing.T) {
	safe := NewSafeSet("CURRENT_PROJECT")
	lookup := mapLookup(map[string]string{})

	t.Run("safe tokens survive verbatim in both forms", func(t *testing.T) {
		res, err := Substitute("a %CURRENT_PROJECT% b %^CURRENT_PROJECT% c", Any, lookup, safe, "job.tmpl")
		require.NoError(t, err)
		assert.Equal(t, "a %CURRENT_PROJECT% b %^CURRENT_PROJECT% c", res.Text)
		assert.False(t, res.Substituted)
	})

	t.Run("safe check happens before lookup", func(t *testing.T) {
		// CURRENT_PROJECT has no value anywhere; still no error.
		_, err := Substitute("%CURRENT_PROJECT%", Immediate, lookup, safe, "frag.yml")
		assert.NoError(t, err)
	})
}

func TestSubstitute_NoRescan(t *testing.T) {
	// A resolved value containing another token is not re-scanned.
	lookup := mapLookup(map[string]string{
		"a": "%b%",
		"b": "never",
	})

	res, err := Substitute("%a%", Immediate, lookup, nil, "frag.yml")
	require.NoError(t, err)
	assert.Equal(t, "%b%", res.Text)
}

func TestSubstitute_PlainText(t *testing.T) {
	res, err := Substitute("no tokens here, not even 50% of one", Any, mapLookup(nil), nil, "frag.yml")
	require.NoError(t, err)
	assert.Equal(t, "no tokens here, not even 50% of one", res.Text)
	assert.False(t, res.Substituted)
}

func TestSubstitute_DottedKeys(t *testing.T) {
	lookup := mapLookup(map[string]string{"JOBS.SIM.WALLCLOCK": "02:00"})

	res, err := Substitute("wallclock=%JOBS.SIM.WALLCLOCK%", Immediate, lookup, nil, "jobs.yml")
	require.NoError(t, err)
	assert.Equal(t, "wallclock=02:00", res.Text)
}

func TestContainsToken(t *testing.T) {
	safe := NewSafeSet("SAFE")

	assert.True(t, containsToken("%A%", Immediate, nil))
	assert.False(t, containsToken("%A%", Deferred, nil))
	assert.True(t, containsToken("%^A%", Deferred, nil))
	assert.False(t, containsToken("%SAFE%", Any, safe))
	assert.False(t, containsToken("plain", Any, nil))
}

func TestFormString(t *testing.T) {
	assert.Equal(t, "immediate", Immediate.String())
	assert.Equal(t, "deferred", Deferred.String())
	assert.Equal(t, "any", Any.String())
}
