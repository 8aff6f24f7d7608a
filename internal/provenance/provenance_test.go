package provenance

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_TrackAndGet(t *testing.T) {
	tracker := NewTracker()
	tracker.Track("DEFAULT.EXPID", Entry{Source: "/conf/minimal.yml", Kind: KindDirect, Line: 2})

	e, ok := tracker.Get("DEFAULT.EXPID")
	require.True(t, ok)
	assert.Equal(t, "/conf/minimal.yml", e.Source)
	assert.Equal(t, KindDirect, e.Kind)
	assert.Equal(t, 2, e.Line)
	assert.False(t, e.Timestamp.IsZero(), "zero timestamp should be filled at track time")

	_, ok = tracker.Get("DEFAULT.UNKNOWN")
	assert.False(t, ok)
}

func TestTracker_LastWriterWins(t *testing.T) {
	tracker := NewTracker()
	tracker.Track("model.version", Entry{Source: "base.yml", Kind: KindDirect})
	tracker.Track("model.version", Entry{Source: "override.yml", Kind: KindDirect})

	e, ok := tracker.Get("model.version")
	require.True(t, ok)
	assert.Equal(t, "override.yml", e.Source)
	assert.Equal(t, 1, tracker.Len())
}

func TestTracker_SetKind(t *testing.T) {
	tracker := NewTracker()
	tracker.Track("a.b", Entry{Source: "f.yml", Kind: KindDirect})

	require.True(t, tracker.SetKind("a.b", KindImmediate))
	e, _ := tracker.Get("a.b")
	assert.Equal(t, KindImmediate, e.Kind)
	assert.Equal(t, "f.yml", e.Source, "SetKind must not touch the source")

	assert.False(t, tracker.SetKind("missing", KindDeferred))
}

func TestTracker_Paths(t *testing.T) {
	tracker := NewTracker()
	tracker.Track("b", Entry{Source: "f.yml"})
	tracker.Track("a.x", Entry{Source: "f.yml"})
	tracker.Track("a.c", Entry{Source: "f.yml"})

	assert.Equal(t, []string{"a.c", "a.x", "b"}, tracker.Paths())
}

func TestTracker_Clear(t *testing.T) {
	tracker := NewTracker()
	tracker.Track("a", Entry{Source: "f.yml"})
	tracker.Clear()
	assert.Equal(t, 0, tracker.Len())
}

func TestTracker_ExportNested(t *testing.T) {
	ts := time.Unix(1734567890, 0)
	tracker := NewTracker()
	tracker.Track("DEFAULT.EXPID", Entry{Source: "/conf/minimal.yml", Kind: KindDirect, Line: 2, Timestamp: ts})
	tracker.Track("JOBS.SIM.FILE", Entry{Source: "/conf/jobs.yml", Kind: KindImmediate, Line: 10, Col: 7, Timestamp: ts})

	nested := tracker.ExportNested()

	def, ok := nested["DEFAULT"].(map[string]any)
	require.True(t, ok)
	expid, ok := def["EXPID"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/conf/minimal.yml", expid["file"])
	assert.Equal(t, "direct", expid["kind"])
	assert.Equal(t, 2, expid["line"])
	_, hasCol := expid["col"]
	assert.False(t, hasCol, "zero col must be omitted")

	jobs := nested["JOBS"].(map[string]any)
	sim := jobs["SIM"].(map[string]any)
	file := sim["FILE"].(map[string]any)
	assert.Equal(t, 7, file["col"])
}

func TestTracker_NestedRoundTrip(t *testing.T) {
	ts := time.Unix(1734567890, 500000000)
	tracker := NewTracker()
	tracker.Track("DEFAULT.EXPID", Entry{Source: "a.yml", Kind: KindDirect, Line: 1, Timestamp: ts})
	tracker.Track("DEFAULT.HPCARCH", Entry{Source: "a.yml", Kind: KindDirect, Line: 2, Timestamp: ts})
	tracker.Track("JOBS.SIM.WALLCLOCK", Entry{Source: "jobs.yml", Kind: KindDeferred, Line: 9, Col: 3, Timestamp: ts})
	tracker.Track("toplevel", Entry{Source: "a.yml", Kind: KindDirect, Timestamp: ts})

	restored := NewTracker()
	restored.ImportNested(tracker.ExportNested())

	require.Equal(t, tracker.Paths(), restored.Paths())
	for _, path := range tracker.Paths() {
		want, _ := tracker.Get(path)
		got, _ := restored.Get(path)
		assert.Equal(t, want.Source, got.Source, path)
		assert.Equal(t, want.Kind, got.Kind, path)
		assert.Equal(t, want.Line, got.Line, path)
		assert.Equal(t, want.Col, got.Col, path)
		assert.WithinDuration(t, want.Timestamp, got.Timestamp, time.Millisecond, path)
	}
}

func TestTracker_ImportNested_YAMLShapes(t *testing.T) {
	// yaml.v3 may decode nested mappings as map[any]any.
	nested := map[string]any{
		"DEFAULT": map[any]any{
			"EXPID": map[any]any{
				"file": "a.yml",
				"kind": "direct",
				"line": 5,
			},
		},
		"COMMENT": "ignored scalar",
	}

	tracker := NewTracker()
	tracker.ImportNested(nested)

	e, ok := tracker.Get("DEFAULT.EXPID")
	require.True(t, ok)
	assert.Equal(t, "a.yml", e.Source)
	assert.Equal(t, 5, e.Line)
	assert.Equal(t, 1, tracker.Len())
}

func TestEntry_String(t *testing.T) {
	e := Entry{Source: "/conf/jobs.yml", Kind: KindImmediate, Line: 10, Col: 5}
	assert.Equal(t, "/conf/jobs.yml:10:5 (immediate)", e.String())

	e = Entry{Source: "/conf/jobs.yml", Kind: KindDirect}
	assert.Equal(t, "/conf/jobs.yml (direct)", e.String())
}

func TestSplitPath(t *testing.T) {
	if diff := cmp.Diff([]string{"JOBS", "SIM", "FILE"}, splitPath("JOBS.SIM.FILE")); diff != "" {
		t.Errorf("splitPath mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"single"}, splitPath("single")); diff != "" {
		t.Errorf("splitPath mismatch (-want +got):\n%s", diff)
	}
}
