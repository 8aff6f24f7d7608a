package render

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/fragment"
	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/merge"
	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/placeholder"
)

func resolve(t *testing.T, yaml string) *merge.Resolved {
	t.Helper()
	frag, err := fragment.Parse("conf.yml", []byte(yaml))
	require.NoError(t, err)
	resolved, err := merge.Assemble([]*fragment.Fragment{frag}, placeholder.NewSafeSet("CURRENT_PROJECT"))
	require.NoError(t, err)
	return resolved
}

func TestRender_SubstitutesBothForms(t *testing.T) {
	resolved := resolve(t, "model:\n  version: v2\nnproc: 16\n")
	r, err := NewRenderer(resolved, t.TempDir())
	require.NoError(t, err)

	script, err := r.Render(Template{
		Name: "sim.sh",
		Body: "run --model %model.version% --np %^nproc%\n",
	})
	require.NoError(t, err)

	assert.Contains(t, script.Text, "run --model v2 --np 16")
	assert.Equal(t, "sim.cmd", script.Name)
	assert.Equal(t, "sim", script.JobName)
}

func TestRender_ConcatenationOrder(t *testing.T) {
	resolved := resolve(t, "a: 1\n")
	r, err := NewRenderer(resolved, t.TempDir())
	require.NoError(t, err)

	script, err := r.Render(Template{Name: "job.sh", Body: "BODY_MARKER\n"})
	require.NoError(t, err)

	header := strings.Index(script.Text, "Job header")
	body := strings.Index(script.Text, "BODY_MARKER")
	tailer := strings.Index(script.Text, "Job tailer")
	require.True(t, header >= 0 && body >= 0 && tailer >= 0)
	assert.Less(t, header, body)
	assert.Less(t, body, tailer)
	assert.True(t, strings.HasPrefix(script.Text, "#!/bin/bash"))
}

func TestRender_Idempotent(t *testing.T) {
	resolved := resolve(t, "x: value\n")
	r, err := NewRenderer(resolved, t.TempDir())
	require.NoError(t, err)

	tpl := Template{Name: "job.sh", Body: "use %x%\n"}
	first, err := r.Render(tpl)
	require.NoError(t, err)
	second, err := r.Render(tpl)
	require.NoError(t, err)
	assert.Equal(t, first.Text, second.Text, "byte-identical output for identical input")
}

func TestRender_UnresolvedKeyFails(t *testing.T) {
	resolved := resolve(t, "a: 1\n")
	r, err := NewRenderer(resolved, t.TempDir())
	require.NoError(t, err)

	_, err = r.Render(Template{Name: "job.sh", Body: "use %UNDEFINED_KEY%\n"})
	var unresolved *placeholder.UnresolvedPlaceholderError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "UNDEFINED_KEY", unresolved.Key)
	assert.Equal(t, "job.sh", unresolved.Context)
}

func TestRender_SafePlaceholderSurvives(t *testing.T) {
	resolved := resolve(t, "a: 1\n")
	r, err := NewRenderer(resolved, t.TempDir())
	require.NoError(t, err)

	script, err := r.Render(Template{Name: "job.sh", Body: "cd %CURRENT_PROJECT%\n"})
	require.NoError(t, err)
	assert.Contains(t, script.Text, "cd %CURRENT_PROJECT%")
}

func TestRender_ExtendedHeaderAndTailer(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "extra_header.sh"), []byte("module load netcdf\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "extra_tailer.sh"), []byte("echo done >> audit.log\n"), 0644))

	resolved := resolve(t, "EXTENDED_HEADER_PATH: extra_header.sh\nEXTENDED_TAILER_PATH: extra_tailer.sh\n")
	r, err := NewRenderer(resolved, root)
	require.NoError(t, err)

	script, err := r.Render(Template{Name: "job.sh", Body: "BODY\n"})
	require.NoError(t, err)

	headerEnd := strings.Index(script.Text, "module load netcdf")
	body := strings.Index(script.Text, "BODY")
	completed := strings.Index(script.Text, `touch "${completed_file}"`)
	extTailer := strings.Index(script.Text, "echo done >> audit.log")
	require.True(t, headerEnd >= 0 && body >= 0 && completed >= 0 && extTailer >= 0)

	// Extended text comes after the matching standard block.
	assert.Less(t, headerEnd, body)
	assert.Less(t, completed, extTailer)
}

func TestRender_MissingExtensionFileFails(t *testing.T) {
	resolved := resolve(t, "EXTENDED_HEADER_PATH: nope.sh\n")
	_, err := NewRenderer(resolved, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ExtendedHeaderKey)
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "sim.cmd", OutputName("templates/sim.sh"))
	assert.Equal(t, "sim.cmd", OutputName("sim.tmpl"))
	assert.Equal(t, "sim.cmd", OutputName("sim"))
}

func TestWriteScript(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteScript(dir, Script{Name: "job.cmd", Text: "#!/bin/bash\n"})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}

func TestContract_RenderedScriptValidates(t *testing.T) {
	resolved := resolve(t, "a: 1\n")
	r, err := NewRenderer(resolved, t.TempDir())
	require.NoError(t, err)

	script, err := r.Render(Template{Name: "job.sh", Body: "sleep 1\n"})
	require.NoError(t, err)
	assert.NoError(t, ValidateContract(script.Text))
}

func TestContract_SignalSet(t *testing.T) {
	header := Header("job")

	for _, sig := range []string{"HUP", "INT", "QUIT", "TERM", "XCPU", "XFSZ"} {
		assert.Contains(t, header, " "+sig+"\n", "signal %s must be trapped", sig)
	}
	assert.Contains(t, header, "trap job_exit_trap EXIT")
	assert.Contains(t, header, "$((128 + $1))")
	assert.Contains(t, header, `job_name="job"`)
}

func TestContract_CompletedOnlyInTailer(t *testing.T) {
	header := Header("job")
	tailer := Tailer()

	assert.NotContains(t, header, "touch \"${completed_file}\"", "trap handlers must never write the completion artifact")
	assert.Equal(t, 1, strings.Count(tailer, "touch \"${completed_file}\""))
}

func TestValidateContract_Failures(t *testing.T) {
	valid := Header("job") + "body\n" + Tailer()
	require.NoError(t, ValidateContract(valid))

	t.Run("missing signal trap", func(t *testing.T) {
		broken := strings.Replace(valid, "trap 'job_signal_trap 24' XCPU\n", "", 1)
		err := ValidateContract(broken)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "XCPU")
	})

	t.Run("missing exit trap", func(t *testing.T) {
		broken := strings.Replace(valid, "trap job_exit_trap EXIT", "", 1)
		assert.Error(t, ValidateContract(broken))
	})

	t.Run("completion written twice", func(t *testing.T) {
		broken := valid + "touch \"${completed_file}\"\n"
		assert.Error(t, ValidateContract(broken))
	})
}
