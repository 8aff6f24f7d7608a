// Package render turns job script templates into executable script text:
// standard header, placeholder-substituted body, standard tailer. The
// header/tailer embed the exit-status contract (see contract.go).
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/merge"
	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/placeholder"
)

// Configuration keys naming optional extra header/tailer text, resolved
// relative to the externally supplied project root.
const (
	ExtendedHeaderKey = "EXTENDED_HEADER_PATH"
	ExtendedTailerKey = "EXTENDED_TAILER_PATH"
)

// ScriptExtension is the output extension convention, applied regardless
// of the template's original extension.
const ScriptExtension = ".cmd"

// Template is a job script body plus its source identifier.
type Template struct {
	Name string
	Body string
}

// LoadTemplate reads a template file; the path becomes its identifier.
func LoadTemplate(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("failed to read template: %w", err)
	}
	return Template{Name: path, Body: string(data)}, nil
}

// Script is one rendered job script. It carries no mutable state; the same
// template against the same resolved configuration always yields identical
// text.
type Script struct {
	Name    string // output file name, ScriptExtension convention
	JobName string // job identifier the runtime artifacts derive from
	Text    string
}

// Renderer renders templates against a frozen resolved configuration.
// Construction loads the extended header/tailer once, so a renderer never
// touches the filesystem again afterwards.
type Renderer struct {
	resolved  *merge.Resolved
	extHeader string
	extTailer string
}

// NewRenderer builds a renderer for the given resolved configuration.
// projectRoot anchors the EXTENDED_HEADER_PATH / EXTENDED_TAILER_PATH
// lookups; a missing extension file is an error, an unset key is not.
func NewRenderer(resolved *merge.Resolved, projectRoot string) (*Renderer, error) {
	r := &Renderer{resolved: resolved}

	var err error
	if r.extHeader, err = loadExtension(resolved, projectRoot, ExtendedHeaderKey); err != nil {
		return nil, err
	}
	if r.extTailer, err = loadExtension(resolved, projectRoot, ExtendedTailerKey); err != nil {
		return nil, err
	}
	return r, nil
}

func loadExtension(resolved *merge.Resolved, projectRoot, key string) (string, error) {
	rel, ok := resolved.GetString(key)
	if !ok || rel == "" {
		return "", nil
	}
	path := rel
	if !filepath.IsAbs(path) {
		path = filepath.Join(projectRoot, rel)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s file: %w", key, err)
	}
	return string(data), nil
}

// JobName derives the job identifier from a template name: the base name
// with its extension stripped.
func JobName(templateName string) string {
	base := filepath.Base(templateName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OutputName returns the rendered script file name for a template,
// applying the ScriptExtension convention.
func OutputName(templateName string) string {
	return JobName(templateName) + ScriptExtension
}

// Render produces the final script text: header, substituted body, tailer,
// with extended text appended after each standard block. The body runs a
// single full-configuration pass; both placeholder forms resolve against
// the final merged state here, since rendering happens after resolution
// completes. A failed render affects only this one script.
func (r *Renderer) Render(tpl Template) (Script, error) {
	res, err := placeholder.Substitute(
		tpl.Body,
		placeholder.Any,
		r.resolved.Lookup(),
		r.resolved.SafePlaceholders(),
		tpl.Name,
	)
	if err != nil {
		return Script{}, err
	}

	jobName := JobName(tpl.Name)

	var b strings.Builder
	b.WriteString(Header(jobName))
	b.WriteString(r.extHeader)
	b.WriteString(res.Text)
	if !strings.HasSuffix(res.Text, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(Tailer())
	b.WriteString(r.extTailer)

	return Script{
		Name:    OutputName(tpl.Name),
		JobName: jobName,
		Text:    b.String(),
	}, nil
}

// WriteScript persists a rendered script under dir with mode 0755.
func WriteScript(dir string, script Script) (string, error) {
	path := filepath.Join(dir, script.Name)
	if err := os.WriteFile(path, []byte(script.Text), 0755); err != nil {
		return "", fmt.Errorf("failed to write script: %w", err)
	}
	return path, nil
}
