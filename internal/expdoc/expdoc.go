// Package expdoc serializes the assembled experiment document: the
// resolved configuration with an attached PROVENANCE section mapping each
// key path to the fragment that last supplied its value.
package expdoc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/merge"
	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/provenance"
)

// ProvenanceSection and MetadataSection are the reserved top-level keys
// of the serialized document; configuration data never claims them.
const (
	ProvenanceSection = "PROVENANCE"
	MetadataSection   = "METADATA"
)

// Metadata identifies the assembly run that produced a document.
type Metadata struct {
	RunID     string
	Generated time.Time
}

func (m Metadata) isZero() bool {
	return m.RunID == "" && m.Generated.IsZero()
}

// toMap serializes METADATA the way provenance entries serialize:
// timestamps as unix seconds, empty fields omitted.
func (m Metadata) toMap() map[string]any {
	out := make(map[string]any, 2)
	if m.RunID != "" {
		out["run_id"] = m.RunID
	}
	if !m.Generated.IsZero() {
		out["generated"] = float64(m.Generated.Unix())
	}
	return out
}

func metadataFromMap(raw map[string]any) Metadata {
	var m Metadata
	if v, ok := raw["run_id"].(string); ok {
		m.RunID = v
	}
	switch v := raw["generated"].(type) {
	case float64:
		m.Generated = time.Unix(int64(v), 0)
	case int:
		m.Generated = time.Unix(int64(v), 0)
	}
	return m
}

// Marshal renders the experiment document as YAML: the resolved
// configuration, a METADATA section naming the assembly run, and the
// PROVENANCE section unless the resolved configuration disables it via
// CONFIG.TRACK_PROVENANCE. Map keys serialize in sorted order.
func Marshal(resolved *merge.Resolved, meta Metadata) ([]byte, error) {
	doc := resolved.Nested()
	if !meta.isZero() {
		doc[MetadataSection] = meta.toMap()
	}
	if resolved.TrackProvenance() {
		doc[ProvenanceSection] = resolved.Provenance().ExportNested()
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal experiment document: %w", err)
	}
	return data, nil
}

// WriteFile persists the experiment document, creating parent directories
// as needed.
func WriteFile(path string, resolved *merge.Resolved, meta Metadata) error {
	data, err := Marshal(resolved, meta)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write experiment document: %w", err)
	}
	return nil
}

// Document is a loaded experiment document: the configuration data with
// the METADATA and PROVENANCE sections split off.
type Document struct {
	Data       map[string]any
	Metadata   Metadata
	Provenance *provenance.Tracker
}

// Load reads an experiment document back, restoring run metadata and the
// provenance tracker from their reserved sections (the inverse of
// Marshal). Documents without the sections load with zero values.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read experiment document: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse experiment document: %w", err)
	}
	if raw == nil {
		raw = make(map[string]any)
	}

	tracker := provenance.NewTracker()
	if section, ok := raw[ProvenanceSection].(map[string]any); ok {
		tracker.ImportNested(section)
	}
	delete(raw, ProvenanceSection)

	var meta Metadata
	if section, ok := raw[MetadataSection].(map[string]any); ok {
		meta = metadataFromMap(section)
	}
	delete(raw, MetadataSection)

	return &Document{Data: raw, Metadata: meta, Provenance: tracker}, nil
}

// ExportProvenanceJSON writes the provenance map as indented JSON, the
// standalone export format for external tooling.
func ExportProvenanceJSON(path string, tracker *provenance.Tracker) error {
	data, err := json.MarshalIndent(tracker.ExportNested(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal provenance: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write provenance export: %w", err)
	}
	return nil
}
