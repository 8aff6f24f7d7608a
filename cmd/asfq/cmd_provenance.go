package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/expdoc"
	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/provenance"
)

var (
	provenanceFromDoc string
	provenanceExport  string
)

// provenanceCmd inspects where resolved keys came from
var provenanceCmd = &cobra.Command{
	Use:   "provenance [KEY]",
	Short: "Show which fragment defined a key and how it was resolved",
	Long: `Answers "where did this value come from": the source fragment, the
resolution kind (direct, immediate, deferred) and the position in the
fragment. With no KEY, lists every tracked key. Reads a previously
written experiment document with --from-doc, otherwise assembles fresh.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProvenance,
}

func init() {
	provenanceCmd.Flags().StringVar(&provenanceFromDoc, "from-doc", "",
		"read provenance from an experiment document instead of assembling")
	provenanceCmd.Flags().StringVar(&provenanceExport, "export", "",
		"write the provenance map to this file as JSON")
}

func runProvenance(cmd *cobra.Command, args []string) error {
	tracker, err := loadTracker()
	if err != nil {
		return err
	}

	if provenanceExport != "" {
		if err := expdoc.ExportProvenanceJSON(provenanceExport, tracker); err != nil {
			return err
		}
		logger.Info("provenance exported",
			zap.String("path", provenanceExport),
			zap.Int("keys", tracker.Len()))
	}

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		key := args[0]
		entry, ok := tracker.Get(key)
		if !ok {
			return fmt.Errorf("no provenance recorded for %s", key)
		}
		fmt.Fprintf(out, "%s: %s\n", key, entry.String())
		return nil
	}

	for _, path := range tracker.Paths() {
		entry, _ := tracker.Get(path)
		fmt.Fprintf(out, "%s: %s\n", path, entry.String())
	}
	return nil
}

func loadTracker() (*provenance.Tracker, error) {
	if provenanceFromDoc != "" {
		doc, err := expdoc.Load(provenanceFromDoc)
		if err != nil {
			return nil, err
		}
		return doc.Provenance, nil
	}
	resolved, err := assemble()
	if err != nil {
		return nil, err
	}
	return resolved.Provenance(), nil
}
