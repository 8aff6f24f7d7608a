package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/expdoc"
	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/watch"
)

var watchFragments bool

// assembleCmd merges the fragments and writes the experiment document
var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Merge fragments and write the experiment document",
	Long: `Loads the configured fragments in order, merges them last-writer-wins,
resolves immediate placeholders per fragment and deferred placeholders
against the final state, and writes the experiment document (including
the PROVENANCE section when CONFIG.TRACK_PROVENANCE is enabled).`,
	RunE: runAssemble,
}

func init() {
	assembleCmd.Flags().BoolVarP(&watchFragments, "watch", "w", false,
		"re-assemble whenever a fragment file changes")
}

func runAssemble(cmd *cobra.Command, args []string) error {
	if err := assembleOnce(); err != nil {
		return err
	}
	if !watchFragments {
		return nil
	}
	return watchLoop()
}

func assembleOnce() error {
	runID := uuid.NewString()[:8]
	log := logger.With(zap.String("run_id", runID))

	resolved, err := assemble()
	if err != nil {
		return err
	}

	out := cfg.ExperimentFilePath()
	meta := expdoc.Metadata{RunID: runID, Generated: time.Now()}
	if err := expdoc.WriteFile(out, resolved, meta); err != nil {
		return err
	}

	log.Info("experiment document written",
		zap.String("path", out),
		zap.Int("keys", resolved.Len()),
		zap.Strings("sources", resolved.Sources()),
		zap.Bool("provenance", resolved.TrackProvenance()))
	return nil
}

func watchLoop() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := watch.New(cfg.FragmentsDir(), func() {
		// A broken edit must not kill the watch session.
		if err := assembleOnce(); err != nil {
			logger.Error("re-assembly failed", zap.Error(err))
		}
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("stopping watch mode", zap.String("signal", sig.String()))
	return nil
}
