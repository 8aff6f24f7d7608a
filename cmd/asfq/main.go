package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/config"
	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/fragment"
	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/logging"
	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/merge"
	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/placeholder"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "asfq",
	Short: "asfq - experiment configuration assembler",
	Long: `asfq assembles workflow experiment configuration from ordered YAML
fragments, resolves %KEY% and %^KEY% placeholders, tracks the provenance
of every key, and renders job scripts wrapped in the exit-status contract.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// assemble runs the full load-merge-resolve pipeline against the current
// configuration. Every command that needs resolved data goes through
// here, so they all see identical semantics.
func assemble() (*merge.Resolved, error) {
	paths := cfg.FragmentFiles()
	if len(paths) == 0 {
		var err error
		paths, err = fragment.DiscoverDir(cfg.FragmentsDir())
		if err != nil {
			return nil, fmt.Errorf("failed to discover fragments: %w", err)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no fragment files under %s", cfg.FragmentsDir())
	}

	fragments, err := fragment.LoadOrdered(paths)
	if err != nil {
		return nil, err
	}

	safe := placeholder.NewSafeSet(cfg.SafePlaceholders...)
	resolved, err := merge.Assemble(fragments, safe)
	if err != nil {
		return nil, err
	}

	logger.Debug("assembled configuration",
		zap.Int("fragments", len(fragments)),
		zap.Int("keys", resolved.Len()))
	return resolved, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "asfq.yml", "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(assembleCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(provenanceCmd)
	rootCmd.AddCommand(contractCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
