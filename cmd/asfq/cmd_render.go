package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/merge"
	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/render"
	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/wrapper"
)

var (
	renderOutDir string
	fluxJobspec  bool
)

// renderCmd renders job script templates against the resolved configuration
var renderCmd = &cobra.Command{
	Use:   "render [template...]",
	Short: "Render job scripts with the exit-status contract",
	Long: `Assembles the configuration, then renders each template: substitutes
both placeholder forms against the final resolved values and wraps the
body in the header/tailer pair that implements the exit-status contract
(status file on every trapped exit path, completion marker only on
success).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderOutDir, "out", "o", "",
		"output directory (defaults to the configured output dir)")
	renderCmd.Flags().BoolVar(&fluxJobspec, "flux-jobspec", false,
		"also emit a Flux jobspec embedding each rendered script")
}

func runRender(cmd *cobra.Command, args []string) error {
	resolved, err := assemble()
	if err != nil {
		return err
	}

	renderer, err := render.NewRenderer(resolved, cfg.ProjectRoot)
	if err != nil {
		return err
	}

	outDir := renderOutDir
	if outDir == "" {
		outDir = cfg.OutputDir()
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	failed := 0
	for _, arg := range args {
		tpl, err := render.LoadTemplate(arg)
		if err != nil {
			logger.Error("template load failed", zap.String("template", arg), zap.Error(err))
			failed++
			continue
		}
		script, err := renderer.Render(tpl)
		if err != nil {
			logger.Error("render failed", zap.String("template", arg), zap.Error(err))
			failed++
			continue
		}
		path, err := render.WriteScript(outDir, script)
		if err != nil {
			logger.Error("write failed", zap.String("template", arg), zap.Error(err))
			failed++
			continue
		}
		logger.Info("script rendered",
			zap.String("job", script.JobName),
			zap.String("path", path))

		if fluxJobspec {
			if err := writeJobspec(outDir, resolved, script); err != nil {
				logger.Error("jobspec generation failed",
					zap.String("job", script.JobName), zap.Error(err))
				failed++
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d templates failed", failed, len(args))
	}
	return nil
}

// writeJobspec emits a version-1 Flux jobspec next to the script, sized
// from the WRAPPER section of the resolved configuration.
func writeJobspec(outDir string, resolved *merge.Resolved, script render.Script) error {
	js := wrapper.New()
	if _, err := js.AddSlot(wrapper.SlotSpec{
		Nodes:        resolved.Int("WRAPPER.NODES", 0),
		Cores:        resolved.Int("WRAPPER.PROCESSORS", 1),
		Exclusive:    resolved.Bool("WRAPPER.EXCLUSIVE", false),
		MemPerNodeGB: resolved.Int("WRAPPER.MEMORY", 0),
	}); err != nil {
		return err
	}
	if _, err := js.AddTask(wrapper.TaskSpec{PerSlot: 1}); err != nil {
		return err
	}

	wallclock, _ := resolved.GetString("WRAPPER.WALLCLOCK")
	js.SetAttributes(wrapper.AttrSpec{
		Duration:      wallclock,
		Cwd:           outDir,
		JobName:       script.JobName,
		OutputFile:    script.JobName + ".out",
		ErrorFile:     script.JobName + ".err",
		ScriptContent: script.Text,
	})

	doc, err := js.Generate()
	if err != nil {
		return err
	}
	path := filepath.Join(outDir, script.JobName+"_jobspec.yml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("failed to write jobspec: %w", err)
	}
	logger.Info("jobspec written", zap.String("path", path))
	return nil
}
