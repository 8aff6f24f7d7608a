package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MuhammadShafeeque/autosubmit-sfq/internal/render"
)

var (
	contractJobName string
	contractCheck   string
)

// contractCmd inspects the exit-status contract wrapper
var contractCmd = &cobra.Command{
	Use:   "contract",
	Short: "Print or check the exit-status contract wrapper",
	Long: `Prints the header/tailer pair a rendered script is wrapped in: traps on
EXIT and the catchable termination signals write the exit code (128+N
for signals) to <job>_STATUS, and the tailer touches <job>_COMPLETED
only on clean completion. With --check, validates that an existing
script honors the contract.`,
	RunE: runContract,
}

func init() {
	contractCmd.Flags().StringVar(&contractJobName, "job", "sample", "job name for the printed wrapper")
	contractCmd.Flags().StringVar(&contractCheck, "check", "", "script file to validate against the contract")
}

func runContract(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if contractCheck != "" {
		data, err := os.ReadFile(contractCheck)
		if err != nil {
			return fmt.Errorf("failed to read script: %w", err)
		}
		if err := render.ValidateContract(string(data)); err != nil {
			return fmt.Errorf("%s violates the contract: %w", contractCheck, err)
		}
		fmt.Fprintf(out, "%s: ok\n", contractCheck)
		return nil
	}

	fmt.Fprint(out, render.Header(contractJobName))
	fmt.Fprintln(out, "# ... job body ...")
	fmt.Fprint(out, render.Tailer())
	return nil
}
