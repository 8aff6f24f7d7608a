package render

import (
	"fmt"
	"strings"
)

// The exit-status contract is a runtime protocol embedded in every
// rendered script. The script's own process executes it later, possibly on
// a remote host; the renderer's only obligation is to emit the trap and
// signal text deterministically.
//
// Protocol:
//   - An EXIT trap writes "<job>_STATUS" with the script's real exit code,
//     whatever the cause.
//   - Each trapped signal writes the status artifact with 128+signum and
//     terminates with that code.
//   - "<job>_COMPLETED" is written only by the tailer's normal success
//     path, never by a trap handler, so its presence is a strict success
//     signal.
//   - SIGKILL, or a signal delivered while a foreground command cannot be
//     interrupted, produces neither artifact. Documented gap, not masked.

// StatusSuffix and CompletedSuffix name the runtime artifacts relative to
// the job identifier.
const (
	StatusSuffix    = "_STATUS"
	CompletedSuffix = "_COMPLETED"
)

// trappedSignal pairs a signal name with its conventional number, fixed
// here so the emitted arithmetic never depends on the executing shell.
type trappedSignal struct {
	Name   string
	Number int
}

// TrappedSignals is the fixed signal set the contract intercepts.
var TrappedSignals = []trappedSignal{
	{"HUP", 1},
	{"INT", 2},
	{"QUIT", 3},
	{"TERM", 15},
	{"XCPU", 24},
	{"XFSZ", 25},
}

const headerTop = `#!/bin/bash

###################
# Job header
###################
# Generated script. Do not edit: changes are overwritten on render.

job_name=%q
status_file="${job_name}%s"
completed_file="${job_name}%s"

job_exit_trap() {
	rc=$?
	echo "$rc" > "${status_file}"
}
trap job_exit_trap EXIT

job_signal_trap() {
	rc=$((128 + $1))
	echo "$rc" > "${status_file}"
	trap - EXIT
	exit "$rc"
}
`

const tailerTop = `
###################
# Job tailer
###################
# Reached only when the body finished without error; the EXIT trap has
# already recorded the status code by the time the shell terminates.

touch "${completed_file}"
`

// Header renders the standard script header for a job identifier,
// installing the EXIT trap and one trap per intercepted signal.
func Header(jobName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, headerTop, jobName, StatusSuffix, CompletedSuffix)
	for _, sig := range TrappedSignals {
		fmt.Fprintf(&b, "trap 'job_signal_trap %d' %s\n", sig.Number, sig.Name)
	}
	b.WriteString("\n")
	return b.String()
}

// Tailer renders the standard script tailer. The tailer only touches the
// completion artifact through the variable the header defines, so it
// carries no per-job text itself.
func Tailer() string {
	return tailerTop
}

// ValidateContract checks rendered script text against the exit-status
// contract. The check is purely textual: which signals are trapped, that
// the exit-code arithmetic is present, and that the completion artifact is
// written only by the tailer path. It never simulates signal delivery.
func ValidateContract(text string) error {
	if !strings.Contains(text, "trap job_exit_trap EXIT") {
		return fmt.Errorf("contract violation: missing EXIT trap")
	}
	for _, sig := range TrappedSignals {
		want := fmt.Sprintf("trap 'job_signal_trap %d' %s", sig.Number, sig.Name)
		if !strings.Contains(text, want) {
			return fmt.Errorf("contract violation: missing trap for SIG%s", sig.Name)
		}
	}
	if !strings.Contains(text, "$((128 + $1))") {
		return fmt.Errorf("contract violation: missing 128+signum exit code arithmetic")
	}
	if strings.Count(text, `touch "${completed_file}"`) != 1 {
		return fmt.Errorf("contract violation: completion artifact must be written exactly once, by the tailer")
	}
	// The completion write must come after the signal handler block, i.e.
	// it cannot sit inside a trap handler.
	handlerEnd := strings.Index(text, "trap job_exit_trap EXIT")
	completed := strings.Index(text, `touch "${completed_file}"`)
	if completed >= 0 && handlerEnd >= 0 && completed < handlerEnd {
		return fmt.Errorf("contract violation: completion artifact written before trap installation")
	}
	return nil
}
