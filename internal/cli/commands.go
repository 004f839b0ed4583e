package cli

import (
	"fmt"
	"io"
	"strings"

	"benchmark-verifier/internal/config"
	"github.com/spf13/cobra"
)

// NewCommandsCommand creates the commands command.
func NewCommandsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commands [test-name...]",
		Short: "Print the load-generator commands for configured endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommands(cmd.OutOrStdout(), rootOpts, args)
		},
	}

	return cmd
}

func runCommands(w io.Writer, opts *RootOptions, names []string) error {
	tests, err := testsFor(opts.Config, config.Test{}, names)
	if err != nil {
		return err
	}
	jobs, err := BuildJobs(opts.Config, tests, opts.Logger)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		cmds, err := job.Executor.RetrieveBenchmarkCommands(job.URL)
		if err != nil {
			return fmt.Errorf("test %s: %w", job.Name, err)
		}
		fmt.Fprintf(w, "# %s\n", job.Name)
		for _, c := range cmds.All() {
			fmt.Fprintln(w, shellJoin(c))
		}
	}
	return nil
}

// shellJoin quotes args so the line can be pasted into a POSIX shell.
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a != "" && !strings.ContainsAny(a, " \t\n'\"\\$`*?&;|<>()[]{}#~!") {
			quoted[i] = a
			continue
		}
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}
