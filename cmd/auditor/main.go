// auditor grades an agent repository and its architecture report against
// a rubric: two investigators gather evidence, three judges score every
// criterion, and a deterministic resolver writes the final report.
//
// Usage:
//
//	auditor audit <repo-url|dir> --doc <report>   run an audit
//	auditor resolve -f <opinions.json>            resolve collected opinions
//	auditor rubric [path]                         validate and list a rubric
//	auditor history [run-id]                      browse archived runs
//	auditor serve                                 MCP server over stdio
//
// Exit status is 0 when a report was produced, 2 when the run halted
// before judging, and 1 for configuration or rubric errors.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitHalted = 2
)

// exitError carries a non-default exit status through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "auditor",
		Short: "Rubric-driven audits of agent repositories and their reports",
		Long: "auditor clones a repository, reads its architecture report, and has three\n" +
			"judge personas score every rubric criterion. A deterministic chief justice\n" +
			"resolves their opinions into a final report.",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}
	bindGlobalFlags(root)
	root.AddCommand(newAuditCmd(), newResolveCmd(), newRubricCmd(), newHistoryCmd(), newServeCmd())
	return root
}

// execute runs the command tree and maps the outcome to an exit status.
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(stderr, err)
	return exitFailed
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
