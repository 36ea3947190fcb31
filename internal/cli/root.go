// Package cli provides command-line interface definitions using Cobra,
// including all subcommands and their flag definitions.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root cobra command
func NewRootCmd(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "but",
		Short:   "Butler is a workflow engine for working on multiple branches simultaneously",
		Version: version,
		Long: `Butler keeps several stacks of commits applied to one working tree at the
same time. The worktree always reflects the merge of every applied stack on
top of the target branch; uncommitted changes are routed to the stack that
owns them.

Version: ` + version + `
Commit:  ` + commit + `
Date:    ` + date,
	}

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newApplyCmd())
	rootCmd.AddCommand(newUnapplyCmd())
	rootCmd.AddCommand(newRebaseCmd())
	rootCmd.AddCommand(newDepsCmd())

	return rootCmd
}
