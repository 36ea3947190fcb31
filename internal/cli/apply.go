package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gitbutlerapp/butler/internal/git"
	"github.com/gitbutlerapp/butler/internal/workspace"
)

func fullRefName(name string) string {
	if strings.HasPrefix(name, "refs/") {
		return name
	}
	return "refs/heads/" + name
}

func newApplyCmd() *cobra.Command {
	var keepDirty bool

	cmd := &cobra.Command{
		Use:   "apply <branch>",
		Short: "Add a branch's stack to the workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			ref := fullRefName(args[0])
			err = ws.Apply(ref, workspace.ApplyOptions{
				Checkout: git.CheckoutOptions{ForbidOverwriteDirty: !keepDirty},
			})
			if err != nil {
				return fmt.Errorf("failed to apply %s: %w", args[0], err)
			}
			newSplog().Info("applied %s", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepDirty, "force", false, "Overwrite dirty worktree paths if needed")
	return cmd
}

func newUnapplyCmd() *cobra.Command {
	var commitWIP bool

	cmd := &cobra.Command{
		Use:   "unapply <branch>",
		Short: "Remove a branch's stack from the workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			ref := fullRefName(args[0])
			err = ws.Unapply(ref, workspace.UnapplyOptions{
				CommitWIP:            commitWIP,
				AvoidAnonymousStacks: true,
			})
			if err != nil {
				return fmt.Errorf("failed to unapply %s: %w", args[0], err)
			}
			newSplog().Info("unapplied %s", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&commitWIP, "commit-wip", false, "Commit assigned uncommitted changes to the stack before removing it")
	return cmd
}
