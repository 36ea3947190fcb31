package cli

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/spf13/cobra"

	"github.com/gitbutlerapp/butler/internal/git"
	"github.com/gitbutlerapp/butler/internal/rebase"
)

func newRebaseCmd() *cobra.Command {
	var drops []string
	var keepDirty bool

	cmd := &cobra.Command{
		Use:   "rebase",
		Short: "Rewrite the applied stacks, dropping the given commits",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}

			sg, err := ws.PlanRebase()
			if err != nil {
				return err
			}

			for _, spec := range drops {
				id, err := ws.Repo.ResolveRevision(plumbing.Revision(spec))
				if err != nil {
					return fmt.Errorf("failed to resolve %s: %w", spec, err)
				}
				sel, ok := sg.SelectCommit(*id)
				if !ok {
					return fmt.Errorf("commit %s is not part of any applied stack", spec)
				}
				sg.Drop(sel)
			}

			outcome, err := sg.Rebase(rebase.Options{DateMode: rebase.CommitterUpdate})
			if err != nil {
				return err
			}
			err = ws.MaterializeRebase(outcome, git.CheckoutOptions{ForbidOverwriteDirty: !keepDirty})
			if err != nil {
				return err
			}

			rewritten := 0
			for oldID, newID := range outcome.CommitMap {
				if oldID != newID {
					rewritten++
				}
			}
			newSplog().Info("rebased %d commits (%d rewritten)", len(outcome.CommitMap), rewritten)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&drops, "drop", nil, "Commit to drop from its stack (repeatable)")
	cmd.Flags().BoolVar(&keepDirty, "force", false, "Overwrite dirty worktree paths if needed")
	return cmd
}
