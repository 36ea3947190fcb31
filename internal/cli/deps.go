package cli

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/gitbutlerapp/butler/internal/output"
)

func newDepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Show which committed hunks the uncommitted changes depend on",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			byPath, err := ws.WorktreeDependencies()
			if err != nil {
				return err
			}

			splog := newSplog()
			if len(byPath) == 0 {
				splog.Info("no dependent uncommitted changes")
				return nil
			}

			paths := make([]string, 0, len(byPath))
			for path := range byPath {
				paths = append(paths, path)
			}
			sort.Strings(paths)
			for _, path := range paths {
				splog.Info("%s", output.Styled(output.BranchStyle, path))
				for _, dep := range byPath[path] {
					splog.Info("  locked to %s (%s)", dep.StackID, output.Styled(output.CommitStyle, dep.CommitID.String()[:7]))
				}
			}
			return nil
		},
	}
	return cmd
}
