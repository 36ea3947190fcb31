package cli

import (
	"os"
	"path/filepath"

	"github.com/gitbutlerapp/butler/internal/git"
	"github.com/gitbutlerapp/butler/internal/graph"
	"github.com/gitbutlerapp/butler/internal/metadata"
	"github.com/gitbutlerapp/butler/internal/output"
	"github.com/gitbutlerapp/butler/internal/workspace"
)

// newSplog builds the command output sink, with rotating file logging
// alongside the console.
func newSplog() *output.Splog {
	splog, err := output.NewSplogWithConfig(output.GetLogFilePath())
	if err != nil {
		return output.NewSplog()
	}
	return splog
}

// openWorkspace opens the repository in the working directory and projects
// its workspace.
func openWorkspace() (*workspace.Workspace, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	repo, err := git.OpenRepository(cwd)
	if err != nil {
		return nil, err
	}
	store := metadata.NewFileStore(filepath.Join(repo.ButlerDir(), "metadata.toml"))
	return workspace.Project(repo, store, graph.Options{})
}
