package workspace

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gitbutlerapp/butler/internal/git"
)

const editModeFileName = "edit_mode_metadata.toml"

// EditModeMetadata records which commit of which branch is being amended
// while the edit ref is checked out.
type EditModeMetadata struct {
	CommitOid       string `toml:"commit_oid"`
	BranchReference string `toml:"branch_reference"`
}

// CommitID parses the recorded commit id
func (m *EditModeMetadata) CommitID() plumbing.Hash {
	return plumbing.NewHash(m.CommitOid)
}

func editModePath(repo *git.Repository) string {
	dir := repo.ButlerDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, editModeFileName)
}

// ReadEditMode returns the edit-mode metadata when the repository is in edit
// mode; the second return is false otherwise.
func ReadEditMode(repo *git.Repository) (*EditModeMetadata, bool, error) {
	path := editModePath(repo)
	if path == "" {
		return nil, false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read edit mode metadata: %w", err)
	}
	var meta EditModeMetadata
	if err := toml.Unmarshal(data, &meta); err != nil {
		return nil, false, fmt.Errorf("failed to parse edit mode metadata: %w", err)
	}
	return &meta, true, nil
}

// EnterEditMode points the edit ref at the commit and records the metadata
// file. The caller is responsible for checking out the commit's tree.
func EnterEditMode(repo *git.Repository, commitID plumbing.Hash, branchRef string) error {
	path := editModePath(repo)
	if path == "" {
		return fmt.Errorf("repository has no on-disk state directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	meta := EditModeMetadata{CommitOid: commitID.String(), BranchReference: branchRef}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(meta); err != nil {
		return fmt.Errorf("failed to encode edit mode metadata: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".edit-mode-*.toml")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	tx := repo.NewRefTransaction()
	tx.Set(git.EditModeRef, commitID)
	return tx.Commit()
}

// ExitEditMode removes the edit ref and the metadata file
func ExitEditMode(repo *git.Repository) error {
	tx := repo.NewRefTransaction()
	tx.Delete(git.EditModeRef)
	if err := tx.Commit(); err != nil {
		return err
	}
	path := editModePath(repo)
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
