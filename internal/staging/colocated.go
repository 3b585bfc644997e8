package staging

import (
	"fmt"

	"idecrypt/internal/decrypt"
)

// Colocated stages next to the destination as <dest>.tmp.<id> so promotion is
// a same-directory rename. When the rename is refused it falls back to copying
// the staged bytes over the destination and deleting the staging file.
type Colocated struct {
	fsys   decrypt.Filesystem
	ids    decrypt.IDGenerator
	logger decrypt.Logger
}

// NewColocated creates a Colocated stager.
func NewColocated(fsys decrypt.Filesystem, ids decrypt.IDGenerator, logger decrypt.Logger) *Colocated {
	return &Colocated{fsys: fsys, ids: ids, logger: logger}
}

func (c *Colocated) Name() string { return "colocated" }

// Prepare returns a sibling path that does not exist yet.
func (c *Colocated) Prepare(dest string) (string, error) {
	return dest + ".tmp." + c.ids.New(), nil
}

// Promote renames staged onto dest, copying when the rename fails.
func (c *Colocated) Promote(staged, dest string) error {
	return renameOrCopy(c.fsys, c.logger, staged, dest)
}

// renameOrCopy moves staged onto dest. When the rename is refused it copies
// staged over dest and deletes staged.
func renameOrCopy(fsys decrypt.Filesystem, logger decrypt.Logger, staged, dest string) error {
	renameErr := fsys.Rename(staged, dest)
	if renameErr == nil {
		return nil
	}

	logger.Warn("atomic rename failed, falling back to copy", "staged", staged, "dest", dest, "error", renameErr)

	if err := fsys.CopyFile(staged, dest); err != nil {
		return fmt.Errorf("rename failed (%v) and copy fallback failed: %w", renameErr, err)
	}

	if err := fsys.Remove(staged); err != nil {
		logger.Warn("could not delete staging file after copy", "path", staged, "error", err)
	}
	return nil
}

var _ decrypt.Stager = (*Colocated)(nil)
