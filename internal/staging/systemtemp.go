package staging

import (
	"errors"
	"fmt"
	"io/fs"

	"idecrypt/internal/decrypt"
)

// tempPattern names staging files created in the temp directory.
const tempPattern = "backup_decrypt_*.tmp"

// SystemTemp stages in a separate temp directory. It is the retry path when a
// colocated staging file comes out corrupt. Promotion copies the temp file to
// a sibling of the destination and renames it into place, so a failed copy
// never touches the destination.
type SystemTemp struct {
	fsys   decrypt.Filesystem
	ids    decrypt.IDGenerator
	dir    string
	logger decrypt.Logger
}

// NewSystemTemp creates a SystemTemp stager. An empty dir means the system
// temp directory.
func NewSystemTemp(fsys decrypt.Filesystem, ids decrypt.IDGenerator, dir string, logger decrypt.Logger) *SystemTemp {
	return &SystemTemp{fsys: fsys, ids: ids, dir: dir, logger: logger}
}

func (s *SystemTemp) Name() string { return "system-temp" }

// Prepare creates an empty uniquely named file in the temp directory.
func (s *SystemTemp) Prepare(dest string) (string, error) {
	path, err := s.fsys.CreateTemp(s.dir, tempPattern)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	return path, nil
}

// Promote copies staged to <dest>.tmp.<id>, moves that onto dest and deletes
// staged. The sibling is removed on failure.
func (s *SystemTemp) Promote(staged, dest string) error {
	sibling := dest + ".tmp." + s.ids.New()

	if err := s.fsys.CopyFile(staged, sibling); err != nil {
		s.remove(sibling)
		return fmt.Errorf("copying temp file next to destination: %w", err)
	}

	if err := renameOrCopy(s.fsys, s.logger, sibling, dest); err != nil {
		s.remove(sibling)
		return err
	}

	if err := s.fsys.Remove(staged); err != nil {
		s.logger.Warn("could not delete temp file", "path", staged, "error", err)
	}
	return nil
}

func (s *SystemTemp) remove(path string) {
	if err := s.fsys.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("could not delete staging copy", "path", path, "error", err)
	}
}

var _ decrypt.Stager = (*SystemTemp)(nil)
