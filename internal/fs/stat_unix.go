//go:build unix

package fs

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// CheckWritable returns an error if the calling user cannot create entries in dir.
func (m *OSFilesystem) CheckWritable(dir string) error {
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	return nil
}
