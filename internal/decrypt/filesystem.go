package decrypt

import "io/fs"

// Filesystem abstracts the destination filesystem so rename refusals and
// permission failures can be injected in tests.
type Filesystem interface {
	// Stat returns file info for path.
	Stat(path string) (fs.FileInfo, error)

	// MkdirAll creates path and any missing parents.
	MkdirAll(path string, perm fs.FileMode) error

	// Rename atomically replaces newpath with oldpath.
	Rename(oldpath, newpath string) error

	// CopyFile copies src over dst, truncating dst if it exists.
	CopyFile(src, dst string) error

	// Remove deletes a single file.
	Remove(path string) error

	// CheckWritable returns an error if new entries cannot be created in dir.
	CheckWritable(dir string) error

	// CreateTemp creates a new empty file in dir (the system temp directory
	// when dir is empty) and returns its path.
	CreateTemp(dir, pattern string) (string, error)
}
