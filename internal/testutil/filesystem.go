package testutil

import (
	"io/fs"
	"os"
	"sync"
	"syscall"

	"idecrypt/internal/decrypt"
	osfs "idecrypt/internal/fs"
)

// FaultyFilesystem is the real OS filesystem with injectable failures.
// Set the error fields before use; counters are safe for concurrent use.
type FaultyFilesystem struct {
	base *osfs.OSFilesystem

	// RenameErr makes every Rename fail with a *os.LinkError wrapping it.
	RenameErr error
	// CopyErr makes every CopyFile fail.
	CopyErr error
	// CopyPartial makes a failing CopyFile first truncate the destination and
	// write half of the source, as a copy interrupted midway would.
	CopyPartial bool
	// WritableErr makes every CheckWritable fail.
	WritableErr error
	// CreateTempErr makes every CreateTemp fail.
	CreateTempErr error

	mu      sync.Mutex
	renames int
	copies  int
	temps   []string
}

// NewFaultyFilesystem creates a FaultyFilesystem with no faults injected.
func NewFaultyFilesystem() *FaultyFilesystem {
	return &FaultyFilesystem{base: osfs.NewOSFilesystem()}
}

// NewCrossDeviceFilesystem creates a filesystem whose renames fail with EXDEV,
// as when the staging file and destination are on different devices.
func NewCrossDeviceFilesystem() *FaultyFilesystem {
	f := NewFaultyFilesystem()
	f.RenameErr = syscall.EXDEV
	return f
}

func (f *FaultyFilesystem) Stat(path string) (fs.FileInfo, error) {
	return f.base.Stat(path)
}

func (f *FaultyFilesystem) MkdirAll(path string, perm fs.FileMode) error {
	return f.base.MkdirAll(path, perm)
}

func (f *FaultyFilesystem) Rename(oldpath, newpath string) error {
	f.mu.Lock()
	f.renames++
	f.mu.Unlock()

	if f.RenameErr != nil {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: f.RenameErr}
	}
	return f.base.Rename(oldpath, newpath)
}

func (f *FaultyFilesystem) CopyFile(src, dst string) error {
	f.mu.Lock()
	f.copies++
	f.mu.Unlock()

	if f.CopyErr != nil {
		if f.CopyPartial {
			if data, err := os.ReadFile(src); err == nil {
				os.WriteFile(dst, data[:len(data)/2], 0644)
			}
		}
		return f.CopyErr
	}
	return f.base.CopyFile(src, dst)
}

func (f *FaultyFilesystem) Remove(path string) error {
	return f.base.Remove(path)
}

func (f *FaultyFilesystem) CheckWritable(dir string) error {
	if f.WritableErr != nil {
		return f.WritableErr
	}
	return f.base.CheckWritable(dir)
}

func (f *FaultyFilesystem) CreateTemp(dir, pattern string) (string, error) {
	if f.CreateTempErr != nil {
		return "", f.CreateTempErr
	}
	path, err := f.base.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.temps = append(f.temps, path)
	f.mu.Unlock()
	return path, nil
}

// Renames returns the number of Rename calls.
func (f *FaultyFilesystem) Renames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renames
}

// Copies returns the number of CopyFile calls.
func (f *FaultyFilesystem) Copies() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copies
}

// Temps returns the paths created by CreateTemp.
func (f *FaultyFilesystem) Temps() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.temps...)
}

var _ decrypt.Filesystem = (*FaultyFilesystem)(nil)
