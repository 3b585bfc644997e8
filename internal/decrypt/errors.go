package decrypt

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredential means the unlock password was wrong. Fatal.
	ErrInvalidCredential = errors.New("invalid backup password")

	// ErrSetup covers bad paths, conflicting modes and a non-empty output
	// directory. Fatal, reported before any file is touched.
	ErrSetup = errors.New("setup error")

	// ErrCatalog means the file catalog could not be decrypted or read. Fatal.
	ErrCatalog = errors.New("catalog error")

	// ErrCancelled means the operator declined the in-place confirmation.
	ErrCancelled = errors.New("operation cancelled")

	// ErrExtraction is a decryption or I/O failure for one record.
	ErrExtraction = errors.New("extraction failed")

	// ErrCorruptArtifact means a staging artifact was missing or implausibly
	// empty after extraction.
	ErrCorruptArtifact = errors.New("corrupt staging artifact")

	// ErrPermission means the destination directory is not writable.
	ErrPermission = errors.New("permission denied")
)

// RecordError ties a per-record failure to the record's identity.
type RecordError struct {
	ID     string
	Domain string
	Path   string
	Err    error
}

func newRecordError(rec Record, err error) *RecordError {
	return &RecordError{ID: rec.ID(), Domain: rec.Domain(), Path: rec.RelativePath(), Err: err}
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s (%s/%s): %v", e.ID, e.Domain, e.Path, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
