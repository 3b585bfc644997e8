package decrypt

import (
	"errors"
	"fmt"
	"io/fs"
)

// Stager is one strategy for holding freshly decrypted bytes before they are
// promoted onto their destination.
type Stager interface {
	// Name identifies the strategy in logs.
	Name() string

	// Prepare returns a fresh staging path for dest. Extraction writes there.
	Prepare(dest string) (string, error)

	// Promote moves the verified artifact at staged onto dest, overwriting it.
	Promote(staged, dest string) error
}

// Replacer materializes a record at an exact path so the path only ever holds
// the previous file or the complete new one. Stagers are tried in order; a
// later stager is only used when the previous one produced a corrupt artifact.
type Replacer struct {
	fsys    Filesystem
	logger  Logger
	stagers []Stager
}

// NewReplacer creates a Replacer trying stagers in the given order.
func NewReplacer(fsys Filesystem, logger Logger, stagers ...Stager) *Replacer {
	return &Replacer{
		fsys:    fsys,
		logger:  logger,
		stagers: stagers,
	}
}

// Replace extracts rec onto dest and returns the name of the stager that
// succeeded. On failure dest is left as it was and no staging artifact
// remains. The error returned is always the first stager's error, wrapped as
// ErrExtraction.
func (r *Replacer) Replace(rec Record, dest string) (string, error) {
	if len(r.stagers) == 0 {
		return "", fmt.Errorf("%w: no staging strategy configured", ErrExtraction)
	}

	var firstErr error
	for i, st := range r.stagers {
		err := r.attempt(st, rec, dest)
		if err == nil {
			return st.Name(), nil
		}

		if firstErr != nil {
			r.logger.Debug("alternative staging also failed", "id", rec.ID(), "strategy", st.Name(), "error", err)
			break
		}
		firstErr = err

		if !errors.Is(err, ErrCorruptArtifact) || i == len(r.stagers)-1 {
			break
		}
		r.logger.Debug("staging artifact unusable, retrying extraction",
			"id", rec.ID(), "failed", st.Name(), "next", r.stagers[i+1].Name(), "error", err)
	}

	if !errors.Is(firstErr, ErrExtraction) {
		firstErr = fmt.Errorf("%w: %w", ErrExtraction, firstErr)
	}
	return "", firstErr
}

// attempt runs a single extract, verify, promote cycle with one stager.
func (r *Replacer) attempt(st Stager, rec Record, dest string) error {
	staged, err := st.Prepare(dest)
	if err != nil {
		return fmt.Errorf("%w: preparing %s staging: %w", ErrExtraction, st.Name(), err)
	}

	promoted := false
	defer func() {
		if !promoted {
			r.discard(staged)
		}
	}()

	r.logger.Debug("decrypting to staging file", "staged", staged, "dest", dest, "size", rec.Size())

	if err := rec.Extract(staged); err != nil {
		return fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	if err := r.verify(staged, rec.Size()); err != nil {
		return err
	}

	if err := st.Promote(staged, dest); err != nil {
		return fmt.Errorf("%w: promoting staging file: %w", ErrExtraction, err)
	}

	promoted = true
	return nil
}

// verify checks that the artifact exists and is not empty when content was expected.
func (r *Replacer) verify(staged string, declaredSize int64) error {
	info, err := r.fsys.Stat(staged)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: staging file was not created at %s", ErrCorruptArtifact, staged)
		}
		return fmt.Errorf("%w: stat staging file: %w", ErrCorruptArtifact, err)
	}
	if info.Size() == 0 && declaredSize > 0 {
		return fmt.Errorf("%w: staging file is empty: %s (declared size %d bytes)", ErrCorruptArtifact, staged, declaredSize)
	}
	return nil
}

// discard deletes a staging artifact that was not promoted.
func (r *Replacer) discard(staged string) {
	if err := r.fsys.Remove(staged); err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn("could not delete staging file after error", "path", staged, "error", err)
	}
}
