package decrypt

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
)

// shardPrefixLen is the number of leading identifier characters used as the
// shard directory name.
const shardPrefixLen = 2

// ShardPath returns root/id[0:2]/id, the archive's addressing scheme.
func ShardPath(root, id string) (string, error) {
	if len(id) < shardPrefixLen {
		return "", fmt.Errorf("record identifier %q is too short to shard", id)
	}
	return filepath.Join(root, id[:shardPrefixLen], id), nil
}

// Resolver computes extraction targets.
type Resolver struct {
	fsys Filesystem
}

// NewResolver creates a Resolver that checks targets against fsys.
func NewResolver(fsys Filesystem) *Resolver {
	return &Resolver{fsys: fsys}
}

// OutputTarget returns the output-tree destination for rec and whether a file
// already exists there.
func (r *Resolver) OutputTarget(rec Record, outputRoot string) (string, bool, error) {
	dest, err := ShardPath(outputRoot, rec.ID())
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	_, err = r.fsys.Stat(dest)
	switch {
	case err == nil:
		return dest, true, nil
	case errors.Is(err, fs.ErrNotExist):
		return dest, false, nil
	default:
		return "", false, fmt.Errorf("%w: checking destination %s: %v", ErrExtraction, dest, err)
	}
}

// InPlaceTarget returns rec's existing content file. The parent directory must
// be writable; this is checked before any staging artifact is created.
func (r *Resolver) InPlaceTarget(rec Record) (string, error) {
	dest := rec.ContentLocation()
	if dest == "" {
		return "", fmt.Errorf("%w: record has no content location", ErrExtraction)
	}

	info, err := r.fsys.Stat(dest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: content file not found: %s", ErrExtraction, dest)
		}
		return "", fmt.Errorf("%w: stat content file: %v", ErrExtraction, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: content location is a directory: %s", ErrExtraction, dest)
	}

	dir := filepath.Dir(dest)
	if err := r.fsys.CheckWritable(dir); err != nil {
		return "", fmt.Errorf("%w: cannot write to directory %s: %v", ErrPermission, dir, err)
	}

	return dest, nil
}
