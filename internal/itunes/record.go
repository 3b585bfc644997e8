package itunes

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"idecrypt/internal/decrypt"
)

// record is a catalog entry bound to the session that produced it.
type record struct {
	session      *Session
	id           string
	domain       string
	relativePath string
	fileType     decrypt.FileType
	meta         FileMetadata
	metaErr      error
}

var _ decrypt.Record = (*record)(nil)

func (r *record) ID() string              { return r.id }
func (r *record) Domain() string          { return r.domain }
func (r *record) RelativePath() string    { return r.relativePath }
func (r *record) Type() decrypt.FileType  { return r.fileType }
func (r *record) Size() int64             { return r.meta.Size }
func (r *record) IsEncrypted() bool       { return r.session.manifest.IsEncrypted && r.meta.EncryptionKey != nil }
func (r *record) ContentLocation() string { return contentPath(r.session.dir, r.id) }

// Extract streams the content file to dest, decrypting it when the entry is
// encrypted. A failed extraction removes whatever it wrote to dest.
func (r *record) Extract(dest string) error {
	if r.metaErr != nil {
		return fmt.Errorf("decoding file metadata: %w", r.metaErr)
	}

	var dec Decrypter
	if r.IsEncrypted() {
		dec = r.session.decrypter
		if dec == nil {
			return fmt.Errorf("backup is locked")
		}
	}

	src, err := os.Open(r.ContentLocation())
	if err != nil {
		return fmt.Errorf("opening content file: %w", err)
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}

	success := false
	defer func() {
		if !success {
			out.Close()
			os.Remove(dest)
		}
	}()

	if dec != nil {
		if err := dec.Decrypt(src, out); err != nil {
			return fmt.Errorf("decrypting content: %w", err)
		}
	} else if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("copying content: %w", err)
	}

	if err := out.Sync(); err != nil {
		return fmt.Errorf("syncing output file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}

	success = true
	return nil
}

// contentPath returns dir/<id[0:2]>/<id>.
func contentPath(dir, id string) string {
	p, err := decrypt.ShardPath(dir, id)
	if err != nil {
		return filepath.Join(dir, id)
	}
	return p
}
