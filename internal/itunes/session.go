package itunes

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"idecrypt/internal/decrypt"
	"idecrypt/internal/fs"
)

// Session is an opened backup directory in the iTunes layout: Manifest.plist,
// the Manifest.db catalog, an optional Info.plist and content files sharded
// by the first two characters of their identifier.
type Session struct {
	dir      string
	keybag   Keybag
	fsys     decrypt.Filesystem
	logger   decrypt.Logger
	manifest Manifest
	info     Info

	decrypter Decrypter
	catalog   *catalog
	tempDir   string
}

var (
	_ decrypt.Session          = (*Session)(nil)
	_ decrypt.ManifestExporter = (*Session)(nil)
)

// Open reads the manifest of the backup in dir. Key handling is delegated to keybag.
func Open(dir string, keybag Keybag, fsys decrypt.Filesystem, logger decrypt.Logger) (*Session, error) {
	var m Manifest
	manifestPath := filepath.Join(dir, ManifestPlistName)
	if err := ReadPlist(manifestPath, &m); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found in %s", decrypt.ErrSetup, ManifestPlistName, dir)
		}
		return nil, fmt.Errorf("%w: reading manifest: %w", decrypt.ErrSetup, err)
	}

	var ip *InfoPlist
	var parsed InfoPlist
	if err := ReadPlist(filepath.Join(dir, InfoPlistName), &parsed); err == nil {
		ip = &parsed
	} else if !errors.Is(err, os.ErrNotExist) {
		logger.Warn("could not read Info.plist", "error", err)
	}

	return &Session{
		dir:      dir,
		keybag:   keybag,
		fsys:     fsys,
		logger:   logger,
		manifest: m,
		info:     newInfo(m, ip),
	}, nil
}

// Info returns the device and backup description.
func (s *Session) Info() Info {
	return s.info
}

func (s *Session) IsLocked() bool {
	return s.manifest.IsEncrypted && s.decrypter == nil
}

// Unlock unlocks the backup's key material with password. Unencrypted backups
// need no unlock and accept any password.
func (s *Session) Unlock(password string) error {
	if !s.manifest.IsEncrypted {
		return nil
	}

	dec, err := s.keybag.Unlock(s.manifest.BackupKeyBag, password)
	if err != nil {
		if errors.Is(err, decrypt.ErrInvalidCredential) {
			return err
		}
		return fmt.Errorf("unlocking keybag: %w", err)
	}
	s.decrypter = dec
	return nil
}

// DecryptCatalog connects to the catalog, first decrypting it into a private
// temp directory when the backup is encrypted.
func (s *Session) DecryptCatalog() error {
	if s.catalog != nil {
		return nil
	}

	path := filepath.Join(s.dir, ManifestDBName)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s: %w", decrypt.ErrCatalog, ManifestDBName, err)
	}

	if s.manifest.IsEncrypted {
		if s.decrypter == nil {
			return fmt.Errorf("%w: backup is locked", decrypt.ErrCatalog)
		}
		plain, err := s.decryptCatalogFile(path)
		if err != nil {
			return fmt.Errorf("%w: %w", decrypt.ErrCatalog, err)
		}
		path = plain
	}

	cat, err := openCatalog(path)
	if err != nil {
		return fmt.Errorf("%w: %w", decrypt.ErrCatalog, err)
	}
	s.catalog = cat
	s.logger.Debug("catalog ready", "path", path)
	return nil
}

func (s *Session) decryptCatalogFile(src string) (string, error) {
	tmp, err := os.MkdirTemp("", "idecrypt-catalog-*")
	if err != nil {
		return "", fmt.Errorf("creating catalog temp directory: %w", err)
	}
	s.tempDir = tmp

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("opening encrypted catalog: %w", err)
	}
	defer in.Close()

	dest := filepath.Join(tmp, ManifestDBName)
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("creating decrypted catalog: %w", err)
	}
	if err := s.decrypter.Decrypt(in, out); err != nil {
		out.Close()
		return "", fmt.Errorf("decrypting catalog: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("closing decrypted catalog: %w", err)
	}
	return dest, nil
}

// SearchFiles returns catalog records whose domain and relative path match
// the SQL LIKE patterns.
func (s *Session) SearchFiles(domainPattern, pathPattern string) ([]decrypt.Record, error) {
	if s.catalog == nil {
		return nil, fmt.Errorf("%w: catalog not opened", decrypt.ErrCatalog)
	}

	rows, err := s.catalog.search(domainPattern, pathPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", decrypt.ErrCatalog, err)
	}

	records := make([]decrypt.Record, 0, len(rows))
	for _, row := range rows {
		rec := &record{
			session:      s,
			id:           row.FileID,
			domain:       row.Domain,
			relativePath: row.RelativePath,
			fileType:     fileTypeFromFlags(row.Flags),
		}
		rec.meta, rec.metaErr = DecodeFileMetadata(row.File)
		records = append(records, rec)
	}
	return records, nil
}

// ExportManifest copies Manifest.plist, the readable catalog and Info.plist
// into outputRoot so the output tree can be opened as an unencrypted backup.
func (s *Session) ExportManifest(outputRoot string) error {
	if _, err := fs.CopyInto(s.fsys, filepath.Join(s.dir, ManifestPlistName), outputRoot); err != nil {
		return fmt.Errorf("copying %s: %w", ManifestPlistName, err)
	}

	if s.catalog != nil {
		if err := s.fsys.CopyFile(s.catalog.path, filepath.Join(outputRoot, ManifestDBName)); err != nil {
			return fmt.Errorf("copying %s: %w", ManifestDBName, err)
		}
	}

	copied, err := fs.CopyInto(s.fsys, filepath.Join(s.dir, InfoPlistName), outputRoot)
	if err != nil {
		return fmt.Errorf("copying %s: %w", InfoPlistName, err)
	}
	if !copied {
		s.logger.Debug("no Info.plist to copy")
	}

	s.logger.Info("copied manifest files to output directory", "dir", outputRoot)
	return nil
}

// CleanUp closes the catalog and removes the decrypted catalog copy.
func (s *Session) CleanUp() error {
	var errs []error
	if s.catalog != nil {
		if err := s.catalog.close(); err != nil {
			errs = append(errs, fmt.Errorf("closing catalog: %w", err))
		}
		s.catalog = nil
	}
	if s.tempDir != "" {
		if err := os.RemoveAll(s.tempDir); err != nil {
			errs = append(errs, fmt.Errorf("removing catalog temp directory: %w", err))
		}
		s.tempDir = ""
	}
	return errors.Join(errs...)
}
