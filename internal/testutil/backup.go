package testutil

import (
	"bytes"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"idecrypt/internal/decrypt"
	"idecrypt/internal/encryption"
	"idecrypt/internal/itunes"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// BackupFile is one catalog entry written by BuildBackup.
type BackupFile struct {
	// ID defaults to the SHA-1 of "<domain>-<path>", as devices name files.
	ID           string
	Domain       string
	RelativePath string
	Kind         decrypt.FileType
	Content      []byte
	// Plaintext stores the content unencrypted even in an encrypted backup.
	Plaintext bool
	// NoContent skips writing the content file.
	NoContent bool
	// DeclaredSize overrides len(Content) in the catalog metadata when non-zero.
	DeclaredSize int64
}

// FileID returns the identifier the file is stored under.
func (f BackupFile) FileID() string {
	if f.ID != "" {
		return f.ID
	}
	sum := sha1.Sum([]byte(f.Domain + "-" + f.RelativePath))
	return hex.EncodeToString(sum[:])
}

// BackupLayout describes a backup directory to build.
type BackupLayout struct {
	Encrypted bool
	Password  string
	// Sealer seals the key material of encrypted backups. Defaults to the test keybag.
	Sealer        encryption.Sealer
	Device        itunes.Lockdown
	Date          time.Time
	WithInfoPlist bool
	Files         []BackupFile
}

const createFilesTable = `CREATE TABLE Files (
	fileID TEXT PRIMARY KEY,
	domain TEXT,
	relativePath TEXT,
	flags INTEGER,
	file BLOB
)`

// BuildBackup writes a backup directory in the iTunes layout under dir.
func BuildBackup(t *testing.T, dir string, layout BackupLayout) {
	t.Helper()

	if layout.Sealer == nil {
		layout.Sealer = encryption.NewTestKeybag()
	}
	if layout.Date.IsZero() {
		layout.Date = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	}
	if layout.Device.DeviceName == "" {
		layout.Device = itunes.Lockdown{DeviceName: "Test iPhone", ProductType: "iPhone14,2", ProductVersion: "17.2"}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating backup dir: %v", err)
	}

	manifest := itunes.Manifest{
		IsEncrypted: layout.Encrypted,
		Version:     "10.0",
		Date:        layout.Date,
		Lockdown:    layout.Device,
	}

	var enc encryption.Encrypter
	if layout.Encrypted {
		sealed, e, err := layout.Sealer.Seal(layout.Password)
		if err != nil {
			t.Fatalf("sealing keybag: %v", err)
		}
		manifest.BackupKeyBag = sealed
		enc = e
	}

	if err := itunes.WritePlist(filepath.Join(dir, itunes.ManifestPlistName), manifest); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}

	if layout.WithInfoPlist {
		info := itunes.InfoPlist{
			DeviceName:     layout.Device.DeviceName,
			ProductType:    layout.Device.ProductType,
			ProductVersion: layout.Device.ProductVersion,
			LastBackupDate: layout.Date,
		}
		if err := itunes.WritePlist(filepath.Join(dir, itunes.InfoPlistName), info); err != nil {
			t.Fatalf("writing info plist: %v", err)
		}
	}

	catalogPath := filepath.Join(dir, itunes.ManifestDBName)
	if layout.Encrypted {
		catalogPath = filepath.Join(t.TempDir(), itunes.ManifestDBName)
	}
	writeCatalog(t, catalogPath, layout)

	if layout.Encrypted {
		plain, err := os.ReadFile(catalogPath)
		if err != nil {
			t.Fatalf("reading plaintext catalog: %v", err)
		}
		var sealed bytes.Buffer
		if err := enc.Encrypt(bytes.NewReader(plain), &sealed); err != nil {
			t.Fatalf("encrypting catalog: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, itunes.ManifestDBName), sealed.Bytes(), 0644); err != nil {
			t.Fatalf("writing encrypted catalog: %v", err)
		}
	}

	for _, f := range layout.Files {
		if f.Kind == decrypt.FileTypeDirectory || f.NoContent {
			continue
		}
		path, err := decrypt.ShardPath(dir, f.FileID())
		if err != nil {
			t.Fatalf("content path: %v", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("creating shard dir: %v", err)
		}

		data := f.Content
		if layout.Encrypted && !f.Plaintext {
			var sealed bytes.Buffer
			if err := enc.Encrypt(bytes.NewReader(f.Content), &sealed); err != nil {
				t.Fatalf("encrypting %s: %v", f.RelativePath, err)
			}
			data = sealed.Bytes()
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			t.Fatalf("writing content %s: %v", f.RelativePath, err)
		}
	}
}

func writeCatalog(t *testing.T, path string, layout BackupLayout) {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("opening catalog: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(createFilesTable); err != nil {
		t.Fatalf("creating Files table: %v", err)
	}

	for _, f := range layout.Files {
		md := itunes.FileMetadata{Size: int64(len(f.Content)), ProtectionClass: 3}
		if f.DeclaredSize != 0 {
			md.Size = f.DeclaredSize
		}
		if f.Kind == decrypt.FileTypeDirectory {
			md.Size = 0
		}
		if layout.Encrypted && !f.Plaintext && f.Kind != decrypt.FileTypeDirectory {
			md.EncryptionKey = []byte("wrapped-key-" + f.FileID())
		}

		blob, err := itunes.EncodeFileMetadata(md)
		if err != nil {
			t.Fatalf("encoding metadata: %v", err)
		}

		if _, err := db.Exec(
			`INSERT INTO Files (fileID, domain, relativePath, flags, file) VALUES (?, ?, ?, ?, ?)`,
			f.FileID(), f.Domain, f.RelativePath, catalogFlags(f.Kind), blob,
		); err != nil {
			t.Fatalf("inserting %s: %v", f.RelativePath, err)
		}
	}
}

func catalogFlags(kind decrypt.FileType) int {
	switch kind {
	case decrypt.FileTypeDirectory:
		return 2
	case decrypt.FileTypeSymlink:
		return 4
	default:
		return 1
	}
}

// ReadFile returns the content of path, failing the test on error.
func ReadFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return data
}
