package decrypt

// FileType is the catalog's classification of a backed-up entry.
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeRegular
	FileTypeDirectory
	FileTypeSymlink
)

func (t FileType) String() string {
	switch t {
	case FileTypeRegular:
		return "regular"
	case FileTypeDirectory:
		return "directory"
	case FileTypeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// MatchAll is the search pattern that matches every domain or path.
const MatchAll = "%"

// Session is an opened backup archive. It owns the archive's lock state and
// its file catalog. Implementations do the key handling and decryption; the
// run controller only drives them through this interface.
type Session interface {
	// IsLocked reports whether Unlock must succeed before the catalog can be read.
	IsLocked() bool

	// Unlock unlocks the archive with password.
	// A wrong password yields an error wrapping ErrInvalidCredential.
	Unlock(password string) error

	// DecryptCatalog makes the file catalog readable and connects to it.
	DecryptCatalog() error

	// SearchFiles returns the catalog records whose domain and relative path
	// match the given LIKE patterns. MatchAll matches everything.
	SearchFiles(domainPattern, pathPattern string) ([]Record, error)

	// CleanUp releases the catalog connection and any temporary files.
	CleanUp() error
}

// Record is one catalog entry. Identity, size and the encrypted flag are fixed
// for the lifetime of the session.
type Record interface {
	// ID is the fixed-length hex identifier that addresses the entry.
	ID() string
	Domain() string
	RelativePath() string
	Type() FileType
	// Size is the declared plaintext size in bytes.
	Size() int64
	IsEncrypted() bool

	// ContentLocation is the on-disk path of the entry's content inside the archive.
	ContentLocation() string

	// Extract writes the decrypted content to dest, creating or truncating it.
	Extract(dest string) error
}

// ManifestExporter is implemented by sessions that can copy their manifest
// files into an output tree so the tree stays loadable as a backup.
type ManifestExporter interface {
	ExportManifest(outputRoot string) error
}
