package itunes

import (
	"database/sql"
	"fmt"

	"idecrypt/internal/decrypt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Catalog flag values stored in Files.flags.
const (
	flagRegular   = 1
	flagDirectory = 2
	flagSymlink   = 4
)

const searchFilesQuery = `SELECT fileID, domain, relativePath, flags, file
FROM Files
WHERE domain LIKE ? AND relativePath LIKE ?
ORDER BY domain, relativePath`

// catalogRow is one row of the Files table.
type catalogRow struct {
	FileID       string
	Domain       string
	RelativePath string
	Flags        int64
	File         []byte
}

// catalog is a read-only connection to a plaintext Manifest.db.
type catalog struct {
	db   *sql.DB
	path string
}

func openCatalog(path string) (*catalog, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to catalog: %w", err)
	}
	return &catalog{db: db, path: path}, nil
}

func (c *catalog) search(domainPattern, pathPattern string) ([]catalogRow, error) {
	rows, err := c.db.Query(searchFilesQuery, domainPattern, pathPattern)
	if err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()

	var out []catalogRow
	for rows.Next() {
		var (
			r      catalogRow
			domain sql.NullString
			path   sql.NullString
		)
		if err := rows.Scan(&r.FileID, &domain, &path, &r.Flags, &r.File); err != nil {
			return nil, fmt.Errorf("scanning file row: %w", err)
		}
		r.Domain = domain.String
		r.RelativePath = path.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating file rows: %w", err)
	}
	return out, nil
}

func (c *catalog) close() error {
	return c.db.Close()
}

func fileTypeFromFlags(flags int64) decrypt.FileType {
	switch flags {
	case flagRegular:
		return decrypt.FileTypeRegular
	case flagDirectory:
		return decrypt.FileTypeDirectory
	case flagSymlink:
		return decrypt.FileTypeSymlink
	default:
		return decrypt.FileTypeUnknown
	}
}
