package testutil

import (
	"fmt"
	"os"
	"sync"

	"idecrypt/internal/decrypt"
)

// FakeRecord is an in-memory decrypt.Record. Extract writes Content unless
// ExtractFunc is set.
type FakeRecord struct {
	FileID       string
	FileDomain   string
	Path         string
	Kind         decrypt.FileType
	DeclaredSize int64
	Encrypted    bool
	Location     string
	Content      []byte

	// ExtractFunc replaces the default extraction when set.
	ExtractFunc func(dest string) error

	mu       sync.Mutex
	extracts []string
}

// NewFakeRecord creates a regular, encrypted record whose declared size is
// len(content).
func NewFakeRecord(id string, content []byte) *FakeRecord {
	return &FakeRecord{
		FileID:       id,
		FileDomain:   "HomeDomain",
		Path:         "Library/" + id,
		Kind:         decrypt.FileTypeRegular,
		DeclaredSize: int64(len(content)),
		Encrypted:    true,
		Content:      content,
	}
}

// NewFakeDirectory creates a directory record.
func NewFakeDirectory(id string) *FakeRecord {
	return &FakeRecord{
		FileID:     id,
		FileDomain: "HomeDomain",
		Path:       "Library",
		Kind:       decrypt.FileTypeDirectory,
		Encrypted:  true,
	}
}

func (r *FakeRecord) ID() string              { return r.FileID }
func (r *FakeRecord) Domain() string          { return r.FileDomain }
func (r *FakeRecord) RelativePath() string    { return r.Path }
func (r *FakeRecord) Type() decrypt.FileType  { return r.Kind }
func (r *FakeRecord) Size() int64             { return r.DeclaredSize }
func (r *FakeRecord) IsEncrypted() bool       { return r.Encrypted }
func (r *FakeRecord) ContentLocation() string { return r.Location }

func (r *FakeRecord) Extract(dest string) error {
	r.mu.Lock()
	r.extracts = append(r.extracts, dest)
	r.mu.Unlock()

	if r.ExtractFunc != nil {
		return r.ExtractFunc(dest)
	}
	return os.WriteFile(dest, r.Content, 0644)
}

// Extracts returns the destinations Extract was called with, in order.
func (r *FakeRecord) Extracts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.extracts...)
}

var _ decrypt.Record = (*FakeRecord)(nil)

// FakeSession is an in-memory decrypt.Session over a fixed record list.
type FakeSession struct {
	Locked     bool
	Password   string
	Records    []decrypt.Record
	CatalogErr error
	SearchErr  error
	ExportErr  error

	mu            sync.Mutex
	unlockCalls   int
	cleanUpCalls  int
	catalogCalls  int
	exportedTo    []string
	searchPattern [2]string
}

// NewFakeSession creates an unlocked session over records.
func NewFakeSession(records ...decrypt.Record) *FakeSession {
	return &FakeSession{Records: records}
}

// NewLockedFakeSession creates a session that unlocks with password.
func NewLockedFakeSession(password string, records ...decrypt.Record) *FakeSession {
	return &FakeSession{Locked: true, Password: password, Records: records}
}

func (s *FakeSession) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Locked
}

func (s *FakeSession) Unlock(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlockCalls++
	if password != s.Password {
		return fmt.Errorf("%w: fake password mismatch", decrypt.ErrInvalidCredential)
	}
	s.Locked = false
	return nil
}

func (s *FakeSession) DecryptCatalog() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalogCalls++
	if s.Locked {
		return fmt.Errorf("%w: fake session is locked", decrypt.ErrCatalog)
	}
	return s.CatalogErr
}

func (s *FakeSession) SearchFiles(domainPattern, pathPattern string) ([]decrypt.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchPattern = [2]string{domainPattern, pathPattern}
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}
	return s.Records, nil
}

func (s *FakeSession) ExportManifest(outputRoot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exportedTo = append(s.exportedTo, outputRoot)
	return s.ExportErr
}

func (s *FakeSession) CleanUp() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanUpCalls++
	return nil
}

// UnlockCalls returns how many times Unlock was called.
func (s *FakeSession) UnlockCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlockCalls
}

// CatalogCalls returns how many times DecryptCatalog was called.
func (s *FakeSession) CatalogCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalogCalls
}

// CleanUpCalls returns how many times CleanUp was called.
func (s *FakeSession) CleanUpCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanUpCalls
}

// ExportedTo returns the output roots ExportManifest was called with.
func (s *FakeSession) ExportedTo() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.exportedTo...)
}

// SearchPatterns returns the domain and path patterns of the last search.
func (s *FakeSession) SearchPatterns() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchPattern[0], s.searchPattern[1]
}

var (
	_ decrypt.Session          = (*FakeSession)(nil)
	_ decrypt.ManifestExporter = (*FakeSession)(nil)
)
