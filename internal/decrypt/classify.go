package decrypt

// Mode selects where decrypted files are materialized.
type Mode int

const (
	// ModeOutputTree decrypts into a new directory mirroring the archive's shard layout.
	ModeOutputTree Mode = iota
	// ModeInPlace overwrites the encrypted content files inside the archive.
	ModeInPlace
)

func (m Mode) String() string {
	if m == ModeInPlace {
		return "in-place"
	}
	return "output"
}

// Disposition is the per-record decision of what to do.
type Disposition int

const (
	// NeedsExtraction means the record must be materialized.
	NeedsExtraction Disposition = iota
	// Directory records are implied by path creation and never materialized.
	Directory
	// AlreadyEncryptedSkippable is an in-place record with no encrypted content to rewrite.
	AlreadyEncryptedSkippable
	// AlreadyMaterializedSkippable is an output-tree record whose destination exists.
	AlreadyMaterializedSkippable
)

func (d Disposition) String() string {
	switch d {
	case Directory:
		return "directory"
	case AlreadyEncryptedSkippable:
		return "not encrypted"
	case AlreadyMaterializedSkippable:
		return "exists"
	default:
		return "needs extraction"
	}
}

// Skip reports whether the disposition ends the record without extraction.
func (d Disposition) Skip() bool {
	return d != NeedsExtraction
}

// Classify decides what to do with rec. It has no side effects.
// destinationExists is only consulted in output-tree mode.
func Classify(rec Record, mode Mode, force bool, destinationExists bool) Disposition {
	if rec.Type() == FileTypeDirectory {
		return Directory
	}

	if mode == ModeInPlace {
		if !rec.IsEncrypted() {
			return AlreadyEncryptedSkippable
		}
		return NeedsExtraction
	}

	if destinationExists && !force {
		return AlreadyMaterializedSkippable
	}
	return NeedsExtraction
}
