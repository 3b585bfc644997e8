package staging

import (
	"idecrypt/internal/config"
	"idecrypt/internal/decrypt"
)

// NewStagersFromConfig returns the staging strategies in the order the
// replacer tries them: colocated first, then the temp directory.
func NewStagersFromConfig(cfg config.StagingConfig, fsys decrypt.Filesystem, ids decrypt.IDGenerator, logger decrypt.Logger) []decrypt.Stager {
	return []decrypt.Stager{
		NewColocated(fsys, ids, logger),
		NewSystemTemp(fsys, ids, cfg.TempDir, logger),
	}
}
