package encryption

import (
	"fmt"

	"idecrypt/internal/config"
	"idecrypt/internal/itunes"
)

// NewKeybagFromConfig creates a Keybag based on the configuration type.
func NewKeybagFromConfig(cfg config.EncryptionConfig) (itunes.Keybag, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeKeybag(), nil
	case "test":
		return NewTestKeybag(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
