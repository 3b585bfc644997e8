package encryption

import "io"

// Encrypter writes ciphertext that the matching unlocked keybag can decrypt.
type Encrypter interface {
	Encrypt(r io.Reader, w io.Writer) error
}

// Sealer creates fresh passphrase-protected key material. Used to build
// encrypted backups, mostly in tests.
type Sealer interface {
	Seal(passphrase string) (sealed []byte, enc Encrypter, err error)
}
