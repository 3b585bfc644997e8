package itunes

import "io"

// Keybag turns a backup's sealed key material and password into a Decrypter.
// A password that does not open the key material must yield an error
// wrapping decrypt.ErrInvalidCredential.
type Keybag interface {
	Unlock(sealed []byte, password string) (Decrypter, error)
}

// Decrypter decrypts catalog and content streams of an unlocked backup.
type Decrypter interface {
	Decrypt(r io.Reader, w io.Writer) error
}
