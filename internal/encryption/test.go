package encryption

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"

	"idecrypt/internal/decrypt"
	"idecrypt/internal/itunes"
)

var (
	// testKeyHeader prefixes the sealed key material produced by TestKeybag.
	testKeyHeader = []byte("IDKEY\x00\x00\x00")

	// testHeader is prepended to content by TestEncrypter to make ciphertext
	// clearly different from plaintext while remaining deterministic and reversible.
	testHeader = []byte("IDENC\x00\x00\x00")
)

// TestKeybag is a simple, deterministic keybag for testing. The sealed key
// material is a header followed by the SHA-256 of the passphrase, and content
// is "encrypted" by prepending a fixed 8-byte header. No real crypto.
type TestKeybag struct{}

var (
	_ itunes.Keybag = (*TestKeybag)(nil)
	_ Sealer        = (*TestKeybag)(nil)
)

// NewTestKeybag creates a new TestKeybag.
func NewTestKeybag() *TestKeybag {
	return &TestKeybag{}
}

func (k *TestKeybag) Seal(passphrase string) ([]byte, Encrypter, error) {
	sum := sha256.Sum256([]byte(passphrase))
	sealed := append(append([]byte{}, testKeyHeader...), sum[:]...)
	return sealed, &TestEncrypter{}, nil
}

func (k *TestKeybag) Unlock(sealed []byte, passphrase string) (itunes.Decrypter, error) {
	if !bytes.HasPrefix(sealed, testKeyHeader) {
		return nil, fmt.Errorf("invalid test keybag header")
	}
	sum := sha256.Sum256([]byte(passphrase))
	if !bytes.Equal(sealed[len(testKeyHeader):], sum[:]) {
		return nil, fmt.Errorf("%w: passphrase does not open the keybag", decrypt.ErrInvalidCredential)
	}
	return &TestDecrypter{}, nil
}

// TestEncrypter prepends the test header.
type TestEncrypter struct{}

var _ Encrypter = (*TestEncrypter)(nil)

func (e *TestEncrypter) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

// TestDecrypter strips the test header added by TestEncrypter.
type TestDecrypter struct{}

var _ itunes.Decrypter = (*TestDecrypter)(nil)

func (d *TestDecrypter) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
