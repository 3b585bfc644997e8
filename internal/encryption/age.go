package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"

	"idecrypt/internal/decrypt"
	"idecrypt/internal/itunes"
)

// AgeKeybag implements itunes.Keybag using filippo.io/age. The backup's key
// material is an X25519 identity encrypted with the backup password using
// age's scrypt-based passphrase encryption; content is encrypted to that
// identity's recipient.
type AgeKeybag struct {
	// WorkFactor is the scrypt work factor used by Seal. Zero uses age's default.
	WorkFactor int
}

var (
	_ itunes.Keybag = (*AgeKeybag)(nil)
	_ Sealer        = (*AgeKeybag)(nil)
)

// NewAgeKeybag creates an AgeKeybag with age's default scrypt work factor.
func NewAgeKeybag() *AgeKeybag {
	return &AgeKeybag{}
}

// Seal generates a new X25519 identity and encrypts it with passphrase. It
// returns the sealed key material and an Encrypter for the identity's recipient.
func (k *AgeKeybag) Seal(passphrase string) ([]byte, Encrypter, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, nil, fmt.Errorf("generating key pair: %w", err)
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if k.WorkFactor > 0 {
		recipient.SetWorkFactor(k.WorkFactor)
	}

	var sealed bytes.Buffer
	w, err := age.Encrypt(&sealed, recipient)
	if err != nil {
		return nil, nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return nil, nil, fmt.Errorf("writing encrypted private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, nil, fmt.Errorf("finalizing encrypted private key: %w", err)
	}

	return sealed.Bytes(), &AgeEncrypter{recipient: identity.Recipient()}, nil
}

// Unlock decrypts the sealed identity with passphrase. A passphrase that does
// not open the key material yields an error wrapping decrypt.ErrInvalidCredential.
func (k *AgeKeybag) Unlock(sealed []byte, passphrase string) (itunes.Decrypter, error) {
	if len(sealed) == 0 {
		return nil, fmt.Errorf("backup has no key material")
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", decrypt.ErrInvalidCredential, err)
	}

	decReader, err := age.Decrypt(bytes.NewReader(sealed), identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, fmt.Errorf("%w: passphrase does not open the keybag", decrypt.ErrInvalidCredential)
		}
		return nil, fmt.Errorf("decrypting private key: %w", err)
	}

	keyData, err := io.ReadAll(decReader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted private key: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(keyData))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities found in private key")
	}

	return &AgeDecrypter{identity: identities[0]}, nil
}

// AgeEncrypter encrypts to a single age recipient.
type AgeEncrypter struct {
	recipient age.Recipient
}

var _ Encrypter = (*AgeEncrypter)(nil)

// Encrypt reads plaintext from r and writes age-encrypted ciphertext to w.
func (e *AgeEncrypter) Encrypt(r io.Reader, w io.Writer) error {
	encWriter, err := age.Encrypt(w, e.recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}

	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}

	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}

	return nil
}

// AgeDecrypter holds an unlocked age identity for decrypting data.
type AgeDecrypter struct {
	identity age.Identity
}

var _ itunes.Decrypter = (*AgeDecrypter)(nil)

// Decrypt reads age-encrypted ciphertext from r and writes plaintext to w.
func (d *AgeDecrypter) Decrypt(r io.Reader, w io.Writer) error {
	decReader, err := age.Decrypt(r, d.identity)
	if err != nil {
		return fmt.Errorf("creating decrypted reader: %w", err)
	}

	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}

	return nil
}
