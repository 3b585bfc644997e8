package encryption

import (
	"bytes"
	"errors"
	"testing"

	"idecrypt/internal/config"
	"idecrypt/internal/decrypt"
)

func TestTestKeybag_SealUnlock(t *testing.T) {
	t.Parallel()

	k := NewTestKeybag()
	sealed, _, err := k.Seal("secret")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	if _, err := k.Unlock(sealed, "secret"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	_, err = k.Unlock(sealed, "wrong")
	if !errors.Is(err, decrypt.ErrInvalidCredential) {
		t.Errorf("Unlock(wrong) error = %v, want ErrInvalidCredential", err)
	}

	if _, err := k.Unlock([]byte("garbage"), "secret"); err == nil {
		t.Error("Unlock() with invalid header should return error")
	}
}

func TestTestEncrypter_EncryptDecrypt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "simple text", input: []byte("hello world")},
		{name: "empty", input: []byte{}},
		{name: "binary data", input: []byte{0x00, 0xff, 0x01, 0xfe}},
		{name: "large data", input: bytes.Repeat([]byte("abcdef"), 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var encrypted bytes.Buffer
			if err := (&TestEncrypter{}).Encrypt(bytes.NewReader(tt.input), &encrypted); err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}

			if bytes.Equal(encrypted.Bytes(), tt.input) {
				t.Error("encrypted output is identical to plaintext")
			}
			if !bytes.HasPrefix(encrypted.Bytes(), testHeader) {
				t.Error("encrypted output does not start with test header")
			}

			var decrypted bytes.Buffer
			if err := (&TestDecrypter{}).Decrypt(bytes.NewReader(encrypted.Bytes()), &decrypted); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}

			if !bytes.Equal(decrypted.Bytes(), tt.input) {
				t.Errorf("round-trip failed: got %q, want %q", decrypted.Bytes(), tt.input)
			}
		})
	}
}

func TestTestDecrypter_InvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "wrong header", input: []byte("NOT_VALID_HEADER_data")},
		{name: "truncated header", input: []byte("ID")},
		{name: "empty", input: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			if err := (&TestDecrypter{}).Decrypt(bytes.NewReader(tt.input), &out); err == nil {
				t.Error("Decrypt() should return error")
			}
		})
	}
}

func TestNewKeybagFromConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ     string
		want    string
		wantErr bool
	}{
		{typ: "", want: "*encryption.AgeKeybag"},
		{typ: "age", want: "*encryption.AgeKeybag"},
		{typ: "test", want: "*encryption.TestKeybag"},
		{typ: "rot13", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			k, err := NewKeybagFromConfig(config.EncryptionConfig{Type: tt.typ})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewKeybagFromConfig() error = %v", err)
			}
			switch k.(type) {
			case *AgeKeybag:
				if tt.want != "*encryption.AgeKeybag" {
					t.Errorf("got AgeKeybag, want %s", tt.want)
				}
			case *TestKeybag:
				if tt.want != "*encryption.TestKeybag" {
					t.Errorf("got TestKeybag, want %s", tt.want)
				}
			}
		})
	}
}
