package itunes_test

import (
	"bytes"
	"testing"

	"idecrypt/internal/itunes"
)

func TestFileMetadata_EncodeDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		md   itunes.FileMetadata
	}{
		{name: "plaintext", md: itunes.FileMetadata{Size: 1234, ProtectionClass: 4}},
		{name: "encrypted", md: itunes.FileMetadata{Size: 99, ProtectionClass: 3, EncryptionKey: []byte{0x01, 0x02, 0x03}}},
		{name: "empty file", md: itunes.FileMetadata{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := itunes.EncodeFileMetadata(tt.md)
			if err != nil {
				t.Fatalf("EncodeFileMetadata() error = %v", err)
			}
			got, err := itunes.DecodeFileMetadata(blob)
			if err != nil {
				t.Fatalf("DecodeFileMetadata() error = %v", err)
			}
			if got.Size != tt.md.Size || got.ProtectionClass != tt.md.ProtectionClass {
				t.Errorf("decoded = %+v, want %+v", got, tt.md)
			}
			if (got.EncryptionKey == nil) != (tt.md.EncryptionKey == nil) || !bytes.Equal(got.EncryptionKey, tt.md.EncryptionKey) {
				t.Errorf("EncryptionKey = %x, want %x", got.EncryptionKey, tt.md.EncryptionKey)
			}
		})
	}
}

func TestDecodeFileMetadata_Invalid(t *testing.T) {
	t.Parallel()

	md, err := itunes.DecodeFileMetadata(nil)
	if err != nil || md.Size != 0 || md.EncryptionKey != nil {
		t.Errorf("DecodeFileMetadata(nil) = %+v, %v, want zero value", md, err)
	}

	if _, err := itunes.DecodeFileMetadata([]byte("definitely not a plist")); err == nil {
		t.Error("DecodeFileMetadata(garbage) error = nil, want error")
	}
}
