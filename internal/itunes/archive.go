package itunes

import (
	"fmt"

	"howett.net/plist"
)

const (
	keyedArchiverName    = "NSKeyedArchiver"
	keyedArchiverVersion = 100000
)

// FileMetadata is the part of a catalog entry's archived MBFile object the
// session uses.
type FileMetadata struct {
	Size            int64
	ProtectionClass int64
	// EncryptionKey is the wrapped per-file key, nil when content is plaintext.
	EncryptionKey []byte
}

type keyedArchive struct {
	Archiver string               `plist:"$archiver"`
	Version  int                  `plist:"$version"`
	Top      map[string]plist.UID `plist:"$top"`
	Objects  []any                `plist:"$objects"`
}

func (a *keyedArchive) object(uid plist.UID) (any, error) {
	if uint64(uid) >= uint64(len(a.Objects)) {
		return nil, fmt.Errorf("object reference %d out of range", uid)
	}
	return a.Objects[uid], nil
}

// DecodeFileMetadata reads the NSKeyedArchiver blob stored in a catalog row.
func DecodeFileMetadata(blob []byte) (FileMetadata, error) {
	var md FileMetadata
	if len(blob) == 0 {
		return md, nil
	}

	var ar keyedArchive
	if _, err := plist.Unmarshal(blob, &ar); err != nil {
		return md, fmt.Errorf("decoding archive: %w", err)
	}

	rootUID, ok := ar.Top["root"]
	if !ok {
		return md, fmt.Errorf("archive has no root object")
	}
	obj, err := ar.object(rootUID)
	if err != nil {
		return md, err
	}
	root, ok := obj.(map[string]any)
	if !ok {
		return md, fmt.Errorf("archive root is %T, want dictionary", obj)
	}

	md.Size = toInt64(root["Size"])
	md.ProtectionClass = toInt64(root["ProtectionClass"])

	keyRef, ok := root["EncryptionKey"].(plist.UID)
	if !ok || keyRef == 0 {
		return md, nil
	}
	keyObj, err := ar.object(keyRef)
	if err != nil {
		return md, fmt.Errorf("encryption key: %w", err)
	}
	switch k := keyObj.(type) {
	case map[string]any:
		data, _ := k["NS.data"].([]byte)
		md.EncryptionKey = data
	case []byte:
		md.EncryptionKey = k
	}
	if md.EncryptionKey == nil {
		md.EncryptionKey = []byte{}
	}
	return md, nil
}

// EncodeFileMetadata archives md the way the catalog stores it.
func EncodeFileMetadata(md FileMetadata) ([]byte, error) {
	root := map[string]any{
		"$class":          plist.UID(2),
		"Size":            md.Size,
		"ProtectionClass": md.ProtectionClass,
	}
	objects := []any{
		"$null",
		root,
		map[string]any{"$classname": "MBFile", "$classes": []string{"MBFile", "NSObject"}},
	}

	if md.EncryptionKey != nil {
		keyIdx := len(objects)
		root["EncryptionKey"] = plist.UID(keyIdx)
		objects = append(objects,
			map[string]any{"NS.data": md.EncryptionKey, "$class": plist.UID(keyIdx + 1)},
			map[string]any{"$classname": "NSMutableData", "$classes": []string{"NSMutableData", "NSData", "NSObject"}},
		)
	}

	ar := keyedArchive{
		Archiver: keyedArchiverName,
		Version:  keyedArchiverVersion,
		Top:      map[string]plist.UID{"root": 1},
		Objects:  objects,
	}
	data, err := plist.Marshal(ar, plist.BinaryFormat)
	if err != nil {
		return nil, fmt.Errorf("encoding archive: %w", err)
	}
	return data, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case uint64:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
