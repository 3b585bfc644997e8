package itunes

import (
	"fmt"
	"os"
	"time"

	"howett.net/plist"
)

const (
	ManifestPlistName = "Manifest.plist"
	ManifestDBName    = "Manifest.db"
	InfoPlistName     = "Info.plist"
)

// Manifest is the subset of Manifest.plist the session reads.
type Manifest struct {
	IsEncrypted  bool      `plist:"IsEncrypted"`
	BackupKeyBag []byte    `plist:"BackupKeyBag,omitempty"`
	Version      string    `plist:"Version,omitempty"`
	Date         time.Time `plist:"Date"`
	Lockdown     Lockdown  `plist:"Lockdown"`
}

// Lockdown carries the device identity recorded at backup time.
type Lockdown struct {
	DeviceName     string `plist:"DeviceName,omitempty"`
	ProductType    string `plist:"ProductType,omitempty"`
	ProductVersion string `plist:"ProductVersion,omitempty"`
	BuildVersion   string `plist:"BuildVersion,omitempty"`
	UniqueDeviceID string `plist:"UniqueDeviceID,omitempty"`
}

// InfoPlist is the subset of Info.plist used to fill gaps in the manifest.
type InfoPlist struct {
	DeviceName     string    `plist:"Device Name,omitempty"`
	ProductType    string    `plist:"Product Type,omitempty"`
	ProductVersion string    `plist:"Product Version,omitempty"`
	LastBackupDate time.Time `plist:"Last Backup Date"`
}

// Info describes the device and backup.
type Info struct {
	DeviceName     string
	ProductType    string
	ProductVersion string
	Date           time.Time
	Encrypted      bool
}

func newInfo(m Manifest, ip *InfoPlist) Info {
	info := Info{
		DeviceName:     m.Lockdown.DeviceName,
		ProductType:    m.Lockdown.ProductType,
		ProductVersion: m.Lockdown.ProductVersion,
		Date:           m.Date,
		Encrypted:      m.IsEncrypted,
	}
	if ip == nil {
		return info
	}
	if info.DeviceName == "" {
		info.DeviceName = ip.DeviceName
	}
	if info.ProductType == "" {
		info.ProductType = ip.ProductType
	}
	if info.ProductVersion == "" {
		info.ProductVersion = ip.ProductVersion
	}
	if info.Date.IsZero() {
		info.Date = ip.LastBackupDate
	}
	return info
}

// ReadPlist decodes the plist at path into v. Any plist format is accepted.
func ReadPlist(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if _, err := plist.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// WritePlist encodes v as a binary plist at path.
func WritePlist(path string, v any) error {
	data, err := plist.Marshal(v, plist.BinaryFormat)
	if err != nil {
		return fmt.Errorf("encoding plist: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
