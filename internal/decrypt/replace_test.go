package decrypt_test

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"idecrypt/internal/decrypt"
	"idecrypt/internal/staging"
	"idecrypt/internal/testutil"
)

func newReplacer(fsys decrypt.Filesystem, tempDir string) *decrypt.Replacer {
	logger := decrypt.NewNopLogger()
	ids := testutil.NewStubIDGenerator()
	return decrypt.NewReplacer(fsys, logger,
		staging.NewColocated(fsys, ids, logger),
		staging.NewSystemTemp(fsys, ids, tempDir, logger),
	)
}

// writeDest creates dir/name with content and returns its path.
func writeDest(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// assertNoStaging fails if any staging artifact remains in dirs.
func assertNoStaging(t *testing.T, dirs ...string) {
	t.Helper()
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("reading %s: %v", dir, err)
		}
		for _, e := range entries {
			if strings.Contains(e.Name(), ".tmp") {
				t.Errorf("staging artifact left behind: %s", filepath.Join(dir, e.Name()))
			}
		}
	}
}

func assertContent(t *testing.T, path string, want []byte) {
	t.Helper()
	got := testutil.ReadFile(t, path)
	if !bytes.Equal(got, want) {
		t.Errorf("%s = %q, want %q", filepath.Base(path), got, want)
	}
}

func isColocatedStaging(path string) bool {
	return strings.Contains(filepath.Base(path), ".tmp.")
}

func TestReplacer_Replace(t *testing.T) {
	t.Parallel()

	t.Run("replaces existing file atomically", func(t *testing.T) {
		dir, tmp := t.TempDir(), t.TempDir()
		dest := writeDest(t, dir, "ab123456", []byte("ciphertext"))
		rec := testutil.NewFakeRecord("ab123456", []byte("plaintext"))

		strategy, err := newReplacer(testutil.NewFaultyFilesystem(), tmp).Replace(rec, dest)
		if err != nil {
			t.Fatalf("Replace() error = %v", err)
		}
		if strategy != "colocated" {
			t.Errorf("strategy = %q, want colocated", strategy)
		}
		assertContent(t, dest, []byte("plaintext"))
		assertNoStaging(t, dir, tmp)

		extracts := rec.Extracts()
		if len(extracts) != 1 || extracts[0] != dest+".tmp.stage-1" {
			t.Errorf("Extracts() = %v, want [%s]", extracts, dest+".tmp.stage-1")
		}
	})

	t.Run("creates missing destination", func(t *testing.T) {
		dir, tmp := t.TempDir(), t.TempDir()
		dest := filepath.Join(dir, "ab123456")
		rec := testutil.NewFakeRecord("ab123456", []byte("plaintext"))

		if _, err := newReplacer(testutil.NewFaultyFilesystem(), tmp).Replace(rec, dest); err != nil {
			t.Fatalf("Replace() error = %v", err)
		}
		assertContent(t, dest, []byte("plaintext"))
	})

	t.Run("extraction failure leaves destination untouched", func(t *testing.T) {
		dir, tmp := t.TempDir(), t.TempDir()
		dest := writeDest(t, dir, "ab123456", []byte("ciphertext"))
		rec := testutil.NewFakeRecord("ab123456", []byte("plaintext"))
		rec.ExtractFunc = func(staged string) error {
			if err := os.WriteFile(staged, []byte("half"), 0644); err != nil {
				return err
			}
			return fmt.Errorf("stream broke")
		}

		_, err := newReplacer(testutil.NewFaultyFilesystem(), tmp).Replace(rec, dest)
		if !errors.Is(err, decrypt.ErrExtraction) {
			t.Fatalf("Replace() error = %v, want ErrExtraction", err)
		}
		assertContent(t, dest, []byte("ciphertext"))
		assertNoStaging(t, dir, tmp)

		if n := len(rec.Extracts()); n != 1 {
			t.Errorf("extraction attempts = %d, want 1 (no fallback for extraction errors)", n)
		}
	})

	t.Run("rename refused falls back to copy", func(t *testing.T) {
		dir, tmp := t.TempDir(), t.TempDir()
		dest := writeDest(t, dir, "ab123456", []byte("ciphertext"))
		rec := testutil.NewFakeRecord("ab123456", []byte("plaintext"))
		fsys := testutil.NewCrossDeviceFilesystem()

		strategy, err := newReplacer(fsys, tmp).Replace(rec, dest)
		if err != nil {
			t.Fatalf("Replace() error = %v", err)
		}
		if strategy != "colocated" {
			t.Errorf("strategy = %q, want colocated", strategy)
		}
		if fsys.Renames() != 1 || fsys.Copies() != 1 {
			t.Errorf("renames=%d copies=%d, want 1 and 1", fsys.Renames(), fsys.Copies())
		}
		assertContent(t, dest, []byte("plaintext"))
		assertNoStaging(t, dir, tmp)
	})

	t.Run("rename and copy both fail", func(t *testing.T) {
		dir, tmp := t.TempDir(), t.TempDir()
		dest := writeDest(t, dir, "ab123456", []byte("ciphertext"))
		rec := testutil.NewFakeRecord("ab123456", []byte("plaintext"))
		fsys := testutil.NewCrossDeviceFilesystem()
		fsys.CopyErr = errors.New("disk full")

		_, err := newReplacer(fsys, tmp).Replace(rec, dest)
		if !errors.Is(err, decrypt.ErrExtraction) {
			t.Fatalf("Replace() error = %v, want ErrExtraction", err)
		}
		assertContent(t, dest, []byte("ciphertext"))
		assertNoStaging(t, dir, tmp)
	})

	t.Run("missing staging file retries in temp directory", func(t *testing.T) {
		dir, tmp := t.TempDir(), t.TempDir()
		dest := writeDest(t, dir, "ab123456", []byte("ciphertext"))
		rec := testutil.NewFakeRecord("ab123456", []byte("plaintext"))
		rec.ExtractFunc = func(staged string) error {
			if isColocatedStaging(staged) {
				return nil // reports success without writing anything
			}
			return os.WriteFile(staged, []byte("plaintext"), 0644)
		}
		fsys := testutil.NewFaultyFilesystem()

		strategy, err := newReplacer(fsys, tmp).Replace(rec, dest)
		if err != nil {
			t.Fatalf("Replace() error = %v", err)
		}
		if strategy != "system-temp" {
			t.Errorf("strategy = %q, want system-temp", strategy)
		}
		assertContent(t, dest, []byte("plaintext"))
		assertNoStaging(t, dir, tmp)

		temps := fsys.Temps()
		if len(temps) != 1 || filepath.Dir(temps[0]) != tmp {
			t.Errorf("Temps() = %v, want one file in %s", temps, tmp)
		}
		if !strings.HasPrefix(filepath.Base(temps[0]), "backup_decrypt_") {
			t.Errorf("temp file %q does not use the backup_decrypt_ prefix", temps[0])
		}
	})

	t.Run("empty staging file with declared content retries", func(t *testing.T) {
		dir, tmp := t.TempDir(), t.TempDir()
		dest := writeDest(t, dir, "ab123456", []byte("ciphertext"))
		rec := testutil.NewFakeRecord("ab123456", []byte("plaintext"))
		rec.ExtractFunc = func(staged string) error {
			if isColocatedStaging(staged) {
				return os.WriteFile(staged, nil, 0644)
			}
			return os.WriteFile(staged, []byte("plaintext"), 0644)
		}

		strategy, err := newReplacer(testutil.NewFaultyFilesystem(), tmp).Replace(rec, dest)
		if err != nil {
			t.Fatalf("Replace() error = %v", err)
		}
		if strategy != "system-temp" {
			t.Errorf("strategy = %q, want system-temp", strategy)
		}
		assertContent(t, dest, []byte("plaintext"))
	})

	t.Run("zero byte artifact fails after fallback", func(t *testing.T) {
		dir, tmp := t.TempDir(), t.TempDir()
		dest := writeDest(t, dir, "ab123456", []byte("ciphertext"))
		rec := testutil.NewFakeRecord("ab123456", nil)
		rec.DeclaredSize = 10
		rec.ExtractFunc = func(staged string) error {
			return os.WriteFile(staged, nil, 0644)
		}

		_, err := newReplacer(testutil.NewFaultyFilesystem(), tmp).Replace(rec, dest)
		if !errors.Is(err, decrypt.ErrCorruptArtifact) || !errors.Is(err, decrypt.ErrExtraction) {
			t.Fatalf("Replace() error = %v, want ErrCorruptArtifact recorded as ErrExtraction", err)
		}
		if n := len(rec.Extracts()); n != 2 {
			t.Errorf("extraction attempts = %d, want 2", n)
		}
		assertContent(t, dest, []byte("ciphertext"))
		assertNoStaging(t, dir, tmp)
	})

	t.Run("interrupted temp directory promotion leaves destination intact", func(t *testing.T) {
		dir, tmp := t.TempDir(), t.TempDir()
		dest := writeDest(t, dir, "ab123456", []byte("original ciphertext"))
		rec := testutil.NewFakeRecord("ab123456", []byte("plaintext"))
		rec.ExtractFunc = func(staged string) error {
			if isColocatedStaging(staged) {
				return nil
			}
			return os.WriteFile(staged, []byte("plaintext"), 0644)
		}
		fsys := testutil.NewFaultyFilesystem()
		fsys.CopyErr = errors.New("input/output error")
		fsys.CopyPartial = true

		_, err := newReplacer(fsys, tmp).Replace(rec, dest)
		if !errors.Is(err, decrypt.ErrExtraction) {
			t.Fatalf("Replace() error = %v, want ErrExtraction", err)
		}
		if fsys.Copies() != 1 {
			t.Errorf("Copies() = %d, want 1", fsys.Copies())
		}
		assertContent(t, dest, []byte("original ciphertext"))
		assertNoStaging(t, dir, tmp)
	})

	t.Run("genuinely empty file is accepted", func(t *testing.T) {
		dir, tmp := t.TempDir(), t.TempDir()
		dest := writeDest(t, dir, "ab123456", []byte("ciphertext"))
		rec := testutil.NewFakeRecord("ab123456", []byte{})

		if _, err := newReplacer(testutil.NewFaultyFilesystem(), tmp).Replace(rec, dest); err != nil {
			t.Fatalf("Replace() error = %v", err)
		}
		assertContent(t, dest, []byte{})
	})

	t.Run("fallback failure surfaces the original error", func(t *testing.T) {
		dir, tmp := t.TempDir(), t.TempDir()
		dest := writeDest(t, dir, "ab123456", []byte("ciphertext"))
		rec := testutil.NewFakeRecord("ab123456", []byte("plaintext"))
		rec.ExtractFunc = func(staged string) error {
			if isColocatedStaging(staged) {
				return nil
			}
			return errors.New("second attempt failed")
		}

		_, err := newReplacer(testutil.NewFaultyFilesystem(), tmp).Replace(rec, dest)
		if !errors.Is(err, decrypt.ErrCorruptArtifact) {
			t.Errorf("Replace() error = %v, want the first (corrupt artifact) error", err)
		}
		if !errors.Is(err, decrypt.ErrExtraction) {
			t.Errorf("Replace() error = %v, want it recorded as ErrExtraction", err)
		}
		if strings.Contains(err.Error(), "second attempt failed") {
			t.Errorf("Replace() error = %v, should not be the fallback's error", err)
		}
		assertContent(t, dest, []byte("ciphertext"))
		assertNoStaging(t, dir, tmp)
	})

	t.Run("no stagers configured", func(t *testing.T) {
		fsys := testutil.NewFaultyFilesystem()
		r := decrypt.NewReplacer(fsys, decrypt.NewNopLogger())
		_, err := r.Replace(testutil.NewFakeRecord("ab123456", nil), filepath.Join(t.TempDir(), "x"))
		if !errors.Is(err, decrypt.ErrExtraction) {
			t.Errorf("Replace() error = %v, want ErrExtraction", err)
		}
	})

	t.Run("temp file creation failure", func(t *testing.T) {
		dir, tmp := t.TempDir(), t.TempDir()
		dest := writeDest(t, dir, "ab123456", []byte("ciphertext"))
		rec := testutil.NewFakeRecord("ab123456", []byte("plaintext"))
		rec.ExtractFunc = func(staged string) error { return nil }
		fsys := testutil.NewFaultyFilesystem()
		fsys.CreateTempErr = errors.New("no space")

		_, err := newReplacer(fsys, tmp).Replace(rec, dest)
		if !errors.Is(err, decrypt.ErrCorruptArtifact) {
			t.Errorf("Replace() error = %v, want the first (corrupt artifact) error", err)
		}
		assertContent(t, dest, []byte("ciphertext"))
	})
}
