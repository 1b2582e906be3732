package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestCopyFileVerifiedReturnsDigest(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "nested", "dst.bin")

	content := []byte("verified copy payload")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}
	digest, err := CopyFileVerified(src, dst)
	if err != nil {
		t.Fatalf("CopyFileVerified: %v", err)
	}
	sum := sha256.Sum256(content)
	if digest != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected digest %s", digest)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q", got)
	}
	entries, err := os.ReadDir(filepath.Dir(dst))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the destination file, found %d entries", len(entries))
	}
}

func TestCopyFileVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	if _, err := CopyFileVerified(filepath.Join(dir, "missing"), filepath.Join(dir, "dst")); err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, err := os.Stat(filepath.Join(dir, "dst")); !os.IsNotExist(err) {
		t.Fatalf("expected destination to be absent, got %v", err)
	}
}

func TestWriteFileAtomicLeavesNothingOnError(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.xmp")
	boom := errors.New("boom")
	err := WriteFileAtomic(dst, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected empty dir after failed write, found %d entries", len(entries))
	}

	if err := WriteFileAtomic(dst, func(w io.Writer) error {
		_, err := io.WriteString(w, "complete")
		return err
	}); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "complete" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestSameContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	c := filepath.Join(dir, "c")
	big := strings.Repeat("x", 200*1024)
	_ = os.WriteFile(a, []byte(big), 0o644)
	_ = os.WriteFile(b, []byte(big), 0o644)
	_ = os.WriteFile(c, []byte(big[:len(big)-1]+"y"), 0o644)

	same, err := SameContent(a, b)
	if err != nil || !same {
		t.Fatalf("expected identical files, got %v %v", same, err)
	}
	same, err = SameContent(a, c)
	if err != nil || same {
		t.Fatalf("expected differing files, got %v %v", same, err)
	}
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	_ = os.WriteFile(path, []byte("abc"), 0o644)
	digest, size, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if size != 3 || digest != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected digest %s size %d", digest, size)
	}
}

func TestReservePathAndMove(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "photo.jpg")
	got, err := ReservePath(target)
	if err != nil || got != target {
		t.Fatalf("expected free path, got %q %v", got, err)
	}
	got, err = ReservePath(target)
	if err != nil || got != filepath.Join(dir, "photo_1.jpg") {
		t.Fatalf("reserved name must not be handed out twice, got %q %v", got, err)
	}

	src := filepath.Join(dir, "incoming.jpg")
	_ = os.WriteFile(src, []byte("2"), 0o644)
	dst := filepath.Join(dir, "quarantine", "incoming.jpg")
	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("expected source to be gone")
	}
	if data, _ := os.ReadFile(dst); string(data) != "2" {
		t.Fatalf("unexpected moved content %q", data)
	}
}

func TestReservePathConcurrentCallersGetDistinctNames(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "IMG_0001.jpg")
	const callers = 16

	names := make(chan string, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := ReservePath(target)
			if err != nil {
				t.Errorf("ReservePath: %v", err)
				return
			}
			names <- got
		}()
	}
	wg.Wait()
	close(names)

	seen := make(map[string]bool)
	for name := range names {
		if seen[name] {
			t.Fatalf("%s reserved twice", name)
		}
		seen[name] = true
	}
	if len(seen) != callers {
		t.Fatalf("reserved %d names, want %d", len(seen), callers)
	}
}
