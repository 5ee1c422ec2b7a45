package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveStream(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "work")
	content := "hello world"

	saved, err := SaveStream(strings.NewReader(content), dir, "temp_call.wav", 0)
	if err != nil {
		t.Fatal(err)
	}
	if saved.Path != filepath.Join(dir, "temp_call.wav") {
		t.Fatalf("unexpected path %q", saved.Path)
	}
	if saved.Size != int64(len(content)) {
		t.Fatalf("size = %d, want %d", saved.Size, len(content))
	}
	sum := sha256.Sum256([]byte(content))
	if saved.SHA256 != hex.EncodeToString(sum[:]) {
		t.Fatalf("digest mismatch: %s", saved.SHA256)
	}
	got, err := os.ReadFile(saved.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != content {
		t.Fatalf("content mismatch: got %q", got)
	}
}

func TestSaveStreamLimit(t *testing.T) {
	dir := t.TempDir()

	if _, err := SaveStream(strings.NewReader("12345"), dir, "exact", 5); err != nil {
		t.Fatalf("stream at the limit should be accepted: %v", err)
	}

	_, err := SaveStream(strings.NewReader("123456"), dir, "over", 5)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "over")); !os.IsNotExist(statErr) {
		t.Fatalf("expected partial file removed, stat err=%v", statErr)
	}
}

func TestSaveStreamRejectsPaths(t *testing.T) {
	for _, name := range []string{"", "../escape", "a/b"} {
		if _, err := SaveStream(strings.NewReader("x"), t.TempDir(), name, 0); err == nil {
			t.Fatalf("expected error for name %q", name)
		}
	}
}

func TestDigestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.bin")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	digest, size, err := DigestFile(path)
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256([]byte("data"))
	if digest != hex.EncodeToString(sum[:]) || size != 4 {
		t.Fatalf("DigestFile = %s, %d", digest, size)
	}
	if _, _, err := DigestFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
