package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreWriteReadRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	key, err := store.Write(context.Background(), "./nested/../photo.jpg", []byte("abc"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if key != "photo.jpg" {
		t.Fatalf("key = %q, want photo.jpg", key)
	}
	if !store.Exists("photo.jpg") {
		t.Fatalf("expected photo.jpg to exist")
	}
	f, info, err := store.Open("photo.jpg")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil || string(data) != "abc" || info.Size() != 3 {
		t.Fatalf("read = %q, %v", data, err)
	}
	entries, _ := os.ReadDir(store.BasePath())
	if len(entries) != 1 {
		t.Fatalf("expected no temp files left, got %d entries", len(entries))
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, key := range []string{"", "..", "../etc/passwd", "a/../../b"} {
		if _, err := store.Write(context.Background(), key, []byte("x")); err == nil {
			t.Fatalf("write %q should fail", key)
		}
		if store.Exists(key) {
			t.Fatalf("exists %q should be false", key)
		}
	}
}

func TestFileStoreMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, _, err := store.Open("nope.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("open err = %v, want ErrNotFound", err)
	}
	if err := os.Mkdir(filepath.Join(store.BasePath(), "dir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if store.Exists("dir") {
		t.Fatalf("directories are not files")
	}
	if _, _, err := store.Open("dir"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("open dir err = %v, want ErrNotFound", err)
	}
}

func TestFileStoreWriteHonoursContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Write(ctx, "a.jpg", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"beach.jpg":           "beach.jpg",
		"My Photo.PNG":        "My_Photo.png",
		"../../etc/passwd":    "passwd",
		`C:\Users\me\pic.gif`: "pic.gif",
		"café.webp":           "cafe.webp",
		"照片.jpg":              "image.jpg",
		".hidden.jpeg":        "hidden.jpeg",
		"":                    "image",
	}
	for in, want := range cases {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
