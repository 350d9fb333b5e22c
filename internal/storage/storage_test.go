package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDiskUploaderWritesFileAndReturnsURL(t *testing.T) {
	dir := t.TempDir()
	u, err := NewDiskUploader(dir, "https://forms.example.com/uploads/", 1024)
	if err != nil {
		t.Fatalf("new uploader: %v", err)
	}

	url, err := u.Upload(context.Background(), "../../etc/cv final.pdf", "application/pdf", strings.NewReader("hello"), 5)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(url, "https://forms.example.com/uploads/") || !strings.HasSuffix(url, "-cv_final.pdf") {
		t.Fatalf("unexpected url %q", url)
	}

	object := strings.TrimPrefix(url, "https://forms.example.com/uploads/")
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(object)))
	if err != nil {
		t.Fatalf("read object: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestDiskUploaderRejectsOversizedFiles(t *testing.T) {
	u, err := NewDiskUploader(t.TempDir(), "/uploads", 4)
	if err != nil {
		t.Fatalf("new uploader: %v", err)
	}
	if _, err := u.Upload(context.Background(), "a.txt", "text/plain", strings.NewReader("12345"), 5); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge for declared size, got %v", err)
	}
	if _, err := u.Upload(context.Background(), "a.txt", "text/plain", strings.NewReader("12345"), -1); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge for streamed size, got %v", err)
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"photo.png":          "photo.png",
		"..\\..\\secret.txt": "secret.txt",
		"my résumé.doc":      "my_rsum.doc",
		".htaccess":          "htaccess",
		"***":                "file",
	}
	for in, want := range cases {
		if got := SanitizeFileName(in); got != want {
			t.Fatalf("SanitizeFileName(%q): expected %q, got %q", in, want, got)
		}
	}
}
