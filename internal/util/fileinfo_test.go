package util

import (
	"testing"

	"github.com/spf13/afero"
)

func TestContentHash(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/a.txt", []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ContentHash(fs, "/a.txt")
	if err != nil {
		t.Fatalf("ContentHash: %v", err)
	}
	// sha1("hello")
	if want := "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"; got != want {
		t.Errorf("ContentHash = %s, want %s", got, want)
	}

	if _, err := ContentHash(fs, "/missing"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFileSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/f.bin", make([]byte, 1500), 0o644)
	_ = fs.MkdirAll("/dir", 0o755)

	size, err := FileSize(fs, "/f.bin")
	if err != nil || size != 1500 {
		t.Errorf("FileSize = %d, %v; want 1500, nil", size, err)
	}
	if _, err := FileSize(fs, "/dir"); err == nil {
		t.Error("expected error for directory")
	}
	if got := SizeOrZero(fs, "/missing"); got != 0 {
		t.Errorf("SizeOrZero(missing) = %d, want 0", got)
	}
	if !Exists(fs, "/f.bin") || Exists(fs, "/nope") {
		t.Error("Exists returned wrong result")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:       "0 B",
		999:     "999 B",
		1500:    "1.5 kB",
		2000000: "2.0 MB",
	}
	for n, want := range tests {
		if got := FormatBytes(n); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
