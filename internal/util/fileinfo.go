package util

import (
	"crypto/sha1"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
)

// ContentHash returns the hex SHA1 of a file's content.
func ContentHash(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// FileSize returns the size of a regular file.
func FileSize(fs afero.Fs, path string) (int64, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", path)
	}
	return info.Size(), nil
}

// SizeOrZero is FileSize with missing or unreadable files counted as empty.
func SizeOrZero(fs afero.Fs, path string) int64 {
	size, err := FileSize(fs, path)
	if err != nil {
		return 0
	}
	return size
}

// Exists reports whether path exists on fs.
func Exists(fs afero.Fs, path string) bool {
	_, err := fs.Stat(path)
	return err == nil
}

// FormatBytes renders a byte count for humans (e.g. "1.2 MB").
func FormatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return humanize.Bytes(uint64(n))
}

