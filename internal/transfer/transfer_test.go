package transfer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

func TestTransfer_CopyAtomic(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	src := writeSource(t, srcDir, "beauty.0001.exr", "frame one")
	dest := filepath.Join(destDir, "asset", "v001", "beauty.0001.exr")

	tr := New(&Config{VerifyMode: VerifyHash})
	n, err := tr.Transfer(context.Background(), Job{Src: src, Dest: dest})
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if n != int64(len("frame one")) {
		t.Errorf("Expected %d bytes written, got %d", len("frame one"), n)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("Destination not readable: %v", err)
	}
	if string(got) != "frame one" {
		t.Errorf("Unexpected content %q", got)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Error("Temporary .part file left behind")
	}
}

func TestTransfer_MissingSource(t *testing.T) {
	tr := New(nil)
	_, err := tr.Transfer(context.Background(), Job{
		Src:  filepath.Join(t.TempDir(), "missing.exr"),
		Dest: filepath.Join(t.TempDir(), "out.exr"),
	})
	if err == nil {
		t.Fatal("Expected error for missing source")
	}
}

func TestTransfer_Symlink(t *testing.T) {
	src := writeSource(t, t.TempDir(), "final.mov", "movie")
	dest := filepath.Join(t.TempDir(), "final.mov")

	tr := New(&Config{Mode: ModeSymlink})
	if _, err := tr.Transfer(context.Background(), Job{Src: src, Dest: dest}); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	target, err := os.Readlink(dest)
	if err != nil {
		t.Fatalf("Destination is not a symlink: %v", err)
	}
	if target != src {
		t.Errorf("Symlink points to %s, expected %s", target, src)
	}
}

func TestTransfer_HardlinkSameFilesystem(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "plate.dpx", "plate")
	dest := filepath.Join(dir, "store", "plate.dpx")

	tr := New(&Config{Mode: ModeHardlink})
	n, err := tr.Transfer(context.Background(), Job{Src: src, Dest: dest})
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5 bytes, got %d", n)
	}

	srcInfo, _ := os.Stat(src)
	destInfo, _ := os.Stat(dest)
	if !os.SameFile(srcInfo, destInfo) {
		t.Error("Expected destination to be a hardlink of the source")
	}
}

func TestVerify_SizeMismatch(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "a", "12345")
	dest := writeSource(t, dir, "b", "123")

	tr := New(&Config{VerifyMode: VerifySize})
	err := tr.verify(src, dest, 5)
	if !errors.Is(err, util.ErrVerifyFailed) {
		t.Errorf("Expected ErrVerifyFailed, got %v", err)
	}

	tr = New(&Config{VerifyMode: VerifyHash})
	if err := tr.verify(src, dest, 5); !errors.Is(err, util.ErrVerifyFailed) {
		t.Errorf("Expected ErrVerifyFailed for hash mismatch, got %v", err)
	}

	tr = New(&Config{VerifyMode: VerifyNone})
	if err := tr.verify(src, dest, 5); err != nil {
		t.Errorf("VerifyNone should not fail: %v", err)
	}
}

func TestRun_Pool(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()

	var jobs []Job
	for _, name := range []string{"s.0001.exr", "s.0002.exr", "s.0003.exr"} {
		src := writeSource(t, srcDir, name, strings.Repeat("x", 10))
		jobs = append(jobs, Job{Src: src, Dest: filepath.Join(destDir, name)})
	}

	tr := New(&Config{Concurrency: 2})
	result, err := tr.Run(context.Background(), jobs)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Succeeded != 3 || result.BytesWritten != 30 {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestRun_StopsOnFailure(t *testing.T) {
	destDir := t.TempDir()
	jobs := []Job{
		{Src: filepath.Join(t.TempDir(), "missing"), Dest: filepath.Join(destDir, "missing")},
	}

	result, err := New(nil).Run(context.Background(), jobs)
	if err == nil {
		t.Fatal("Expected error")
	}
	if result.Failed != 1 {
		t.Errorf("Expected 1 failure, got %d", result.Failed)
	}
}

func TestRemove_MissingIsFine(t *testing.T) {
	if err := New(nil).Remove(context.Background(), filepath.Join(t.TempDir(), "gone")); err != nil {
		t.Errorf("Remove of missing file failed: %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := New(&Config{Mode: "teleport"}).Validate(); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
	if err := New(nil).Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestCopyWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var dst bytes.Buffer
	_, err := copyWithContext(ctx, &dst, strings.NewReader("data"), 2)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
