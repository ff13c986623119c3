// Package transfer moves component files into location storage with
// atomic writes, verification and retries.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/nebukadhezer/pyblish-ftrack/internal/report"
	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
)

// Modes
const (
	ModeCopy     = "copy"
	ModeHardlink = "hardlink"
	ModeSymlink  = "symlink"
)

// Verify modes
const (
	VerifyNone = "none"
	VerifySize = "size"
	VerifyHash = "hash"
)

// Transferer copies or links files into place
type Transferer struct {
	mode        string
	verifyMode  string
	concurrency int
	bufferSize  int
	retryConfig *util.RetryConfig
	logger      *report.EventLogger
	osFs        afero.Fs
}

// Config holds transfer configuration
type Config struct {
	Mode        string // "copy", "hardlink", "symlink"
	VerifyMode  string // "none", "size", "hash"
	Concurrency int
	BufferSize  int               // Buffer size for file copying (0 = use default)
	RetryConfig *util.RetryConfig // Retry configuration (nil = no retries)
	Logger      *report.EventLogger
}

// New creates a new Transferer
func New(cfg *Config) *Transferer {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeCopy
	}
	if cfg.VerifyMode == "" {
		cfg.VerifyMode = VerifySize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 128 * 1024
	}
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = util.NoRetry()
	}

	return &Transferer{
		mode:        cfg.Mode,
		verifyMode:  cfg.VerifyMode,
		concurrency: cfg.Concurrency,
		bufferSize:  cfg.BufferSize,
		retryConfig: cfg.RetryConfig,
		logger:      cfg.Logger,
		osFs:        afero.NewOsFs(),
	}
}

// Validate checks the configured modes
func (t *Transferer) Validate() error {
	switch t.mode {
	case ModeCopy, ModeHardlink, ModeSymlink:
	default:
		return fmt.Errorf("unknown transfer mode %q: %w", t.mode, util.ErrInvalidConfig)
	}
	switch t.verifyMode {
	case VerifyNone, VerifySize, VerifyHash:
	default:
		return fmt.Errorf("unknown verify mode %q: %w", t.verifyMode, util.ErrInvalidConfig)
	}
	return nil
}

// Job is one file to put in place
type Job struct {
	Src  string
	Dest string
}

// Result represents transfer results
type Result struct {
	Processed    int
	Succeeded    int
	Failed       int
	BytesWritten int64
}

// Run transfers every job in a bounded pool. The first failure cancels
// the remaining jobs and is returned.
func (t *Transferer) Run(ctx context.Context, jobs []Job) (*Result, error) {
	result := &Result{}
	if len(jobs) == 0 {
		return result, nil
	}

	var processed, succeeded, failed atomic.Int64
	var bytesWritten atomic.Int64

	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(t.concurrency)

	for _, job := range jobs {
		p.Go(func(ctx context.Context) error {
			processed.Add(1)
			n, err := t.Transfer(ctx, job)
			if err != nil {
				failed.Add(1)
				return err
			}
			succeeded.Add(1)
			bytesWritten.Add(n)
			return nil
		})
	}
	err := p.Wait()

	result.Processed = int(processed.Load())
	result.Succeeded = int(succeeded.Load())
	result.Failed = int(failed.Load())
	result.BytesWritten = bytesWritten.Load()

	if err != nil {
		return result, err
	}

	util.DebugLog("Transferred %d files (%s)", result.Succeeded, util.FormatBytes(result.BytesWritten))
	return result, nil
}

// Transfer puts one file in place and verifies it.
// Returns bytes written.
func (t *Transferer) Transfer(ctx context.Context, job Job) (int64, error) {
	start := time.Now()

	srcInfo, err := util.RetryableStat(ctx, job.Src, t.retryConfig)
	if err != nil {
		return 0, fmt.Errorf("failed to stat source: %w", err)
	}
	if srcInfo.IsDir() {
		return 0, fmt.Errorf("%s is a directory", job.Src)
	}

	var written int64
	switch t.mode {
	case ModeHardlink:
		written, err = t.hardlinkFile(ctx, job.Src, job.Dest)
	case ModeSymlink:
		written, err = t.symlinkFile(job.Src, job.Dest)
	default:
		written, err = t.copyFile(ctx, job.Src, job.Dest)
	}

	if err == nil {
		err = t.verify(job.Src, job.Dest, srcInfo.Size())
	}

	t.logger.LogTransfer(job.Src, job.Dest, t.mode, written, time.Since(start), err)
	if err != nil {
		return 0, err
	}
	return written, nil
}

// Remove deletes a placed file. Missing files are not an error.
func (t *Transferer) Remove(ctx context.Context, path string) error {
	err := util.RetryableRemove(ctx, path, t.retryConfig)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// copyFile copies a file atomically using a .part temporary file
func (t *Transferer) copyFile(ctx context.Context, srcPath, destPath string) (int64, error) {
	if err := util.RetryableMkdirAll(ctx, filepath.Dir(destPath), 0755, t.retryConfig); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	src, err := util.RetryableOpen(ctx, srcPath, t.retryConfig)
	if err != nil {
		return 0, fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	tempPath := destPath + ".part"
	dest, err := util.RetryableCreate(ctx, tempPath, t.retryConfig)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	bytesWritten, err := copyWithContext(ctx, dest, src, t.bufferSize)
	closeErr := dest.Close()
	if err == nil {
		err = closeErr
	}

	if err != nil {
		_ = util.RetryableRemove(ctx, tempPath, t.retryConfig)
		return 0, fmt.Errorf("failed to copy: %w", err)
	}

	if err := util.RetryableRename(ctx, tempPath, destPath, t.retryConfig); err != nil {
		_ = util.RetryableRemove(ctx, tempPath, t.retryConfig)
		return 0, fmt.Errorf("failed to rename: %w", err)
	}

	util.DebugLog("Copied: %s -> %s (%s)", srcPath, destPath, util.FormatBytes(bytesWritten))
	return bytesWritten, nil
}

// hardlinkFile links when source and destination share a filesystem and
// falls back to a copy otherwise
func (t *Transferer) hardlinkFile(ctx context.Context, srcPath, destPath string) (int64, error) {
	destDir := filepath.Dir(destPath)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	same, err := util.IsSameFilesystem(srcPath, destDir)
	if err != nil || !same {
		util.DebugLog("Hardlink not possible for %s, copying instead", srcPath)
		return t.copyFile(ctx, srcPath, destPath)
	}

	_ = os.Remove(destPath)
	if err := os.Link(srcPath, destPath); err != nil {
		return 0, fmt.Errorf("failed to create hardlink: %w", err)
	}

	util.DebugLog("Hardlinked: %s -> %s", srcPath, destPath)
	return util.SizeOrZero(t.osFs, destPath), nil
}

// symlinkFile creates a symbolic link to the absolute source path
func (t *Transferer) symlinkFile(srcPath, destPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	absSrc, err := filepath.Abs(srcPath)
	if err != nil {
		return 0, fmt.Errorf("failed to get absolute path: %w", err)
	}

	_ = os.Remove(destPath)
	if err := os.Symlink(absSrc, destPath); err != nil {
		return 0, fmt.Errorf("failed to create symlink: %w", err)
	}

	util.DebugLog("Symlinked: %s -> %s", srcPath, destPath)
	return 0, nil
}

// verify compares the placed file with its source
func (t *Transferer) verify(srcPath, destPath string, expectedSize int64) error {
	switch t.verifyMode {
	case VerifySize:
		size, err := util.FileSize(t.osFs, destPath)
		if err != nil {
			return fmt.Errorf("verify %s: %w", destPath, err)
		}
		if size != expectedSize {
			return fmt.Errorf("verify %s: size %d, expected %d: %w", destPath, size, expectedSize, util.ErrVerifyFailed)
		}
	case VerifyHash:
		srcHash, err := util.ContentHash(t.osFs, srcPath)
		if err != nil {
			return fmt.Errorf("failed to hash source: %w", err)
		}
		destHash, err := util.ContentHash(t.osFs, destPath)
		if err != nil {
			return fmt.Errorf("failed to hash dest: %w", err)
		}
		if srcHash != destHash {
			return fmt.Errorf("verify %s: content hash mismatch: %w", destPath, util.ErrVerifyFailed)
		}
	}
	return nil
}

// copyWithContext copies data with context cancellation support
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader, bufferSize int) (int64, error) {
	if bufferSize <= 0 {
		bufferSize = 128 * 1024
	}

	buf := make([]byte, bufferSize)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[0:nr])
			if nw < 0 || nr < nw {
				nw = 0
				if ew == nil {
					ew = fmt.Errorf("invalid write result")
				}
			}
			written += int64(nw)
			if ew != nil {
				return written, ew
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if er != nil {
			if er != io.EOF {
				return written, er
			}
			break
		}
	}
	return written, nil
}
