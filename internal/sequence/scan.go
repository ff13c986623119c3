package sequence

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"

	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
)

// Scanner walks a directory tree and assembles the files it finds.
type Scanner struct {
	fs           afero.Fs
	extensions   map[string]bool
	minimum      int
	showProgress bool
}

// Config holds scanner configuration
type Config struct {
	Fs           afero.Fs
	Extensions   []string // empty = every file
	MinimumItems int      // smallest group reported as a sequence (default 2)
	ShowProgress bool
}

// NewScanner creates a Scanner
func NewScanner(cfg *Config) *Scanner {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.MinimumItems <= 0 {
		cfg.MinimumItems = 2
	}

	var extMap map[string]bool
	if len(cfg.Extensions) > 0 {
		extMap = make(map[string]bool, len(cfg.Extensions))
		for _, ext := range cfg.Extensions {
			ext = strings.ToLower(ext)
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			extMap[ext] = true
		}
	}

	return &Scanner{
		fs:           cfg.Fs,
		extensions:   extMap,
		minimum:      cfg.MinimumItems,
		showProgress: cfg.ShowProgress,
	}
}

// ScanResult lists what a scan found.
type ScanResult struct {
	Collections  []*Collection
	Singles      []string
	FilesSeen    int
	FilesSkipped int
}

// Scan walks root and groups its files into sequences and single files.
func (s *Scanner) Scan(ctx context.Context, root string) (*ScanResult, error) {
	util.InfoLog("Starting scan of: %s", root)

	var bar *progressbar.ProgressBar
	if s.showProgress {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionShowIts(),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	result := &ScanResult{}
	var paths []string

	err := afero.Walk(s.fs, root, func(path string, info fs.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			util.WarnLog("Cannot access %s: %v", path, err)
			return nil
		}
		if info.IsDir() {
			if path != root && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}

		result.FilesSeen++
		if bar != nil {
			_ = bar.Add(1)
		}
		if s.extensions != nil && !s.extensions[strings.ToLower(filepath.Ext(path))] {
			result.FilesSkipped++
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Strings(paths)
	result.Collections, result.Singles = Assemble(paths, s.minimum)

	util.SuccessLog("Scan complete: %d files, %d sequences, %d single files, %d skipped",
		result.FilesSeen, len(result.Collections), len(result.Singles), result.FilesSkipped)
	return result, nil
}
