package main

import (
	"context"
	"errors"
	"fmt"
	"os"
		"syscall"

	"github.com/nebukadhezer/pyblish-ftrack/internal/collect"
	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
	"github.com/nebukadhezer/pyblish-ftrack/internal/store"
	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure ftpub can operate correctly.

This command checks:
- SQLite version
- Database accessibility and integrity
- Location roots (writable, network filesystem, disk space)
- Task resolution from the environment

Use this command to troubleshoot issues before publishing.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== ftpub Doctor - System Diagnostics ===")
	util.InfoLog("")

	results := []checkResult{}

	// 1. Check SQLite
	results = append(results, checkSQLite())

	// 2. Check database file
	dbPath := viper.GetString("db")
	results = append(results, checkDatabase(dbPath))

	// 3. Check configured and registered location roots
	for _, loc := range doctorLocations(dbPath) {
		results = append(results, checkLocationRoot(loc.Name, loc.Root))
		results = append(results, checkDiskSpace(loc.Root, loc.Name))
	}

	// 4. Check task resolution
	results = append(results, checkTask(viper.GetString("task"), os.Getenv))

	// Print results
	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	// Summary
	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("❌ Some critical checks failed. Please resolve errors before publishing.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("⚠️  Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("✅ All checks passed! System is ready to publish.")
	}

	return nil
}

// doctorLocations merges configured disk locations with those already
// registered in an existing database
func doctorLocations(dbPath string) []store.LocationConfig {
	locs, err := configuredLocations()
	if err != nil {
		util.WarnLog("%v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		return locs
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return locs
	}
	defer db.Close()

	registered, err := db.Locations(context.Background())
	if err != nil {
		return locs
	}
	seen := make(map[string]bool, len(locs))
	for _, l := range locs {
		seen[l.Name] = true
	}
	for _, l := range registered {
		if l.Kind == session.KindDisk && !seen[l.Name] {
			locs = append(locs, store.LocationConfig{Name: l.Name, Root: l.Root, Priority: l.Priority})
		}
	}
	return locs
}

func pass(name, format string, args ...any) checkResult {
	return checkResult{name: name, message: fmt.Sprintf(format, args...)}
}

func warn(name, format string, args ...any) checkResult {
	return checkResult{name: name, warning: true, message: fmt.Sprintf(format, args...)}
}

func fail(name, format string, args ...any) checkResult {
	return checkResult{name: name, error: true, message: fmt.Sprintf(format, args...)}
}

// checkSQLite reports the embedded SQLite version
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return fail("SQLite", "unable to determine version")
	}
	return pass("SQLite", "version %s (built-in)", version)
}

// checkDatabase opens the database read-only and runs an integrity check
func checkDatabase(dbPath string) checkResult {
	const name = "Database"
	if dbPath == "" {
		return warn(name, "no database path specified (use --db flag or config)")
	}

	info, err := os.Stat(dbPath)
	switch {
	case os.IsNotExist(err):
		return pass(name, "%s (will be created on first run)", dbPath)
	case err != nil:
		return fail(name, "cannot access %s: %v", dbPath, err)
	case !info.Mode().IsRegular():
		return fail(name, "%s is not a regular file", dbPath)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fail(name, "cannot open %s: %v", dbPath, err)
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return fail(name, "integrity check failed: %v", err)
	}
	version, _ := db.SchemaVersion()

	entities := 0
	if stats, err := db.Stats(context.Background()); err == nil {
		for _, n := range stats.Entities {
			entities += n
		}
	}
	return pass(name, "%s (%s, schema v%d, %d entities)", dbPath, util.FormatBytes(info.Size()), version, entities)
}

// checkLocationRoot verifies a disk location root exists (creating it if
// needed) and accepts writes
func checkLocationRoot(location, root string) checkResult {
	name := "Location " + location
	if root == "" {
		return fail(name, "no root configured")
	}

	created := false
	info, err := os.Stat(root)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(root, 0755); err != nil {
			return fail(name, "cannot create %s: %v", root, err)
		}
		created = true
	case err != nil:
		return fail(name, "cannot access %s: %v", root, err)
	case !info.IsDir():
		return fail(name, "%s is not a directory", root)
	}

	probe, err := os.CreateTemp(root, ".ftpub_write_test")
	if err != nil {
		return fail(name, "cannot write to %s: %v", root, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	state := "writable"
	if created {
		state = "created"
	}
	if mount, err := util.DetectMount(root); err == nil && mount.IsNetwork {
		state += ", network filesystem " + mount.Protocol
	}
	return pass(name, "%s (%s)", root, state)
}

// checkDiskSpace warns below 10 GiB free or above 90% used
func checkDiskSpace(path string, label string) checkResult {
	name := fmt.Sprintf("Disk space (%s)", label)
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return warn(name, "cannot determine disk space: %v", err)
	}

	avail := stat.Bavail * uint64(stat.Bsize)
	total := stat.Blocks * uint64(stat.Bsize)
	used := total - stat.Bfree*uint64(stat.Bsize)

	switch {
	case avail < 10<<30:
		return warn(name, "%s available (low space!)", util.FormatBytes(int64(avail)))
	case total > 0 && float64(used)/float64(total) > 0.9:
		return warn(name, "%s available (>90%% used)", util.FormatBytes(int64(avail)))
	}
	return pass(name, "%s available", util.FormatBytes(int64(avail)))
}

// checkTask reports where the publish task would come from
func checkTask(flagValue string, lookup func(string) string) checkResult {
	if flagValue != "" {
		return pass("Task", "%s (from config)", flagValue)
	}
	id, err := collect.ResolveTaskID(lookup)
	if errors.Is(err, collect.ErrNoTask) {
		return warn("Task", "none in environment (set %s or %s, or pass --task)", collect.EventEnv, collect.TaskEnv)
	}
	if err != nil {
		return fail("Task", "%v", err)
	}
	return pass("Task", "%s (from environment)", id)
}
