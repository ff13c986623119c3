package main

import (
	"fmt"
	"path/filepath"

	"github.com/nebukadhezer/pyblish-ftrack/internal/report"
	"github.com/nebukadhezer/pyblish-ftrack/internal/store"
	"github.com/nebukadhezer/pyblish-ftrack/internal/transfer"
	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
	"github.com/spf13/viper"
)

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (FTPUB_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigInt retrieves an int config value with proper precedence
func GetConfigInt(key string, defaultValue int) int {
	val := viper.GetInt(key)
	if val == 0 {
		return defaultValue
	}
	return val
}

// setupLogging applies --verbose and --quiet
func setupLogging() {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))
}

// configuredLocations reads the "locations" list
func configuredLocations() ([]store.LocationConfig, error) {
	var locs []store.LocationConfig
	if err := viper.UnmarshalKey("locations", &locs); err != nil {
		return nil, fmt.Errorf("invalid locations config: %w", err)
	}
	return locs, nil
}

// transferConfig builds transfer settings for the first disk root,
// tuned for network filesystems when detected or forced by nas-mode
func transferConfig(locs []store.LocationConfig, logger *report.EventLogger) *transfer.Config {
	cfg := &transfer.Config{
		Mode:        GetConfigString("transfer.mode", transfer.ModeCopy),
		VerifyMode:  GetConfigString("transfer.verify", transfer.VerifySize),
		Concurrency: GetConfigInt("transfer.concurrency", 4),
		RetryConfig: util.DefaultRetryConfig(),
		Logger:      logger,
	}
	if len(locs) == 0 {
		return cfg
	}

	tuning := util.AutoTuneForRoot(locs[0].Root, util.NASModeOverride(), cfg.Concurrency)
	util.DebugLog("Transfer tuning: %s", tuning)
	cfg.Concurrency = tuning.Concurrency
	cfg.BufferSize = tuning.BufferSize
	cfg.RetryConfig = tuning.Retry
	return cfg
}

// openStore opens the configured database. Exclusive opens hold the
// single-writer lock for the lifetime of the store.
func openStore(exclusive bool, logger *report.EventLogger) (*store.Store, error) {
	dbPath := viper.GetString("db")
	locs, err := configuredLocations()
	if err != nil {
		return nil, err
	}

	opts := &store.OpenOptions{
		Exclusive: exclusive,
		Transfer:  transferConfig(locs, logger),
		Locations: locs,
	}
	if abs, err := filepath.Abs(dbPath); err == nil && util.IsNetworkPath(filepath.Dir(abs)) {
		util.InfoLog("Database is on a network filesystem, using network pragmas")
		opts.NetworkOptimized = true
	}

	util.DebugLog("Opening database: %s", dbPath)
	s, err := store.OpenWithOptions(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return s, nil
}

// newEventLogger opens a JSONL event log under the artifacts directory,
// falling back to a null logger
func newEventLogger() *report.EventLogger {
	logLevel := report.LevelInfo // Default
	if viper.GetBool("quiet") {
		logLevel = report.LevelWarning // Only warnings and errors
	} else if viper.GetBool("verbose") {
		logLevel = report.LevelDebug // Everything
	}

	logger, err := report.NewEventLogger(GetConfigString("artifacts", "artifacts"), logLevel)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	if logger.Path() != "" {
		util.InfoLog("Event log: %s", logger.Path())
	}
	return logger
}
