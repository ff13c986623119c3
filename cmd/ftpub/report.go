package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/nebukadhezer/pyblish-ftrack/internal/report"
	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a summary report from a publish event log",
	Long: `Generate a summary report in Markdown format from an event log
written by 'ftpub publish'.

The report includes:
- Entities created and reused per type
- Component commits by mode
- Thumbnails and propagations
- Transfer statistics
- Top errors

The report is saved to artifacts/reports/<timestamp>/summary.md`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	// Report-specific flags
	reportCmd.Flags().String("out", "", "Output directory for report (default: artifacts/reports/<timestamp>)")
	reportCmd.Flags().String("event-log", "", "Path to event log file")
	reportCmd.MarkFlagRequired("event-log")
}

func runReport(cmd *cobra.Command, args []string) error {
	setupLogging()

	eventLogPath, _ := cmd.Flags().GetString("event-log")
	util.InfoLog("=== Generating Summary Report ===")
	util.InfoLog("Event log: %s", eventLogPath)

	summaryReport, err := report.GenerateSummaryReport(eventLogPath)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	// Determine output path
	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		timestamp := time.Now().Format("20060102-150405")
		outputDir = filepath.Join(GetConfigString("artifacts", "artifacts"), "reports", timestamp)
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	// Write markdown report
	util.InfoLog("Writing report to: %s", outputPath)
	if err := report.WriteMarkdownReport(summaryReport, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	// Summary
	util.SuccessLog("Report generated successfully!")
	util.InfoLog("")
	util.InfoLog("Summary:")
	for _, entityType := range []string{"AssetType", "Asset", "AssetVersion"} {
		util.InfoLog("  %s: %d created, %d reused", entityType, summaryReport.Created[entityType], summaryReport.Reused[entityType])
	}
	for mode, n := range summaryReport.Commits {
		util.InfoLog("  Components %s: %d", mode, n)
	}
	if summaryReport.FilesTransferred > 0 {
		util.InfoLog("  Files transferred: %d", summaryReport.FilesTransferred)
		util.InfoLog("  Bytes written: %s", util.FormatBytes(summaryReport.BytesWritten))
	}
	if summaryReport.TransferFailures > 0 {
		util.WarnLog("  Transfer failures: %d", summaryReport.TransferFailures)
	}

	return nil
}
