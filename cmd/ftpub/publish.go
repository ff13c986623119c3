package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nebukadhezer/pyblish-ftrack/internal/collect"
	"github.com/nebukadhezer/pyblish-ftrack/internal/manifest"
	"github.com/nebukadhezer/pyblish-ftrack/internal/publish"
	"github.com/nebukadhezer/pyblish-ftrack/internal/report"
	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the deliverables of a manifest to a task",
	Long: `Publish every deliverable listed in a manifest to a task.

For each deliverable this command:
1. Finds or creates the asset type, asset and asset version
2. Attaches the thumbnail and propagates it up the task's hierarchy
3. Creates the component, or overwrites it when requested
4. Transfers the files into the component location

The task comes from --task, FTPUB_TASK, the FTRACK_CONNECT_EVENT payload
or FTRACK_TASKID, in that order. Publishing the same manifest twice
changes nothing the second time.`,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().String("manifest", "", "deliverable manifest (YAML or JSON)")
	publishCmd.Flags().String("task", "", "task id (default: from environment)")
	publishCmd.Flags().Bool("probe-tags", false, "store audio tags of every component as metadata")
	publishCmd.Flags().String("default-location", "", "location for deliverables that name none")

	viper.BindPFlag("manifest", publishCmd.Flags().Lookup("manifest"))
	viper.BindPFlag("task", publishCmd.Flags().Lookup("task"))
	viper.BindPFlag("probe-tags", publishCmd.Flags().Lookup("probe-tags"))
	viper.BindPFlag("default-location", publishCmd.Flags().Lookup("default-location"))
}

// resolveTask picks the task id from config, then the launcher environment
func resolveTask() (string, error) {
	if id := viper.GetString("task"); id != "" {
		return id, nil
	}
	return collect.ResolveTaskID(os.Getenv)
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	setupLogging()

	manifestPath := viper.GetString("manifest")
	if manifestPath == "" {
		return fmt.Errorf("--manifest is required")
	}
	taskID, err := resolveTask()
	if err != nil {
		return err
	}

	deliverables, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}
	if loc := viper.GetString("default-location"); loc != "" {
		for _, d := range deliverables {
			if d.ComponentLocation == "" {
				d.ComponentLocation = loc
			}
		}
	}

	logger := newEventLogger()
	defer logger.Close()

	db, err := openStore(true, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	task, err := collect.Task(ctx, db, taskID)
	if err != nil {
		return err
	}

	util.InfoLog("=== Publish ===")
	util.InfoLog("Task: %s", task)
	util.InfoLog("Manifest: %s (%d deliverables)", manifestPath, len(deliverables))

	publisher := publish.New(db, &publish.Config{
		Events:         logger,
		AllowAmbiguous: !viper.GetBool("strict-identity"),
		ProbeTags:      viper.GetBool("probe-tags"),
		ShowProgress:   util.ShowProgress(),
	})

	startTime := time.Now()
	result, err := publisher.Publish(ctx, task, deliverables)
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	duration := time.Since(startTime)

	rows := make([][]string, 0, len(deliverables))
	for i, d := range deliverables {
		if d.Component == nil {
			continue
		}
		rows = append(rows, []string{
			strconv.Itoa(i),
			d.Component.GetString("name"),
			d.Component.Type,
			d.Component.ID,
			d.ComponentPath,
		})
	}
	fmt.Println(renderTable(
		[]string{"#", "Name", "Type", "ID", "Path"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	))

	// Summary
	util.InfoLog("")
	util.SuccessLog("=== Publish Summary ===")
	util.InfoLog("Total time: %v", duration.Round(time.Millisecond))
	util.InfoLog("Deliverables: %d", result.Deliverables)
	for _, entityType := range []string{"AssetType", "Asset", "AssetVersion"} {
		util.InfoLog("  %s: %d created, %d reused", entityType, result.Created[entityType], result.Reused[entityType])
	}
	util.InfoLog("  Components: %d created, %d overwritten, %d unchanged",
		result.Commits[publish.ModeCreate], result.Commits[publish.ModeOverwrite], result.Commits[publish.ModeNoop])
	util.InfoLog("  Thumbnails: %d", result.Thumbnails)

	writeSummary(logger, func(r *report.SummaryReport) {
		r.TaskID = task.ID
		r.ManifestPath = manifestPath
		r.DatabasePath = viper.GetString("db")
		r.Duration = duration
	})
	return nil
}

// writeSummary renders the event log of this run as Markdown
func writeSummary(logger *report.EventLogger, fill func(*report.SummaryReport)) {
	if logger.Path() == "" {
		return
	}
	util.InfoLog("")
	util.InfoLog("Generating summary report...")

	summaryReport, err := report.GenerateSummaryReport(logger.Path())
	if err != nil {
		util.WarnLog("Failed to generate summary report: %v", err)
		return
	}
	fill(summaryReport)

	timestamp := time.Now().Format("20060102-150405")
	reportPath := filepath.Join(GetConfigString("artifacts", "artifacts"), "reports", timestamp, "summary.md")
	if err := report.WriteMarkdownReport(summaryReport, reportPath); err != nil {
		util.WarnLog("Failed to write summary report: %v", err)
		return
	}
	util.SuccessLog("Summary report saved to: %s", reportPath)
}
