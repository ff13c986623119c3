package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
)

// SummaryReport represents a complete summary of one or more publish runs
type SummaryReport struct {
	GeneratedAt time.Time
	Duration    time.Duration

	// Reconciliation statistics, keyed by entity type
	Created map[string]int
	Reused  map[string]int

	// Component commits, keyed by mode (noop, create, overwrite)
	Commits map[string]int

	ThumbnailsCreated int
	ThumbnailsSkipped int
	Propagations      int

	// Transfer statistics
	FilesTransferred int
	TransferFailures int
	BytesWritten     int64

	// Details
	Components []ComponentRow
	TopErrors  []ErrorSummary

	// Metadata
	TaskID       string
	ManifestPath string
	DatabasePath string
	EventLogPath string
}

// ComponentRow is one committed component
type ComponentRow struct {
	Deliverable int
	ComponentID string
	Mode        string
	Path        string
	Location    string
	Members     string
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

// GenerateSummaryReport builds a summary from an event log
func GenerateSummaryReport(eventLogPath string) (*SummaryReport, error) {
	events, err := ReadEvents(eventLogPath)
	if err != nil {
		return nil, err
	}
	report := SummarizeEvents(events)
	report.EventLogPath = eventLogPath
	return report, nil
}

// SummarizeEvents folds events into a SummaryReport
func SummarizeEvents(events []Event) *SummaryReport {
	report := &SummaryReport{
		GeneratedAt: time.Now(),
		Created:     make(map[string]int),
		Reused:      make(map[string]int),
		Commits:     make(map[string]int),
		Components:  make([]ComponentRow, 0),
		TopErrors:   make([]ErrorSummary, 0),
	}

	var first, last time.Time
	errorCounts := make(map[string]int)

	for _, ev := range events {
		if first.IsZero() || ev.Timestamp.Before(first) {
			first = ev.Timestamp
		}
		if ev.Timestamp.After(last) {
			last = ev.Timestamp
		}

		switch ev.Event {
		case EventReconcile:
			if ev.Action == ActionCreated {
				report.Created[ev.EntityType]++
			} else {
				report.Reused[ev.EntityType]++
			}
		case EventThumbnail:
			if ev.Action == "skipped" {
				report.ThumbnailsSkipped++
			} else {
				report.ThumbnailsCreated++
			}
		case EventPropagate:
			report.Propagations++
		case EventCommit:
			report.Commits[ev.Action]++
			report.Components = append(report.Components, ComponentRow{
				Deliverable: ev.Deliverable,
				ComponentID: ev.EntityID,
				Mode:        ev.Action,
				Path:        ev.SrcPath,
				Location:    ev.Location,
				Members:     ev.Extra["members"],
			})
		case EventTransfer:
			if ev.Error != "" {
				report.TransferFailures++
			} else {
				report.FilesTransferred++
				report.BytesWritten += ev.BytesWritten
			}
		}

		if ev.Error != "" {
			errorCounts[ev.Error]++
		}
	}

	if !first.IsZero() {
		report.Duration = last.Sub(first)
	}
	report.TopErrors = topErrors(errorCounts, 10)
	return report
}

// topErrors returns the most common errors
func topErrors(counts map[string]int, limit int) []ErrorSummary {
	errors := make([]ErrorSummary, 0, len(counts))
	for err, count := range counts {
		errors = append(errors, ErrorSummary{Error: err, Count: count})
	}

	sort.Slice(errors, func(i, j int) bool {
		if errors[i].Count != errors[j].Count {
			return errors[i].Count > errors[j].Count
		}
		return errors[i].Error < errors[j].Error
	})

	if len(errors) > limit {
		errors = errors[:limit]
	}
	return errors
}

// entityOrder is the reconciliation order used for report rows
var entityOrder = []string{"AssetType", "Asset", "AssetVersion", "Component"}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	md.WriteString("# ftpub - Publish Summary\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))

	if report.TaskID != "" {
		md.WriteString(fmt.Sprintf("**Task:** `%s`\n\n", report.TaskID))
	}
	if report.ManifestPath != "" {
		md.WriteString(fmt.Sprintf("**Manifest:** `%s`\n\n", report.ManifestPath))
	}
	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	// Entities
	md.WriteString("## Entities\n\n")
	md.WriteString("| Type | Created | Reused |\n")
	md.WriteString("|------|---------|--------|\n")
	for _, t := range entityOrder {
		md.WriteString(fmt.Sprintf("| %s | %d | %d |\n", t, report.Created[t], report.Reused[t]))
	}
	md.WriteString("\n")

	// Commits
	if len(report.Components) > 0 {
		md.WriteString("## Components\n\n")
		md.WriteString(fmt.Sprintf("Created: %d, overwritten: %d, unchanged: %d\n\n",
			report.Commits["create"], report.Commits["overwrite"], report.Commits["noop"]))
		md.WriteString("| # | Mode | Component | Members | Location | Path |\n")
		md.WriteString("|---|------|-----------|---------|----------|------|\n")
		for _, row := range report.Components {
			md.WriteString(fmt.Sprintf("| %d | %s | `%s` | %s | %s | `%s` |\n",
				row.Deliverable, row.Mode, row.ComponentID, row.Members, row.Location,
				truncatePath(row.Path, 60)))
		}
		md.WriteString("\n")
	}

	// Thumbnails
	if report.ThumbnailsCreated > 0 || report.ThumbnailsSkipped > 0 {
		md.WriteString("## Thumbnails\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Created | %d |\n", report.ThumbnailsCreated))
		md.WriteString(fmt.Sprintf("| Skipped (missing file) | %d |\n", report.ThumbnailsSkipped))
		md.WriteString(fmt.Sprintf("| Propagated to ancestors | %d |\n", report.Propagations))
		md.WriteString("\n")
	}

	// Transfers
	if report.FilesTransferred > 0 || report.TransferFailures > 0 {
		md.WriteString("## Transfers\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Files Transferred | %d |\n", report.FilesTransferred))
		if report.TransferFailures > 0 {
			md.WriteString(fmt.Sprintf("| Failures | %d |\n", report.TransferFailures))
		}
		md.WriteString(fmt.Sprintf("| Bytes Written | %s |\n", util.FormatBytes(report.BytesWritten)))
		if report.Duration > 0 {
			md.WriteString(fmt.Sprintf("| Run Time | %s |\n", report.Duration.Round(time.Second)))
		}
		md.WriteString("\n")
	}

	// Errors
	if len(report.TopErrors) > 0 {
		md.WriteString("## Top Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, err := range report.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", err.Count, err.Error))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by ftpub*\n")

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// truncatePath truncates a file path to a maximum length
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	// Truncate from the middle, keeping start and end
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
