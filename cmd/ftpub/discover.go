package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/nebukadhezer/pyblish-ftrack/internal/manifest"
	"github.com/nebukadhezer/pyblish-ftrack/internal/publish"
	"github.com/nebukadhezer/pyblish-ftrack/internal/sequence"
	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover DIR",
	Short: "Write a draft manifest for the files below a directory",
	Long: `Walk a directory, group numbered files into sequences and write a
draft manifest with one deliverable per sequence or single file.

Components are named after the file (without frame number and extension).
Review the manifest before publishing it.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().StringP("out", "o", "manifest.yaml", "manifest to write")
	discoverCmd.Flags().StringSlice("ext", nil, "only include these extensions (e.g. exr,abc)")
	discoverCmd.Flags().Int("min-frames", 2, "smallest group treated as a sequence")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	setupLogging()

	out, _ := cmd.Flags().GetString("out")
	exts, _ := cmd.Flags().GetStringSlice("ext")
	minimum, _ := cmd.Flags().GetInt("min-frames")

	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	scanner := sequence.NewScanner(&sequence.Config{
		Extensions:   exts,
		MinimumItems: minimum,
		ShowProgress: util.ShowProgress(),
	})
	result, err := scanner.Scan(ctx, root)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	items := draftDeliverables(result)
	if len(items) == 0 {
		util.WarnLog("No files found below %s", root)
		return nil
	}
	if err := manifest.Write(out, items); err != nil {
		return err
	}

	util.SuccessLog("Wrote %d deliverable(s) to %s", len(items), out)
	util.InfoLog("  Sequences: %d", len(result.Collections))
	util.InfoLog("  Single files: %d", len(result.Singles))
	if result.FilesSkipped > 0 {
		util.InfoLog("  Skipped: %d", result.FilesSkipped)
	}
	return nil
}

// draftDeliverables names each sequence and file after its base name
func draftDeliverables(result *sequence.ScanResult) []*publish.Deliverable {
	items := make([]*publish.Deliverable, 0, len(result.Collections)+len(result.Singles))
	seen := make(map[string]int)
	name := func(base string) string {
		base = strings.TrimRight(base, "._- ")
		if base == "" {
			base = "main"
		}
		seen[base]++
		if n := seen[base]; n > 1 {
			return fmt.Sprintf("%s_%d", base, n)
		}
		return base
	}

	for _, c := range result.Collections {
		items = append(items, &publish.Deliverable{
			ComponentPath: c.String(),
			ComponentData: session.NewData("name", name(filepath.Base(c.Head))),
		})
	}
	for _, p := range result.Singles {
		base := filepath.Base(p)
		items = append(items, &publish.Deliverable{
			ComponentPath: p,
			ComponentData: session.NewData("name", name(strings.TrimSuffix(base, filepath.Ext(base)))),
		})
	}
	return items
}
