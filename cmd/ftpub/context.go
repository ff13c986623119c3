package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/nebukadhezer/pyblish-ftrack/internal/publish"
	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
	"github.com/nebukadhezer/pyblish-ftrack/internal/store"
	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
	"github.com/spf13/cobra"
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Manage the project hierarchy",
}

var contextCreateCmd = &cobra.Command{
	Use:   "create PATH",
	Short: "Create a context hierarchy and a task below it",
	Long: `Create (or reuse) a context hierarchy and a task below it, then print
the task id.

PATH lists Type:name pairs from the project down, for example:
  ftpub context create Project:show/Sequence:sq01/Shot:sh010 --task lighting

Existing entities with the same name and parent are reused.`,
	Args: cobra.ExactArgs(1),
	RunE: runContextCreate,
}

func init() {
	rootCmd.AddCommand(contextCmd)
	contextCmd.AddCommand(contextCreateCmd)

	contextCreateCmd.Flags().String("task", "", "task name")
	contextCreateCmd.Flags().String("task-type", "", "task type (e.g. Lighting)")
	contextCreateCmd.MarkFlagRequired("task")
}

type contextSegment struct {
	entityType string
	name       string
}

// parseContextPath splits Project:show/Shot:sh010 into segments
func parseContextPath(path string) ([]contextSegment, error) {
	var segments []contextSegment
	for i, part := range strings.Split(strings.Trim(path, "/"), "/") {
		entityType, name, ok := strings.Cut(part, ":")
		if !ok || entityType == "" || name == "" {
			return nil, fmt.Errorf("segment %q: expected Type:name", part)
		}
		if !slices.Contains(store.ContextTypes(), entityType) || entityType == session.TypeTask {
			return nil, fmt.Errorf("segment %q: %s is not a container type", part, entityType)
		}
		if (i == 0) != (entityType == session.TypeProject) {
			return nil, fmt.Errorf("segment %q: the path must start with exactly one Project", part)
		}
		segments = append(segments, contextSegment{entityType: entityType, name: name})
	}
	return segments, nil
}

func runContextCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	setupLogging()

	segments, err := parseContextPath(args[0])
	if err != nil {
		return err
	}
	taskName, _ := cmd.Flags().GetString("task")
	taskType, _ := cmd.Flags().GetString("task-type")

	db, err := openStore(true, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	task, err := createContext(ctx, db, segments, taskName, taskType)
	if err != nil {
		return err
	}
	util.SuccessLog("Task %s at %s", task.ID, args[0])
	fmt.Fprintln(cmd.OutOrStdout(), task.ID)
	return nil
}

// createContext reconciles every segment, then the task, and commits
func createContext(ctx context.Context, s session.Session, segments []contextSegment, taskName, taskType string) (*session.Entity, error) {
	reconciler := publish.NewReconciler(s, nil)

	var parent *session.Entity
	for _, seg := range segments {
		identity := session.NewData("name", seg.name)
		if parent != nil {
			identity.Set("parent", parent.Ref())
		}
		result, err := reconciler.Reconcile(ctx, publish.ReconcileRequest{Type: seg.entityType, Identity: identity})
		if err != nil {
			return nil, err
		}
		parent = result.Entity
		// Children query committed state
		if err := s.Commit(ctx); err != nil {
			return nil, err
		}
	}

	identity := session.NewData("name", taskName, "parent", parent.Ref())
	var extra *session.Data
	if taskType != "" {
		extra = session.NewData("type", taskType)
	}
	result, err := reconciler.Reconcile(ctx, publish.ReconcileRequest{Type: session.TypeTask, Identity: identity, Extra: extra})
	if err != nil {
		return nil, err
	}
	if err := s.Commit(ctx); err != nil {
		return nil, err
	}
	return result.Entity, nil
}
