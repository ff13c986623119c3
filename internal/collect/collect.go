// Package collect resolves the publish context from the environment a
// launcher leaves behind.
package collect

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/gjson"

	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
)

const (
	// EventEnv holds the base64 JSON event a launcher was started from
	EventEnv = "FTRACK_CONNECT_EVENT"
	// TaskEnv holds a task id directly
	TaskEnv = "FTRACK_TASKID"

	selectionPath = "selection.0.entityId"
)

// ErrNoTask is returned when neither the event nor the environment name a task
var ErrNoTask = errors.New("no task in environment")

// ResolveTaskID finds the task id through lookup (os.Getenv in
// production). The event payload wins; any failure to read it falls back
// to FTRACK_TASKID.
func ResolveTaskID(lookup func(string) string) (string, error) {
	if lookup == nil {
		lookup = os.Getenv
	}

	id, err := taskFromEvent(lookup(EventEnv))
	if err == nil {
		util.DebugLog("Task %s from %s", id, EventEnv)
		return id, nil
	}
	util.DebugLog("No task in %s (%v), trying %s", EventEnv, err, TaskEnv)

	if id := strings.TrimSpace(lookup(TaskEnv)); id != "" {
		return id, nil
	}
	return "", ErrNoTask
}

// taskFromEvent reads the first selected entity of an encoded event
func taskFromEvent(encoded string) (string, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return "", errors.New("not set")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid base64: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return "", errors.New("invalid json")
	}
	id := gjson.GetBytes(raw, selectionPath)
	if id.Type != gjson.String || id.Str == "" {
		return "", fmt.Errorf("no %s", selectionPath)
	}
	return id.Str, nil
}

// LoadEnv loads .env files into the process environment. Variables that
// are already set keep their value and missing files are skipped.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
		util.DebugLog("Loaded environment from %s", p)
	}
	return nil
}

// Task fetches the task to publish to
func Task(ctx context.Context, s session.EntityStore, id string) (*session.Entity, error) {
	if id == "" {
		return nil, ErrNoTask
	}
	task, err := s.Get(ctx, session.TypeTask, id)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", id, err)
	}
	return task, nil
}
