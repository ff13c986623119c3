package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventReconcile EventType = "reconcile"
	EventMetadata  EventType = "metadata"
	EventThumbnail EventType = "thumbnail"
	EventPropagate EventType = "propagate"
	EventCommit    EventType = "commit"
	EventTransfer  EventType = "transfer"
	EventError     EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event represents a single audit record of a publish run
type Event struct {
	Timestamp    time.Time         `json:"ts"`
	Level        EventLevel        `json:"level"`
	Event        EventType         `json:"event"`
	Deliverable  int               `json:"deliverable,omitempty"` // 1-based position in the manifest
	EntityType   string            `json:"entity_type,omitempty"`
	EntityID     string            `json:"entity_id,omitempty"`
	Action       string            `json:"action,omitempty"`
	SrcPath      string            `json:"src_path,omitempty"`
	DestPath     string            `json:"dest_path,omitempty"`
	Location     string            `json:"location,omitempty"`
	BytesWritten int64             `json:"bytes_written,omitempty"`
	Duration     int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error        string            `json:"error,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Reconcile actions
const (
	ActionCreated = "created"
	ActionReused  = "reused"
)

// EventLogger writes events to a JSONL file. A nil *EventLogger discards
// everything, so callers never need to check.
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	path := filepath.Join(outputDir, fmt.Sprintf("events-%s.jsonl", timestamp))

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogReconcile records a find-or-create outcome for one entity level
func (l *EventLogger) LogReconcile(index int, entityType, id string, created bool) error {
	action := ActionReused
	if created {
		action = ActionCreated
	}
	return l.Log(&Event{
		Level:       LevelInfo,
		Event:       EventReconcile,
		Deliverable: index,
		EntityType:  entityType,
		EntityID:    id,
		Action:      action,
	})
}

// LogMetadata records a metadata merge
func (l *EventLogger) LogMetadata(index int, entityType, id string, merged map[string]string) error {
	return l.Log(&Event{
		Level:       LevelDebug,
		Event:       EventMetadata,
		Deliverable: index,
		EntityType:  entityType,
		EntityID:    id,
		Extra:       merged,
	})
}

// LogThumbnail records a thumbnail created for a version, or skipped
func (l *EventLogger) LogThumbnail(index int, versionID, thumbnailID, path string) error {
	action := "created"
	if thumbnailID == "" {
		action = "skipped"
	}
	return l.Log(&Event{
		Level:       LevelInfo,
		Event:       EventThumbnail,
		Deliverable: index,
		EntityType:  "AssetVersion",
		EntityID:    versionID,
		Action:      action,
		SrcPath:     path,
		Extra:       map[string]string{"thumbnail_id": thumbnailID},
	})
}

// LogPropagate records a thumbnail assigned to an ancestor
func (l *EventLogger) LogPropagate(index int, entityType, id, thumbnailID string) error {
	return l.Log(&Event{
		Level:       LevelInfo,
		Event:       EventPropagate,
		Deliverable: index,
		EntityType:  entityType,
		EntityID:    id,
		Extra:       map[string]string{"thumbnail_id": thumbnailID},
	})
}

// LogCommit records the component commit outcome (noop, create, overwrite)
func (l *EventLogger) LogCommit(index int, mode, componentID, path, location string, members int) error {
	return l.Log(&Event{
		Level:       LevelInfo,
		Event:       EventCommit,
		Deliverable: index,
		EntityType:  "Component",
		EntityID:    componentID,
		Action:      mode,
		SrcPath:     path,
		Location:    location,
		Extra:       map[string]string{"members": strconv.Itoa(members)},
	})
}

// LogTransfer logs a file moved into a location
func (l *EventLogger) LogTransfer(srcPath, destPath, action string, bytesWritten int64, duration time.Duration, err error) error {
	level := LevelDebug
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:        level,
		Event:        EventTransfer,
		SrcPath:      srcPath,
		DestPath:     destPath,
		Action:       action,
		BytesWritten: bytesWritten,
		Duration:     duration.Milliseconds(),
		Error:        errMsg,
	})
}

// LogError logs a failed deliverable
func (l *EventLogger) LogError(index int, path string, err error) error {
	return l.Log(&Event{
		Level:       LevelError,
		Event:       EventError,
		Deliverable: index,
		SrcPath:     path,
		Error:       err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}

// ReadEvents loads every event of a JSONL log. Malformed lines are
// reported with their line number.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("event log line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	return events, nil
}
