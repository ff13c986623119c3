package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestNewEventLogger(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewEventLogger(tmpDir, LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer logger.Close()

	if logger.Path() == "" {
		t.Error("EventLogger path is empty")
	}

	if _, err := os.Stat(logger.Path()); os.IsNotExist(err) {
		t.Errorf("Event log file was not created at %s", logger.Path())
	}

	filename := filepath.Base(logger.Path())
	if len(filename) < len("events-20060102-150405.jsonl") {
		t.Errorf("Event log filename format incorrect: %s", filename)
	}
}

func readLog(t *testing.T, path string) []Event {
	t.Helper()
	events, err := ReadEvents(path)
	if err != nil {
		t.Fatalf("ReadEvents failed: %v", err)
	}
	return events
}

func TestEventLogger_LogReconcile(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	logger.LogReconcile(1, "Asset", "a1", true)
	logger.LogReconcile(2, "Asset", "a1", false)
	logger.Close()

	events := readLog(t, logger.Path())
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Action != ActionCreated || events[1].Action != ActionReused {
		t.Errorf("Unexpected actions: %q, %q", events[0].Action, events[1].Action)
	}
	if events[1].Deliverable != 2 || events[1].EntityID != "a1" {
		t.Errorf("Unexpected event: %+v", events[1])
	}
	if events[0].Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestEventLogger_LogCommitAndTransfer(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	logger.LogCommit(1, "overwrite", "c1", "/r/shot.%04d.exr", "ftrack.server", 2)
	logger.LogTransfer("/r/shot.0001.exr", "/srv/shot.0001.exr", "copy", 1024, 15*time.Millisecond, nil)
	logger.LogTransfer("/r/shot.0002.exr", "/srv/shot.0002.exr", "copy", 0, 0, errors.New("disk full"))
	logger.Close()

	events := readLog(t, logger.Path())
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}

	commit := events[0]
	if commit.Event != EventCommit || commit.Action != "overwrite" || commit.Extra["members"] != "2" {
		t.Errorf("Unexpected commit event: %+v", commit)
	}
	if events[1].BytesWritten != 1024 || events[1].Duration != 15 {
		t.Errorf("Unexpected transfer event: %+v", events[1])
	}
	if events[2].Level != LevelError || events[2].Error != "disk full" {
		t.Errorf("Expected error transfer event, got %+v", events[2])
	}
}

func TestEventLogger_ConcurrentWrites(t *testing.T) {
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}
	defer logger.Close()

	const numGoroutines = 10
	const eventsPerGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				if err := logger.LogTransfer("/src", "/dst", "copy", 1, 0, nil); err != nil {
					t.Errorf("Concurrent log failed: %v", err)
				}
			}
		}()
	}

	wg.Wait()
	logger.Close()

	file, err := os.Open(logger.Path())
	if err != nil {
		t.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineCount := 0
	for scanner.Scan() {
		lineCount++
		var decoded Event
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("Failed to decode line %d: %v", lineCount, err)
		}
	}

	if expected := numGoroutines * eventsPerGoroutine; lineCount != expected {
		t.Errorf("Expected %d events, got %d", expected, lineCount)
	}
}

func TestEventLogger_NullLogger(t *testing.T) {
	logger := NullLogger()

	if err := logger.LogReconcile(1, "Asset", "x", true); err != nil {
		t.Errorf("NullLogger should not return errors: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("NullLogger Close should not return errors: %v", err)
	}
	if logger.Path() != "" {
		t.Errorf("NullLogger path should be empty")
	}
}

func TestEventLogger_LogLevelFiltering(t *testing.T) {
	testCases := []struct {
		name          string
		minLevel      EventLevel
		expectedCount int
	}{
		{name: "LevelDebug logs all", minLevel: LevelDebug, expectedCount: 4},
		{name: "LevelInfo skips debug", minLevel: LevelInfo, expectedCount: 3},
		{name: "LevelWarning skips debug and info", minLevel: LevelWarning, expectedCount: 2},
		{name: "LevelError only logs errors", minLevel: LevelError, expectedCount: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			logger, err := NewEventLogger(t.TempDir(), tc.minLevel)
			if err != nil {
				t.Fatalf("NewEventLogger failed: %v", err)
			}

			events := []Event{
				{Level: LevelDebug, Event: EventMetadata},
				{Level: LevelInfo, Event: EventReconcile},
				{Level: LevelWarning, Event: EventCommit},
				{Level: LevelError, Event: EventError},
			}
			for i := range events {
				if err := logger.Log(&events[i]); err != nil {
					t.Fatalf("Log failed: %v", err)
				}
			}
			logger.Close()

			if got := len(readLog(t, logger.Path())); got != tc.expectedCount {
				t.Errorf("Expected %d events logged, got %d", tc.expectedCount, got)
			}
		})
	}
}

func TestReadEvents_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	content := `{"event":"commit","level":"info"}` + "\n\nnot json\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadEvents(path); err == nil {
		t.Error("Expected error for malformed line")
	}
}
