// Package eventlog journals turn stream events to daily rotated JSONL files.
// The journal is an audit trail: every event a client saw is recoverable
// from disk, including for turns whose stream disconnected mid-flight.
package eventlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"conductor/pkg/proto"
)

// Writer appends turn events to the current day's journal file.
type Writer struct {
	logDir      string
	currentFile *os.File
	currentDate string
	mu          sync.Mutex
	now         func() time.Time
}

// NewWriter creates an event journal writer rooted at logDir, creating the
// directory if needed.
func NewWriter(logDir string) (*Writer, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &Writer{logDir: logDir, now: time.Now}
	if err := w.rotateIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize journal file: %w", err)
	}

	return w, nil
}

// Append writes one event to the journal, rotating to a new file when the
// date changes.
func (w *Writer) Append(event proto.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateIfNeeded(); err != nil {
		return fmt.Errorf("failed to rotate journal: %w", err)
	}

	line, err := event.MarshalLine()
	if err != nil {
		return err
	}

	if _, err := w.currentFile.Write(line); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := w.currentFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal: %w", err)
	}

	return nil
}

func (w *Writer) rotateIfNeeded() error {
	date := w.now().Format("2006-01-02")
	if w.currentFile != nil && w.currentDate == date {
		return nil
	}
	return w.rotate(date)
}

func (w *Writer) rotate(date string) error {
	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return fmt.Errorf("failed to close journal file: %w", err)
		}
	}

	path := filepath.Join(w.logDir, fmt.Sprintf("events-%s.jsonl", date))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal file %s: %w", path, err)
	}

	w.currentFile = file
	w.currentDate = date

	return nil
}

// CurrentFile returns the path of the active journal file.
func (w *Writer) CurrentFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return ""
	}
	return filepath.Join(w.logDir, fmt.Sprintf("events-%s.jsonl", w.currentDate))
}

// Close closes the active journal file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return nil
	}
	err := w.currentFile.Close()
	w.currentFile = nil
	if err != nil {
		return fmt.Errorf("failed to close journal file: %w", err)
	}

	return nil
}

// ReadEvents parses every event from a journal file.
func ReadEvents(path string) ([]proto.Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var events []proto.Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		event, err := proto.UnmarshalEvent(line)
		if err != nil {
			return nil, fmt.Errorf("failed to parse journal line: %w", err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan journal file: %w", err)
	}

	return events, nil
}

// ListFiles returns all journal files under logDir, sorted by name (which
// orders them by date).
func ListFiles(logDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(logDir, "events-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to list journal files: %w", err)
	}
	return files, nil
}
