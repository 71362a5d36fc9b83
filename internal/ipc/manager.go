package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// IPCPathEnv names the environment variable through which runner adapters
// learn where to append their events.
const IPCPathEnv = "XRAY_REPORTER_IPC_PATH"

// ErrUnknownEventType is returned by ParseEvent for event types outside the supported set
var ErrUnknownEventType = errors.New("unknown event type")

// Manager handles IPC communication via file-based JSONL
type Manager struct {
	IPCPath   string
	watcher   *fsnotify.Watcher
	Events    chan Event
	stopChan  chan struct{}
	stopped   chan struct{} // Signals when watchLoop has stopped
	mu        sync.RWMutex
	closeOnce sync.Once
	logger    Logger
	file      *os.File
	reader    *bufio.Reader
	readerMu  sync.Mutex // Protects concurrent access to reader
	partial   []byte     // Unterminated tail of the last read
}

// Logger interface for debug logging
type Logger interface {
	Debug(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// NewManager creates a new IPC manager for reading events
func NewManager(ipcPath string, logger Logger) (*Manager, error) {
	if logger == nil {
		logger = &noopLogger{}
	}

	ipcDir := filepath.Dir(ipcPath)
	if err := os.MkdirAll(ipcDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create IPC directory: %w", err)
	}

	// Create IPC file if it doesn't exist
	file, err := os.OpenFile(ipcPath, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open IPC file: %w", err)
	}

	return &Manager{
		IPCPath:  ipcPath,
		Events:   make(chan Event, 10000), // Large buffer for handling burst of events
		stopChan: make(chan struct{}),
		stopped:  make(chan struct{}),
		logger:   logger,
		file:     file,
		reader:   bufio.NewReader(file),
	}, nil
}

// WatchEvents starts watching the IPC file for new events
func (m *Manager) WatchEvents() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(m.IPCPath); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch IPC file: %w", err)
	}
	m.watcher = watcher

	go m.watchLoop()

	// Trigger initial read of any existing content
	go m.readEvents()

	return nil
}

// readEvents reads events from the current position in the file
func (m *Manager) readEvents() {
	m.readerMu.Lock()
	defer m.readerMu.Unlock()

	if m.reader == nil {
		return
	}

	for {
		line, err := m.reader.ReadBytes('\n')
		if len(m.partial) > 0 {
			line = append(m.partial, line...)
			m.partial = nil
		}
		if err != nil {
			if err != io.EOF {
				m.logger.Error("Error reading events: %v", err)
			}
			// The writer has not finished this line yet
			if len(line) > 0 {
				m.partial = line
			}
			break
		}

		if len(line) > 0 {
			m.parseAndSendEvent(line)
		}
	}
}

// watchLoop watches for file changes and triggers reads
func (m *Manager) watchLoop() {
	defer close(m.stopped)

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Write == fsnotify.Write {
				m.logger.Debug("IPC file modified: %s", event.Name)
				m.readEvents()
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("Watcher error: %v", err)

		case <-m.stopChan:
			return
		}
	}
}

// parseAndSendEvent parses a JSON line and sends it as an event
func (m *Manager) parseAndSendEvent(line []byte) {
	event, err := ParseEvent(line)
	if err != nil {
		if errors.Is(err, ErrUnknownEventType) {
			m.logger.Error("[XRAY-REPORTER ERROR] %v", err)
		} else {
			m.logger.Debug("Failed to parse event: %v", err)
		}
		return
	}

	// Blocking send for natural backpressure
	m.Events <- event
	m.logger.Debug("Processing IPC event: %s", event.Type())
}

// ParseEvent decodes one JSON line into its typed event
func ParseEvent(line []byte) (Event, error) {
	var envelope struct {
		EventType *EventType `json:"eventType"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, fmt.Errorf("invalid event line: %w", err)
	}
	if envelope.EventType == nil {
		return nil, errors.New("event missing eventType field")
	}

	var event Event
	var err error
	switch *envelope.EventType {
	case EventTypeSuiteStart:
		var e SuiteStartEvent
		err = json.Unmarshal(line, &e)
		event = e

	case EventTypeTestPass:
		var e TestPassEvent
		err = json.Unmarshal(line, &e)
		event = e

	case EventTypeTestFail:
		var e TestFailEvent
		err = json.Unmarshal(line, &e)
		event = e

	case EventTypeTestPending:
		var e TestPendingEvent
		err = json.Unmarshal(line, &e)
		event = e

	case EventTypeEnd:
		var e EndEvent
		err = json.Unmarshal(line, &e)
		event = e

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, *envelope.EventType)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse %s event: %w", *envelope.EventType, err)
	}
	return event, nil
}

// Cleanup stops watching and closes resources
func (m *Manager) Cleanup() error {
	select {
	case <-m.stopChan:
		// Already closed
	default:
		close(m.stopChan)
	}

	// Wait for watchLoop to finish before cleaning up resources
	if m.watcher != nil {
		<-m.stopped
	}

	// Lines written just before the producer exited may not have triggered
	// a watcher event yet
	m.readEvents()

	m.readerMu.Lock()
	defer m.readerMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watcher != nil {
		_ = m.watcher.Close()
		m.watcher = nil
	}

	if m.file != nil {
		_ = m.file.Close()
		m.file = nil
		m.reader = nil
	}

	m.closeOnce.Do(func() {
		if m.Events != nil {
			close(m.Events)
		}
	})

	return nil
}

// SendEvent appends an event to the IPC file (for adapters)
func SendEvent(event Event) error {
	ipcPath := os.Getenv(IPCPathEnv)
	if ipcPath == "" {
		return fmt.Errorf("%s not set", IPCPathEnv)
	}
	return AppendEvent(ipcPath, event)
}

// AppendEvent writes an event as one JSON line at the end of the given file
func AppendEvent(ipcPath string, event Event) error {
	ipcDir := filepath.Dir(ipcPath)
	if err := os.MkdirAll(ipcDir, 0755); err != nil {
		return fmt.Errorf("failed to create IPC directory: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	file, err := os.OpenFile(ipcPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open IPC file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// One write per line so concurrent appenders never interleave inside a line
	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// noopLogger is a default logger that does nothing
type noopLogger struct{}

func (n *noopLogger) Debug(format string, args ...interface{}) {}
func (n *noopLogger) Error(format string, args ...interface{}) {}
