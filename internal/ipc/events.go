package ipc

import (
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// EventType represents the type of IPC event
type EventType string

const (
	EventTypeSuiteStart  EventType = "suite:start"
	EventTypeTestPass    EventType = "test:pass"
	EventTypeTestFail    EventType = "test:fail"
	EventTypeTestPending EventType = "test:pending"
	EventTypeEnd         EventType = "end"
)

// Event is the base interface for all IPC events
type Event interface {
	Type() EventType
}

// Tag is a gherkin tag attached to a feature or scenario
type Tag struct {
	Name string `json:"name"`
	Line int    `json:"line"`
}

// SuiteStartEvent is emitted when a feature or scenario starts in one runner
type SuiteStartEvent struct {
	EventType EventType         `json:"eventType"`
	Payload   SuiteStartPayload `json:"payload"`
}

func (e SuiteStartEvent) Type() EventType { return EventTypeSuiteStart }

type SuiteStartPayload struct {
	UID    string  `json:"uid"`
	Parent *string `json:"parent"` // nil for features
	Title  string  `json:"title,omitempty"`
	Tags   []Tag   `json:"tags,omitempty"`
	File   string  `json:"file"`
	CID    string  `json:"cid,omitempty"`
}

// IsFeature reports whether the suite is a top-level feature
func (p SuiteStartPayload) IsFeature() bool {
	return p.Parent == nil
}

// TestError contains error information for failed or pending steps
type TestError struct {
	Message string `json:"message,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

type TestPayload struct {
	Parent string     `json:"parent"` // uid of the owning scenario
	CID    string     `json:"cid"`    // environment key
	Title  string     `json:"title"`
	Err    *TestError `json:"err,omitempty"`
}

// TestPassEvent is emitted when a step passes
type TestPassEvent struct {
	EventType EventType   `json:"eventType"`
	Payload   TestPayload `json:"payload"`
}

func (e TestPassEvent) Type() EventType { return EventTypeTestPass }

// TestFailEvent is emitted when a step fails
type TestFailEvent struct {
	EventType EventType   `json:"eventType"`
	Payload   TestPayload `json:"payload"`
}

func (e TestFailEvent) Type() EventType { return EventTypeTestFail }

// TestPendingEvent is emitted when a step is pending (undefined or skipped)
type TestPendingEvent struct {
	EventType EventType   `json:"eventType"`
	Payload   TestPayload `json:"payload"`
}

func (e TestPendingEvent) Type() EventType { return EventTypeTestPending }

// RunnerStats describes one parallel execution context
type RunnerStats struct {
	SanitizedCapabilities string `json:"sanitizedCapabilities"`
}

// RunStats holds the run-level statistics delivered with the end event.
// Runners keeps the order in which the runner listed its contexts.
type RunStats struct {
	Start   time.Time                                   `json:"start"`
	End     time.Time                                   `json:"end"`
	Runners *orderedmap.OrderedMap[string, RunnerStats] `json:"runners"`
}

// EndEvent indicates that the test runner has completed
type EndEvent struct {
	EventType EventType  `json:"eventType"`
	Payload   EndPayload `json:"payload"`
}

func (e EndEvent) Type() EventType { return EventTypeEnd }

type EndPayload struct {
	Stats RunStats `json:"stats"`
}

// Helper functions to create events

// NewSuiteStartEvent creates a suite start event. An empty parent marks a feature.
func NewSuiteStartEvent(uid, parent, file string, tags ...Tag) SuiteStartEvent {
	payload := SuiteStartPayload{
		UID:  uid,
		File: file,
		Tags: tags,
	}
	if parent != "" {
		payload.Parent = &parent
	}
	return SuiteStartEvent{
		EventType: EventTypeSuiteStart,
		Payload:   payload,
	}
}

// NewTestPassEvent creates a passing step event
func NewTestPassEvent(parent, cid, title string) TestPassEvent {
	return TestPassEvent{
		EventType: EventTypeTestPass,
		Payload:   TestPayload{Parent: parent, CID: cid, Title: title},
	}
}

// NewTestFailEvent creates a failing step event
func NewTestFailEvent(parent, cid, title, message, stack string) TestFailEvent {
	return TestFailEvent{
		EventType: EventTypeTestFail,
		Payload: TestPayload{
			Parent: parent,
			CID:    cid,
			Title:  title,
			Err:    &TestError{Message: message, Stack: stack},
		},
	}
}

// NewTestPendingEvent creates a pending step event
func NewTestPendingEvent(parent, cid, title string) TestPendingEvent {
	return TestPendingEvent{
		EventType: EventTypeTestPending,
		Payload:   TestPayload{Parent: parent, CID: cid, Title: title},
	}
}

// NewEndEvent creates an end event. Runners are given as alternating
// cid, sanitizedCapabilities pairs and keep their argument order.
func NewEndEvent(start, end time.Time, runners ...string) EndEvent {
	m := orderedmap.New[string, RunnerStats]()
	for i := 0; i+1 < len(runners); i += 2 {
		m.Set(runners[i], RunnerStats{SanitizedCapabilities: runners[i+1]})
	}
	return EndEvent{
		EventType: EventTypeEnd,
		Payload: EndPayload{
			Stats: RunStats{Start: start, End: end, Runners: m},
		},
	}
}
