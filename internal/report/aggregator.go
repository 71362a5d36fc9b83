package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zk/xray-reporter/internal/ipc"
)

var (
	// ErrUnknownScenario means a step arrived for a scenario that was never
	// started (or was dropped for lack of a test key). The stream is malformed.
	ErrUnknownScenario = errors.New("step references unknown scenario")

	// ErrNoRunStats means the stream ended without an end event
	ErrNoRunStats = errors.New("run ended without run statistics")
)

// Logger interface for debug logging
type Logger interface {
	Debug(format string, args ...interface{})
	Error(format string, args ...interface{})
	Info(format string, args ...interface{})
}

// Aggregator builds the feature/scenario tree of one run from its event
// stream and assembles the reports once the run ends.
//
// An Aggregator is not safe for concurrent use; feed it from one goroutine
// in stream order.
type Aggregator struct {
	resolver  *Resolver
	assembler *Assembler
	logger    Logger

	nodes      map[string]Node     // uid -> node
	features   []*Feature          // registration order
	featureIDs map[string]struct{} // external IDs of registered features

	done    bool
	reports []Report
}

// NewAggregator creates an aggregator with empty state
func NewAggregator(resolver *Resolver, assembler *Assembler, logger Logger) *Aggregator {
	if logger == nil {
		logger = &noopLogger{}
	}
	return &Aggregator{
		resolver:   resolver,
		assembler:  assembler,
		logger:     logger,
		nodes:      make(map[string]Node),
		features:   make([]*Feature, 0),
		featureIDs: make(map[string]struct{}),
	}
}

// HandleEvent applies one event to the run state
func (a *Aggregator) HandleEvent(event ipc.Event) error {
	switch e := event.(type) {
	case ipc.SuiteStartEvent:
		a.handleSuiteStart(e.Payload)
		return nil

	case ipc.TestPassEvent:
		return a.recordStep(e.Payload, StatusPass)

	case ipc.TestFailEvent:
		return a.recordStep(e.Payload, StatusFail)

	case ipc.TestPendingEvent:
		return a.recordStep(e.Payload, StatusFail)

	case ipc.EndEvent:
		a.finish(e.Payload.Stats)
		return nil

	default:
		a.logger.Debug("Unknown event type: %T", event)
	}

	return nil
}

// handleSuiteStart registers a feature or scenario node
func (a *Aggregator) handleSuiteStart(suite ipc.SuiteStartPayload) {
	externalID, ok := a.resolver.Resolve(suite)
	if !ok {
		a.logger.Debug("No test key for suite %s (%s), skipping", suite.UID, suite.File)
		return
	}

	if _, exists := a.nodes[suite.UID]; exists {
		return
	}

	if suite.IsFeature() {
		// The same feature file reported again from another runner
		if _, dup := a.featureIDs[externalID]; dup {
			a.logger.Debug("Feature %s already registered, ignoring uid %s", externalID, suite.UID)
			return
		}
		feature := &Feature{
			UID:        suite.UID,
			ExternalID: externalID,
			Scenarios:  make([]*Scenario, 0),
		}
		a.nodes[suite.UID] = feature
		a.features = append(a.features, feature)
		a.featureIDs[externalID] = struct{}{}
		a.logger.Info("Registered feature: %s (uid %s)", externalID, suite.UID)
		return
	}

	scenario := &Scenario{
		UID:        suite.UID,
		ExternalID: externalID,
		ParentUID:  *suite.Parent,
		Steps:      make(map[string][]StepResult),
	}
	a.nodes[suite.UID] = scenario

	parent, ok := a.nodes[scenario.ParentUID].(*Feature)
	if !ok {
		a.logger.Debug("Parent %s of scenario %s not registered, scenario left out of the report",
			scenario.ParentUID, externalID)
		return
	}
	parent.Scenarios = append(parent.Scenarios, scenario)
	a.logger.Debug("Registered scenario: %s under %s", externalID, parent.ExternalID)
}

// recordStep appends a step outcome to its scenario under the runner's environment key
func (a *Aggregator) recordStep(step ipc.TestPayload, status Status) error {
	scenario, ok := a.nodes[step.Parent].(*Scenario)
	if !ok {
		return fmt.Errorf("%w: parent %q of step %q (cid %s)", ErrUnknownScenario, step.Parent, step.Title, step.CID)
	}

	result := StepResult{Status: status, Comment: step.Title}
	if status == StatusFail {
		result.Comment = failureText(step)
	}

	scenario.Steps[step.CID] = append(scenario.Steps[step.CID], result)
	return nil
}

// failureText renders the title, error message and stack trace of a failed step
func failureText(step ipc.TestPayload) string {
	var b strings.Builder
	b.WriteString(step.Title)
	b.WriteString(LineSeparator)
	if step.Err != nil {
		if step.Err.Message != "" {
			b.WriteString(step.Err.Message)
			b.WriteString(LineSeparator)
		}
		if step.Err.Stack != "" {
			b.WriteString(step.Err.Stack)
			b.WriteString(LineSeparator)
		}
	}
	return b.String()
}

// finish assembles the reports from the collected tree
func (a *Aggregator) finish(stats ipc.RunStats) {
	if a.done {
		a.logger.Debug("Received another end event, reassembling reports")
	}
	a.reports = a.assembler.Assemble(a.features, stats)
	a.done = true
	a.logger.Info("Run ended: %d feature(s), %d report(s)", len(a.features), len(a.reports))
}

// Done reports whether the end event has been handled
func (a *Aggregator) Done() bool {
	return a.done
}

// Reports returns one report per environment signature, in the order the
// signatures were first listed by the runner
func (a *Aggregator) Reports() ([]Report, error) {
	if !a.done {
		return nil, ErrNoRunStats
	}
	return a.reports, nil
}

// Features returns the registered features in registration order
func (a *Aggregator) Features() []*Feature {
	return a.features
}

// noopLogger is a default logger that does nothing
type noopLogger struct{}

func (n *noopLogger) Debug(format string, args ...interface{}) {}
func (n *noopLogger) Error(format string, args ...interface{}) {}
func (n *noopLogger) Info(format string, args ...interface{})  {}
