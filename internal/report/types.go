package report

import (
	"time"
)

// Status is the outcome of a step or scenario as understood by Xray.
// There is no skipped outcome: pending steps are recorded as failures.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// LineSeparator joins comment fragments
const LineSeparator = "\r\n"

// WireTimeFormat is the timestamp layout of the Xray import format
const WireTimeFormat = "2006-01-02T15:04:05-07:00"

// StepResult is one recorded step outcome
type StepResult struct {
	Status  Status `json:"status"`
	Comment string `json:"comment"`
}

// Node is a registered suite: either a *Feature or a *Scenario
type Node interface {
	isNode()
}

// Feature is a top-level suite, typically one .feature file
type Feature struct {
	UID        string
	ExternalID string
	Scenarios  []*Scenario
}

func (*Feature) isNode() {}

// Scenario is a suite nested in a feature. Steps are partitioned by the
// environment key (runner cid) that executed them.
type Scenario struct {
	UID        string
	ExternalID string
	ParentUID  string
	Steps      map[string][]StepResult
}

func (*Scenario) isNode() {}

// ScenarioResult is the merged result of one test case for one environment signature
type ScenarioResult struct {
	TestKey  string       `json:"testKey"`
	Start    string       `json:"start"`
	Finish   string       `json:"finish"`
	Status   Status       `json:"status"`
	Steps    []StepResult `json:"steps"`
	Examples []Status     `json:"examples"`
	Comment  string       `json:"comment"`
}

// Info is the test execution metadata of a report
type Info struct {
	Summary          string   `json:"summary"`
	StartDate        string   `json:"startDate"`
	FinishDate       string   `json:"finishDate"`
	TestEnvironments []string `json:"testEnvironments"`
	Revision         string   `json:"revision,omitempty"`
	Version          string   `json:"version,omitempty"`
	User             string   `json:"user,omitempty"`
	Project          string   `json:"project,omitempty"`
	TestPlanKey      string   `json:"testPlanKey,omitempty"`
}

// Report is one Xray test execution import, produced per environment signature
type Report struct {
	Info             Info             `json:"info"`
	Tests            []ScenarioResult `json:"tests"`
	TestExecutionKey string           `json:"testExecutionKey,omitempty"`
}

// Signature returns the environment signature the report was assembled for
func (r Report) Signature() string {
	if len(r.Info.TestEnvironments) == 0 {
		return ""
	}
	return r.Info.TestEnvironments[0]
}

// Counts returns the number of passed and failed test results in the report
func (r Report) Counts() (passed, failed int) {
	for _, t := range r.Tests {
		if t.Status == StatusFail {
			failed++
		} else {
			passed++
		}
	}
	return passed, failed
}

// Options carries the configured execution metadata the assembler stamps on every report
type Options struct {
	AdditionalEnvironments []string
	TestKey                string
	TestSetKey             string
	TestPlanKey            string
	TestExecutionKey       string
	Revision               string
	Version                string
	User                   string
	Project                string

	// Location used to render timestamps; nil means local time
	Location *time.Location
}
