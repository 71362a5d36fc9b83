package report

import (
	"fmt"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/zk/xray-reporter/internal/ipc"
)

// Assembler turns the collected feature tree into Xray reports
type Assembler struct {
	opts Options
}

// NewAssembler creates an assembler stamping opts on every report
func NewAssembler(opts Options) *Assembler {
	return &Assembler{opts: opts}
}

// Assemble builds one report per environment signature
func (a *Assembler) Assemble(features []*Feature, stats ipc.RunStats) []Report {
	start := a.formatTime(stats.Start)
	finish := a.formatTime(stats.End)

	groups := GroupEnvironments(stats.Runners)
	reports := make([]Report, 0)
	for _, signature := range groups.Signatures() {
		tests := a.scenarioResults(features, groups.Keys(signature), start, finish)
		reports = append(reports, Report{
			Info:             a.info(signature, start, finish),
			Tests:            dedupe(tests),
			TestExecutionKey: a.opts.TestExecutionKey,
		})
	}
	return reports
}

func (a *Assembler) formatTime(t time.Time) string {
	if a.opts.Location != nil {
		t = t.In(a.opts.Location)
	} else {
		t = t.Local()
	}
	return t.Format(WireTimeFormat)
}

// scenarioResults merges every scenario over the given environment keys
func (a *Assembler) scenarioResults(features []*Feature, keys []string, start, finish string) []ScenarioResult {
	results := make([]ScenarioResult, 0)
	for _, feature := range features {
		for _, scenario := range feature.Scenarios {
			steps := mergeSteps(scenario, keys)
			status := overallStatus(steps)
			results = append(results, ScenarioResult{
				TestKey:  scenario.ExternalID,
				Start:    start,
				Finish:   finish,
				Status:   status,
				Steps:    steps,
				Examples: []Status{status},
				Comment:  failureComment(steps),
			})
		}
	}
	return results
}

// mergeSteps concatenates the steps recorded under each key, key by key
func mergeSteps(scenario *Scenario, keys []string) []StepResult {
	steps := make([]StepResult, 0)
	for _, key := range keys {
		steps = append(steps, scenario.Steps[key]...)
	}
	return steps
}

// overallStatus is FAIL as soon as any step failed
func overallStatus(steps []StepResult) Status {
	for _, step := range steps {
		if step.Status == StatusFail {
			return StatusFail
		}
	}
	return StatusPass
}

// failureComment collects the comments of failed steps in step order.
// Xray does not show step details for automated tests, so the failures
// have to travel in the test comment.
func failureComment(steps []StepResult) string {
	var b strings.Builder
	for _, step := range steps {
		if step.Status == StatusFail {
			b.WriteString(step.Comment)
			b.WriteString(LineSeparator)
		}
	}
	return b.String()
}

// dedupe folds repeated test keys into their first occurrence. A repeated key
// is another row of a scenario outline's examples table.
func dedupe(results []ScenarioResult) []ScenarioResult {
	index := orderedmap.New[string, *ScenarioResult]()
	for i := range results {
		result := results[i]
		existing, seen := index.Get(result.TestKey)
		if !seen {
			index.Set(result.TestKey, &result)
			continue
		}

		existing.Examples = append(existing.Examples, result.Status)
		if result.Comment != "" {
			existing.Comment += LineSeparator + result.Comment
		}
	}

	deduped := make([]ScenarioResult, 0, index.Len())
	for pair := index.Oldest(); pair != nil; pair = pair.Next() {
		deduped = append(deduped, *pair.Value)
	}
	return deduped
}

// info builds the execution metadata for one signature
func (a *Assembler) info(signature, start, finish string) Info {
	envs := append([]string{signature}, a.opts.AdditionalEnvironments...)
	info := Info{
		StartDate:        start,
		FinishDate:       finish,
		TestEnvironments: envs,
		Revision:         a.opts.Revision,
		Version:          a.opts.Version,
		User:             a.opts.User,
		Project:          a.opts.Project,
	}

	joined := strings.Join(envs, ", ")
	switch {
	case a.opts.TestKey != "":
		info.Summary = fmt.Sprintf("Execution of test %s in environment %s", a.opts.TestKey, joined)
	case a.opts.TestSetKey != "":
		info.Summary = fmt.Sprintf("Execution of test set %s in environment %s", a.opts.TestSetKey, joined)
	case a.opts.TestPlanKey != "":
		info.Summary = fmt.Sprintf("Execution of test plan %s in environment %s", a.opts.TestPlanKey, joined)
		info.TestPlanKey = a.opts.TestPlanKey
	case a.opts.TestExecutionKey != "":
		info.Summary = fmt.Sprintf("Execution of test execution %s in environment %s", a.opts.TestExecutionKey, joined)
	default:
		info.Summary = fmt.Sprintf("Execution of test undefined in environment %s", joined)
	}
	return info
}
