package orchestrator

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zk/xray-reporter/internal/config"
	"github.com/zk/xray-reporter/internal/ipc"
	"github.com/zk/xray-reporter/internal/logger"
	"github.com/zk/xray-reporter/internal/report"
)

var (
	runStart = time.Date(2018, 5, 1, 10, 0, 0, 0, time.UTC)
	runEnd   = time.Date(2018, 5, 1, 10, 5, 0, 0, time.UTC)
)

func loginRun() []ipc.Event {
	return []ipc.Event{
		ipc.NewSuiteStartEvent("f1", "", "specs/LOGIN.feature"),
		ipc.NewSuiteStartEvent("s1", "f1", "specs/LOGIN.feature", ipc.Tag{Name: "@PROJ-1", Line: 3}),
		ipc.NewTestPassEvent("s1", "envA", "Given a user"),
		ipc.NewTestFailEvent("s1", "envB", "Then the dashboard shows", "boom", ""),
		ipc.NewEndEvent(runStart, runEnd, "envA", "chrome", "envB", "chrome"),
	}
}

func writeEvents(t *testing.T, path string, events ...ipc.Event) {
	t.Helper()
	for _, e := range events {
		require.NoError(t, ipc.AppendEvent(path, e))
	}
}

func newTestOrchestrator(t *testing.T, settings *config.Config, command ...string) (*Orchestrator, *bytes.Buffer, *logger.TestLogger) {
	t.Helper()
	out := &bytes.Buffer{}
	log := logger.NewTestLogger()
	orch, err := New(Config{Command: command, Settings: settings, Logger: log, Out: out})
	require.NoError(t, err)
	return orch, out, log
}

func reportFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "WDIO.xray.json.*.json"))
	require.NoError(t, err)
	return matches
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(Config{Command: []string{"true"}})
	assert.Error(t, err)
}

func TestReplay_WritesReports(t *testing.T) {
	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "events.jsonl")
	writeEvents(t, eventsPath, loginRun()...)
	outputDir := filepath.Join(dir, "reports")

	orch, out, _ := newTestOrchestrator(t, &config.Config{ProjectID: "PROJ", OutputDir: outputDir})
	require.NoError(t, orch.Replay(eventsPath))
	assert.Equal(t, 0, orch.GetExitCode())

	files := reportFiles(t, outputDir)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"testKey":"PROJ-1"`)
	assert.Contains(t, string(data), `"examples":["FAIL"]`)

	console := out.String()
	assert.Contains(t, console, "storage: wrote json report to")
	assert.Contains(t, console, "PROJ-1")
	assert.Contains(t, console, "Results:     0 passed, 1 failed, 1 total")
}

func TestReplay_MalformedStreamPublishesNothing(t *testing.T) {
	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "events.jsonl")
	writeEvents(t, eventsPath,
		ipc.NewSuiteStartEvent("f1", "", "LOGIN.feature"),
		ipc.NewTestPassEvent("ghost", "0-0", "Given nothing"),
		ipc.NewEndEvent(runStart, runEnd, "0-0", "chrome"),
	)
	outputDir := filepath.Join(dir, "reports")

	orch, out, log := newTestOrchestrator(t, &config.Config{ProjectID: "PROJ", OutputDir: outputDir})
	err := orch.Replay(eventsPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedStream)
	assert.ErrorIs(t, err, report.ErrUnknownScenario)
	assert.Equal(t, 1, orch.GetExitCode())

	assert.NoDirExists(t, outputDir)
	assert.Contains(t, out.String(), "No reports were published.")
	assert.NotEmpty(t, log.GetErrorMessages())
}

func TestReplay_WithoutEndEvent(t *testing.T) {
	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "events.jsonl")
	writeEvents(t, eventsPath, loginRun()[:4]...)

	orch, out, _ := newTestOrchestrator(t, &config.Config{ProjectID: "PROJ", OutputDir: dir})
	require.NoError(t, orch.Replay(eventsPath))
	assert.Contains(t, out.String(), "No end event received")
	assert.Empty(t, reportFiles(t, dir))
}

func TestReplay_MissingOutputDirSkipsStorage(t *testing.T) {
	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "events.jsonl")
	writeEvents(t, eventsPath, loginRun()...)

	orch, out, _ := newTestOrchestrator(t, &config.Config{ProjectID: "PROJ"})
	require.NoError(t, orch.Replay(eventsPath))
	assert.Contains(t, out.String(), "Cannot write json report: empty or invalid 'outputDir'.")
	assert.Contains(t, out.String(), "Results:")
}

func TestReplay_FailingUploadDoesNotStopOtherSinks(t *testing.T) {
	xray := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "xray is down")
	}))
	defer xray.Close()

	var slackCalls int32
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&slackCalls, 1)
		_, _ = io.WriteString(w, "ok")
	}))
	defer slack.Close()

	dir := t.TempDir()
	eventsPath := filepath.Join(dir, "events.jsonl")
	writeEvents(t, eventsPath, loginRun()...)
	metricsPath := filepath.Join(dir, "metrics", "xray.prom")

	orch, out, _ := newTestOrchestrator(t, &config.Config{
		ProjectID:       "PROJ",
		OutputDir:       dir,
		Upload:          true,
		XrayHost:        xray.URL,
		SlackWebhookURL: slack.URL,
		MetricsFile:     metricsPath,
	})
	require.NoError(t, orch.Replay(eventsPath))

	assert.Len(t, reportFiles(t, dir), 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&slackCalls))
	assert.Contains(t, out.String(), "upload: failed:")
	assert.Contains(t, out.String(), "notify: posted run summary to Slack")

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `xray_reporter_events_total{type="suite:start"} 2`)
	assert.Contains(t, string(data), `xray_reporter_sink_failures_total{sink="upload"} 1`)
}

func TestReplay_MissingFile(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &config.Config{})
	err := orch.Replay(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.Error(t, err)
	assert.Equal(t, 1, orch.GetExitCode())
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	originalDir, err := os.Getwd()
	require.NoError(t, err)
	tempDir := t.TempDir()
	require.NoError(t, os.Chdir(tempDir))
	t.Cleanup(func() { _ = os.Chdir(originalDir) })
	return tempDir
}

func TestRun_CollectsEventsFromChild(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	tempDir := chdirTemp(t)
	recorded := filepath.Join(tempDir, "recorded.jsonl")
	writeEvents(t, recorded, loginRun()...)

	orch, out, _ := newTestOrchestrator(t,
		&config.Config{ProjectID: "PROJ", OutputDir: "reports"},
		"sh", "-c", `cat recorded.jsonl >> "$XRAY_REPORTER_IPC_PATH"`)
	require.NoError(t, orch.Run())
	assert.Equal(t, 0, orch.GetExitCode())

	expectedIPCPath := filepath.Join(".xray-reporter", "runs", orch.runID, "ipc.jsonl")
	assert.Equal(t, expectedIPCPath, orch.ipcPath)
	assert.FileExists(t, filepath.Join(tempDir, orch.runDir, "output.log"))

	assert.Len(t, reportFiles(t, filepath.Join(tempDir, "reports")), 1)
	assert.Contains(t, out.String(), "test_command: `sh -c")
	assert.Contains(t, out.String(), "Results:     0 passed, 1 failed, 1 total")
}

func TestRun_PropagatesExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	chdirTemp(t)

	orch, out, _ := newTestOrchestrator(t, &config.Config{ProjectID: "PROJ"}, "sh", "-c", "echo failing; exit 3")
	err := orch.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test command failed")
	assert.Equal(t, 3, orch.GetExitCode())
	assert.Contains(t, out.String(), "No end event received")

	output, readErr := os.ReadFile(filepath.Join(orch.runDir, "output.log"))
	require.NoError(t, readErr)
	assert.Equal(t, "failing\n", string(output))
}

func TestRun_NoCommand(t *testing.T) {
	chdirTemp(t)
	orch, _, _ := newTestOrchestrator(t, &config.Config{})
	assert.Error(t, orch.Run())
	assert.Equal(t, 1, orch.GetExitCode())
}

func TestRun_UnknownCommand(t *testing.T) {
	chdirTemp(t)
	orch, _, _ := newTestOrchestrator(t, &config.Config{}, "definitely-not-a-real-binary-xyz")
	err := orch.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start test command")
	assert.Equal(t, 1, orch.GetExitCode())
}

func TestGenerateRunID(t *testing.T) {
	runID := generateRunID()
	parts := strings.SplitN(runID, "-", 2)
	require.Len(t, parts, 2)
	_, err := time.Parse("20060102T150405", parts[0])
	assert.NoError(t, err)
	assert.Len(t, parts[1], 8)
	assert.NotEqual(t, runID, generateRunID())
}
