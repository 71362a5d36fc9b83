package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/zk/xray-reporter/internal/config"
	"github.com/zk/xray-reporter/internal/ipc"
	"github.com/zk/xray-reporter/internal/logger"
	"github.com/zk/xray-reporter/internal/metrics"
	"github.com/zk/xray-reporter/internal/report"
	"github.com/zk/xray-reporter/internal/sink"
)

// sinkTimeout bounds each HTTP request made by the upload and notify sinks
const sinkTimeout = 30 * time.Second

// ErrMalformedStream means the event stream could not be aggregated
var ErrMalformedStream = errors.New("malformed event stream")

// Orchestrator drives one reporter run: it collects the runner's events,
// assembles the reports and hands them to the sinks
type Orchestrator struct {
	settings   *config.Config
	logger     Logger
	out        io.Writer
	aggregator *report.Aggregator
	metrics    *metrics.Metrics
	ipcManager *ipc.Manager
	sinks      []sink.Sink

	runID    string
	runDir   string
	ipcPath  string
	command  []string
	exitCode int

	startTime time.Time
	eventErr  error // first fatal aggregation error
}

// Logger interface for logging
type Logger interface {
	Debug(format string, args ...interface{})
	Error(format string, args ...interface{})
	Info(format string, args ...interface{})
}

// Config holds orchestrator configuration
type Config struct {
	Command  []string
	Settings *config.Config
	Logger   Logger

	// Out receives the console summary; defaults to stdout
	Out io.Writer
}

// New creates a new orchestrator
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	settings := cfg.Settings
	if settings == nil {
		settings = &config.Config{}
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	return &Orchestrator{
		settings: settings,
		logger:   cfg.Logger,
		out:      out,
		aggregator: report.NewAggregator(
			report.NewResolver(settings.ProjectID),
			report.NewAssembler(settings.ReportOptions()),
			cfg.Logger,
		),
		metrics: metrics.New(),
		command: cfg.Command,
	}, nil
}

// Run executes the test command and reports the events it emits
func (o *Orchestrator) Run() error {
	o.runID = generateRunID()
	o.runDir = filepath.Join(logger.LogDir, "runs", o.runID)
	o.ipcPath = filepath.Join(o.runDir, "ipc.jsonl")

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "unknown"
	}

	fmt.Fprintln(o.out, "---")
	fmt.Fprintf(o.out, "current_time: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(o.out, "cwd: %s\n", cwd)
	fmt.Fprintf(o.out, "test_command: `%s`\n", strings.Join(o.command, " "))
	fmt.Fprintf(o.out, "run_dir: %s\n", o.runDir)
	fmt.Fprintln(o.out, "---")
	fmt.Fprintln(o.out)

	if len(o.command) == 0 {
		o.exitCode = 1
		return fmt.Errorf("no test command given")
	}

	o.ipcManager, err = ipc.NewManager(o.ipcPath, o.logger)
	if err != nil {
		o.exitCode = 1
		return fmt.Errorf("failed to create IPC manager: %w", err)
	}
	if err := o.ipcManager.WatchEvents(); err != nil {
		_ = o.ipcManager.Cleanup()
		o.exitCode = 1
		return fmt.Errorf("failed to start IPC watcher: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd := exec.Command(o.command[0], o.command[1:]...)
	if wd, err := os.Getwd(); err == nil {
		cmd.Dir = wd
	}
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%s", ipc.IPCPathEnv, o.ipcPath))
	cmd.Stdin = os.Stdin

	// The runner's own output goes to output.log so the console only
	// carries the report summary
	outputPath := filepath.Join(o.runDir, "output.log")
	outputFile, err := os.Create(outputPath)
	if err != nil {
		_ = o.ipcManager.Cleanup()
		o.exitCode = 1
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		_ = outputFile.Sync()
		_ = outputFile.Close()
	}()
	cmd.Stdout = outputFile
	cmd.Stderr = outputFile

	o.logger.Debug("Starting command: %v", o.command)
	o.logger.Debug("IPC path: %s", o.ipcPath)
	fmt.Fprintf(o.out, "Test execution starting, runner output goes to %s\n", outputPath)

	if err := cmd.Start(); err != nil {
		_ = o.ipcManager.Cleanup()
		o.exitCode = 1
		return fmt.Errorf("failed to start test command: %w", err)
	}
	o.startTime = time.Now()

	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		o.processEvents()
	}()

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var commandErr error
	select {
	case err := <-done:
		commandErr = err
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				o.exitCode = exitErr.ExitCode()
			} else {
				o.exitCode = 1
			}
			o.logger.Debug("Command completed with exit code %d: %v", o.exitCode, err)
		} else {
			o.logger.Debug("Command completed successfully")
		}
	case sig := <-sigChan:
		o.logger.Info("Received signal: %v", sig)
		_ = cmd.Process.Kill()
		<-done
		o.exitCode = 130
		commandErr = fmt.Errorf("interrupted by %v", sig)
	}

	// Closes the Events channel once the last lines are read
	_ = o.ipcManager.Cleanup()
	<-eventsDone
	o.logger.Debug("Event processing completed")

	if err := o.complete(context.Background()); err != nil {
		return err
	}
	if commandErr != nil {
		return fmt.Errorf("test command failed: %w", commandErr)
	}
	return nil
}

// Replay feeds a recorded event file through the pipeline
func (o *Orchestrator) Replay(path string) error {
	o.startTime = time.Now()

	f, err := os.Open(path)
	if err != nil {
		o.exitCode = 1
		return fmt.Errorf("failed to open event file: %w", err)
	}
	defer func() { _ = f.Close() }()

	fmt.Fprintf(o.out, "Replaying events from %s\n", path)

	decoder := ipc.NewDecoder(f, o.logger)
	for {
		event, err := decoder.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			o.exitCode = 1
			return fmt.Errorf("failed to read event file: %w", err)
		}
		if !o.handleEvent(event) {
			break
		}
	}

	return o.complete(context.Background())
}

// processEvents feeds the IPC events to the aggregator. After a fatal
// error the channel is still drained so the reader never blocks.
func (o *Orchestrator) processEvents() {
	for event := range o.ipcManager.Events {
		if o.eventErr != nil {
			continue
		}
		o.handleEvent(event)
	}
}

// handleEvent applies one event and returns false once the stream is unusable
func (o *Orchestrator) handleEvent(event ipc.Event) bool {
	o.metrics.RecordEvent(event)
	if err := o.aggregator.HandleEvent(event); err != nil {
		o.eventErr = err
		o.logger.Error("Failed to handle event: %v", err)
		return false
	}
	return true
}

// complete assembles, publishes and summarizes the reports of the run
func (o *Orchestrator) complete(ctx context.Context) error {
	defer o.writeMetrics()

	fmt.Fprintln(o.out)

	if o.eventErr != nil {
		if o.exitCode == 0 {
			o.exitCode = 1
		}
		fmt.Fprintf(o.out, "Error: %v\n", o.eventErr)
		fmt.Fprintln(o.out, "No reports were published.")
		return fmt.Errorf("%w: %w", ErrMalformedStream, o.eventErr)
	}

	reports, err := o.aggregator.Reports()
	if err != nil {
		o.logger.Error("Cannot assemble reports: %v", err)
		fmt.Fprintln(o.out, "No end event received, no reports were published.")
		return nil
	}
	o.metrics.RecordReports(reports)

	o.publish(ctx, reports)
	o.displayResults(reports)
	return nil
}

// buildSinks selects the sinks enabled by the settings
func (o *Orchestrator) buildSinks() []sink.Sink {
	if o.sinks != nil {
		return o.sinks
	}

	var sinks []sink.Sink
	if dir, err := o.settings.ResolveOutputDir(); err != nil {
		o.logger.Error("Cannot write json report: %v", err)
		fmt.Fprintln(o.out, "Cannot write json report: empty or invalid 'outputDir'.")
	} else {
		sinks = append(sinks, sink.NewStorage(dir, o.logger))
	}

	if o.settings.UploadEnabled() {
		sinks = append(sinks, sink.NewUploader(sink.UploaderConfig{
			Host:     o.settings.XrayHost,
			User:     o.settings.XrayUser,
			Password: o.settings.XrayPass,
			Timeout:  sinkTimeout,
		}, o.logger))
	}
	if o.settings.NotifyEnabled() {
		sinks = append(sinks, sink.NewNotifier(o.settings.SlackWebhookURL, sinkTimeout, o.logger))
	}
	return sinks
}

// publish hands the reports to every sink in turn. A failing sink is
// logged and counted, the others still run.
func (o *Orchestrator) publish(ctx context.Context, reports []report.Report) {
	for _, s := range o.buildSinks() {
		msg, err := s.Publish(ctx, reports)
		if msg != "" {
			fmt.Fprintf(o.out, "%s: %s\n", s.Name(), msg)
		}
		if err != nil {
			o.metrics.RecordSinkFailure(s.Name())
			o.logger.Error("Sink %s failed: %v", s.Name(), err)
			fmt.Fprintf(o.out, "%s: failed: %v\n", s.Name(), err)
		}
	}
}

func (o *Orchestrator) writeMetrics() {
	path := o.settings.MetricsFile
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		o.logger.Error("Failed to create metrics directory: %v", err)
		return
	}
	if err := o.metrics.WriteTextfile(path); err != nil {
		o.logger.Error("Failed to write metrics file: %v", err)
	}
}

// GetExitCode returns the exit code the reporter should exit with
func (o *Orchestrator) GetExitCode() int {
	return o.exitCode
}

// generateRunID returns a sortable, unique run identifier
func generateRunID() string {
	timestamp := time.Now().Format("20060102T150405")
	return fmt.Sprintf("%s-%s", timestamp, strings.SplitN(uuid.NewString(), "-", 2)[0])
}
