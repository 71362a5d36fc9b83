// Package sink publishes the reports of a finished run: to a file, to an
// Xray server and to a Slack webhook.
package sink

import (
	"context"

	"github.com/zk/xray-reporter/internal/report"
)

// Sink consumes all reports of one run. Publish returns a one-line
// description of what was published for the console summary.
type Sink interface {
	Name() string
	Publish(ctx context.Context, reports []report.Report) (string, error)
}

// Logger interface for debug logging
type Logger interface {
	Debug(format string, args ...interface{})
	Error(format string, args ...interface{})
	Info(format string, args ...interface{})
}

type noopLogger struct{}

func (n *noopLogger) Debug(format string, args ...interface{}) {}
func (n *noopLogger) Error(format string, args ...interface{}) {}
func (n *noopLogger) Info(format string, args ...interface{})  {}

func orNoop(logger Logger) Logger {
	if logger == nil {
		return &noopLogger{}
	}
	return logger
}
