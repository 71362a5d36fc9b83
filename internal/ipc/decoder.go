package ipc

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// maxLineSize bounds a single event line; stack traces can be long
const maxLineSize = 4 * 1024 * 1024

// Decoder reads typed events from a recorded JSONL event stream
type Decoder struct {
	scanner *bufio.Scanner
	logger  Logger
	line    int
}

// NewDecoder creates a decoder over r
func NewDecoder(r io.Reader, logger Logger) *Decoder {
	if logger == nil {
		logger = &noopLogger{}
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Decoder{scanner: scanner, logger: logger}
}

// Next returns the next event in the stream, or io.EOF when it is exhausted.
// Blank, malformed and unknown lines are logged and skipped, the same way the
// file watcher treats them.
func (d *Decoder) Next() (Event, error) {
	for d.scanner.Scan() {
		d.line++
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		event, err := ParseEvent(line)
		if err != nil {
			if errors.Is(err, ErrUnknownEventType) {
				d.logger.Error("[XRAY-REPORTER ERROR] line %d: %v", d.line, err)
			} else {
				d.logger.Debug("Skipping line %d: %v", d.line, err)
			}
			continue
		}
		return event, nil
	}

	if err := d.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return nil, io.EOF
}
