package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zk/xray-reporter/internal/report"
)

// FilePrefix starts the name of every report file
const FilePrefix = "WDIO.xray.json."

// Storage writes all reports of a run as one JSON array file
type Storage struct {
	dir    string
	logger Logger
}

// NewStorage creates a storage sink writing into dir. The directory is
// created on first write.
func NewStorage(dir string, logger Logger) *Storage {
	return &Storage{dir: dir, logger: orNoop(logger)}
}

// Name implements Sink
func (s *Storage) Name() string { return "storage" }

// Publish implements Sink
func (s *Storage) Publish(_ context.Context, reports []report.Report) (string, error) {
	path, err := s.Write(reports)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote json report to %s", path), nil
}

// Write stores the reports under a time-based unique file name and returns its path
func (s *Storage) Write(reports []report.Report) (string, error) {
	dir, err := filepath.Abs(s.dir)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve output dir %s", s.dir)
	}

	id, err := uuid.NewUUID()
	if err != nil {
		return "", errors.Wrap(err, "failed to generate report id")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create output dir %s", dir)
	}

	if reports == nil {
		reports = []report.Report{}
	}
	data, err := json.Marshal(reports)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode reports")
	}

	path := filepath.Join(dir, FilePrefix+id.String()+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrapf(err, "failed to write json report to [%s]", s.dir)
	}

	s.logger.Info("Wrote json report to [%s] (%d report(s))", s.dir, len(reports))
	return path, nil
}
