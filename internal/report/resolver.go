package report

import (
	"path/filepath"
	"strings"

	"github.com/zk/xray-reporter/internal/ipc"
)

// Resolver derives the Xray test key of a suite.
//
// Scenarios carrying tags are identified by the first tag of the form
// "@<projectID>-<n>" that is not on the first line of the file (line 1 holds
// feature-level metadata tags). Untagged scenarios and all features fall back
// to the base name of their source file without extension. Features never
// take the tag path, even when tagged.
type Resolver struct {
	ProjectID string
}

// NewResolver creates a resolver for the given Xray project key
func NewResolver(projectID string) *Resolver {
	return &Resolver{ProjectID: projectID}
}

// Resolve returns the test key for the suite, or false when none can be
// derived. Suites without a key are left out of the report.
func (r *Resolver) Resolve(suite ipc.SuiteStartPayload) (string, bool) {
	if len(suite.Tags) > 0 && !suite.IsFeature() {
		for _, tag := range suite.Tags {
			if tag.Line == 1 {
				continue
			}
			if r.ProjectID != "" && tagProject(tag.Name) == r.ProjectID {
				return tag.Name[1:], true
			}
		}
		return "", false
	}

	return fileKey(suite.File)
}

// tagProject returns the text between the tag marker and the first dash
func tagProject(name string) string {
	idx := strings.Index(name, "-")
	if idx < 1 {
		return ""
	}
	return name[1:idx]
}

func fileKey(file string) (string, bool) {
	if file == "" {
		return "", false
	}
	base := filepath.Base(file)
	key := strings.TrimSuffix(base, filepath.Ext(base))
	if key == "" || key == "." || key == string(filepath.Separator) {
		return "", false
	}
	return key, true
}
