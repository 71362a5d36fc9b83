package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/zk/xray-reporter/internal/report"
)

// ImportPath is the Xray REST endpoint for test execution results
const ImportPath = "/rest/raven/1.0/import/execution"

// importResponse is the relevant part of the Xray import response
type importResponse struct {
	TestExecIssue struct {
		ID   string `json:"id"`
		Key  string `json:"key"`
		Self string `json:"self"`
	} `json:"testExecIssue"`
}

// Uploader posts each report to an Xray server as its own test execution
type Uploader struct {
	host   string
	client *resty.Client
	logger Logger
}

// UploaderConfig configures the Xray upload
type UploaderConfig struct {
	Host     string
	User     string
	Password string
	Timeout  time.Duration
}

// NewUploader creates an uploader. Basic auth is only sent when both user
// and password are set.
func NewUploader(cfg UploaderConfig, logger Logger) *Uploader {
	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.User != "" && cfg.Password != "" {
		client.SetBasicAuth(cfg.User, cfg.Password)
	}
	return &Uploader{
		host:   strings.TrimRight(cfg.Host, "/"),
		client: client,
		logger: orNoop(logger),
	}
}

// Name implements Sink
func (u *Uploader) Name() string { return "upload" }

// Publish implements Sink. Every report is attempted; failures are logged
// and reported together.
func (u *Uploader) Publish(ctx context.Context, reports []report.Report) (string, error) {
	var keys []string
	failed := 0
	for _, r := range reports {
		key, err := u.Upload(ctx, r)
		if err != nil {
			failed++
			u.logger.Error("Error uploading results to Xray for %s: %v", r.Signature(), err)
			continue
		}
		keys = append(keys, key)
	}

	msg := ""
	if len(keys) > 0 {
		msg = fmt.Sprintf("uploaded test execution(s) %s", strings.Join(keys, ", "))
	}
	if failed > 0 {
		return msg, errors.Errorf("%d of %d upload(s) failed", failed, len(reports))
	}
	return msg, nil
}

// Upload posts one report and returns the key of the created test execution
func (u *Uploader) Upload(ctx context.Context, r report.Report) (string, error) {
	resp, err := u.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(r).
		Post(u.host + ImportPath)
	if err != nil {
		return "", errors.Wrap(err, "error uploading results to Xray host")
	}
	if resp.StatusCode() >= http.StatusMultipleChoices {
		return "", errors.Errorf("xray responded %d: %s", resp.StatusCode(), resp.String())
	}

	var body importResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", errors.Wrap(err, "failed to parse Xray response")
	}
	key := body.TestExecIssue.Key
	u.logger.Info("Successfully uploaded test execution as %s. You can access it via %s", key, u.BrowseURL(key))
	return key, nil
}

// BrowseURL returns the Jira page of an issue
func (u *Uploader) BrowseURL(key string) string {
	return u.host + "/browse/" + key
}
