package sink

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/zk/xray-reporter/internal/report"
)

// Notifier posts a pass/fail summary of the run to a Slack incoming webhook
type Notifier struct {
	webhookURL string
	client     *resty.Client
	logger     Logger
}

// NewNotifier creates a Slack notifier
func NewNotifier(webhookURL string, timeout time.Duration, logger Logger) *Notifier {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &Notifier{webhookURL: webhookURL, client: client, logger: orNoop(logger)}
}

// Name implements Sink
func (n *Notifier) Name() string { return "notify" }

// Publish implements Sink
func (n *Notifier) Publish(ctx context.Context, reports []report.Report) (string, error) {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": Summary(reports)}).
		Post(n.webhookURL)
	if err != nil {
		return "", errors.Wrap(err, "failed to post to Slack webhook")
	}
	if resp.StatusCode() >= http.StatusMultipleChoices {
		return "", errors.Errorf("slack responded %d: %s", resp.StatusCode(), resp.String())
	}
	n.logger.Debug("Posted run summary to Slack")
	return "posted run summary to Slack", nil
}

// Summary renders one line per report with its pass/fail counts
func Summary(reports []report.Report) string {
	if len(reports) == 0 {
		return "Xray results: no test environments reported"
	}
	var b strings.Builder
	b.WriteString("Xray results:")
	for _, r := range reports {
		passed, failed := r.Counts()
		fmt.Fprintf(&b, "\n• %s: %d passed, %d failed, %d total", r.Signature(), passed, failed, passed+failed)
	}
	return b.String()
}
