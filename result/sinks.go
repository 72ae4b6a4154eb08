package result

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/firasghr/goantidetect/model"
)

// WebhookSink POSTs every result as JSON to a configured URL, mirroring
// client.NewHTTPClient's own-transport-per-client philosophy rather than
// relying on http.DefaultClient. Grounded on
// original_source/.../application/result_handler.py's _send_webhook, with
// the original's silent best-effort delivery preserved: Send's error is
// informational only, Handler never fails a batch because a webhook is down.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink builds a WebhookSink posting to url with the given timeout.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Send implements Sink.
func (w *WebhookSink) Send(ctx context.Context, result model.TaskResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("result: webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("result: webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("result: webhook: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("result: webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// DashboardNotifier is the subset of dashboard.Server a Sink needs to surface
// results in the live operator view. Kept as a narrow interface so this
// package does not need to import dashboard (which imports config and
// metrics) just to log one line per result.
type DashboardNotifier interface {
	AddLog(level, message string)
}

// DashboardSink pushes a one-line summary of every result into the
// dashboard's log stream, so an operator watching the live feed sees task
// outcomes as they land without tailing the results directory.
type DashboardSink struct {
	dash DashboardNotifier
}

// NewDashboardSink builds a DashboardSink writing into dash.
func NewDashboardSink(dash DashboardNotifier) *DashboardSink {
	return &DashboardSink{dash: dash}
}

// Send implements Sink.
func (d *DashboardSink) Send(_ context.Context, result model.TaskResult) error {
	if d.dash == nil {
		return nil
	}
	level := "info"
	if result.Status != model.StatusSuccess {
		level = "warn"
	}
	d.dash.AddLog(level, fmt.Sprintf("task %s session %s -> %s (%s)", result.TaskID, result.SessionID, result.Status, result.Duration))
	return nil
}
