// Package result records every task outcome a batch produces: one JSON file
// per task, a running credentials export for successes, a final text report,
// and pluggable sinks (webhook, dashboard push) for anything that wants to
// react to results as they land. Grounded on
// original_source/.../application/result_handler.py's ResultHandler.
package result

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/firasghr/goantidetect/model"
)

// Sink receives every result Handler processes, in addition to Handler's own
// file-based recording. A Sink's error is ignored by Handler and never aborts
// processing of the result.
type Sink interface {
	Send(ctx context.Context, result model.TaskResult) error
}

// Credentials is the subset of a TaskResult's Data map that export formats
// know how to render. Scripts populate these keys on success; anything else
// in Data is preserved in the per-task JSON file but not in the flattened
// exports.
type Credentials struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
}

func credentialsFrom(r model.TaskResult) Credentials {
	get := func(key string) string {
		v, _ := r.Data[key].(string)
		return v
	}
	return Credentials{
		Email:       get("email"),
		Username:    get("username"),
		Password:    get("password"),
		AccessToken: get("access_token"),
		UserID:      get("user_id"),
	}
}

// Line formats c as a colon-separated credentials line; empty fields are
// skipped rather than leaving bare colons.
func (c Credentials) Line() string {
	var parts []string
	for _, v := range []string{c.Email, c.Username, c.Password, c.AccessToken} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ":")
}

type accountRecord struct {
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	Password    string    `json:"password"`
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	Cookies     []model.Cookie `json:"cookies"`
	CreatedAt   time.Time `json:"created_at"`
}

// Handler persists task results and keeps running totals for a batch report.
// Safe for concurrent use: one batch commonly delivers results from many
// goroutines at once.
type Handler struct {
	resultsDir string

	mu      sync.Mutex
	results []model.TaskResult

	sinksMu sync.Mutex
	sinks   []Sink

	callbacksMu sync.Mutex
	callbacks   []func(context.Context, model.TaskResult)
}

// NewHandler creates a Handler writing under resultsDir, creating it (and any
// parents) if necessary.
func NewHandler(resultsDir string) (*Handler, error) {
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return nil, fmt.Errorf("result: create results dir: %w", err)
	}
	return &Handler{resultsDir: resultsDir}, nil
}

// AddSink registers a Sink to receive every future result.
func (h *Handler) AddSink(s Sink) {
	h.sinksMu.Lock()
	defer h.sinksMu.Unlock()
	h.sinks = append(h.sinks, s)
}

// AddCallback registers a function invoked with every result handled, after
// the sinks. Panics and long-running work inside the callback are the
// caller's responsibility; Handler does not recover or time it out.
func (h *Handler) AddCallback(fn func(context.Context, model.TaskResult)) {
	h.callbacksMu.Lock()
	defer h.callbacksMu.Unlock()
	h.callbacks = append(h.callbacks, fn)
}

// HandleResult implements batch.ResultSink: it records result to disk,
// appends it to the credentials export on success, fans it out to every
// registered sink, and invokes every callback. It returns the first error
// encountered persisting the result to disk; sink and callback failures are
// swallowed (a downstream notification problem should not fail the batch).
func (h *Handler) HandleResult(ctx context.Context, result model.TaskResult) error {
	h.mu.Lock()
	h.results = append(h.results, result)
	h.mu.Unlock()

	if err := h.saveToFile(result); err != nil {
		return fmt.Errorf("result: save %s: %w", result.TaskID, err)
	}

	if result.Status == model.StatusSuccess {
		if err := h.appendCredentials(result); err != nil {
			return fmt.Errorf("result: append credentials for %s: %w", result.TaskID, err)
		}
	}

	h.sinksMu.Lock()
	sinks := append([]Sink(nil), h.sinks...)
	h.sinksMu.Unlock()
	for _, s := range sinks {
		_ = s.Send(ctx, result)
	}

	h.callbacksMu.Lock()
	callbacks := append([]func(context.Context, model.TaskResult){}, h.callbacks...)
	h.callbacksMu.Unlock()
	for _, cb := range callbacks {
		cb(ctx, result)
	}

	return nil
}

func (h *Handler) saveToFile(result model.TaskResult) error {
	path := filepath.Join(h.resultsDir, result.TaskID+".json")
	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func (h *Handler) appendCredentials(result model.TaskResult) error {
	creds := credentialsFrom(result)
	if line := creds.Line(); line != "" {
		f, err := os.OpenFile(filepath.Join(h.resultsDir, "credentials.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		_, werr := f.WriteString(line + "\n")
		cerr := f.Close()
		if werr != nil {
			return werr
		}
		if cerr != nil {
			return cerr
		}
	}

	accountsPath := filepath.Join(h.resultsDir, "accounts.json")
	var accounts []accountRecord
	if raw, err := os.ReadFile(accountsPath); err == nil {
		_ = json.Unmarshal(raw, &accounts)
	}
	accounts = append(accounts, accountRecord{
		Email:       creds.Email,
		Username:    creds.Username,
		Password:    creds.Password,
		AccessToken: creds.AccessToken,
		UserID:      creds.UserID,
		Cookies:     result.Cookies,
		CreatedAt:   result.CreatedAt,
	})
	raw, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(accountsPath, raw, 0o644)
}

// Stats is a tally of results processed so far.
type Stats struct {
	Total   int
	Success int
	Failed  int
}

// SuccessRate returns the success percentage, or 0 if no results yet.
func (s Stats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Success) / float64(s.Total) * 100
}

// GetStats returns a tally of every result handled so far.
func (h *Handler) GetStats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	stats := Stats{Total: len(h.results)}
	for _, r := range h.results {
		if r.Status == model.StatusSuccess {
			stats.Success++
		} else {
			stats.Failed++
		}
	}
	return stats
}

// GenerateReport writes a summary report to report.txt under resultsDir and
// returns its contents.
func (h *Handler) GenerateReport() (string, error) {
	h.mu.Lock()
	results := append([]model.TaskResult(nil), h.results...)
	h.mu.Unlock()

	stats := Stats{Total: len(results)}
	statusCounts := map[model.ResultStatus]int{}
	kindCounts := map[model.ErrorKind]int{}
	var successDurationTotal time.Duration
	for _, r := range results {
		statusCounts[r.Status]++
		if r.Status == model.StatusSuccess {
			stats.Success++
			successDurationTotal += r.Duration
		} else {
			stats.Failed++
			if r.Kind != "" {
				kindCounts[r.Kind]++
			}
		}
	}

	var statuses []model.ResultStatus
	for s := range statusCounts {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

	var kinds []model.ErrorKind
	for k := range kindCounts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	var b strings.Builder
	rule := strings.Repeat("=", 50)
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "BATCH REPORT")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Total tasks: %d\n", stats.Total)
	fmt.Fprintf(&b, "Successful: %d (%.1f%%)\n", stats.Success, stats.SuccessRate())
	fmt.Fprintf(&b, "Failed: %d\n\n", stats.Failed)
	fmt.Fprintln(&b, "Status breakdown:")
	for _, s := range statuses {
		fmt.Fprintf(&b, "  - %s: %d\n", s, statusCounts[s])
	}
	if len(kinds) > 0 {
		fmt.Fprintln(&b, "\nFailure kind breakdown:")
		for _, k := range kinds {
			fmt.Fprintf(&b, "  - %s: %d\n", k, kindCounts[k])
		}
	}
	if stats.Success > 0 {
		avg := successDurationTotal.Seconds() / float64(stats.Success)
		fmt.Fprintf(&b, "\nAverage success time: %.1fs\n", avg)
	}
	fmt.Fprintln(&b, rule)

	report := b.String()
	if err := os.WriteFile(filepath.Join(h.resultsDir, "report.txt"), []byte(report), 0o644); err != nil {
		return "", fmt.Errorf("result: write report: %w", err)
	}
	return report, nil
}

// ExportFormat is one of the supported credentials export formats.
type ExportFormat string

const (
	ExportTXT  ExportFormat = "txt"
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// ExportCredentials writes every successful result's credentials to
// export_credentials.<format> under resultsDir and returns the written path.
func (h *Handler) ExportCredentials(format ExportFormat) (string, error) {
	h.mu.Lock()
	var successful []model.TaskResult
	for _, r := range h.results {
		if r.Status == model.StatusSuccess {
			successful = append(successful, r)
		}
	}
	h.mu.Unlock()

	switch format {
	case ExportTXT:
		var lines []string
		for _, r := range successful {
			if line := credentialsFrom(r).Line(); line != "" {
				lines = append(lines, line)
			}
		}
		path := filepath.Join(h.resultsDir, "export_credentials.txt")
		return path, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)

	case ExportJSON:
		out := make([]Credentials, 0, len(successful))
		for _, r := range successful {
			out = append(out, credentialsFrom(r))
		}
		raw, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return "", err
		}
		path := filepath.Join(h.resultsDir, "export_credentials.json")
		return path, os.WriteFile(path, raw, 0o644)

	case ExportCSV:
		path := filepath.Join(h.resultsDir, "export_credentials.csv")
		f, err := os.Create(path)
		if err != nil {
			return "", err
		}
		defer f.Close()

		w := csv.NewWriter(f)
		if err := w.Write([]string{"email", "username", "password", "access_token", "user_id"}); err != nil {
			return "", err
		}
		for _, r := range successful {
			c := credentialsFrom(r)
			if err := w.Write([]string{c.Email, c.Username, c.Password, c.AccessToken, c.UserID}); err != nil {
				return "", err
			}
		}
		w.Flush()
		return path, w.Error()

	default:
		return "", fmt.Errorf("result: unknown export format %q", format)
	}
}
