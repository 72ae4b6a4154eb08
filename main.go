// goantidetect runs batches of anti-detect browser sessions against a
// configurable target, one uniquely fingerprinted profile per task.
//
// Startup sequence:
//  1. Load configuration (JSON file or defaults).
//  2. Load the egress (proxy) list into a pool, if configured.
//  3. Initialise the profile store, session manager, metrics, and logger.
//  4. Build a batch executor around a browser driver and a watchdog that
//     reclaims sessions whose browser process dies mid-task.
//  5. Run one batch against the configured target, streaming results to
//     disk and the live dashboard.
//  6. Block until OS signals SIGINT or SIGTERM, or the batch finishes,
//     then perform a clean shutdown and print a final report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/firasghr/goantidetect/batch"
	"github.com/firasghr/goantidetect/config"
	"github.com/firasghr/goantidetect/dashboard"
	"github.com/firasghr/goantidetect/driver"
	"github.com/firasghr/goantidetect/egress"
	"github.com/firasghr/goantidetect/fingerprint"
	"github.com/firasghr/goantidetect/jschallenge"
	"github.com/firasghr/goantidetect/logger"
	"github.com/firasghr/goantidetect/metrics"
	"github.com/firasghr/goantidetect/model"
	"github.com/firasghr/goantidetect/profile"
	"github.com/firasghr/goantidetect/proxy"
	"github.com/firasghr/goantidetect/result"
	"github.com/firasghr/goantidetect/session"
	"github.com/firasghr/goantidetect/watchdog"
)

func main() {
	// ── Flags ──────────────────────────────────────────────────────────────
	configFile := flag.String("config", "", "Path to JSON config file (optional; uses defaults if omitted)")
	dashboardAddr := flag.String("dashboard", ":8080", "Address for the real-time dashboard HTTP server (e.g. :8080)")
	targetURL := flag.String("target", "", "URL each task's script navigates to (required to do real work)")
	taskCount := flag.Int("tasks", 10, "Number of tasks to run in this batch")
	platform := flag.String("platform", "", "Pin every task's fingerprint to one platform family (win32, win11, macos, macos_arm, linux); empty samples per-task")
	flag.Parse()

	// ── Logger ─────────────────────────────────────────────────────────────
	log := logger.New(logger.LevelInfo)
	log.Info("goantidetect starting up")

	// ── Configuration ──────────────────────────────────────────────────────
	var cfg *config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.LoadConfig(*configFile)
		if err != nil {
			log.Errorf("failed to load config from %q: %v", *configFile, err)
			os.Exit(1)
		}
		log.Infof("configuration loaded from %q", *configFile)
	} else {
		cfg = config.DefaultConfig()
		log.Info("using default configuration")
	}

	// ── Fingerprint generation overrides ──────────────────────────────────
	fingerprint.SetPlatformWeights(cfg.PlatformWeights)

	// ── Egress pool ────────────────────────────────────────────────────────
	pool := egress.NewPool()
	pool.SetStrategy(cfg.EgressStrategy)
	if cfg.EgressSourceFile != "" {
		entries, err := proxy.LoadFile(cfg.EgressSourceFile, model.ProtocolHTTP)
		if err != nil {
			log.Errorf("failed to load egress list from %q: %v", cfg.EgressSourceFile, err)
			os.Exit(1)
		}
		pool.Load(entries)
		log.Infof("loaded %d egress entries from %q", len(entries), cfg.EgressSourceFile)
	} else {
		log.Info("no egress source configured; sessions will connect directly")
	}

	// ── Profile store and session manager ─────────────────────────────────
	profileDir := cfg.DataDir + "/profiles"
	store, err := profile.NewStore(profileDir)
	if err != nil {
		log.Errorf("failed to open profile store at %q: %v", profileDir, err)
		os.Exit(1)
	}
	sessions := session.NewManager(pool, store, cfg.DataDir)

	// ── Metrics and dashboard ──────────────────────────────────────────────
	m := metrics.NewMetrics()
	dash := dashboard.New(m, cfg)
	go func() {
		if err := dash.ListenAndServe(*dashboardAddr); err != nil {
			log.Errorf("dashboard server error: %v", err)
		}
	}()
	log.Infof("dashboard server starting on %s", *dashboardAddr)

	// ── Result handler ─────────────────────────────────────────────────────
	resultsDir := cfg.DataDir + "/results"
	results, err := result.NewHandler(resultsDir)
	if err != nil {
		log.Errorf("failed to open results directory %q: %v", resultsDir, err)
		os.Exit(1)
	}
	results.AddSink(result.NewDashboardSink(dash))

	// ── Browser driver ─────────────────────────────────────────────────────
	// No real browser driver ships with this module: Launch/Stop/WaitClose
	// are satisfied by whatever automation layer the deployment embeds (CDP,
	// WebDriver, or similar). FakeDriver stands in so this binary runs
	// end-to-end out of the box; swap it for a real implementation in
	// production.
	drv := driver.NewFakeDriver()

	// ── Batch executor and watchdog ────────────────────────────────────────
	// Executor must exist before Watchdog (it's the Watchdog's Reclaimer),
	// so it's built with no watchdog first and wired up after.
	executor := batch.NewExecutor(drv, sessions, results, nil, cfg, log)
	watch := watchdog.New(drv, executor, cfg.WatchdogInterval)
	executor.SetWatchdog(watch)
	watch.Start(context.Background())
	defer watch.Stop()

	// ── Task script ─────────────────────────────────────────────────────────
	// script navigates to the target, solves a trivial JS challenge the
	// target might hand back, and reports success once the page settles.
	// Replace this closure with real task logic.
	solver, err := jschallenge.NewOttoSolver("")
	if err != nil {
		log.Errorf("failed to start challenge solver: %v", err)
		os.Exit(1)
	}
	script := func(ctx context.Context, page driver.Page, sess *model.UniqueSession, data map[string]any) (model.TaskResult, error) {
		if *targetURL == "" {
			return model.TaskResult{Status: model.StatusSuccess}, nil
		}
		if err := page.Goto(ctx, *targetURL); err != nil {
			return model.TaskResult{}, fmt.Errorf("goto %s: %w", *targetURL, err)
		}
		if challenge, ok := data["challenge_js"].(string); ok && challenge != "" {
			if _, err := solver.Eval(challenge); err != nil {
				return model.TaskResult{}, fmt.Errorf("solve challenge: %w", err)
			}
		}
		return model.TaskResult{Status: model.StatusSuccess}, nil
	}

	platformFamily := model.PlatformFamily(*platform)

	// ── Metrics monitor ────────────────────────────────────────────────────
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				total, success, failed := m.Snapshot()
				tps := m.TasksPerSecond()
				stats := executor.Stats()
				log.Infof("metrics - total: %d | success: %d | failed: %d | tps: %.1f | in-progress: %d",
					total, success, failed, tps, stats.InProgress)
				dash.SetActiveTasks(int64(stats.InProgress))
				dash.SetActiveEgress(int64(pool.Stats().InUse))
			}
		}
	}()

	// ── Run the batch ──────────────────────────────────────────────────────
	batchCtx, cancelBatch := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Println() // newline after ^C
		log.Infof("received signal %s; cancelling batch", sig)
		dash.AddLog("INFO", fmt.Sprintf("received signal %s; shutting down", sig))
		executor.Cancel()
		cancelBatch()
	}()

	log.Infof("running %d tasks against %q", *taskCount, *targetURL)
	stats, err := executor.ExecuteBatch(batchCtx, wrapScript(script, m), *taskCount, nil, platformFamily)
	if err != nil {
		log.Errorf("batch failed: %v", err)
	}

	// ── Final report ───────────────────────────────────────────────────────
	total, success, failed := m.Snapshot()
	log.Infof("final metrics - total: %d | success: %d | failed: %d | success rate: %.1f%%",
		total, success, failed, stats.SuccessRate())
	if report, err := results.GenerateReport(); err == nil {
		log.Info(report)
	}
	log.Info("goantidetect shut down cleanly")
}

// wrapScript increments m's counters around script so the dashboard and
// periodic log line reflect live task outcomes without script itself
// needing to know about metrics.
func wrapScript(script batch.ScriptFunc, m *metrics.Metrics) batch.ScriptFunc {
	return func(ctx context.Context, page driver.Page, sess *model.UniqueSession, data map[string]any) (model.TaskResult, error) {
		m.IncrementTotal()
		res, err := script(ctx, page, sess, data)
		if err != nil || res.Status != model.StatusSuccess {
			m.IncrementFailed()
		} else {
			m.IncrementSuccess()
		}
		return res, err
	}
}
