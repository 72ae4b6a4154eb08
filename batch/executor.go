// Package batch fans a registration script out across many concurrently
// launched browser profiles, retrying each task under a fresh session until
// it succeeds, hits a terminal status, or exhausts its retry budget.
// Grounded algorithmically on original_source's application/batch_executor.py
// (BatchExecutor): the bounded concurrency, start-stagger, and
// retry-until-terminal loop are carried over attempt-for-attempt, with
// asyncio.wait_for translated to context.WithTimeout and asyncio.Semaphore
// translated to worker.WorkerPool. Structurally it plays the role of a
// dispatch loop over a task source, but drives a fixed task count to
// completion once rather than dispatching forever.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/firasghr/goantidetect/config"
	"github.com/firasghr/goantidetect/driver"
	"github.com/firasghr/goantidetect/logger"
	"github.com/firasghr/goantidetect/model"
	"github.com/firasghr/goantidetect/session"
	"github.com/firasghr/goantidetect/stealth"
	"github.com/firasghr/goantidetect/watchdog"
	"github.com/firasghr/goantidetect/worker"
)

// ScriptFunc performs one task's work against a launched page. It returns the
// result it wants recorded; Executor fills in SessionID and Duration, and
// CreatedAt when the script left it zero.
type ScriptFunc func(ctx context.Context, page driver.Page, sess *model.UniqueSession, data map[string]any) (model.TaskResult, error)

// ResultSink receives every completed task result, success or failure.
// result.Handler implements this.
type ResultSink interface {
	HandleResult(ctx context.Context, result model.TaskResult) error
}

// Stats is a point-in-time snapshot of a batch's progress.
type Stats struct {
	TotalTasks int
	Completed  int
	Successful int
	Failed     int
	InProgress int
	StartTime  time.Time
	EndTime    time.Time
}

// SuccessRate returns the percentage of completed tasks that succeeded, or 0
// if none have completed yet.
func (s Stats) SuccessRate() float64 {
	if s.Completed == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.Completed) * 100
}

// DurationSeconds returns elapsed wall time, using time.Now if the batch has
// not finished yet.
func (s Stats) DurationSeconds() float64 {
	if s.StartTime.IsZero() {
		return 0
	}
	end := s.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartTime).Seconds()
}

// Executor runs batches of tasks against a browser driver, one unique
// session per attempt.
type Executor struct {
	drv      driver.Driver
	sessions *session.Manager
	sink     ResultSink
	watch    *watchdog.Watchdog
	cfg      *config.Config
	log      *logger.Logger

	statsMu sync.Mutex
	stats   Stats
	running bool

	cancelMu sync.Mutex
	cancelCh chan struct{}

	abortMu sync.Mutex
	aborts  map[string]context.CancelFunc
}

// NewExecutor builds an Executor. watch may be nil, disabling mid-task crash
// detection; a dead handle is then only discovered when the script's own call
// returns an error or the task timeout fires.
func NewExecutor(drv driver.Driver, sessions *session.Manager, sink ResultSink, watch *watchdog.Watchdog, cfg *config.Config, log *logger.Logger) *Executor {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Executor{
		drv:      drv,
		sessions: sessions,
		sink:     sink,
		watch:    watch,
		cfg:      cfg,
		log:      log,
		aborts:   make(map[string]context.CancelFunc),
	}
}

// SetWatchdog attaches a Watchdog after construction, for callers that need
// the Executor built first because it is the Watchdog's Reclaimer. Must be
// called before ExecuteBatch starts; it is not safe to swap mid-batch.
func (e *Executor) SetWatchdog(watch *watchdog.Watchdog) {
	e.watch = watch
}

// ReclaimSession implements watchdog.Reclaimer: it cancels the context of the
// task currently running under sessionID, if any.
func (e *Executor) ReclaimSession(sessionID string, reason driver.CloseReason) {
	e.abortMu.Lock()
	cancel, ok := e.aborts[sessionID]
	e.abortMu.Unlock()
	if ok {
		cancel()
	}
	if e.log != nil {
		e.log.Infof("batch: session %s reclaimed by watchdog (%v)", sessionID, reason)
	}
}

// ExecuteBatch runs taskCount tasks through script, staggering launches by
// cfg.DelayBetweenStarts and bounding concurrency to cfg.MaxConcurrent. Each
// entry of taskData supplies that task's data payload; a short slice is
// padded with empty maps. It blocks until every task has completed or the
// batch is cancelled, then returns the final stats.
func (e *Executor) ExecuteBatch(ctx context.Context, script ScriptFunc, taskCount int, taskData []map[string]any, platform model.PlatformFamily) (Stats, error) {
	if script == nil {
		return Stats{}, fmt.Errorf("batch: ExecuteBatch: script must not be nil")
	}

	e.statsMu.Lock()
	e.running = true
	e.stats = Stats{TotalTasks: taskCount, StartTime: time.Now()}
	e.statsMu.Unlock()

	e.cancelMu.Lock()
	e.cancelCh = make(chan struct{})
	cancelCh := e.cancelCh
	e.cancelMu.Unlock()

	if e.sessions != nil {
		e.sessions.ResetUniquenessTracking()
	}

	data := make([]map[string]any, taskCount)
	for i := 0; i < taskCount; i++ {
		if i < len(taskData) && taskData[i] != nil {
			data[i] = taskData[i]
		} else {
			data[i] = map[string]any{}
		}
	}

	pool := worker.NewWorkerPool(e.cfg.MaxConcurrent)
	pool.Start()

	var wg sync.WaitGroup
spawnLoop:
	for i := 0; i < taskCount; i++ {
		select {
		case <-cancelCh:
			break spawnLoop
		default:
		}

		idx := i
		d := data[i]
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			e.runTask(ctx, script, idx, d, platform, cancelCh)
		})

		if e.cfg.DelayBetweenStarts > 0 && i < taskCount-1 {
			time.Sleep(e.cfg.DelayBetweenStarts)
		}
	}

	wg.Wait()
	pool.Stop()

	e.statsMu.Lock()
	e.stats.EndTime = time.Now()
	e.running = false
	final := e.stats
	e.statsMu.Unlock()

	return final, nil
}

// runTask executes one task id's full retry sequence and hands the result to
// the sink, updating live stats around it.
func (e *Executor) runTask(ctx context.Context, script ScriptFunc, taskIndex int, data map[string]any, platform model.PlatformFamily, cancelCh chan struct{}) {
	taskID := fmt.Sprintf("task-%d-%s", taskIndex, randSuffix())

	select {
	case <-cancelCh:
		e.recordCancelled(ctx, taskID)
		return
	default:
	}

	e.statsMu.Lock()
	e.stats.InProgress++
	e.statsMu.Unlock()

	result := e.runWithRetry(ctx, script, taskID, data, platform, cancelCh)

	e.statsMu.Lock()
	e.stats.InProgress--
	e.stats.Completed++
	if result.Status == model.StatusSuccess {
		e.stats.Successful++
	} else {
		e.stats.Failed++
	}
	e.statsMu.Unlock()

	if e.sink != nil {
		if err := e.sink.HandleResult(ctx, result); err != nil && e.log != nil {
			e.log.Errorf("batch: result sink failed for task %s: %v", taskID, err)
		}
	}
}

// runWithRetry retries taskID under fresh sessions until a success, a
// terminal status, the retry budget is spent, or cancelCh closes. cancelCh is
// checked between attempts, in addition to the per-attempt check executeOnce
// performs against its own merged context, so Executor.Cancel is observed at
// the next natural break point rather than only between task submissions.
func (e *Executor) runWithRetry(ctx context.Context, script ScriptFunc, taskID string, data map[string]any, platform model.PlatformFamily, cancelCh chan struct{}) model.TaskResult {
	maxAttempts := 1
	if e.cfg.RetryOnFailure {
		maxAttempts += e.cfg.MaxRetries
	}

	var lastErr string
	var lastKind model.ErrorKind
	lastSessionID := "unknown"

	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-cancelCh:
			return model.TaskResult{
				TaskID:    taskID,
				SessionID: lastSessionID,
				Status:    model.StatusCancelled,
				ErrorText: "batch cancelled before attempt could start",
				CreatedAt: time.Now(),
			}
		default:
		}

		meta := make(map[string]any, len(data)+1)
		for k, v := range data {
			meta[k] = v
		}
		meta["attempt"] = attempt + 1

		sess, err := e.sessions.CreateUnique(taskID, session.CreateUniqueOptions{
			Platform: platform,
			Metadata: meta,
		})
		if err != nil {
			lastErr = err.Error()
			lastKind = ""
			continue
		}
		lastSessionID = sess.ID

		result := e.executeOnce(ctx, script, sess, data, platform, cancelCh)
		e.sessions.Release(sess.ID)

		if result.Status == model.StatusSuccess {
			return result
		}
		lastErr = result.ErrorText
		lastKind = result.Kind
		if result.Status.Terminal() {
			return result
		}
	}

	// The synthesized result keeps the last attempt's failure kind (a
	// watchdog reclaim stays KindDriver, a timeout KindScript);
	// KindExhaustion covers a last attempt that carried no kind.
	if lastKind == "" {
		lastKind = model.KindExhaustion
	}
	return model.TaskResult{
		TaskID:    taskID,
		SessionID: lastSessionID,
		Status:    model.StatusFailed,
		Kind:      lastKind,
		ErrorText: fmt.Sprintf("all %d attempts failed: %s", maxAttempts, lastErr),
		CreatedAt: time.Now(),
	}
}

// mergeCancel derives a context from ctx that is also cancelled the moment
// cancelCh closes, so an in-flight attempt observes Executor.Cancel at its
// next ctx check instead of only discovering it via the outer batch context.
func mergeCancel(ctx context.Context, cancelCh <-chan struct{}) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-cancelCh:
			cancel()
		case <-merged.Done():
		}
	}()
	return merged, cancel
}

// executeOnce launches a browser for sess, runs script under the configured
// task timeout, and folds the outcome (including a crash signalled through
// the watchdog) into a TaskResult.
func (e *Executor) executeOnce(ctx context.Context, script ScriptFunc, sess *model.UniqueSession, data map[string]any, platform model.PlatformFamily, cancelCh chan struct{}) model.TaskResult {
	cancelAwareCtx, stopWatchingCancel := mergeCancel(ctx, cancelCh)
	defer stopWatchingCancel()

	taskCtx, cancel := context.WithTimeout(cancelAwareCtx, e.cfg.TaskTimeout)
	defer cancel()

	e.abortMu.Lock()
	e.aborts[sess.ID] = cancel
	e.abortMu.Unlock()
	defer func() {
		e.abortMu.Lock()
		delete(e.aborts, sess.ID)
		e.abortMu.Unlock()
	}()

	start := time.Now()
	taskID, _ := sess.Metadata["task_id"].(string)

	opts, err := e.launchOptions(&sess.Profile, platform)
	if err != nil {
		return model.TaskResult{
			TaskID:    taskID,
			SessionID: sess.ID,
			Status:    model.StatusFailed,
			Kind:      model.KindConfiguration,
			ErrorText: fmt.Sprintf("build stealth bootstrap: %v", err),
			Duration:  time.Since(start),
			CreatedAt: time.Now(),
		}
	}

	handle, page, err := e.drv.Launch(taskCtx, &sess.Profile, opts)
	if err != nil {
		return model.TaskResult{
			TaskID:    taskID,
			SessionID: sess.ID,
			Status:    model.StatusFailed,
			Kind:      model.KindDriver,
			ErrorText: fmt.Sprintf("launch: %v", err),
			Duration:  time.Since(start),
			CreatedAt: time.Now(),
		}
	}
	defer e.drv.Stop(context.Background(), handle, 5*time.Second)

	if e.watch != nil {
		e.watch.Watch(sess.ID, handle)
		defer e.watch.Forget(sess.ID)
	}

	type outcome struct {
		result model.TaskResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := script(taskCtx, page, sess, data)
		done <- outcome{r, err}
	}()

	select {
	case <-taskCtx.Done():
		e.maybeScreenshot(page, sess.ID, "error")
		status := model.StatusFailed
		kind := model.KindDriver
		msg := taskCtx.Err().Error()
		select {
		case <-cancelCh:
			// cancelCh closing is what cancelled cancelAwareCtx (and so
			// taskCtx), as opposed to the timeout firing or a watchdog
			// reclaim cancelling taskCtx's own cancel func directly.
			status = model.StatusCancelled
			kind = ""
			msg = "batch cancelled mid-task"
		default:
			switch {
			case taskCtx.Err() == context.DeadlineExceeded:
				status = model.StatusTimeout
				kind = model.KindScript
				msg = fmt.Sprintf("timeout after %s", e.cfg.TaskTimeout)
			case ctx.Err() == nil:
				// Parent batch context is still live, so this was a watchdog
				// reclaim cancelling taskCtx directly, not an outer shutdown.
				msg = "session reclaimed: browser handle died mid-task"
			}
		}
		return model.TaskResult{
			TaskID:    taskID,
			SessionID: sess.ID,
			Status:    status,
			Kind:      kind,
			ErrorText: msg,
			Duration:  time.Since(start),
			CreatedAt: time.Now(),
		}

	case out := <-done:
		if out.err != nil {
			e.maybeScreenshot(page, sess.ID, "error")
			return model.TaskResult{
				TaskID:    taskID,
				SessionID: sess.ID,
				Status:    model.StatusFailed,
				Kind:      model.KindScript,
				ErrorText: out.err.Error(),
				Duration:  time.Since(start),
				CreatedAt: time.Now(),
			}
		}

		out.result.SessionID = sess.ID
		out.result.Duration = time.Since(start)
		if out.result.CreatedAt.IsZero() {
			out.result.CreatedAt = time.Now()
		}

		if out.result.Status == model.StatusSuccess {
			if cookies, cerr := page.Cookies(taskCtx); cerr == nil {
				out.result.Cookies = cookies
				sess.Profile.Cookies = cookies
			}
			if e.cfg.ScreenshotOnSuccess {
				e.maybeScreenshot(page, sess.ID, "success")
			}
			if err := e.sessions.Save(sess.ID); err != nil {
				return model.TaskResult{
					TaskID:    taskID,
					SessionID: sess.ID,
					Status:    model.StatusFailed,
					Kind:      model.KindPersistence,
					ErrorText: fmt.Sprintf("persist session profile: %v", err),
					Duration:  time.Since(start),
					CreatedAt: time.Now(),
				}
			}
		} else {
			if out.result.Status.Terminal() && out.result.Kind == "" {
				out.result.Kind = model.KindTerminal
			}
			if e.cfg.ScreenshotOnError {
				e.maybeScreenshot(page, sess.ID, "error")
			}
		}

		return out.result
	}
}

// launchOptions builds the driver.Options for profile's launch: the stealth
// bootstrap script generated from its fingerprint, its on-disk storage
// directory, and the humanization/WebRTC/headless knobs from cfg.
func (e *Executor) launchOptions(profile *model.BrowserProfile, platform model.PlatformFamily) (driver.Options, error) {
	bootstrap, err := stealth.Build(&profile.Fingerprint)
	if err != nil {
		return driver.Options{}, err
	}
	return driver.Options{
		Headless:       e.cfg.Headless,
		Bootstrap:      bootstrap,
		StorageDir:     profile.StoragePath,
		OSHint:         platform,
		BlockWebRTC:    e.cfg.BlockWebRTC,
		HumanizeFactor: e.cfg.HumanizeFactor,
	}, nil
}

// maybeScreenshot captures page and writes it under
// cfg.DataDir/screenshots/<sessionID>_<tag>.png, logging but not failing the
// task if either step errors.
func (e *Executor) maybeScreenshot(page driver.Page, sessionID, tag string) {
	if page == nil {
		return
	}
	shot, err := page.Screenshot(context.Background())
	if err != nil {
		if e.log != nil {
			e.log.Infof("batch: screenshot for %s (%s) failed: %v", sessionID, tag, err)
		}
		return
	}
	dir := filepath.Join(e.cfg.DataDir, "screenshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		if e.log != nil {
			e.log.Infof("batch: screenshot dir for %s (%s) failed: %v", sessionID, tag, err)
		}
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", sessionID, tag))
	if err := os.WriteFile(path, shot, 0o644); err != nil && e.log != nil {
		e.log.Infof("batch: screenshot write for %s (%s) failed: %v", sessionID, tag, err)
	}
}

func (e *Executor) recordCancelled(ctx context.Context, taskID string) {
	result := model.TaskResult{
		TaskID:    taskID,
		SessionID: "cancelled",
		Status:    model.StatusCancelled,
		ErrorText: "task cancelled",
		CreatedAt: time.Now(),
	}
	e.statsMu.Lock()
	e.stats.Completed++
	e.stats.Failed++
	e.statsMu.Unlock()
	if e.sink != nil {
		_ = e.sink.HandleResult(ctx, result)
	}
}

// Cancel stops ExecuteBatch from starting any task that has not already
// begun, and aborts every in-flight attempt's context so it returns with
// StatusCancelled instead of running to completion or its own timeout.
func (e *Executor) Cancel() {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()
	if e.cancelCh == nil {
		return
	}
	select {
	case <-e.cancelCh:
	default:
		close(e.cancelCh)
	}
}

// IsRunning reports whether a batch is currently executing.
func (e *Executor) IsRunning() bool {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.running
}

// Stats returns a snapshot of the current (or most recently finished)
// batch's progress.
func (e *Executor) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

var suffixMu sync.Mutex
var suffixCounter int

// randSuffix hands out a process-unique, monotonically increasing suffix for
// task ids without reaching for time.Now or crypto/rand on a hot path.
func randSuffix() string {
	suffixMu.Lock()
	defer suffixMu.Unlock()
	suffixCounter++
	return fmt.Sprintf("%d", suffixCounter)
}
