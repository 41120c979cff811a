package railscron

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/railscron/railscron/cronexpr"
	"github.com/railscron/railscron/railsaudit"
	"github.com/railscron/railscron/railsclock"
	"github.com/railscron/railscron/railsconfig"
	"github.com/railscron/railscron/railserr"
	"github.com/railscron/railscron/railsjob"
	"github.com/railscron/railscron/railskey"
	"github.com/railscron/railscron/railslease"
	"github.com/railscron/railscron/railslog"
	"github.com/railscron/railscron/railsmetrics"
)

// state is the coordinator's lifecycle state machine: idle -> running ->
// stopping -> idle. Transitions happen only via Start, Stop, and the
// worker goroutine's own termination.
type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopping
)

// Job mirrors railsjob.Job for callers that only need the exported
// registration surface.
type Job = railsjob.Job

// JobFunc is the callback signature Register expects.
type JobFunc = railsjob.Callback

// Option re-exports railsconfig.Option so callers only need to import
// this package for the common case.
type Option = railsconfig.Option

// The With* functions below re-export their railsconfig equivalents so
// callers only need to import this package for the common case.
func WithTickInterval(d time.Duration) Option       { return railsconfig.WithTickInterval(d) }
func WithWindowLookback(d time.Duration) Option     { return railsconfig.WithWindowLookback(d) }
func WithWindowLookahead(d time.Duration) Option    { return railsconfig.WithWindowLookahead(d) }
func WithLeaseTTL(d time.Duration) Option           { return railsconfig.WithLeaseTTL(d) }
func WithNamespace(ns string) Option                { return railsconfig.WithNamespace(ns) }
func WithLeaseBackend(b railslease.Backend) Option  { return railsconfig.WithLeaseBackend(b) }
func WithAuditBackend(r railsaudit.Registry) Option { return railsconfig.WithAuditBackend(r) }
func WithEnableAudit(enabled bool) Option           { return railsconfig.WithEnableAudit(enabled) }
func WithEnableDispatchRecovery(enabled bool) Option {
	return railsconfig.WithEnableDispatchRecovery(enabled)
}
func WithRecoveryWindow(d time.Duration) Option { return railsconfig.WithRecoveryWindow(d) }
func WithRecoveryStartupJitter(d time.Duration) Option {
	return railsconfig.WithRecoveryStartupJitter(d)
}
func WithTimeZone(loc *time.Location) Option { return railsconfig.WithTimeZone(loc) }
func WithLogger(l railslog.Logger) Option    { return railsconfig.WithLogger(l) }
func WithNodeID(id string) Option            { return railsconfig.WithNodeID(id) }

// Scheduler is the coordination kernel: it owns one background worker
// goroutine, a job registry, and the pluggable lease/audit backends,
// and ticks periodically to dispatch due firings exactly once across
// the fleet.
type Scheduler struct {
	cfg   railsconfig.Config
	clock railsclock.Clock
	jobs  *railsjob.Registry

	mu       sync.Mutex
	st       state
	stopCh   chan struct{}
	workerWG sync.WaitGroup
}

// New builds a Scheduler from railsconfig.Default() plus opts. It does
// not validate the configuration or start the worker — call Start for
// that.
func New(opts ...railsconfig.Option) *Scheduler {
	cfg := railsconfig.New(opts...)
	return &Scheduler{
		cfg:   cfg,
		clock: railsclock.NewSystem(cfg.TimeZone),
		jobs:  railsjob.New(),
	}
}

// NewWithClock builds a Scheduler like New but with an injected Clock,
// for deterministic tests.
func NewWithClock(clock railsclock.Clock, opts ...railsconfig.Option) *Scheduler {
	s := New(opts...)
	s.clock = clock
	return s
}

// Register adds a job. Duplicate keys, empty fields, or a nil callback
// return *railserr.RegistrationError.
func (s *Scheduler) Register(key, expression string, callback JobFunc) error {
	return s.jobs.Add(railsjob.Job{Key: key, Expression: expression, Callback: callback})
}

// Unregister removes a job; removing an absent key is a no-op.
func (s *Scheduler) Unregister(key string) {
	s.jobs.Remove(key)
}

// Registered reports whether key is currently registered.
func (s *Scheduler) Registered(key string) bool {
	return s.jobs.Registered(key)
}

// RegisteredJobs returns a snapshot of every registered job.
func (s *Scheduler) RegisteredJobs() []Job {
	return s.jobs.All()
}

// WithIdempotency derives the idempotency key for (jobKey, firing) under
// this Scheduler's configured namespace.
func (s *Scheduler) WithIdempotency(jobKey string, firing time.Time) string {
	return railskey.IdempotencyKey(s.cfg.Namespace, jobKey, firing)
}

// Dispatched reports whether (jobKey, firing) has already been logged in
// the audit registry. It always returns false when no audit backend is
// configured.
func (s *Scheduler) Dispatched(ctx context.Context, jobKey string, firing time.Time) (bool, error) {
	if s.cfg.AuditBackend == nil {
		return false, nil
	}
	return s.cfg.AuditBackend.Dispatched(ctx, jobKey, firing)
}

// AuditRegistry returns the configured audit backend, or nil if none is
// configured or EnableAudit is false. Per spec.md's normative resolution
// of the reference implementation's ambiguity, the registry is treated
// as hidden unless auditing is explicitly enabled.
func (s *Scheduler) AuditRegistry() railsaudit.Registry {
	if !s.cfg.EnableAudit {
		return nil
	}
	return s.cfg.AuditBackend
}

// Running reports whether the worker goroutine is currently active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st == stateRunning
}

// Start validates the configuration, runs missed-run recovery once if
// enabled, and launches the periodic worker goroutine. Start on an
// already-running Scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.cfg.MustValidate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.st == stateRunning {
		s.mu.Unlock()
		return nil
	}
	s.st = stateRunning
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if s.cfg.EnableDispatchRecovery {
		s.runRecovery(ctx)
	}

	s.workerWG.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop signals the worker to exit after its current tick and waits up
// to timeout. It returns false — without killing the process or the
// worker — if the worker does not exit in time. Stop is idempotent.
func (s *Scheduler) Stop(timeout time.Duration) bool {
	s.mu.Lock()
	if s.st == stateIdle {
		s.mu.Unlock()
		return true
	}
	// Only the running -> stopping transition closes stopCh. A retry
	// after a prior timeout finds st already stateStopping and simply
	// rejoins the worker instead of closing an already-closed channel.
	if s.st == stateRunning {
		s.st = stateStopping
		close(s.stopCh)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.mu.Lock()
		s.st = stateIdle
		s.mu.Unlock()
		return true
	case <-time.After(timeout):
		return false
	}
}

// Restart stops (with a generous internal timeout) and starts again.
func (s *Scheduler) Restart(ctx context.Context) error {
	s.Stop(s.cfg.TickInterval * 10)
	return s.Start(ctx)
}

// loop is the worker goroutine: it ticks synchronously via Tick every
// TickInterval, suspending on the stop channel in between so Stop can
// wake it immediately instead of waiting out the remainder of a tick
// period.
func (s *Scheduler) loop(ctx context.Context) {
	defer s.workerWG.Done()

	for {
		if err := s.Tick(ctx); err != nil {
			s.cfg.Logger.Error("tick failed", railslog.Fields{"error": err.Error()})
		}

		if s.waitForNextTickOrStop() {
			return
		}
	}
}

// waitForNextTickOrStop blocks until TickInterval elapses or stop is
// signaled, returning true in the latter case.
func (s *Scheduler) waitForNextTickOrStop() bool {
	s.mu.Lock()
	stopCh := s.stopCh
	s.mu.Unlock()

	select {
	case <-stopCh:
		return true
	case <-time.After(s.cfg.TickInterval):
		return false
	}
}

// Tick runs one synchronous coordination pass: it enumerates due
// firings for every registered job across the configured lookback/
// lookahead window, deduplicates via the lease backend, and invokes
// each due job's callback. It is exported so tests can drive the
// coordinator deterministically without waiting on the ticker.
func (s *Scheduler) Tick(ctx context.Context) error {
	started := s.clock.Now()
	now := started
	start := now.Add(-s.cfg.WindowLookback)
	end := now.Add(s.cfg.WindowLookahead)

	s.jobs.Each(func(job railsjob.Job) {
		s.tickJob(ctx, job, now, start, end)
	})

	railsmetrics.TickDurationSeconds.Observe(s.clock.Now().Sub(started).Seconds())
	return nil
}

func (s *Scheduler) tickJob(ctx context.Context, job railsjob.Job, now, start, end time.Time) {
	firings, err := cronexpr.Enumerate(job.Expression, start, end, s.cfg.TimeZone)
	if err != nil {
		railsmetrics.InvalidExpressionsTotal.WithLabelValues(job.Key).Inc()
		s.cfg.Logger.Warn("skipping job with invalid expression", railslog.Fields{
			"job_key":    job.Key,
			"expression": job.Expression,
			"error":      err.Error(),
		})
		return
	}
	railsmetrics.FiringsEnumeratedTotal.WithLabelValues(job.Key).Add(float64(len(firings)))

	for _, firing := range firings {
		if firing.After(now) {
			// Within window_lookahead but not yet due; enumerated for
			// visibility, never dispatched this tick.
			continue
		}
		s.dispatch(ctx, job, firing)
	}
}

// dispatch runs the acquire -> callback -> (audit log) sequence for one
// firing. The lease is deliberately never released on success: it must
// expire via TTL so a later tick still inside the lookback window
// cannot re-acquire and re-dispatch the same firing.
func (s *Scheduler) dispatch(ctx context.Context, job railsjob.Job, firing time.Time) {
	lockKey := railskey.LockKey(s.cfg.Namespace, job.Key, firing)

	granted, err := s.acquire(ctx, lockKey)
	if err != nil {
		railsmetrics.LeaseAcquireFailuresTotal.WithLabelValues(job.Key).Inc()
		s.cfg.Logger.Error("lease backend error, treating as not acquired", railslog.Fields{
			"job_key": job.Key, "lock_key": lockKey, "error": err.Error(),
		})
		return
	}
	if !granted {
		return
	}

	idempotencyKey := s.WithIdempotency(job.Key, firing)
	status := railsaudit.StatusDispatched
	if callbackErr := s.invokeCallback(ctx, job, firing, idempotencyKey); callbackErr != nil {
		status = railsaudit.StatusFailed
		railsmetrics.CallbackErrorsTotal.WithLabelValues(job.Key).Inc()
	}
	railsmetrics.FiringsDispatchedTotal.WithLabelValues(job.Key, string(status)).Inc()

	s.logDispatch(ctx, job.Key, firing, status)
}

func (s *Scheduler) acquire(ctx context.Context, lockKey string) (bool, error) {
	if s.cfg.LeaseBackend == nil {
		return true, nil
	}
	granted, err := s.cfg.LeaseBackend.Acquire(ctx, lockKey, s.cfg.LeaseTTL)
	if err != nil {
		return false, &railserr.BackendError{Op: "lease acquire", Cause: err}
	}
	return granted, nil
}

// invokeCallback runs the user callback inside a panic boundary: a
// returned error or a panic is converted to a *railserr.CallbackError
// and logged, and never aborts the tick.
func (s *Scheduler) invokeCallback(ctx context.Context, job railsjob.Job, firing time.Time, idempotencyKey string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &railserr.CallbackError{JobKey: job.Key, Cause: recoverToError(r)}
		} else if err != nil {
			err = &railserr.CallbackError{JobKey: job.Key, Cause: err}
		}
		if err != nil {
			s.cfg.Logger.Error("job callback failed", railslog.Fields{
				"job_key": job.Key, "firing_at": firing, "error": err.Error(),
			})
		}
	}()
	return job.Callback(ctx, firing, idempotencyKey)
}

func (s *Scheduler) logDispatch(ctx context.Context, jobKey string, firing time.Time, status railsaudit.Status) {
	if !s.cfg.EnableAudit || s.cfg.AuditBackend == nil {
		return
	}
	if err := s.cfg.AuditBackend.Log(ctx, jobKey, firing, s.cfg.NodeID, status); err != nil {
		railsmetrics.AuditLogFailuresTotal.WithLabelValues(jobKey).Inc()
		s.cfg.Logger.Warn("audit log failed, callback result is unaffected", railslog.Fields{
			"job_key": jobKey, "error": err.Error(),
		})
	}
}

// runRecovery replays firings that should have occurred during downtime,
// per spec.md §4.8: a jittered startup delay, a widened enumeration
// window, audit-filtered deduplication, then a best-effort cleanup.
func (s *Scheduler) runRecovery(ctx context.Context) {
	if s.cfg.RecoveryStartupJitter > 0 {
		jitter := time.Duration(rand.Int63n(int64(s.cfg.RecoveryStartupJitter)))
		select {
		case <-time.After(jitter):
		case <-ctx.Done():
			return
		}
	}

	now := s.clock.Now()
	start := now.Add(-s.cfg.RecoveryWindow)

	s.jobs.Each(func(job railsjob.Job) {
		firings, err := cronexpr.Enumerate(job.Expression, start, now, s.cfg.TimeZone)
		if err != nil {
			s.cfg.Logger.Warn("recovery skipping job with invalid expression", railslog.Fields{
				"job_key": job.Key, "error": err.Error(),
			})
			return
		}
		for _, firing := range firings {
			if s.cfg.EnableAudit && s.cfg.AuditBackend != nil {
				already, err := s.cfg.AuditBackend.Dispatched(ctx, job.Key, firing)
				if err == nil && already {
					railsmetrics.RecoveryReplayedTotal.WithLabelValues(job.Key, "skipped_already_audited").Inc()
					continue
				}
			}
			railsmetrics.RecoveryReplayedTotal.WithLabelValues(job.Key, "dispatched").Inc()
			s.dispatch(ctx, job, firing)
		}
	})

	if s.cfg.EnableAudit {
		if cleaner, ok := s.cfg.AuditBackend.(railsaudit.Cleaner); ok {
			if _, err := cleaner.Cleanup(ctx, s.cfg.RecoveryWindow); err != nil {
				s.cfg.Logger.Warn("recovery cleanup failed", railslog.Fields{"error": err.Error()})
			}
		}
	}
}

func recoverToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errRecovered{r}
}

type errRecovered struct{ v any }

func (e errRecovered) Error() string { return "panic: " + toString(e.v) }

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "non-string panic value"
}
