// Package syncer replays the local queue against the server of record and
// decides when to do so.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"actas-cli/internal/connectivity"
	"actas-cli/internal/observability"
	"actas-cli/internal/remote"
	"actas-cli/internal/store"
)

var ErrOffline = errors.New("offline")

type OfflineError struct {
	Pending int
}

func (e OfflineError) Error() string {
	return "offline: cannot reach the server; changes stay queued"
}

func (e OfflineError) Is(target error) bool { return target == ErrOffline }

type Config struct {
	// Interval of the pending-count ticker. A tick flushes only when online,
	// something is pending and the backoff has elapsed.
	Interval       time.Duration
	RequestTimeout time.Duration
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	// Entries at or above MaxAttempts are reported as stalled. They are never dropped.
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{
		Interval:       4 * time.Second,
		RequestTimeout: 10 * time.Second,
		BaseBackoff:    4 * time.Second,
		MaxBackoff:     time.Minute,
		MaxAttempts:    5,
	}
}

type Coordinator struct {
	repo    *store.Repository
	queue   *store.Queue
	remote  remote.Service
	probe   connectivity.Probe
	clock   connectivity.Clock
	cfg     Config
	log     *slog.Logger
	metrics *observability.Metrics

	group singleflight.Group
	kick  chan struct{}

	mu          sync.Mutex
	failures    int
	nextAttempt time.Time
	lastReport  *Report
	lastError   string
	lastFlushAt time.Time
}

type Options struct {
	Clock   connectivity.Clock
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

func New(repo *store.Repository, queue *store.Queue, svc remote.Service, probe connectivity.Probe, cfg Config, opt Options) *Coordinator {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = cfg.Interval
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if opt.Clock == nil {
		opt.Clock = connectivity.SystemClock{}
	}
	if opt.Logger == nil {
		opt.Logger = observability.Discard()
	}
	return &Coordinator{
		repo:    repo,
		queue:   queue,
		remote:  svc,
		probe:   probe,
		clock:   opt.Clock,
		cfg:     cfg,
		log:     opt.Logger,
		metrics: opt.Metrics,
		kick:    make(chan struct{}, 1),
	}
}

// finish records the outcome of a flush and moves the backoff window.
func (c *Coordinator) finish(rep Report, err error, start time.Time) {
	c.metrics.FlushDone(time.Since(start))

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	r := rep
	c.lastReport = &r
	c.lastFlushAt = now
	c.lastError = rep.LastError

	if rep.Failed > 0 || (err != nil && !errors.Is(err, context.Canceled)) {
		c.failures++
		c.nextAttempt = now.Add(c.backoff(c.failures))
	} else {
		c.failures = 0
		c.nextAttempt = time.Time{}
	}
	c.log.Info("flush finished",
		slog.Int("processed", rep.Processed),
		slog.Int("remaining", rep.Remaining),
		slog.Int("conflicts", rep.Conflicts),
		slog.Int("failed", rep.Failed),
		slog.Duration("duration", time.Since(start)),
	)
}

// backoff doubles BaseBackoff per consecutive failed run, capped at MaxBackoff.
func (c *Coordinator) backoff(failures int) time.Duration {
	d := c.cfg.BaseBackoff
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= c.cfg.MaxBackoff {
			return c.cfg.MaxBackoff
		}
	}
	return d
}

// SyncNow is the manual trigger. It ignores the backoff window but not connectivity.
func (c *Coordinator) SyncNow(ctx context.Context) (Report, error) {
	if !c.probe.Online() {
		n, _ := c.queue.Len(ctx)
		return Report{Remaining: n}, OfflineError{Pending: n}
	}
	return c.Flush(ctx)
}

// Run drives the automatic triggers until ctx is done: the ticker and
// transitions to online. Nothing is sent while offline.
func (c *Coordinator) Run(ctx context.Context) error {
	unsubscribe := c.probe.Subscribe(func(online bool) {
		if !online {
			return
		}
		select {
		case c.kick <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	t := time.NewTicker(c.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.kick:
			c.flushIfOnline(ctx, true)
		case <-t.C:
			c.flushIfOnline(ctx, false)
		}
	}
}

// Tick runs one ticker step: refresh the pending gauge and flush when due.
func (c *Coordinator) Tick(ctx context.Context) {
	c.flushIfOnline(ctx, false)
}

func (c *Coordinator) flushIfOnline(ctx context.Context, immediate bool) {
	st, err := c.Status(ctx)
	if err != nil {
		c.log.Error("queue status", slog.String("error", err.Error()))
		return
	}
	if !st.Online || st.Pending == 0 {
		return
	}
	if !immediate && !st.NextAttemptAt.IsZero() && c.clock.Now().Before(st.NextAttemptAt) {
		return
	}
	if _, err := c.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("flush failed", slog.String("error", err.Error()))
	}
}

type Status struct {
	Pending       int       `json:"pending"`
	Stalled       int       `json:"stalled"`
	Corrupted     []string  `json:"corrupted,omitempty"`
	Conflicts     int       `json:"conflicts"`
	Online        bool      `json:"online"`
	LastReport    *Report   `json:"lastReport,omitempty"`
	LastError     string    `json:"lastError,omitempty"`
	LastFlushAt   time.Time `json:"lastFlushAt,omitempty"`
	NextAttemptAt time.Time `json:"nextAttemptAt,omitempty"`
}

func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	entries, bad, err := c.queue.Inspect(ctx)
	if err != nil {
		return Status{}, err
	}
	conflicts, err := c.repo.Conflicts(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		Pending:   len(entries) + len(bad),
		Conflicts: len(conflicts),
		Online:    c.probe.Online(),
	}
	for _, e := range entries {
		if e.Attempts >= c.cfg.MaxAttempts {
			st.Stalled++
		}
	}
	for _, b := range bad {
		st.Corrupted = append(st.Corrupted, b.Key)
	}
	c.metrics.SetQueue(st.Pending, st.Stalled)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastReport != nil {
		r := *c.lastReport
		st.LastReport = &r
	}
	st.LastError = c.lastError
	st.LastFlushAt = c.lastFlushAt
	st.NextAttemptAt = c.nextAttempt
	return st, nil
}
