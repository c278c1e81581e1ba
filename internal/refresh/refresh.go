// Package refresh drives the periodic fetch-and-reconcile cycle.
//
// Timers are only armed inside a bounded lookahead window, so tasks due
// further out rely on this loop re-running reconcile until their fire time
// scrolls into the window.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"duebell/internal/task"
	"duebell/pkg/logx"
)

// Config controls the refresh service.
type Config struct {
	Enabled bool
	// Schedule is a cron spec or "@every" interval, e.g. "@every 1m".
	Schedule string
	// FetchTimeout bounds one backend fetch.
	FetchTimeout time.Duration
}

// Source yields the current task snapshot list.
type Source interface {
	Fetch(ctx context.Context) ([]task.Snapshot, error)
}

// Reconciler consumes snapshot lists; in production this is the reminder
// facade.
type Reconciler interface {
	Reconcile(snaps []task.Snapshot)
}

type Service struct {
	cfg    Config
	log    logx.Logger
	src    Source
	rec    Reconciler
	parser cron.Parser

	mu        sync.Mutex
	c         *cron.Cron
	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, src Source, rec Reconciler, log logx.Logger) *Service {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		src: src,
		rec: rec,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("refresh disabled")
		return nil
	}
	if _, err := s.parser.Parse(s.cfg.Schedule); err != nil {
		return fmt.Errorf("refresh.schedule: invalid %q: %w", s.cfg.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	c := cron.New(cron.WithParser(s.parser))
	if _, err := c.AddFunc(s.cfg.Schedule, func() { s.runOnce() }); err != nil {
		s.runCancel()
		s.runCtx, s.runCancel = nil, nil
		return err
	}
	s.c = c
	c.Start()

	// First refresh immediately: alerts should be armed at startup, not
	// one tick later.
	go s.runOnce()

	s.log.Info("refresh started", logx.String("schedule", s.cfg.Schedule))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCtx, s.runCancel = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
}

// runOnce fetches the task list and reconciles. A fetch failure keeps the
// previously armed set: stale timers beat no timers, and deletions are
// picked up on the next successful fetch.
func (s *Service) runOnce() {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	snaps, err := s.src.Fetch(fctx)
	if err != nil {
		s.log.Warn("task fetch failed; keeping previous schedule", logx.Err(err))
		return
	}
	s.rec.Reconcile(snaps)
	s.log.Debug("reconciled",
		logx.Int("tasks", len(snaps)),
		logx.Duration("took", time.Since(start)))
}
