package checker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/katieblackabee/upquack/internal/domains"
	"github.com/katieblackabee/upquack/internal/storage"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultConcurrency = 32
)

// TargetStore is the part of the domain store the scheduler needs.
type TargetStore interface {
	Targets() []domains.Ref
	RecordCheck(id string, rec storage.CheckRecord) error
}

type Prober interface {
	Probe(ctx context.Context, url string) storage.CheckRecord
}

type SchedulerConfig struct {
	Interval time.Duration
	// Concurrency caps the number of probes in flight across all ticks.
	Concurrency int
	// Timeout bounds a single probe once it holds a slot.
	Timeout time.Duration
}

// Scheduler probes every target once per interval. Each tick starts one
// goroutine per target and returns without waiting for them, so a slow
// target never delays the next tick or the other targets. A target whose
// previous probe has not returned yet is skipped for that tick.
type Scheduler struct {
	store  TargetStore
	prober Prober
	logger *zap.Logger
	config SchedulerConfig

	sem     *semaphore.Weighted
	trigger chan struct{}

	mu       sync.Mutex
	inFlight map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewScheduler(store TargetStore, prober Prober, logger *zap.Logger, config SchedulerConfig) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Concurrency < 1 {
		config.Concurrency = DefaultConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:    store,
		prober:   prober,
		logger:   logger,
		config:   config,
		sem:      semaphore.NewWeighted(int64(config.Concurrency)),
		trigger:  make(chan struct{}, 1),
		inFlight: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs the first tick immediately and then one per interval.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.loop()

		s.logger.Info("scheduler_started",
			zap.Duration("interval", s.config.Interval),
			zap.Int("concurrency", s.config.Concurrency),
		)
	})
}

// Stop cancels in-flight probes and waits for them to return. Results that
// arrive after Stop was called are discarded.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.logger.Info("scheduler_stopped")
	})
}

// Trigger asks for an extra tick as soon as possible. Triggers that arrive
// while one is already pending are merged.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.tick()
	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.trigger:
			s.logger.Debug("scheduler_triggered")
			s.tick()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) tick() {
	if s.ctx.Err() != nil {
		return
	}

	refs := s.store.Targets()
	started := 0
	for _, ref := range refs {
		if !s.claim(ref.ID) {
			s.logger.Debug("check_skipped", zap.String("target_id", ref.ID), zap.String("url", ref.URL))
			continue
		}
		started++
		s.wg.Add(1)
		go s.check(ref)
	}
	s.logger.Debug("scheduler_tick", zap.Int("targets", len(refs)), zap.Int("started", started))
}

// claim marks id as in flight. It returns false if it already was.
func (s *Scheduler) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

// InFlight returns the number of targets with a probe running or waiting
// for a slot.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

func (s *Scheduler) check(ref domains.Ref) {
	defer s.wg.Done()

	rec, ok := s.probe(ref)
	// released before recording so a tick that sees the result also sees
	// the target as free
	s.release(ref.ID)
	if !ok {
		return
	}
	if s.ctx.Err() != nil {
		s.logger.Debug("check_dropped", zap.String("target_id", ref.ID), zap.String("url", ref.URL))
		return
	}

	err := s.store.RecordCheck(ref.ID, rec)
	switch {
	case errors.Is(err, domains.ErrNotFound):
		s.logger.Debug("check_discarded", zap.String("target_id", ref.ID), zap.String("url", ref.URL))
		return
	case err != nil:
		s.logger.Warn("check_record_failed", zap.String("target_id", ref.ID), zap.Error(err))
		return
	}

	s.logCompleted(ref, rec)
}

func (s *Scheduler) probe(ref domains.Ref) (storage.CheckRecord, bool) {
	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		return storage.CheckRecord{}, false
	}
	defer s.sem.Release(1)

	ctx, cancel := context.WithTimeout(s.ctx, s.config.Timeout)
	defer cancel()
	return s.prober.Probe(ctx, ref.URL), true
}

func (s *Scheduler) logCompleted(ref domains.Ref, rec storage.CheckRecord) {
	fields := []zap.Field{
		zap.String("target_id", ref.ID),
		zap.String("url", ref.URL),
		zap.Stringer("status", rec.Status),
	}
	if rec.HTTPCode != nil {
		fields = append(fields, zap.Int("http_code", *rec.HTTPCode))
	}
	if rec.LatencyMs != nil {
		fields = append(fields, zap.Int64("latency_ms", *rec.LatencyMs))
	}
	if rec.Error != nil {
		fields = append(fields, zap.String("error", *rec.Error))
	}
	s.logger.Debug("check_completed", fields...)
}
