// Package domains holds the authoritative in-memory set of monitored targets.
//
// A single goroutine owns the targets and applies every mutation in order.
// After each mutation it publishes an immutable snapshot for readers and
// writes the full state through a storage.Gateway.
package domains

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/katieblackabee/upquack/internal/storage"
)

var (
	ErrInvalidURL   = errors.New("invalid url")
	ErrDuplicateURL = errors.New("url already monitored")
	ErrNotFound     = errors.New("target not found")
	ErrClosed       = errors.New("store closed")
)

// Ref identifies a target without carrying its state.
type Ref struct {
	ID  string
	URL string
}

type Store struct {
	gateway  storage.Gateway
	logger   *zap.Logger
	validate func(string) error
	now      func() time.Time

	saveAttempts   uint
	saveDelay      time.Duration
	resaveInterval time.Duration

	requests chan request
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// frozen copies; never mutated once published
	snapshot atomic.Pointer[[]*storage.Target]
	saveErr  atomic.Pointer[error]

	// owned by the run goroutine
	targets []*storage.Target
	byID    map[string]*storage.Target
	byURL   map[string]string
	dirty   bool
	frozen  map[string]*storage.Target
}

// request is run by the owning goroutine. apply returns the id of the
// target it changed, or "" when the store is unchanged.
type request struct {
	apply func() (string, error)
	reply chan error
}

type Option func(*Store)

// WithValidator replaces the URL validator used by Add.
func WithValidator(fn func(string) error) Option {
	return func(s *Store) {
		s.validate = fn
	}
}

// WithSaveRetry sets how often a failed save is attempted before the
// failure is reported, and the delay between attempts.
func WithSaveRetry(attempts uint, delay time.Duration) Option {
	return func(s *Store) {
		if attempts > 0 {
			s.saveAttempts = attempts
		}
		s.saveDelay = delay
	}
}

// WithResaveInterval sets how often unsaved state is retried while no
// mutations arrive.
func WithResaveInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.resaveInterval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open loads the persisted targets and starts the store. A load failure is
// returned as is; callers must not continue with an empty store.
func Open(ctx context.Context, gateway storage.Gateway, logger *zap.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		gateway:        gateway,
		logger:         logger,
		validate:       ValidateURL,
		now:            time.Now,
		saveAttempts:   3,
		saveDelay:      200 * time.Millisecond,
		resaveInterval: 30 * time.Second,
		requests:       make(chan request),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		byID:           make(map[string]*storage.Target),
		byURL:          make(map[string]string),
		frozen:         make(map[string]*storage.Target),
	}
	for _, opt := range opts {
		opt(s)
	}

	loaded, err := gateway.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading targets: %w", err)
	}
	for i := range loaded {
		t := loaded[i]
		s.targets = append(s.targets, &t)
		s.byID[t.ID] = &t
		s.byURL[t.URL] = t.ID
	}
	s.publish("")

	s.logger.Info("store_opened", zap.Int("targets", len(s.targets)))

	go s.run()
	return s, nil
}

func (s *Store) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.resaveInterval)
	defer ticker.Stop()

	for {
		select {
		case req := <-s.requests:
			changed, err := req.apply()
			if changed != "" {
				s.publish(changed)
				s.dirty = true
				s.persist()
			}
			req.reply <- err
		case <-ticker.C:
			if s.dirty {
				s.persist()
			}
		case <-s.stop:
			if s.dirty {
				s.persist()
			}
			return
		}
	}
}

// Close stops the store. Mutations issued afterwards return ErrClosed.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

func (s *Store) exec(apply func() (string, error)) error {
	req := request{apply: apply, reply: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return ErrClosed
	case <-s.stop:
		return ErrClosed
	}
	return <-req.reply
}

// Add starts monitoring url and returns the new target's id.
func (s *Store) Add(url string) (string, error) {
	if err := s.validate(url); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	id := uuid.NewString()
	err := s.exec(func() (string, error) {
		if _, exists := s.byURL[url]; exists {
			return "", fmt.Errorf("%w: %s", ErrDuplicateURL, url)
		}

		t := storage.NewTarget(id, url, s.now())
		s.targets = append(s.targets, t)
		s.byID[id] = t
		s.byURL[url] = id
		return id, nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("target_added", zap.String("target_id", id), zap.String("url", url))
	return id, nil
}

// Remove stops monitoring the target. Results of checks still in flight
// for it are dropped when they arrive.
func (s *Store) Remove(id string) error {
	var url string
	err := s.exec(func() (string, error) {
		t, ok := s.byID[id]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		url = t.URL

		for i, cur := range s.targets {
			if cur == t {
				s.targets = append(s.targets[:i], s.targets[i+1:]...)
				break
			}
		}
		delete(s.byID, id)
		delete(s.byURL, t.URL)
		return id, nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("target_removed", zap.String("target_id", id), zap.String("url", url))
	return nil
}

// RecordCheck applies the outcome of one check to the target. It returns
// ErrNotFound when the target has been removed in the meantime.
func (s *Store) RecordCheck(id string, rec storage.CheckRecord) error {
	return s.exec(func() (string, error) {
		t, ok := s.byID[id]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		rec.CheckedAt = rec.CheckedAt.UTC()
		if last, ok := t.History.Last(); ok && rec.CheckedAt.Before(last.CheckedAt) {
			rec.CheckedAt = last.CheckedAt
		}
		t.Apply(rec)
		return id, nil
	})
}

// Snapshot returns a copy of every target in insertion order. The caller
// owns the result.
func (s *Store) Snapshot() []storage.Target {
	cur := *s.snapshot.Load()
	out := make([]storage.Target, len(cur))
	for i := range cur {
		out[i] = cur[i].Clone()
	}
	return out
}

// Get returns a copy of a single target.
func (s *Store) Get(id string) (storage.Target, error) {
	for _, t := range *s.snapshot.Load() {
		if t.ID == id {
			return t.Clone(), nil
		}
	}
	return storage.Target{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// History returns the target's check records, oldest first.
func (s *Store) History(id string) ([]storage.CheckRecord, error) {
	for _, t := range *s.snapshot.Load() {
		if t.ID == id {
			return t.History.Records(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Targets lists ids and urls without copying history.
func (s *Store) Targets() []Ref {
	cur := *s.snapshot.Load()
	refs := make([]Ref, len(cur))
	for i, t := range cur {
		refs[i] = Ref{ID: t.ID, URL: t.URL}
	}
	return refs
}

// PersistErr reports the last failed save, or nil if state on disk is
// current.
func (s *Store) PersistErr() error {
	if p := s.saveErr.Load(); p != nil {
		return *p
	}
	return nil
}

// publish freezes the current targets for readers. Only the target named
// by changed is copied again; the others reuse their previous frozen copy.
func (s *Store) publish(changed string) {
	delete(s.frozen, changed)

	snap := make([]*storage.Target, len(s.targets))
	for i, t := range s.targets {
		f, ok := s.frozen[t.ID]
		if !ok {
			c := t.Clone()
			f = &c
			s.frozen[t.ID] = f
		}
		snap[i] = f
	}
	s.snapshot.Store(&snap)
}

func (s *Store) persist() {
	frozen := *s.snapshot.Load()
	state := make([]storage.Target, len(frozen))
	for i, f := range frozen {
		state[i] = *f
	}

	err := retry.Do(
		func() error {
			return s.gateway.Save(context.Background(), state)
		},
		retry.Attempts(s.saveAttempts),
		retry.Delay(s.saveDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			s.logger.Warn("store_save_retry", zap.Uint("attempt", attempt), zap.Error(err))
		}),
	)
	if err != nil {
		if !errors.Is(err, storage.ErrPersistenceWrite) {
			err = fmt.Errorf("%w: %v", storage.ErrPersistenceWrite, err)
		}
		s.saveErr.Store(&err)
		s.logger.Error("store_save_failed", zap.Int("targets", len(state)), zap.Error(err))
		return
	}

	if s.saveErr.Swap(nil) != nil {
		s.logger.Info("store_save_recovered", zap.Int("targets", len(state)))
	}
	s.dirty = false
}
