package access

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unikmhz/npui-sub001/pkg/lock"
	"github.com/unikmhz/npui-sub001/pkg/logger"
	"github.com/unikmhz/npui-sub001/pkg/metrics"
	"github.com/unikmhz/npui-sub001/pkg/network"
)

// ErrRunInProgress is returned when a sync run is already active
var ErrRunInProgress = errors.New("sync run already in progress")

// SyncerConfig holds the periodic sync settings
type SyncerConfig struct {
	Interval time.Duration
	Username string
	Password string
	LockKey  string
	LockTTL  time.Duration
	Updater  UpdaterConfig
}

// RunStatus describes one sync run
type RunStatus struct {
	RunID    string    `json:"run_id" yaml:"run_id"`
	Started  time.Time `json:"started" yaml:"started"`
	Finished time.Time `json:"finished,omitempty" yaml:"finished,omitempty"`
	Result   string    `json:"result" yaml:"result"` // running, ok, partial, error
	Error    string    `json:"error,omitempty" yaml:"error,omitempty"`
	Summary  Summary   `json:"summary" yaml:"summary"`
}

// Syncer periodically pushes the billing access state to the head-end
type Syncer struct {
	cfg     SyncerConfig
	client  *network.Client
	collab  Collaborator
	locker  lock.Locker
	log     *logger.Logger
	metrics *metrics.Collector
	events  EventSink
	history RunStore

	mu      sync.Mutex
	running bool
	current *RunStatus
	last    *RunStatus
}

// NewSyncer creates a syncer. A nil locker falls back to an in-process lock.
func NewSyncer(cfg SyncerConfig, client *network.Client, collab Collaborator, locker lock.Locker,
	log *logger.Logger, m *metrics.Collector, events EventSink) *Syncer {
	if log == nil {
		log = logger.Nop()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "ca-sync:headend"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &Syncer{
		cfg:     cfg,
		client:  client,
		collab:  collab,
		locker:  locker,
		log:     log.WithComponent("access.syncer"),
		metrics: m,
		events:  events,
	}
}

// SetHistory records every finished run in store
func (s *Syncer) SetHistory(store RunStore) {
	s.history = store
}

// Start runs a sync immediately and then every interval until ctx ends
func (s *Syncer) Start(ctx context.Context) {
	s.log.Info("Starting access sync", logger.Duration("interval", s.cfg.Interval))
	if _, err := s.Sync(ctx); err != nil {
		s.log.Error("Failed to sync access state on startup", logger.Error(err))
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Access syncer stopped")
			return
		case <-ticker.C:
			if _, err := s.Sync(ctx); err != nil {
				s.log.Error("Failed to sync access state", logger.Error(err))
			}
		}
	}
}

// Sync performs one run and waits for it
func (s *Syncer) Sync(ctx context.Context) (*RunStatus, error) {
	status, err := s.begin()
	if err != nil {
		return nil, err
	}
	err = s.run(ctx, status)
	return status, err
}

// Trigger starts a run in the background and returns its id
func (s *Syncer) Trigger(ctx context.Context) (string, error) {
	status, err := s.begin()
	if err != nil {
		return "", err
	}
	go func() {
		if err := s.run(ctx, status); err != nil {
			s.log.Error("Triggered sync failed", logger.String("run_id", status.RunID), logger.Error(err))
		}
	}()
	return status.RunID, nil
}

// Status returns the active run, if any, and the last finished run
func (s *Syncer) Status() (current, last *RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		c := *s.current
		current = &c
	}
	if s.last != nil {
		l := *s.last
		last = &l
	}
	return current, last
}

func (s *Syncer) begin() (*RunStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, ErrRunInProgress
	}
	s.running = true
	s.current = &RunStatus{RunID: uuid.NewString(), Started: time.Now(), Result: "running"}
	return &RunStatus{RunID: s.current.RunID, Started: s.current.Started, Result: "running"}, nil
}

func (s *Syncer) finish(status *RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.current = nil
	last := *status
	s.last = &last
}

func (s *Syncer) run(ctx context.Context, status *RunStatus) (err error) {
	log := s.log.With(logger.String("run_id", status.RunID))
	s.publish(Event{Type: EventSyncStarted, RunID: status.RunID})
	log.Info("Access sync started")

	defer func() {
		status.Finished = time.Now()
		switch {
		case err == nil:
			status.Result = "ok"
		case status.Summary.Updated > 0:
			status.Result = "partial"
		default:
			status.Result = "error"
		}
		if err != nil {
			status.Error = err.Error()
		}
		elapsed := status.Finished.Sub(status.Started)
		s.metrics.SyncFinished(status.Result, elapsed, status.Finished)
		sum := status.Summary
		s.publish(Event{Type: EventSyncFinished, RunID: status.RunID, Status: status.Result, Error: status.Error, Summary: &sum})
		log.Info("Access sync finished",
			logger.String("result", status.Result),
			logger.Int("entities", sum.Entities),
			logger.Int("updated", sum.Updated),
			logger.Int("failed", sum.Failed),
			logger.Int("cards", sum.Cards),
			logger.Duration("duration", elapsed))
		if s.history != nil {
			if herr := s.history.SaveRun(context.Background(), *status); herr != nil {
				log.Warn("Failed to record sync run", logger.Error(herr))
			}
		}
		s.finish(status)
	}()

	unlock, err := s.locker.Acquire(ctx, s.cfg.LockKey, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire head-end lock: %w", err)
	}
	defer func() {
		if uerr := unlock(context.Background()); uerr != nil {
			log.Warn("Failed to release head-end lock", logger.Error(uerr))
		}
	}()

	updater := NewUpdater(s.collab, s.client, s.cfg.Updater, s.log, s.metrics, s.events)
	updater.runID = status.RunID

	session := s.client.Session()
	return session.Do(ctx, func(*network.Session) error {
		if err := s.client.Authenticate(s.cfg.Username, s.cfg.Password); err != nil {
			return err
		}
		defer func() {
			if _, err := s.client.Deauthenticate(); err != nil {
				log.Warn("Logout failed", logger.Error(err))
			}
		}()

		sum, err := updater.UpdateAll(ctx)
		status.Summary = sum
		return err
	})
}

func (s *Syncer) publish(ev Event) {
	if s.events == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.events.Publish(ev)
}
