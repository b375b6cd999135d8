package job

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/querypilot/querypilot/internal/observability"
)

var (
	ErrNotFound = errors.New("job not found")
	ErrTerminal = errors.New("job already in a terminal state")
)

type record struct {
	job           Job
	stopRequested bool
}

// Store is the in-process job state store. All state lives in memory for the
// lifetime of the process; terminal records are swept after a retention
// window.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
	Clock   func() time.Time
}

func NewStore() *Store {
	return &Store{
		records: map[string]*record{},
		Clock:   time.Now,
	}
}

func (s *Store) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock().UTC()
}

// Create registers a new job and returns its snapshot. The identifier is a
// fresh UUID, never reused within the process.
func (s *Store) Create(kind Kind, initial Status) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	j := Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    initial,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.records[j.ID] = &record{job: j}
	observability.ObserveJobSubmitted(string(kind))
	return j
}

func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return cloneJob(rec.job), nil
}

// Transition moves a job to a non-terminal working status. Terminal records
// are final; a transition against one is rejected.
func (s *Store) Transition(id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if rec.job.Status.Terminal() {
		return ErrTerminal
	}
	rec.job.Status = status
	rec.job.UpdatedAt = s.now()
	return nil
}

// RequestStop marks a job for cooperative cancellation. The pipeline honors
// the mark at its next checkpoint; a job already terminal is left unchanged.
func (s *Store) RequestStop(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if rec.job.Status.Terminal() {
		return nil
	}
	rec.stopRequested = true
	return nil
}

// Checkpoint reports whether a stop was requested and, if so, transitions the
// job to stopped. Pipelines call this between stages, never mid-call.
func (s *Store) Checkpoint(id string) (stopped bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false, ErrNotFound
	}
	if rec.job.Status.Terminal() {
		return rec.job.Status == StatusStopped, nil
	}
	if !rec.stopRequested {
		return false, nil
	}
	s.finishLocked(rec, StatusStopped, nil, nil)
	return true, nil
}

func (s *Store) Finish(id string, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if rec.job.Status.Terminal() {
		return ErrTerminal
	}
	s.finishLocked(rec, StatusFinished, append(json.RawMessage(nil), result...), nil)
	return nil
}

func (s *Store) Fail(id, code, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if rec.job.Status.Terminal() {
		return ErrTerminal
	}
	s.finishLocked(rec, StatusFailed, nil, &Error{Code: code, Message: message})
	return nil
}

func (s *Store) finishLocked(rec *record, status Status, result json.RawMessage, jobErr *Error) {
	now := s.now()
	rec.job.Status = status
	rec.job.Result = result
	rec.job.Error = jobErr
	rec.job.UpdatedAt = now
	observability.ObserveJobTerminal(string(rec.job.Kind), string(status), now.Sub(rec.job.CreatedAt))
}

// Sweep removes terminal records whose last update is older than retain and
// returns how many were dropped.
func (s *Store) Sweep(retain time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-retain)
	removed := 0
	for id, rec := range s.records {
		if rec.job.Status.Terminal() && rec.job.UpdatedAt.Before(cutoff) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

// RunSweeper periodically sweeps terminal records until ctx is canceled.
func (s *Store) RunSweeper(ctx context.Context, interval, retain time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(retain); removed > 0 && logger != nil {
				logger.DebugContext(ctx, "swept finished jobs", slog.Int("removed", removed))
			}
		}
	}
}

func cloneJob(j Job) Job {
	clone := j
	clone.Result = append(json.RawMessage(nil), j.Result...)
	if j.Error != nil {
		errCopy := *j.Error
		clone.Error = &errCopy
	}
	return clone
}
