package job

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestCreateReturnsUniqueIdentifiers(t *testing.T) {
	store := NewStore()

	seen := map[string]struct{}{}
	for range 100 {
		j := store.Create(KindAsk, StatusUnderstanding)
		if _, dup := seen[j.ID]; dup {
			t.Fatalf("duplicate job id %q", j.ID)
		}
		seen[j.ID] = struct{}{}
	}
}

func TestGetUnknownIdentifierReturnsNotFound(t *testing.T) {
	store := NewStore()
	if _, err := store.Get("b3c1a1de-0000-0000-0000-000000000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestFinishSetsResultAndIsFinal(t *testing.T) {
	store := NewStore()
	j := store.Create(KindAsk, StatusUnderstanding)

	if err := store.Transition(j.ID, StatusGenerating); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if err := store.Finish(j.ID, json.RawMessage(`{"sql":"SELECT 1"}`)); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	got, err := store.Get(j.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusFinished {
		t.Fatalf("Status = %q", got.Status)
	}
	if string(got.Result) != `{"sql":"SELECT 1"}` {
		t.Fatalf("Result = %s", got.Result)
	}

	if err := store.Transition(j.ID, StatusGenerating); !errors.Is(err, ErrTerminal) {
		t.Fatalf("transition after finish err = %v", err)
	}
	if err := store.Fail(j.ID, "OTHERS", "late failure"); !errors.Is(err, ErrTerminal) {
		t.Fatalf("fail after finish err = %v", err)
	}
}

func TestStopIsHonoredAtCheckpoint(t *testing.T) {
	store := NewStore()
	j := store.Create(KindAsk, StatusUnderstanding)

	stopped, err := store.Checkpoint(j.ID)
	if err != nil {
		t.Fatalf("Checkpoint() error = %v", err)
	}
	if stopped {
		t.Fatal("checkpoint before stop request should not stop")
	}

	if err := store.RequestStop(j.ID); err != nil {
		t.Fatalf("RequestStop() error = %v", err)
	}

	got, _ := store.Get(j.ID)
	if got.Status != StatusUnderstanding {
		t.Fatalf("stop should be deferred to checkpoint, status = %q", got.Status)
	}

	stopped, err = store.Checkpoint(j.ID)
	if err != nil {
		t.Fatalf("Checkpoint() error = %v", err)
	}
	if !stopped {
		t.Fatal("checkpoint after stop request should stop")
	}

	got, _ = store.Get(j.ID)
	if got.Status != StatusStopped {
		t.Fatalf("Status = %q", got.Status)
	}
}

func TestStoppedJobNeverResumes(t *testing.T) {
	store := NewStore()
	j := store.Create(KindAsk, StatusUnderstanding)
	_ = store.RequestStop(j.ID)
	if _, err := store.Checkpoint(j.ID); err != nil {
		t.Fatalf("Checkpoint() error = %v", err)
	}

	if err := store.Transition(j.ID, StatusGenerating); !errors.Is(err, ErrTerminal) {
		t.Fatalf("transition after stop err = %v", err)
	}

	got, _ := store.Get(j.ID)
	if got.Status != StatusStopped {
		t.Fatalf("Status = %q", got.Status)
	}
}

func TestRequestStopOnTerminalJobIsNoop(t *testing.T) {
	store := NewStore()
	j := store.Create(KindAsk, StatusUnderstanding)
	if err := store.Finish(j.ID, nil); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	if err := store.RequestStop(j.ID); err != nil {
		t.Fatalf("RequestStop() error = %v", err)
	}
	got, _ := store.Get(j.ID)
	if got.Status != StatusFinished {
		t.Fatalf("Status = %q", got.Status)
	}
}

func TestFailRecordsErrorDetail(t *testing.T) {
	store := NewStore()
	j := store.Create(KindSemanticsPreparation, StatusIndexing)

	if err := store.Fail(j.ID, "LLM_ERROR", "rate limited"); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	got, _ := store.Get(j.ID)
	if got.Status != StatusFailed {
		t.Fatalf("Status = %q", got.Status)
	}
	if got.Error == nil || got.Error.Code != "LLM_ERROR" || got.Error.Message != "rate limited" {
		t.Fatalf("Error = %+v", got.Error)
	}
}

func TestSweepDropsOnlyStaleTerminalRecords(t *testing.T) {
	store := NewStore()
	current := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	store.Clock = func() time.Time { return current }

	finished := store.Create(KindAsk, StatusUnderstanding)
	_ = store.Finish(finished.ID, nil)
	running := store.Create(KindAsk, StatusUnderstanding)

	current = current.Add(time.Hour)
	fresh := store.Create(KindAsk, StatusUnderstanding)
	_ = store.Finish(fresh.ID, nil)

	if removed := store.Sweep(30 * time.Minute); removed != 1 {
		t.Fatalf("removed = %d", removed)
	}
	if _, err := store.Get(finished.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale terminal job should be gone, err = %v", err)
	}
	if _, err := store.Get(running.ID); err != nil {
		t.Fatalf("running job should survive sweep, err = %v", err)
	}
	if _, err := store.Get(fresh.ID); err != nil {
		t.Fatalf("fresh terminal job should survive sweep, err = %v", err)
	}
}
