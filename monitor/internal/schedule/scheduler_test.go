package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// WHAT: Add with a malformed cron expression returns ErrBadSchedule and
// leaves the source unscheduled.
// WHY: registration must fail synchronously so callers can surface the
// error instead of discovering a silent never-firing job.
func TestAddBadExpression(t *testing.T) {
	s := New(func(context.Context, string) {}, Config{}, nil)

	err := s.Add("src-1", "not a cron line")
	if !errors.Is(err, ErrBadSchedule) {
		t.Fatalf("Add: got %v, want ErrBadSchedule", err)
	}
	if s.Scheduled("src-1") {
		t.Fatal("source scheduled despite parse failure")
	}
}

// WHAT: a valid expression registers a job; Remove unregisters it; a failed
// re-Add keeps the existing job.
func TestAddRemove(t *testing.T) {
	s := New(func(context.Context, string) {}, Config{}, nil)

	if err := s.Add("src-1", "0 8 * * *"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !s.Scheduled("src-1") {
		t.Fatal("source not scheduled after Add")
	}

	if err := s.Add("src-1", "bogus"); !errors.Is(err, ErrBadSchedule) {
		t.Fatalf("re-Add: got %v, want ErrBadSchedule", err)
	}
	if !s.Scheduled("src-1") {
		t.Fatal("failed re-Add dropped the existing job")
	}

	s.Remove("src-1")
	if s.Scheduled("src-1") {
		t.Fatal("source still scheduled after Remove")
	}
}

// WHAT: while one run is in flight, further triggers for the same source are
// dropped, and a different source is unaffected.
// WHY: overlapping runs of one source would race on its snapshot chain;
// triggers must never queue behind a slow fetch.
func TestRunLock(t *testing.T) {
	var runs atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 8)

	s := New(func(_ context.Context, id string) {
		runs.Add(1)
		started <- struct{}{}
		if id == "slow" {
			<-release
		}
	}, Config{}, nil)
	s.Start(context.Background())
	defer s.Stop()

	s.RunNow("slow")
	<-started

	// Dropped: the slow run still holds the gate. Calling the trigger path
	// directly makes each attempt synchronous, so both have definitively
	// been refused before the gate is released below.
	s.trigger("slow", "manual")
	s.trigger("slow", "manual")

	// Independent gate: another source runs immediately.
	s.RunNow("other")
	<-started

	close(release)
	deadline := time.After(2 * time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("runs = %d, want 2", runs.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
	if got := runs.Load(); got != 2 {
		t.Fatalf("runs = %d, want 2 (overlapping triggers must be dropped)", got)
	}
}

// WHAT: after the gate drains, the next trigger runs again.
func TestTriggerAfterDrain(t *testing.T) {
	var runs atomic.Int32
	done := make(chan struct{}, 4)

	s := New(func(context.Context, string) {
		runs.Add(1)
		done <- struct{}{}
	}, Config{}, nil)
	s.Start(context.Background())
	defer s.Stop()

	s.RunNow("src-1")
	<-done
	s.RunNow("src-1")
	<-done

	if got := runs.Load(); got != 2 {
		t.Fatalf("runs = %d, want 2", got)
	}
}

// WHAT: triggers after Stop do not invoke the run function.
func TestStopCancelsRuns(t *testing.T) {
	var runs atomic.Int32
	s := New(func(context.Context, string) { runs.Add(1) }, Config{}, nil)
	s.Start(context.Background())
	s.Stop()

	s.RunNow("src-1")
	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got != 0 {
		t.Fatalf("runs = %d, want 0 after Stop", got)
	}
}
