package schedule

import (
	"errors"
	"math"
	"testing"
	"time"

	"planline/internal/domain"
)

func hoursPtr(v float64) *float64 { return &v }

func taskWithAllocations(id string, hours float64, alloc map[string]float64) domain.Task {
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	return domain.Task{
		ID:               id,
		Name:             id,
		Status:           domain.StatusPending,
		EstimatedHours:   hoursPtr(hours),
		PlannedStart:     &start,
		DailyAllocations: alloc,
	}
}

func TestLedgerSeedSkipsRescheduledAndParents(t *testing.T) {
	led := NewLedger(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), 6, nil)
	tasks := []domain.Task{
		taskWithAllocations("keep", 4, map[string]float64{"2026-01-05": 4}),
		taskWithAllocations("resched", 4, map[string]float64{"2026-01-05": 4}),
		taskWithAllocations("parent", 4, map[string]float64{"2026-01-06": 4}),
	}
	led.Seed(tasks, map[string]bool{"resched": true}, map[string]bool{"parent": true})
	if got := led.Committed["2026-01-05"]; got != 4 {
		t.Fatalf("expected 4 seeded hours on 2026-01-05, got %v", got)
	}
	if _, ok := led.Committed["2026-01-06"]; ok {
		t.Fatal("parent allocations must not be seeded")
	}
}

func TestLedgerSeedMarksOverload(t *testing.T) {
	led := NewLedger(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), 6, nil)
	inProgress := taskWithAllocations("busy", 8, map[string]float64{"2026-01-05": 8})
	inProgress.Status = domain.StatusInProgress
	led.Seed([]domain.Task{inProgress}, nil, nil)
	days := led.OverloadedDays()
	if len(days) != 1 || days[0] != "2026-01-05" {
		t.Fatalf("expected overload on 2026-01-05, got %v", days)
	}
}

func TestLedgerRollbackRestoresExactState(t *testing.T) {
	led := NewLedger(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), 6, nil)
	led.Commit(date(2026, 1, 5), 3)

	att := led.Begin()
	led.CommitAttempt(att, date(2026, 1, 5), 3)
	led.CommitAttempt(att, date(2026, 1, 6), 2)

	led.Rollback(att)
	if len(led.Committed) != 1 {
		t.Fatalf("expected untouched days removed, committed=%v", led.Committed)
	}
	if got := led.Committed["2026-01-05"]; got != 3 {
		t.Fatalf("expected exactly 3 hours remaining on 2026-01-05, got %v", got)
	}
}

func TestLedgerRollbackKeepsFractionalSeedExact(t *testing.T) {
	// 0.1 has no exact binary representation; subtracting the placed hours
	// back out would leave drift on the pre-committed day.
	led := NewLedger(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), 6, nil)
	led.Commit(date(2026, 1, 5), 0.1)
	before := led.Committed["2026-01-05"]

	s, err := New("greedy", Options{})
	if err != nil {
		t.Fatal(err)
	}
	big := pendingTask("big", 30, deadlinePtr(2026, 1, 7), 1)
	if _, err := s.Allocate(big, nil, led); !errors.Is(err, ErrPastDeadline) {
		t.Fatalf("expected ErrPastDeadline, got %v", err)
	}
	if got := led.Committed["2026-01-05"]; got != before {
		t.Fatalf("failed allocation must restore the day exactly: before=%.20f after=%.20f", before, got)
	}
	if len(led.Committed) != 1 {
		t.Fatalf("expected only the seeded day to remain, committed=%v", led.Committed)
	}
}

func TestLedgerWithdrawSubtractsAttemptHours(t *testing.T) {
	led := NewLedger(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), 6, nil)
	a := led.Begin()
	b := led.Begin()
	led.CommitAttempt(a, date(2026, 1, 5), 2)
	led.CommitAttempt(b, date(2026, 1, 5), 2)
	led.CommitAttempt(a, date(2026, 1, 6), 2)

	led.Withdraw(a)
	if got := led.Committed["2026-01-05"]; math.Abs(got-2) > 1e-9 {
		t.Fatalf("peer hours must survive a withdraw, got %v", got)
	}
	if _, ok := led.Committed["2026-01-06"]; ok {
		t.Fatal("withdrawn-only day must be removed")
	}
}

func TestLedgerAvailableHours(t *testing.T) {
	led := NewLedger(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), 6, nil)
	if got := led.AvailableHours(date(2026, 1, 5)); got != 6 {
		t.Fatalf("expected full capacity, got %v", got)
	}
	led.Commit(date(2026, 1, 5), 4)
	if got := led.AvailableHours(date(2026, 1, 5)); got != 2 {
		t.Fatalf("expected 2 remaining, got %v", got)
	}
	led.Commit(date(2026, 1, 5), 4)
	if got := led.AvailableHours(date(2026, 1, 5)); got != 0 {
		t.Fatalf("available hours must never be negative, got %v", got)
	}
}
