package schedule

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"planline/internal/domain"
)

// monday is the anchor for allocation scenarios: 2026-01-05 09:00 UTC.
var monday = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func pendingTask(id string, hours float64, deadline *time.Time, priority int) domain.Task {
	return domain.Task{
		ID:             id,
		Name:           id,
		Priority:       priority,
		Status:         domain.StatusPending,
		EstimatedHours: hoursPtr(hours),
		Deadline:       deadline,
	}
}

func assertAllocations(t *testing.T, task domain.Task, want map[string]float64) {
	t.Helper()
	if len(task.DailyAllocations) != len(want) {
		t.Fatalf("expected allocations %v, got %v", want, task.DailyAllocations)
	}
	for day, hours := range want {
		if got := task.DailyAllocations[day]; math.Abs(got-hours) > hoursTolerance {
			t.Fatalf("day %s: expected %v hours, got %v (all: %v)", day, hours, got, task.DailyAllocations)
		}
	}
}

func TestNewUnknownAlgorithm(t *testing.T) {
	_, err := New("fastest", Options{})
	if err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
	if !strings.Contains(err.Error(), "greedy") {
		t.Fatalf("error should list valid algorithms, got %q", err)
	}
}

func TestNewIsCaseSensitive(t *testing.T) {
	if _, err := New("Greedy", Options{}); err == nil {
		t.Fatal("lookup must be case-sensitive")
	}
}

func TestNewDefaultsToGreedy(t *testing.T) {
	s, err := New("", Options{})
	if err != nil {
		t.Fatalf("default algorithm: %v", err)
	}
	if s.Name() != "greedy" {
		t.Fatalf("expected greedy default, got %s", s.Name())
	}
}

func TestListIsSortedAndComplete(t *testing.T) {
	infos := List()
	if len(infos) != 9 {
		t.Fatalf("expected 9 algorithms, got %d", len(infos))
	}
	for i := 1; i < len(infos); i++ {
		if infos[i-1].ID >= infos[i].ID {
			t.Fatalf("list not sorted at %d: %s >= %s", i, infos[i-1].ID, infos[i].ID)
		}
	}
}

func TestGreedyFrontLoads(t *testing.T) {
	led := NewLedger(monday, 6, nil)
	s, _ := New("greedy", Options{})
	out, err := s.Allocate(pendingTask("t1", 12, nil, 1), nil, led)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	assertAllocations(t, out, map[string]float64{"2026-01-05": 6, "2026-01-06": 6})
	if out.PlannedStart == nil || !out.PlannedStart.Equal(monday) {
		t.Fatalf("planned start should keep the run's clock time, got %v", out.PlannedStart)
	}
	wantEnd := time.Date(2026, 1, 6, 17, 0, 0, 0, time.UTC)
	if out.PlannedEnd == nil || !out.PlannedEnd.Equal(wantEnd) {
		t.Fatalf("expected planned end %v, got %v", wantEnd, out.PlannedEnd)
	}
}

func TestGreedySkipsWeekend(t *testing.T) {
	friday := time.Date(2026, 1, 9, 9, 0, 0, 0, time.UTC)
	led := NewLedger(friday, 6, nil)
	s, _ := New("greedy", Options{})
	out, err := s.Allocate(pendingTask("t1", 12, nil, 1), nil, led)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	assertAllocations(t, out, map[string]float64{"2026-01-09": 6, "2026-01-12": 6})
}

func TestGreedySkipsHolidays(t *testing.T) {
	led := NewLedger(monday, 6, NewHolidayList([]string{"2026-01-06"}))
	s, _ := New("greedy", Options{})
	out, err := s.Allocate(pendingTask("t1", 12, nil, 1), nil, led)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	assertAllocations(t, out, map[string]float64{"2026-01-05": 6, "2026-01-07": 6})
}

func TestGreedyFailsPastDeadlineAndRollsBack(t *testing.T) {
	led := NewLedger(monday, 6, nil)
	wednesday := date(2026, 1, 7)
	s, _ := New("greedy", Options{})
	// 30 hours cannot fit into the 18 hours of Mon..Wed.
	_, err := s.Allocate(pendingTask("big", 30, &wednesday, 1), nil, led)
	if !errors.Is(err, ErrPastDeadline) {
		t.Fatalf("expected ErrPastDeadline, got %v", err)
	}
	if !strings.Contains(err.Error(), "deadline") {
		t.Fatalf("failure reason should mention the deadline, got %q", err)
	}
	if len(led.Committed) != 0 {
		t.Fatalf("failed allocation must leave the ledger unchanged, got %v", led.Committed)
	}
}

func TestBackwardAllocatesJustInTime(t *testing.T) {
	led := NewLedger(monday, 6, nil)
	wednesday := date(2026, 1, 7)
	s, _ := New("backward", Options{})
	out, err := s.Allocate(pendingTask("jit", 8, &wednesday, 1), nil, led)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	assertAllocations(t, out, map[string]float64{"2026-01-07": 6, "2026-01-06": 2})
	if DayKey(*out.PlannedStart) != "2026-01-06" || DayKey(*out.PlannedEnd) != "2026-01-07" {
		t.Fatalf("unexpected span %v..%v", out.PlannedStart, out.PlannedEnd)
	}
}

func TestBackwardFailsWhenWindowTooSmall(t *testing.T) {
	led := NewLedger(monday, 6, nil)
	tuesday := date(2026, 1, 6)
	s, _ := New("backward", Options{})
	_, err := s.Allocate(pendingTask("late", 20, &tuesday, 1), nil, led)
	if !errors.Is(err, ErrPastDeadline) {
		t.Fatalf("expected ErrPastDeadline, got %v", err)
	}
	if len(led.Committed) != 0 {
		t.Fatalf("expected clean ledger, got %v", led.Committed)
	}
}

func TestBalancedSpreadsEvenly(t *testing.T) {
	led := NewLedger(monday, 6, nil)
	friday := date(2026, 1, 9)
	s, _ := New("balanced", Options{})
	out, err := s.Allocate(pendingTask("even", 10, &friday, 1), nil, led)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	assertAllocations(t, out, map[string]float64{
		"2026-01-05": 2, "2026-01-06": 2, "2026-01-07": 2, "2026-01-08": 2, "2026-01-09": 2,
	})
}

func TestBalancedConservesHours(t *testing.T) {
	led := NewLedger(monday, 6, nil)
	s, _ := New("balanced", Options{})
	out, err := s.Allocate(pendingTask("odd", 7.5, nil, 1), nil, led)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if diff := math.Abs(out.AllocatedHours() - 7.5); diff > hoursTolerance {
		t.Fatalf("allocated hours drifted by %v", diff)
	}
}

func TestRoundRobinInterleaves(t *testing.T) {
	led := NewLedger(monday, 6, nil)
	s, _ := New("round_robin", Options{})
	batch := s.(BatchStrategy)
	tasks := []domain.Task{
		pendingTask("a", 4, nil, 2),
		pendingTask("b", 4, nil, 1),
	}
	placed := batch.Run(tasks, nil, led)
	if len(placed) != 2 {
		t.Fatalf("expected both tasks placed, got %d (failures: %v)", len(placed), led.Failures)
	}
	byID := map[string]domain.Task{}
	for _, p := range placed {
		byID[p.ID] = p
		if diff := math.Abs(p.AllocatedHours() - 4); diff > hoursTolerance {
			t.Fatalf("task %s allocated %v hours", p.ID, p.AllocatedHours())
		}
	}
	// Both tasks get a slice of Monday before either finishes.
	if byID["a"].DailyAllocations["2026-01-05"] == 0 || byID["b"].DailyAllocations["2026-01-05"] == 0 {
		t.Fatalf("expected both tasks on Monday, got a=%v b=%v",
			byID["a"].DailyAllocations, byID["b"].DailyAllocations)
	}
	if got := led.Committed["2026-01-05"]; math.Abs(got-6) > hoursTolerance {
		t.Fatalf("Monday should be filled to capacity, got %v", got)
	}
}

func TestRoundRobinDropsPastDeadlineTasks(t *testing.T) {
	led := NewLedger(monday, 6, nil)
	s, _ := New("round_robin", Options{})
	batch := s.(BatchStrategy)
	sunday := date(2026, 1, 4)
	placed := batch.Run([]domain.Task{pendingTask("late", 4, &sunday, 1)}, nil, led)
	if len(placed) != 0 {
		t.Fatalf("expected no placement, got %d", len(placed))
	}
	if len(led.Failures) != 1 || !strings.Contains(led.Failures[0].Reason, "deadline") {
		t.Fatalf("expected deadline failure, got %v", led.Failures)
	}
	if len(led.Committed) != 0 {
		t.Fatalf("expected clean ledger, got %v", led.Committed)
	}
}

func TestSearchStrategiesAreSeedDeterministic(t *testing.T) {
	tasks := []domain.Task{
		pendingTask("a", 9, deadlinePtr(2026, 1, 9), 1),
		pendingTask("b", 6, deadlinePtr(2026, 1, 7), 3),
		pendingTask("c", 4, nil, 5),
		pendingTask("d", 8, deadlinePtr(2026, 1, 12), 2),
	}
	for _, name := range []string{"genetic", "monte_carlo"} {
		run := func() map[string]map[string]float64 {
			led := NewLedger(monday, 6, nil)
			s, err := New(name, Options{Seed: 42, Iterations: 50, Generations: 10, Population: 8})
			if err != nil {
				t.Fatalf("%s: %v", name, err)
			}
			placed := s.(BatchStrategy).Run(tasks, nil, led)
			out := map[string]map[string]float64{}
			for _, p := range placed {
				out[p.ID] = p.DailyAllocations
			}
			return out
		}
		first, second := run(), run()
		if len(first) != len(second) {
			t.Fatalf("%s: runs placed %d vs %d tasks", name, len(first), len(second))
		}
		for id, alloc := range first {
			for day, hours := range alloc {
				if got := second[id][day]; math.Abs(got-hours) > hoursTolerance {
					t.Fatalf("%s: task %s day %s differs: %v vs %v", name, id, day, hours, got)
				}
			}
		}
	}
}

func TestEvaluateOrderingRestoresLedger(t *testing.T) {
	led := NewLedger(monday, 6, nil)
	led.Commit(date(2026, 1, 5), 3)
	tasks := []domain.Task{pendingTask("a", 5, nil, 1), pendingTask("b", 5, nil, 1)}
	evaluateOrdering(tasks, nil, led)
	if len(led.Committed) != 1 || math.Abs(led.Committed["2026-01-05"]-3) > hoursTolerance {
		t.Fatalf("trial allocation leaked into ledger: %v", led.Committed)
	}
}

func TestGreedyRunsAreRepeatable(t *testing.T) {
	tasks := []domain.Task{
		pendingTask("a", 9, deadlinePtr(2026, 1, 9), 2),
		pendingTask("b", 6, deadlinePtr(2026, 1, 7), 3),
		pendingTask("c", 4, nil, 1),
	}
	run := func() map[string]domain.Task {
		led := NewLedger(monday, 6, nil)
		s, err := New("greedy", Options{})
		if err != nil {
			t.Fatal(err)
		}
		out := map[string]domain.Task{}
		for _, task := range s.Order(tasks, nil, led.now()) {
			placed, err := s.Allocate(task, nil, led)
			if err != nil {
				t.Fatalf("allocate %s: %v", task.ID, err)
			}
			out[placed.ID] = placed
		}
		return out
	}
	first, second := run(), run()
	for id, a := range first {
		b := second[id]
		if len(a.DailyAllocations) != len(b.DailyAllocations) {
			t.Fatalf("task %s: %v vs %v", id, a.DailyAllocations, b.DailyAllocations)
		}
		for day, hours := range a.DailyAllocations {
			if b.DailyAllocations[day] != hours {
				t.Fatalf("task %s day %s: %v vs %v", id, day, a.DailyAllocations, b.DailyAllocations)
			}
		}
		if !a.PlannedStart.Equal(*b.PlannedStart) || !a.PlannedEnd.Equal(*b.PlannedEnd) {
			t.Fatalf("task %s span differs: %v..%v vs %v..%v", id, a.PlannedStart, a.PlannedEnd, b.PlannedStart, b.PlannedEnd)
		}
	}
}

func TestStrategiesNeverCommitNonWorkdays(t *testing.T) {
	holidays := NewHolidayList([]string{"2026-01-06"})
	nextTuesday := date(2026, 1, 20)
	for _, name := range AlgorithmNames() {
		led := NewLedger(monday, 6, holidays)
		s, err := New(name, Options{Seed: 7})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		// 23 hours across a holiday and a weekend.
		tasks := []domain.Task{
			pendingTask("a", 14, &nextTuesday, 2),
			pendingTask("b", 9, &nextTuesday, 1),
		}
		var placed []domain.Task
		if batch, ok := s.(BatchStrategy); ok {
			placed = batch.Run(tasks, nil, led)
		} else {
			for _, task := range s.Order(tasks, nil, led.now()) {
				out, err := s.Allocate(task, nil, led)
				if err != nil {
					t.Fatalf("%s: allocate %s: %v", name, task.ID, err)
				}
				placed = append(placed, out)
			}
		}
		for day := range led.Committed {
			d, err := ParseDayKey(day)
			if err != nil {
				t.Fatalf("%s: bad day key %q: %v", name, day, err)
			}
			if !IsWorkday(d, holidays) {
				t.Fatalf("%s: committed hours on non-workday %s", name, day)
			}
		}
		for _, p := range placed {
			for day := range p.DailyAllocations {
				d, _ := ParseDayKey(day)
				if !IsWorkday(d, holidays) {
					t.Fatalf("%s: task %s allocated on non-workday %s", name, p.ID, day)
				}
			}
		}
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	for _, name := range AlgorithmNames() {
		led := NewLedger(monday, 6, nil)
		s, err := New(name, Options{Seed: 1})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		tasks := []domain.Task{
			pendingTask("a", 10, deadlinePtr(2026, 1, 9), 3),
			pendingTask("b", 7, deadlinePtr(2026, 1, 12), 1),
			pendingTask("c", 5, nil, 2),
		}
		if batch, ok := s.(BatchStrategy); ok {
			batch.Run(tasks, nil, led)
		} else {
			for _, task := range s.Order(tasks, nil, led.now()) {
				_, _ = s.Allocate(task, nil, led)
			}
		}
		for day, hours := range led.Committed {
			if hours > led.MaxHoursPerDay+hoursTolerance {
				t.Fatalf("%s: day %s committed %v hours above cap", name, day, hours)
			}
		}
	}
}
