package schedule

import (
	"time"

	"planline/internal/domain"
)

// EffectiveDeadline returns the task's own deadline tightened by the earliest
// deadline among its ancestors, or nil when neither exists. byID indexes every
// known task; a broken or cyclic parent chain stops the climb.
func EffectiveDeadline(t domain.Task, byID map[string]domain.Task) *time.Time {
	deadline := t.Deadline
	seen := map[string]bool{t.ID: true}
	cur := t.ParentID
	for cur != nil {
		parent, ok := byID[*cur]
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		if parent.Deadline != nil && (deadline == nil || parent.Deadline.Before(*deadline)) {
			d := *parent.Deadline
			deadline = &d
		}
		cur = parent.ParentID
	}
	return deadline
}

// daysUntil returns whole days from now until the deadline, negative when past.
func daysUntil(now time.Time, deadline time.Time) int {
	return int(StartOfDay(deadline).Sub(StartOfDay(now)).Hours() / 24)
}
