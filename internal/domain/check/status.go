package check

import "time"

// Status is the canonical status stored on a check. DUE_SOON and OVERDUE are
// display states derived from the due date and are never persisted.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusDueSoon     Status = "DUE_SOON"
	StatusOverdue     Status = "OVERDUE"
	StatusCashed      Status = "CASHED"
	StatusReturned    Status = "RETURNED"
	StatusBounced     Status = "BOUNCED"
	StatusResubmitted Status = "RESUBMITTED"
	StatusCancelled   Status = "CANCELLED"
	StatusLegal       Status = "LEGAL"
)

// ParseStatus accepts canonical status codes only.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusCashed, StatusReturned, StatusBounced,
		StatusResubmitted, StatusCancelled, StatusLegal:
		return st, true
	}
	return "", false
}

// IsReturned groups the two "came back from the bank" statuses.
func (s Status) IsReturned() bool {
	return s == StatusReturned || s == StatusBounced
}

// IsActive reports whether the check is still awaiting its due date.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusResubmitted || s == StatusOverdue || s == StatusDueSoon
}

// ResolveStatus computes the effective status of c at instant now. It reads
// only Status, Events, Notes and DueDate, so the categorizer and the
// transition guard always agree.
func ResolveStatus(c *Check, now time.Time) Status {
	status := c.Status
	if s, ok := LatestStatusEvent(c.Events); ok {
		status = s
	} else if s, ok := LatestStatusLabel(c.Notes); ok {
		status = s
	}

	if status == StatusResubmitted {
		status = StatusPending
	}

	if status == StatusPending && isPastDue(c.DueDate, now) {
		return StatusOverdue
	}
	return status
}

// DisplayStatus is ResolveStatus plus the DUE_SOON presentation state for
// pending checks falling due within window.
func DisplayStatus(c *Check, now time.Time, window time.Duration) Status {
	status := ResolveStatus(c, now)
	if status != StatusPending || window <= 0 {
		return status
	}
	if !truncateDay(c.DueDate).After(truncateDay(now).Add(window)) {
		return StatusDueSoon
	}
	return status
}

// isPastDue compares calendar dates: a check due today is not overdue. Neither
// side is converted into the other's zone.
func isPastDue(due, now time.Time) bool {
	if due.IsZero() {
		return false
	}
	return truncateDay(due).Before(truncateDay(now))
}

// statusLabels are the Arabic labels rendered into notes and views.
var statusLabels = map[Status]string{
	StatusPending:     "قيد الانتظار",
	StatusDueSoon:     "مستحق قريباً",
	StatusOverdue:     "متأخر",
	StatusCashed:      "تم الصرف",
	StatusReturned:    "مرتجع",
	StatusBounced:     "مرفوض من البنك",
	StatusResubmitted: "أعيد تقديمه",
	StatusCancelled:   "ملغي",
	StatusLegal:       "محول للقانونية",
}

// Label returns the operator-facing Arabic label.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

var badgeColors = map[Status]string{
	StatusPending:   "info",
	StatusDueSoon:   "warning",
	StatusOverdue:   "danger",
	StatusCashed:    "success",
	StatusReturned:  "warning",
	StatusBounced:   "danger",
	StatusCancelled: "secondary",
	StatusLegal:     "dark",
}

// BadgeColor is a presentation hint for the status chip.
func (s Status) BadgeColor() string {
	if c, ok := badgeColors[s]; ok {
		return c
	}
	return "light"
}
