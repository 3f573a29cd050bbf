package service

import (
	"time"

	"github.com/garage-erp/check-lifecycle/internal/domain/check"
	"github.com/garage-erp/check-lifecycle/internal/domain/report"
)

// CheckView is a check together with everything derived from it at read time.
// Nothing here is stored.
type CheckView struct {
	Check          *check.Check
	ResolvedStatus check.Status
	DisplayStatus  check.Status
	StatusLabel    string
	BadgeColor     string
	Bucket         report.Bucket
	MissingFields  []string
}

func newView(c *check.Check, now time.Time, dueSoon time.Duration) *CheckView {
	display := check.DisplayStatus(c, now, dueSoon)
	if c.IsLegal {
		display = check.StatusLegal
	}
	return &CheckView{
		Check:          c,
		ResolvedStatus: check.ResolveStatus(c, now),
		DisplayStatus:  display,
		StatusLabel:    display.Label(),
		BadgeColor:     display.BadgeColor(),
		Bucket:         report.BucketOf(c, now),
		MissingFields:  c.MissingFields(),
	}
}
