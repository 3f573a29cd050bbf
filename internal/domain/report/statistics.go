package report

import (
	"time"

	"github.com/garage-erp/check-lifecycle/internal/domain/check"
	"github.com/shopspring/decimal"
)

// Summary is the overdue alert for one direction.
type Summary struct {
	OverdueCount  int                        `json:"overdue_count"`
	OverdueAmount map[string]decimal.Decimal `json:"overdue_amount"`
}

// Statistics splits overdue checks by direction.
type Statistics struct {
	Incoming Summary `json:"incoming"`
	Outgoing Summary `json:"outgoing"`
}

// OverdueSummary counts overdue checks of one direction using the same rule
// as the overdue bucket, without building the other buckets.
func OverdueSummary(checks []*check.Check, direction check.Direction, now time.Time) Summary {
	s := Summary{OverdueAmount: make(map[string]decimal.Decimal)}
	for _, c := range checks {
		if c.Direction != direction || BucketOf(c, now) != BucketOverdue {
			continue
		}
		s.OverdueCount++
		s.OverdueAmount[c.Currency] = s.OverdueAmount[c.Currency].Add(c.Amount)
	}
	return s
}

// Compute returns the overdue summaries for both directions.
func Compute(checks []*check.Check, now time.Time) Statistics {
	return Statistics{
		Incoming: OverdueSummary(checks, check.DirectionIncoming, now),
		Outgoing: OverdueSummary(checks, check.DirectionOutgoing, now),
	}
}
