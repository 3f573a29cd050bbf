// Package report derives dashboard views from checks: the bucket
// categorization used by listing tabs and the overdue statistics shown as
// alerts. Both read checks through check.ResolveStatus only.
package report

import (
	"time"

	"github.com/garage-erp/check-lifecycle/internal/domain/check"
	"github.com/shopspring/decimal"
)

// Bucket is a report category. Every check lands in exactly one bucket
// besides BucketAll.
type Bucket string

const (
	BucketPending   Bucket = "pending"
	BucketOverdue   Bucket = "overdue"
	BucketCashed    Bucket = "cashed"
	BucketReturned  Bucket = "returned"
	BucketCancelled Bucket = "cancelled"
	BucketSettled   Bucket = "settled"
	BucketLegal     Bucket = "legal"
	BucketAll       Bucket = "all"
)

// Disjoint lists the buckets a check can be classified into.
var Disjoint = []Bucket{
	BucketPending, BucketOverdue, BucketCashed, BucketReturned,
	BucketCancelled, BucketSettled, BucketLegal,
}

// ParseBucket accepts any bucket name including "all".
func ParseBucket(s string) (Bucket, bool) {
	b := Bucket(s)
	if b == BucketAll {
		return b, true
	}
	for _, d := range Disjoint {
		if d == b {
			return b, true
		}
	}
	return "", false
}

// BucketOf classifies a single check at instant now.
func BucketOf(c *check.Check, now time.Time) Bucket {
	if c.IsLegal {
		return BucketLegal
	}
	if c.IsSettled {
		return BucketSettled
	}

	switch check.ResolveStatus(c, now) {
	case check.StatusOverdue:
		return BucketOverdue
	case check.StatusCashed:
		return BucketCashed
	case check.StatusReturned, check.StatusBounced:
		return BucketReturned
	case check.StatusCancelled:
		return BucketCancelled
	case check.StatusLegal:
		return BucketLegal
	default:
		return BucketPending
	}
}

// Aggregate is the count and per-currency total of a bucket.
type Aggregate struct {
	Count int                        `json:"count"`
	Sums  map[string]decimal.Decimal `json:"sums"`
}

func newAggregate() *Aggregate {
	return &Aggregate{Sums: make(map[string]decimal.Decimal)}
}

func (a *Aggregate) add(c *check.Check) {
	a.Count++
	a.Sums[c.Currency] = a.Sums[c.Currency].Add(c.Amount)
}

// Buckets holds an aggregate for every bucket, including empty ones.
type Buckets map[Bucket]*Aggregate

// Categorize partitions checks into buckets. Nothing is cached between calls.
func Categorize(checks []*check.Check, now time.Time) Buckets {
	b := make(Buckets, len(Disjoint)+1)
	for _, name := range Disjoint {
		b[name] = newAggregate()
	}
	b[BucketAll] = newAggregate()

	for _, c := range checks {
		b[BucketOf(c, now)].add(c)
		b[BucketAll].add(c)
	}
	return b
}
