package check

import (
	"strings"

	"github.com/garage-erp/check-lifecycle/internal/domain/ledger"
	"github.com/garage-erp/check-lifecycle/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Settle links a returned or bounced check to the compensating payment that
// cleared it. Settling an already settled check is a no-op.
func Settle(c *Check, paymentRef string, tc TransitionContext) (*Outcome, error) {
	const op = "SETTLE"

	if !tc.Actor.IsOwner {
		return nil, rejected(KindUnauthorized, op, c.Token, "owner privilege required")
	}
	if c.IsSettled {
		return &Outcome{Check: c, NoOp: true}, nil
	}
	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return nil, &ValidationError{Field: "payment_ref", Message: "payment reference is required"}
	}
	if err := validateLength("payment_ref", paymentRef, MaxReferenceLen); err != nil {
		return nil, err
	}
	if c.IsLegal {
		return nil, rejected(KindAlreadyTerminal, op, c.Token, "check is under legal collection")
	}
	now := tc.now()
	if s := guardStatus(c, now); !s.IsReturned() {
		return nil, rejected(KindInvalidTransition, op, c.Token, "only returned or bounced checks can be settled, check is "+string(s))
	}
	if !c.HasCounterparty() {
		return nil, rejected(KindMissingCounterparty, op, c.Token, "counterparty is required for settlement")
	}

	next := c.Clone()
	next.IsSettled = true
	next.SettlementRef = paymentRef
	event := Event{
		Kind:       EventSettled,
		PaymentRef: paymentRef,
		Actor:      tc.Actor.ID,
		At:         now,
		Comment:    tc.Comment,
	}
	applyEvent(next, event)

	return &Outcome{
		Check:   next,
		Event:   &event,
		Intents: []*ledger.Intent{newIntent(next, shared.IntentSettlementLinked, decimal.Zero, event)},
	}, nil
}

// Unsettle reverses a settlement. The check's status is recomputed from its
// history, so it falls back to whatever it resolved to before settling.
func Unsettle(c *Check, tc TransitionContext) (*Outcome, error) {
	const op = "UNSETTLE"

	if !tc.Actor.IsOwner {
		return nil, rejected(KindUnauthorized, op, c.Token, "owner privilege required")
	}
	if !c.IsSettled {
		return &Outcome{Check: c, NoOp: true}, nil
	}

	next := c.Clone()
	next.IsSettled = false
	next.SettlementRef = ""
	event := Event{
		Kind:       EventUnsettled,
		PaymentRef: c.SettlementRef,
		Actor:      tc.Actor.ID,
		At:         tc.now(),
		Comment:    tc.Comment,
	}
	applyEvent(next, event)

	return &Outcome{
		Check:   next,
		Event:   &event,
		Intents: []*ledger.Intent{newIntent(next, shared.IntentSettlementReversed, decimal.Zero, event)},
	}, nil
}
