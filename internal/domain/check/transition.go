package check

import (
	"time"

	"github.com/garage-erp/check-lifecycle/internal/domain/ledger"
	"github.com/garage-erp/check-lifecycle/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Action is the closed set of operations the state machine accepts.
type Action string

const (
	ActionCash            Action = "CASH"
	ActionReturn          Action = "RETURN"
	ActionBounce          Action = "BOUNCE"
	ActionResubmit        Action = "RESUBMIT"
	ActionCancel          Action = "CANCEL"
	ActionRestore         Action = "RESTORE"
	ActionMarkLegal       Action = "MARK_LEGAL"
	ActionReturnFromLegal Action = "RETURN_FROM_LEGAL"
)

type actionRule struct {
	target    Status
	from      []Status
	ownerOnly bool
	event     EventKind
}

// rules lists, per action, the resolved states it may start from. OVERDUE is
// folded into PENDING before lookup. RESUBMITTED never resolves as such, so a
// repeated resubmit is always evaluated against its allowance.
var rules = map[Action]actionRule{
	ActionCash:            {target: StatusCashed, from: []Status{StatusPending}, event: EventCashed},
	ActionReturn:          {target: StatusReturned, from: []Status{StatusPending}, event: EventReturned},
	ActionBounce:          {target: StatusBounced, from: []Status{StatusPending}, event: EventBounced},
	ActionResubmit:        {target: StatusResubmitted, from: []Status{StatusReturned, StatusBounced}, event: EventResubmitted},
	ActionCancel:          {target: StatusCancelled, from: []Status{StatusPending, StatusReturned, StatusBounced}, event: EventCancelled},
	ActionRestore:         {target: StatusPending, from: []Status{StatusCancelled}, ownerOnly: true, event: EventRestored},
	ActionMarkLegal:       {target: StatusLegal, from: []Status{StatusReturned, StatusBounced}, ownerOnly: true, event: EventLegal},
	ActionReturnFromLegal: {target: StatusPending, from: []Status{StatusLegal}, ownerOnly: true, event: EventLegalReturned},
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	_, ok := rules[a]
	return ok
}

// OwnerOnly reports whether only an owner may perform a.
func (a Action) OwnerOnly() bool {
	return rules[a].ownerOnly
}

// Actor is the authenticated user behind a mutating request.
type Actor struct {
	ID      string
	IsOwner bool
}

// TransitionContext carries everything a transition needs besides the check.
// FX rates must already be resolved; transitions never perform I/O.
type TransitionContext struct {
	Actor        Actor
	Now          time.Time
	ReturnReason ReturnReason
	Comment      string
	FXRate       *FXRate
}

func (tc TransitionContext) now() time.Time {
	if tc.Now.IsZero() {
		return time.Now()
	}
	return tc.Now
}

// Outcome is the result of a successful transition or settlement call. When
// NoOp is set, Check is the unchanged input and nothing must be persisted.
type Outcome struct {
	Check   *Check
	Event   *Event
	Intents []*ledger.Intent
	NoOp    bool
}

// Transition applies action to c. All guards run before anything is touched,
// so on error c is exactly as it was; on success c itself is never modified
// and the updated copy is returned in the outcome.
func Transition(c *Check, action Action, tc TransitionContext) (*Outcome, error) {
	rule, ok := rules[action]
	if !ok {
		return nil, &ValidationError{Field: "action", Message: "unknown action " + string(action)}
	}
	if tc.ReturnReason != "" && !tc.ReturnReason.Valid() {
		return nil, &ValidationError{Field: "return_reason", Message: "return reason must be BANK or PAYMENT_REFUND"}
	}
	now := tc.now()

	// Legal gate: only the return path leaves legal collection.
	if c.IsLegal {
		if action == ActionMarkLegal {
			return &Outcome{Check: c, NoOp: true}, nil
		}
		if action != ActionReturnFromLegal {
			return nil, rejected(KindAlreadyTerminal, action, c.Token, "check is under legal collection")
		}
	}

	if c.IsSettled {
		return nil, rejected(KindAlreadyTerminal, action, c.Token, "settled checks change only through unsettle")
	}

	current := guardStatus(c, now)
	if current == rule.target {
		return &Outcome{Check: c, NoOp: true}, nil
	}

	if rule.ownerOnly && !tc.Actor.IsOwner {
		return nil, rejected(KindUnauthorized, action, c.Token, "owner privilege required")
	}

	if current == StatusCashed || (current == StatusLegal && action != ActionReturnFromLegal) {
		return nil, rejected(KindAlreadyTerminal, action, c.Token, "check is "+string(current))
	}

	switch {
	case action == ActionResubmit && c.ResubmitAllowedCount <= 0:
		return nil, rejected(KindCountExhausted, action, c.Token, "no resubmissions left")
	case action == ActionReturnFromLegal && c.LegalReturnAllowedCount <= 0:
		return nil, rejected(KindCountExhausted, action, c.Token, "no returns from legal left")
	}

	if !allowedFrom(rule.from, current) {
		return nil, rejected(KindInvalidTransition, action, c.Token,
			"cannot "+string(action)+" a check that is "+string(current))
	}
	if action == ActionMarkLegal && !c.HasCounterparty() {
		return nil, rejected(KindMissingCounterparty, action, c.Token, "counterparty is required before legal escalation")
	}

	next := c.Clone()
	event := Event{
		Kind:    rule.event,
		Actor:   tc.Actor.ID,
		At:      now,
		Comment: tc.Comment,
	}

	switch action {
	case ActionCash:
		next.Status = StatusCashed
		if next.FXRateCash == nil && tc.FXRate != nil {
			r := *tc.FXRate
			next.FXRateCash = &r
		}
	case ActionReturn, ActionBounce:
		next.Status = rule.target
		event.ReturnReason = defaultReturnReason(action, c.Direction, tc.ReturnReason)
	case ActionResubmit:
		next.Status = StatusResubmitted
		next.ResubmitAllowedCount--
	case ActionCancel:
		next.Status = StatusCancelled
	case ActionRestore:
		next.Status = StatusPending
	case ActionMarkLegal:
		next.Status = StatusLegal
		next.IsLegal = true
	case ActionReturnFromLegal:
		next.Status = StatusPending
		next.IsLegal = false
		next.LegalReturnAllowedCount--
	}

	applyEvent(next, event)

	var intents []*ledger.Intent
	if intent := transitionIntent(c, next, action, current, event); intent != nil {
		intents = append(intents, intent)
	}

	return &Outcome{Check: next, Event: &event, Intents: intents}, nil
}

// ActionForTarget maps a requested status to the action that reaches it from
// the check's current resolved state.
func ActionForTarget(c *Check, target Status, now time.Time) (Action, error) {
	switch target {
	case StatusCashed:
		return ActionCash, nil
	case StatusReturned:
		return ActionReturn, nil
	case StatusBounced:
		return ActionBounce, nil
	case StatusResubmitted:
		return ActionResubmit, nil
	case StatusCancelled:
		return ActionCancel, nil
	case StatusLegal:
		return ActionMarkLegal, nil
	case StatusPending:
		switch s := guardStatus(c, now); {
		case s.IsReturned():
			return ActionResubmit, nil
		case s == StatusLegal:
			return ActionReturnFromLegal, nil
		}
		return ActionRestore, nil
	}
	return "", &ValidationError{Field: "status", Message: "status " + string(target) + " cannot be set directly"}
}

// guardStatus is the resolved status with the overdue display state folded
// back into PENDING. The legal flag outranks whatever the log says.
func guardStatus(c *Check, now time.Time) Status {
	if c.IsLegal {
		return StatusLegal
	}
	s := ResolveStatus(c, now)
	if s == StatusOverdue || s == StatusDueSoon {
		return StatusPending
	}
	return s
}

func allowedFrom(from []Status, s Status) bool {
	for _, f := range from {
		if f == s {
			return true
		}
	}
	return false
}

func defaultReturnReason(action Action, d Direction, explicit ReturnReason) ReturnReason {
	if explicit != "" {
		return explicit
	}
	if action == ActionReturn && d == DirectionOutgoing {
		return ReturnReasonPaymentRefund
	}
	return ReturnReasonBank
}

// applyEvent appends e to the log and its rendering to the notes, stamping
// the audit fields. Notes and status always change together.
func applyEvent(c *Check, e Event) {
	c.Events = append(c.Events, e)
	c.Notes = AppendMarker(c.Notes, e.Render())
	c.UpdatedAt = e.At
	c.UpdatedBy = e.Actor
	c.Version++
}

// covers reports whether a check in status s stands in for the counterparty's
// debt, either still awaiting its due date or already cleared.
func covers(s Status) bool {
	return s.IsActive() || s == StatusCashed
}

func directionSign(d Direction) decimal.Decimal {
	if d == DirectionOutgoing {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// coverageDelta is the counterparty balance change when coverage moves from
// before to after.
func coverageDelta(c *Check, before, after Status) decimal.Decimal {
	var diff int64
	if covers(before) {
		diff++
	}
	if covers(after) {
		diff--
	}
	return directionSign(c.Direction).Mul(c.Amount).Mul(decimal.NewFromInt(diff))
}

func transitionIntent(prev, next *Check, action Action, before Status, e Event) *ledger.Intent {
	delta := coverageDelta(prev, before, next.Status)

	var kind shared.IntentKind
	switch action {
	case ActionCash:
		kind = shared.IntentCheckCleared
	case ActionReturn, ActionBounce:
		kind = shared.IntentDebtReopened
	case ActionResubmit, ActionRestore, ActionReturnFromLegal:
		kind = shared.IntentDebtCovered
	case ActionCancel:
		if delta.IsZero() {
			return nil
		}
		kind = shared.IntentDebtReopened
	case ActionMarkLegal:
		kind = shared.IntentLegalEscalated
	default:
		return nil
	}
	return newIntent(next, kind, delta, e)
}

func newIntent(c *Check, kind shared.IntentKind, delta decimal.Decimal, e Event) *ledger.Intent {
	return &ledger.Intent{
		ID:         uuid.New(),
		Kind:       kind,
		CheckToken: c.Token,
		Direction:  string(c.Direction),
		EntityType: string(c.EntityType),
		EntityID:   c.EntityID,
		Amount:     c.Amount,
		Delta:      delta,
		Currency:   c.Currency,
		PaymentRef: e.PaymentRef,
		Actor:      e.Actor,
		OccurredAt: e.At,
	}
}
