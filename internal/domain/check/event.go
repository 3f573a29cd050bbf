package check

import (
	"strings"
	"time"
)

// EventKind tags an entry of the check's event log.
type EventKind string

const (
	EventCashed        EventKind = "CASHED"
	EventReturned      EventKind = "RETURNED"
	EventBounced       EventKind = "BOUNCED"
	EventResubmitted   EventKind = "RESUBMITTED"
	EventCancelled     EventKind = "CANCELLED"
	EventRestored      EventKind = "RESTORED"
	EventLegal         EventKind = "LEGAL"
	EventLegalReturned EventKind = "LEGAL_RETURNED"
	EventSettled       EventKind = "SETTLED"
	EventUnsettled     EventKind = "UNSETTLED"
)

// eventStatus is the canonical status an event leaves behind. Settlement
// events carry no status.
var eventStatus = map[EventKind]Status{
	EventCashed:        StatusCashed,
	EventReturned:      StatusReturned,
	EventBounced:       StatusBounced,
	EventResubmitted:   StatusResubmitted,
	EventCancelled:     StatusCancelled,
	EventRestored:      StatusPending,
	EventLegal:         StatusLegal,
	EventLegalReturned: StatusPending,
}

// Event is one append-only entry in a check's history. Notes are rendered
// from events, never the other way round.
type Event struct {
	Kind         EventKind    `json:"kind"`
	ReturnReason ReturnReason `json:"return_reason,omitempty"`
	PaymentRef   string       `json:"payment_ref,omitempty"`
	Actor        string       `json:"actor"`
	At           time.Time    `json:"at"`
	Comment      string       `json:"comment,omitempty"`
}

// Status returns the status implied by the event, if any.
func (e Event) Status() (Status, bool) {
	s, ok := eventStatus[e.Kind]
	return s, ok
}

// LatestStatusEvent returns the status implied by the newest status-bearing event.
func LatestStatusEvent(events []Event) (Status, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if s, ok := events[i].Status(); ok {
			return s, true
		}
	}
	return "", false
}

// Render produces the single note line appended alongside the event.
func (e Event) Render() string {
	parts := []string{
		"[" + e.At.Format("2006-01-02 15:04") + "]",
		Marker(MarkerEvent, string(e.Kind)),
	}
	if e.Actor != "" {
		parts = append(parts, Marker("by", e.Actor))
	}
	if e.ReturnReason != "" {
		parts = append(parts, ReturnReasonMarker(e.ReturnReason))
	}

	switch e.Kind {
	case EventSettled:
		parts = append(parts, SettledMarker())
	case EventUnsettled:
		parts = append(parts, UnsettledMarker())
	case EventLegal:
		parts = append(parts, LegalMarker())
	}
	if e.PaymentRef != "" {
		parts = append(parts, Marker(MarkerPaymentRef, e.PaymentRef))
	}

	line := strings.Join(parts, " ")
	if s, ok := e.Status(); ok {
		line += " " + StatusLine(s)
	}
	if c := strings.TrimSpace(strings.ReplaceAll(e.Comment, "\n", " ")); c != "" {
		line += labelSeparator + c
	}
	return line
}
