package check

import (
	"fmt"
	"regexp"
	"strings"
)

// StatusLabelPrefix precedes the human-readable status on a note line.
const StatusLabelPrefix = "الحالة:"

// labelSeparator ends the status label when a line carries a trailing comment.
const labelSeparator = " | "

// Marker keys embedded as [key=value] in notes.
const (
	MarkerSettled      = "settled"
	MarkerReturnReason = "return_reason"
	MarkerLegal        = "legal"
	MarkerEvent        = "event"
	MarkerPaymentRef   = "payment_ref"
)

// ReturnReason records why a check came back.
type ReturnReason string

const (
	ReturnReasonBank          ReturnReason = "BANK"
	ReturnReasonPaymentRefund ReturnReason = "PAYMENT_REFUND"
)

// Valid reports whether r is a known reason.
func (r ReturnReason) Valid() bool {
	return r == ReturnReasonBank || r == ReturnReasonPaymentRefund
}

// labelPhrases maps phrases found after StatusLabelPrefix to a status. Order
// matters: the first phrase contained in the label wins. Legacy rows were
// written in Arabic and, for imported data, English.
var labelPhrases = []struct {
	phrase string
	status Status
}{
	{"أعيد تقديمه", StatusPending},
	{"إعادة تقديم", StatusPending},
	{"resubmitted", StatusPending},
	{"محول للقانونية", StatusCancelled},
	{"قانوني", StatusCancelled},
	{"legal", StatusCancelled},
	{"مرفوض", StatusBounced},
	{"bounced", StatusBounced},
	{"مرتجع", StatusReturned},
	{"returned", StatusReturned},
	{"تم الصرف", StatusCashed},
	{"مصروف", StatusCashed},
	{"cashed", StatusCashed},
	{"ملغي", StatusCancelled},
	{"ملغى", StatusCancelled},
	{"cancelled", StatusCancelled},
	{"canceled", StatusCancelled},
	{"قيد الانتظار", StatusPending},
	{"معلق", StatusPending},
	{"pending", StatusPending},
}

var markerPattern = regexp.MustCompile(`(?i)\[([a-z_]+)=([^\]]*)\]`)

// AppendMarker appends marker as a new line. Earlier lines are never touched.
func AppendMarker(notes, marker string) string {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		return notes
	}
	if strings.TrimSpace(notes) == "" {
		return marker
	}
	return strings.TrimRight(notes, "\n") + "\n" + marker
}

// HasMarker performs a case-insensitive scan for marker anywhere in notes.
func HasMarker(notes, marker string) bool {
	if marker == "" {
		return false
	}
	return strings.Contains(strings.ToLower(notes), strings.ToLower(marker))
}

// MarkerValue returns the value of the newest [key=value] marker in notes.
func MarkerValue(notes, key string) (string, bool) {
	key = strings.ToLower(key)
	matches := markerPattern.FindAllStringSubmatch(notes, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if strings.ToLower(matches[i][1]) == key {
			return strings.TrimSpace(matches[i][2]), true
		}
	}
	return "", false
}

// SettledMarked reports whether the newest settled marker says true.
func SettledMarked(notes string) bool {
	v, ok := MarkerValue(notes, MarkerSettled)
	return ok && strings.EqualFold(v, "true")
}

// LatestStatusLabel scans lines from newest to oldest and maps the first
// recognised label to a status.
func LatestStatusLabel(notes string) (Status, bool) {
	lines := strings.Split(notes, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		idx := strings.Index(lines[i], StatusLabelPrefix)
		if idx < 0 {
			continue
		}
		label := lines[i][idx+len(StatusLabelPrefix):]
		if cut := strings.Index(label, labelSeparator); cut >= 0 {
			label = label[:cut]
		}
		if s, ok := matchLabel(label); ok {
			return s, true
		}
	}
	return "", false
}

func matchLabel(label string) (Status, bool) {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return "", false
	}
	for _, p := range labelPhrases {
		if strings.Contains(label, p.phrase) {
			return p.status, true
		}
	}
	return "", false
}

// Marker builds a [key=value] marker.
func Marker(key, value string) string {
	return fmt.Sprintf("[%s=%s]", key, value)
}

// StatusLine renders the trailing human-readable label for s.
func StatusLine(s Status) string {
	return StatusLabelPrefix + " " + s.Label()
}

// SettledMarker sets the settlement flag. When notes hold several settled
// markers the newest wins.
func SettledMarker() string { return Marker(MarkerSettled, "true") }

// UnsettledMarker clears the settlement flag set by SettledMarker.
func UnsettledMarker() string { return Marker(MarkerSettled, "false") }

// ReturnReasonMarker records why the check came back from the bank.
func ReturnReasonMarker(r ReturnReason) string { return Marker(MarkerReturnReason, string(r)) }

// LegalMarker flags escalation to legal collection.
func LegalMarker() string { return Marker(MarkerLegal, "true") }

// AdoptLegacyNotes settles c from its notes when the row predates the event
// log: no settlement event exists, the flag is clear, and the newest settled
// marker says true. The marker's payment reference is kept when present.
func (c *Check) AdoptLegacyNotes() {
	if c.IsSettled || !HasMarker(c.Notes, "["+MarkerSettled+"=") {
		return
	}
	for _, e := range c.Events {
		if e.Kind == EventSettled || e.Kind == EventUnsettled {
			return
		}
	}
	if !SettledMarked(c.Notes) {
		return
	}
	c.IsSettled = true
	if ref, ok := MarkerValue(c.Notes, MarkerPaymentRef); ok && c.SettlementRef == "" {
		c.SettlementRef = ref
	}
}
