package check

import (
	"errors"
	"fmt"
)

// ErrCheckNotFound indicates an unknown token
type ErrCheckNotFound struct {
	Token string
}

func (e ErrCheckNotFound) Error() string {
	return "check not found: " + e.Token
}

// Is implements the errors.Is interface for ErrCheckNotFound
func (e ErrCheckNotFound) Is(target error) bool {
	t, ok := target.(ErrCheckNotFound)
	if !ok {
		return false
	}
	// An empty target token matches any ErrCheckNotFound
	return t.Token == "" || t.Token == e.Token
}

// ErrConcurrentModification indicates a lost optimistic-lock race. Callers retry
// the whole read-modify-write.
type ErrConcurrentModification struct {
	Token string
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for check: " + e.Token
}

// Is implements the errors.Is interface for ErrConcurrentModification
func (e ErrConcurrentModification) Is(target error) bool {
	t, ok := target.(ErrConcurrentModification)
	if !ok {
		return false
	}
	return t.Token == "" || t.Token == e.Token
}

// ValidationError rejects input before anything is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// TransitionErrorKind classifies why a guarded operation was refused.
type TransitionErrorKind string

const (
	KindAlreadyTerminal     TransitionErrorKind = "ALREADY_TERMINAL"
	KindCountExhausted      TransitionErrorKind = "COUNT_EXHAUSTED"
	KindUnauthorized        TransitionErrorKind = "UNAUTHORIZED"
	KindInvalidTransition   TransitionErrorKind = "INVALID_TRANSITION"
	KindMissingCounterparty TransitionErrorKind = "MISSING_COUNTERPARTY"
)

// Sentinels for errors.Is matching on the kind alone.
var (
	ErrAlreadyTerminal     = &TransitionError{Kind: KindAlreadyTerminal}
	ErrCountExhausted      = &TransitionError{Kind: KindCountExhausted}
	ErrUnauthorized        = &TransitionError{Kind: KindUnauthorized}
	ErrInvalidTransition   = &TransitionError{Kind: KindInvalidTransition}
	ErrMissingCounterparty = &TransitionError{Kind: KindMissingCounterparty}
)

var kindLabels = map[TransitionErrorKind]string{
	KindAlreadyTerminal:     "الشيك في حالة نهائية ولا يقبل أي تغيير",
	KindCountExhausted:      "تم استنفاد عدد المحاولات المسموح بها",
	KindUnauthorized:        "هذه العملية متاحة للمالك فقط",
	KindInvalidTransition:   "لا يمكن تنفيذ هذا الإجراء من الحالة الحالية",
	KindMissingCounterparty: "يجب تحديد الجهة المرتبطة بالشيك أولاً",
}

// TransitionError is returned when a guard rejects an action. The check is
// left untouched whenever one is returned.
type TransitionError struct {
	Kind    TransitionErrorKind
	Action  Action
	Token   string
	Message string
}

func (e *TransitionError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Action == "" {
		return fmt.Sprintf("transition rejected (%s): %s", e.Kind, msg)
	}
	return fmt.Sprintf("transition %s rejected for check %s (%s): %s", e.Action, e.Token, e.Kind, msg)
}

// Is matches any TransitionError of the same kind
func (e *TransitionError) Is(target error) bool {
	t, ok := target.(*TransitionError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Label is the human-readable text shown to operators.
func (e *TransitionError) Label() string {
	if l, ok := kindLabels[e.Kind]; ok {
		return l
	}
	return e.Message
}

func rejected(kind TransitionErrorKind, action Action, token, message string) error {
	return &TransitionError{Kind: kind, Action: action, Token: token, Message: message}
}

// IsClientError reports whether err was caused by the request rather than the system.
func IsClientError(err error) bool {
	var ve *ValidationError
	var te *TransitionError
	return errors.As(err, &ve) || errors.As(err, &te) || errors.Is(err, ErrCheckNotFound{})
}

// IsRetryable reports whether the caller should redo the read-modify-write.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification{})
}
