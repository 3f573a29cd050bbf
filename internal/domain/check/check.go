// Package check holds the post-dated check lifecycle engine: the Check entity,
// the audit note codec, the status resolver, the transition state machine and
// the settlement coordinator. Everything here is pure; persistence and
// transport live in the data and api_gateway packages.
package check

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a check is recorded without a currency code.
const DefaultCurrency = "ILS"

// Column limits of the checks table.
const (
	AmountScale       = 2
	MaxBankLen        = 120
	MaxCheckNumberLen = 60
	MaxReferenceLen   = 64
)

// Direction tells whether the check was received or issued by the business.
type Direction string

const (
	DirectionIncoming Direction = "INCOMING" // received from a counterparty (asset)
	DirectionOutgoing Direction = "OUTGOING" // issued by the business (liability)
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionIncoming || d == DirectionOutgoing
}

// Source identifies where a check was recorded. All sources share one token space.
type Source string

const (
	SourceCheck        Source = "CHECK"
	SourceSplitPayment Source = "SPLIT_PAYMENT"
	SourceExpense      Source = "EXPENSE"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceCheck, SourceSplitPayment, SourceExpense:
		return true
	}
	return false
}

// EntityType is the kind of counterparty a check belongs to.
type EntityType string

const (
	EntityCustomer EntityType = "customer"
	EntitySupplier EntityType = "supplier"
	EntityPartner  EntityType = "partner"
)

// Valid reports whether e is a known counterparty kind.
func (e EntityType) Valid() bool {
	switch e {
	case EntityCustomer, EntitySupplier, EntityPartner:
		return true
	}
	return false
}

// FXSource tags how an exchange rate was obtained.
type FXSource string

const (
	FXSourceOnline  FXSource = "online"
	FXSourceManual  FXSource = "manual"
	FXSourceDefault FXSource = "default"
)

// FXRate is a rate captured for one event (issue or cash). Once recorded for
// an event it is never replaced.
type FXRate struct {
	Rate       decimal.Decimal `json:"rate"`
	Source     FXSource        `json:"source"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Check is a post-dated check, incoming or outgoing.
type Check struct {
	Token       string          `json:"token"`
	Source      Source          `json:"source"`
	Direction   Direction       `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	FXRateIssue *FXRate         `json:"fx_rate_issue,omitempty"`
	FXRateCash  *FXRate         `json:"fx_rate_cash,omitempty"`
	DueDate     time.Time       `json:"due_date"`
	Bank        string          `json:"bank"`
	CheckNumber string          `json:"check_number"`
	EntityType  EntityType      `json:"entity_type,omitempty"`
	EntityID    string          `json:"entity_id,omitempty"`
	Status      Status          `json:"status"`
	Notes       string          `json:"notes"`
	Events      []Event         `json:"events"`
	IsSettled   bool            `json:"is_settled"`
	IsLegal     bool            `json:"is_legal"`
	// SettlementRef is the compensating payment while IsSettled holds.
	SettlementRef           string    `json:"settlement_ref,omitempty"`
	ResubmitAllowedCount    int       `json:"resubmit_allowed_count"`
	LegalReturnAllowedCount int       `json:"legal_return_allowed_count"`
	Version                 int       `json:"version"` // For optimistic locking
	CreatedAt               time.Time `json:"created_at"`
	CreatedBy               string    `json:"created_by"`
	UpdatedAt               time.Time `json:"updated_at"`
	UpdatedBy               string    `json:"updated_by"`
}

// NewCheckParams carries everything needed to record a check.
type NewCheckParams struct {
	Source      Source
	Direction   Direction
	Amount      decimal.Decimal
	Currency    string
	FXRateIssue *FXRate
	DueDate     time.Time
	Bank        string
	CheckNumber string
	EntityType  EntityType
	EntityID    string
	Notes       string
	CreatedBy   string
	CreatedAt   time.Time
}

// NewCheck validates p and returns a PENDING check with default allowances.
func NewCheck(p NewCheckParams) (*Check, error) {
	if !p.Direction.Valid() {
		return nil, &ValidationError{Field: "direction", Message: "direction must be INCOMING or OUTGOING"}
	}
	if p.Source == "" {
		p.Source = SourceCheck
	}
	if !p.Source.Valid() {
		return nil, &ValidationError{Field: "source", Message: "unknown check source"}
	}
	if err := validateAmount(p.Amount); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) != 3 {
		return nil, &ValidationError{Field: "currency", Message: "currency must be a 3-letter code"}
	}
	if p.DueDate.IsZero() {
		return nil, &ValidationError{Field: "due_date", Message: "due date is required"}
	}
	if err := validateCounterparty(p.EntityType, p.EntityID); err != nil {
		return nil, err
	}
	if err := validateLength("bank", p.Bank, MaxBankLen); err != nil {
		return nil, err
	}
	if err := validateLength("check_number", p.CheckNumber, MaxCheckNumberLen); err != nil {
		return nil, err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	return &Check{
		Token:                   "chk_" + uuid.NewString(),
		Source:                  p.Source,
		Direction:               p.Direction,
		Amount:                  p.Amount,
		Currency:                currency,
		FXRateIssue:             p.FXRateIssue,
		DueDate:                 truncateDay(p.DueDate),
		Bank:                    p.Bank,
		CheckNumber:             p.CheckNumber,
		EntityType:              p.EntityType,
		EntityID:                p.EntityID,
		Status:                  StatusPending,
		Notes:                   p.Notes,
		Events:                  []Event{},
		ResubmitAllowedCount:    1,
		LegalReturnAllowedCount: 1,
		Version:                 1,
		CreatedAt:               p.CreatedAt,
		CreatedBy:               p.CreatedBy,
		UpdatedAt:               p.CreatedAt,
		UpdatedBy:               p.CreatedBy,
	}, nil
}

// HasCounterparty reports whether both halves of the counterparty reference are set.
func (c *Check) HasCounterparty() bool {
	return c.EntityType != "" && strings.TrimSpace(c.EntityID) != ""
}

// MissingFields lists the required fields that are still empty, in a stable order.
func (c *Check) MissingFields() []string {
	var missing []string
	if !c.HasCounterparty() {
		missing = append(missing, "entity")
	}
	if strings.TrimSpace(c.Bank) == "" {
		missing = append(missing, "bank")
	}
	if strings.TrimSpace(c.CheckNumber) == "" {
		missing = append(missing, "check_number")
	}
	return missing
}

// Clone returns a deep copy so transitions never alias the caller's check.
func (c *Check) Clone() *Check {
	cp := *c
	if c.Events != nil {
		cp.Events = make([]Event, len(c.Events))
		copy(cp.Events, c.Events)
	}
	if c.FXRateIssue != nil {
		r := *c.FXRateIssue
		cp.FXRateIssue = &r
	}
	if c.FXRateCash != nil {
		r := *c.FXRateCash
		cp.FXRateCash = &r
	}
	return &cp
}

func validateCounterparty(entityType EntityType, entityID string) error {
	if entityType == "" {
		return nil
	}
	if !entityType.Valid() {
		return &ValidationError{Field: "entity_type", Message: "entity type must be customer, supplier or partner"}
	}
	if strings.TrimSpace(entityID) == "" {
		return &ValidationError{Field: "entity_id", Message: "entity id is required when entity type is set"}
	}
	return validateLength("entity_id", entityID, MaxReferenceLen)
}

// validateAmount accepts positive amounts with at most AmountScale decimals,
// so the stored NUMERIC equals the validated value.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "amount must be greater than zero"}
	}
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return &ValidationError{Field: "amount", Message: fmt.Sprintf("amount must have at most %d decimal places", AmountScale)}
	}
	return nil
}

func validateLength(field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s must be at most %d characters", field, limit)}
	}
	return nil
}

// truncateDay returns the calendar date of t, as read in t's own zone, at UTC
// midnight. Due dates are stored this way and compared this way.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
