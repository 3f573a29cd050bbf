package check

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garage-erp/check-lifecycle/internal/domain/ledger"
	"github.com/garage-erp/check-lifecycle/internal/domain/shared"
)

// ActionUpdateDetails tags errors raised while editing check fields. It is not
// a lifecycle action and Transition rejects it.
const ActionUpdateDetails Action = "UPDATE_DETAILS"

// DetailsPatch lists the editable fields. Nil fields are left unchanged.
type DetailsPatch struct {
	EntityType              *EntityType
	EntityID                *string
	DueDate                 *time.Time
	Amount                  *decimal.Decimal
	Currency                *string
	Bank                    *string
	CheckNumber             *string
	ResubmitAllowedCount    *int
	LegalReturnAllowedCount *int
}

// IsEmpty reports whether the patch touches nothing.
func (p DetailsPatch) IsEmpty() bool {
	return p.EntityType == nil && p.EntityID == nil && p.DueDate == nil && p.Amount == nil &&
		p.Currency == nil && p.Bank == nil && p.CheckNumber == nil &&
		p.ResubmitAllowedCount == nil && p.LegalReturnAllowedCount == nil
}

// ApplyDetails edits the non-lifecycle fields of c. Only owners may edit, the
// whole patch is validated before anything changes, and settled checks are
// frozen. When the check currently covers a counterparty's debt and the
// amount or counterparty changes, the old coverage is reopened and the new one
// covered so the ledger stays consistent.
func ApplyDetails(c *Check, patch DetailsPatch, tc TransitionContext) (*Outcome, error) {
	if !tc.Actor.IsOwner {
		return nil, rejected(KindUnauthorized, ActionUpdateDetails, c.Token, "owner privilege required")
	}

	next := c.Clone()
	if err := patchFields(next, patch); err != nil {
		return nil, err
	}

	if c.IsSettled {
		return nil, rejected(KindAlreadyTerminal, ActionUpdateDetails, c.Token, "settled checks cannot be edited")
	}

	if sameDetails(c, next) {
		return &Outcome{Check: c, NoOp: true}, nil
	}

	now := tc.now()
	next.UpdatedAt = now
	next.UpdatedBy = tc.Actor.ID
	next.Version++

	return &Outcome{Check: next, Intents: recoverIntents(c, next, tc.Actor.ID, now)}, nil
}

func patchFields(c *Check, p DetailsPatch) error {
	if p.Amount != nil {
		if err := validateAmount(*p.Amount); err != nil {
			return err
		}
		c.Amount = *p.Amount
	}
	if p.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*p.Currency))
		if len(currency) != 3 {
			return &ValidationError{Field: "currency", Message: "currency must be a 3-letter code"}
		}
		c.Currency = currency
	}
	if p.DueDate != nil {
		if p.DueDate.IsZero() {
			return &ValidationError{Field: "due_date", Message: "due date is required"}
		}
		c.DueDate = truncateDay(*p.DueDate)
	}
	if p.EntityType != nil {
		c.EntityType = *p.EntityType
	}
	if p.EntityID != nil {
		c.EntityID = strings.TrimSpace(*p.EntityID)
	}
	if err := validateCounterparty(c.EntityType, c.EntityID); err != nil {
		return err
	}
	if c.EntityType == "" && c.EntityID != "" {
		return &ValidationError{Field: "entity_type", Message: "entity type is required when entity id is set"}
	}
	if p.Bank != nil {
		c.Bank = strings.TrimSpace(*p.Bank)
		if err := validateLength("bank", c.Bank, MaxBankLen); err != nil {
			return err
		}
	}
	if p.CheckNumber != nil {
		c.CheckNumber = strings.TrimSpace(*p.CheckNumber)
		if err := validateLength("check_number", c.CheckNumber, MaxCheckNumberLen); err != nil {
			return err
		}
	}
	if p.ResubmitAllowedCount != nil {
		if *p.ResubmitAllowedCount < 0 {
			return &ValidationError{Field: "resubmit_allowed_count", Message: "count must not be negative"}
		}
		c.ResubmitAllowedCount = *p.ResubmitAllowedCount
	}
	if p.LegalReturnAllowedCount != nil {
		if *p.LegalReturnAllowedCount < 0 {
			return &ValidationError{Field: "legal_return_allowed_count", Message: "count must not be negative"}
		}
		c.LegalReturnAllowedCount = *p.LegalReturnAllowedCount
	}
	return nil
}

func sameDetails(a, b *Check) bool {
	return a.Amount.Equal(b.Amount) &&
		a.Currency == b.Currency &&
		a.DueDate.Equal(b.DueDate) &&
		a.EntityType == b.EntityType &&
		a.EntityID == b.EntityID &&
		a.Bank == b.Bank &&
		a.CheckNumber == b.CheckNumber &&
		a.ResubmitAllowedCount == b.ResubmitAllowedCount &&
		a.LegalReturnAllowedCount == b.LegalReturnAllowedCount
}

// recoverIntents moves coverage from prev's terms to next's terms.
func recoverIntents(prev, next *Check, actor string, now time.Time) []*ledger.Intent {
	if !covers(guardStatus(prev, now)) {
		return nil
	}
	if prev.Amount.Equal(next.Amount) && prev.Currency == next.Currency &&
		prev.EntityType == next.EntityType && prev.EntityID == next.EntityID {
		return nil
	}

	e := Event{Actor: actor, At: now}
	sign := directionSign(prev.Direction)

	var intents []*ledger.Intent
	if prev.HasCounterparty() {
		intents = append(intents, newIntent(prev, shared.IntentDebtReopened, sign.Mul(prev.Amount), e))
	}
	if next.HasCounterparty() {
		intents = append(intents, newIntent(next, shared.IntentDebtCovered, sign.Mul(next.Amount).Neg(), e))
	}
	return intents
}
