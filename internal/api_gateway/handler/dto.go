package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garage-erp/check-lifecycle/internal/api_gateway/service"
	"github.com/garage-erp/check-lifecycle/internal/domain/check"
	"github.com/garage-erp/check-lifecycle/internal/domain/ledger"
)

// dateLayout is the wire format of due dates
const dateLayout = "2006-01-02"

// ListChecksQuery is the explicit filter object of GET /checks. Status takes
// a bucket name.
type ListChecksQuery struct {
	Direction string `form:"direction"`
	Status    string `form:"status"`
	Source    string `form:"source"`
}

// CreateCheckRequest represents a request to record a check
type CreateCheckRequest struct {
	Source      string           `json:"source"`
	Direction   string           `json:"direction" binding:"required"`
	Amount      decimal.Decimal  `json:"amount"`
	Currency    string           `json:"currency"`
	FXRate      *decimal.Decimal `json:"fx_rate,omitempty"`
	DueDate     string           `json:"due_date" binding:"required"`
	Bank        string           `json:"bank"`
	CheckNumber string           `json:"check_number"`
	EntityType  string           `json:"entity_type"`
	EntityID    string           `json:"entity_id"`
	Notes       string           `json:"notes"`
}

// UpdateDetailsRequest represents an owner edit. Absent fields are unchanged.
type UpdateDetailsRequest struct {
	EntityType              *string          `json:"entity_type"`
	EntityID                *string          `json:"entity_id"`
	DueDate                 *string          `json:"due_date"`
	Amount                  *decimal.Decimal `json:"amount"`
	Currency                *string          `json:"currency"`
	Bank                    *string          `json:"bank"`
	CheckNumber             *string          `json:"check_number"`
	ResubmitAllowedCount    *int             `json:"resubmit_allowed_count"`
	LegalReturnAllowedCount *int             `json:"legal_return_allowed_count"`
}

// UpdateStatusRequest represents a request to move a check to a new status
type UpdateStatusRequest struct {
	Status       string           `json:"status" binding:"required"`
	Notes        string           `json:"notes"`
	ReturnReason string           `json:"return_reason"`
	FXRate       *decimal.Decimal `json:"fx_rate,omitempty"`
}

// SettleRequest represents a request to link a check to a compensating payment
type SettleRequest struct {
	PaymentRef string `json:"payment_ref" binding:"required"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=20" binding:"min=1,max=100"`
}

// CheckResponse represents a check in API responses
type CheckResponse struct {
	Token                   string          `json:"token"`
	Source                  string          `json:"source"`
	Direction               string          `json:"direction"`
	Amount                  decimal.Decimal `json:"amount"`
	Currency                string          `json:"currency"`
	FXRateIssue             *check.FXRate   `json:"fx_rate_issue,omitempty"`
	FXRateCash              *check.FXRate   `json:"fx_rate_cash,omitempty"`
	DueDate                 string          `json:"due_date"`
	Bank                    string          `json:"bank"`
	CheckNumber             string          `json:"check_number"`
	EntityType              string          `json:"entity_type,omitempty"`
	EntityID                string          `json:"entity_id,omitempty"`
	Status                  string          `json:"status"`
	ResolvedStatus          string          `json:"resolved_status"`
	DisplayStatus           string          `json:"display_status"`
	StatusLabel             string          `json:"status_label"`
	BadgeColor              string          `json:"badge_color"`
	Bucket                  string          `json:"bucket"`
	IsSettled               bool            `json:"is_settled"`
	IsLegal                 bool            `json:"is_legal"`
	SettlementRef           string          `json:"settlement_ref,omitempty"`
	ResubmitAllowedCount    int             `json:"resubmit_allowed_count"`
	LegalReturnAllowedCount int             `json:"legal_return_allowed_count"`
	MissingFields           []string        `json:"missing_fields,omitempty"`
	Notes                   string          `json:"notes"`
	Events                  []check.Event   `json:"events"`
	Version                 int             `json:"version"`
	CreatedAt               string          `json:"created_at"`
	CreatedBy               string          `json:"created_by,omitempty"`
	UpdatedAt               string          `json:"updated_at"`
	UpdatedBy               string          `json:"updated_by,omitempty"`
}

// IntentResponse represents a published ledger intent in API responses
type IntentResponse struct {
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	EntityType    string          `json:"entity_type,omitempty"`
	EntityID      string          `json:"entity_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Delta         decimal.Decimal `json:"delta"`
	Currency      string          `json:"currency"`
	PaymentRef    string          `json:"payment_ref,omitempty"`
	Actor         string          `json:"actor"`
	Status        string          `json:"status,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	OccurredAt    string          `json:"occurred_at"`
	PublishedAt   string          `json:"published_at,omitempty"`
}

// FirstIncompleteResponse carries the token to complete next, null when none
type FirstIncompleteResponse struct {
	Token *string `json:"token"`
}

func mapViewToResponse(v *service.CheckView) CheckResponse {
	c := v.Check
	events := c.Events
	if events == nil {
		events = []check.Event{}
	}
	return CheckResponse{
		Token:                   c.Token,
		Source:                  string(c.Source),
		Direction:               string(c.Direction),
		Amount:                  c.Amount,
		Currency:                c.Currency,
		FXRateIssue:             c.FXRateIssue,
		FXRateCash:              c.FXRateCash,
		DueDate:                 c.DueDate.Format(dateLayout),
		Bank:                    c.Bank,
		CheckNumber:             c.CheckNumber,
		EntityType:              string(c.EntityType),
		EntityID:                c.EntityID,
		Status:                  string(c.Status),
		ResolvedStatus:          string(v.ResolvedStatus),
		DisplayStatus:           string(v.DisplayStatus),
		StatusLabel:             v.StatusLabel,
		BadgeColor:              v.BadgeColor,
		Bucket:                  string(v.Bucket),
		IsSettled:               c.IsSettled,
		IsLegal:                 c.IsLegal,
		SettlementRef:           c.SettlementRef,
		ResubmitAllowedCount:    c.ResubmitAllowedCount,
		LegalReturnAllowedCount: c.LegalReturnAllowedCount,
		MissingFields:           v.MissingFields,
		Notes:                   c.Notes,
		Events:                  events,
		Version:                 c.Version,
		CreatedAt:               c.CreatedAt.Format(time.RFC3339),
		CreatedBy:               c.CreatedBy,
		UpdatedAt:               c.UpdatedAt.Format(time.RFC3339),
		UpdatedBy:               c.UpdatedBy,
	}
}

func mapIntentToResponse(i *ledger.Intent) IntentResponse {
	response := IntentResponse{
		ID:            i.ID.String(),
		Kind:          string(i.Kind),
		EntityType:    i.EntityType,
		EntityID:      i.EntityID,
		Amount:        i.Amount,
		Delta:         i.Delta,
		Currency:      i.Currency,
		PaymentRef:    i.PaymentRef,
		Actor:         i.Actor,
		Status:        string(i.Status),
		FailureReason: i.FailureReason,
		OccurredAt:    i.OccurredAt.Format(time.RFC3339),
	}
	if i.PublishedAt != nil {
		response.PublishedAt = i.PublishedAt.Format(time.RFC3339)
	}
	return response
}

// toCreateRequest converts the body, reporting a malformed due date as a
// validation error.
func (r CreateCheckRequest) toCreateRequest() (service.CreateRequest, error) {
	due, err := parseDate(r.DueDate)
	if err != nil {
		return service.CreateRequest{}, err
	}
	return service.CreateRequest{
		Source:      check.Source(r.Source),
		Direction:   check.Direction(r.Direction),
		Amount:      r.Amount,
		Currency:    r.Currency,
		FXRate:      r.FXRate,
		DueDate:     due,
		Bank:        r.Bank,
		CheckNumber: r.CheckNumber,
		EntityType:  check.EntityType(r.EntityType),
		EntityID:    r.EntityID,
		Notes:       r.Notes,
	}, nil
}

func (r UpdateDetailsRequest) toPatch() (check.DetailsPatch, error) {
	patch := check.DetailsPatch{
		EntityID:                r.EntityID,
		Amount:                  r.Amount,
		Currency:                r.Currency,
		Bank:                    r.Bank,
		CheckNumber:             r.CheckNumber,
		ResubmitAllowedCount:    r.ResubmitAllowedCount,
		LegalReturnAllowedCount: r.LegalReturnAllowedCount,
	}
	if r.EntityType != nil {
		et := check.EntityType(*r.EntityType)
		patch.EntityType = &et
	}
	if r.DueDate != nil {
		due, err := parseDate(*r.DueDate)
		if err != nil {
			return check.DetailsPatch{}, err
		}
		patch.DueDate = &due
	}
	return patch, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, &check.ValidationError{Field: "due_date", Message: "due date must be formatted as YYYY-MM-DD"}
	}
	return t, nil
}
