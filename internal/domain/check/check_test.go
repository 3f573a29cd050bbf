package check

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

func validParams() NewCheckParams {
	return NewCheckParams{
		Direction:   DirectionIncoming,
		Amount:      decimal.RequireFromString("1250.00"),
		DueDate:     testNow.AddDate(0, 0, 10),
		Bank:        "Bank Leumi",
		CheckNumber: "100234",
		EntityType:  EntityCustomer,
		EntityID:    "cust-7",
		CreatedBy:   "clerk-1",
		CreatedAt:   testNow.AddDate(0, 0, -5),
	}
}

func newTestCheck(t *testing.T, mutate func(p *NewCheckParams)) *Check {
	t.Helper()
	p := validParams()
	if mutate != nil {
		mutate(&p)
	}
	c, err := NewCheck(p)
	require.NoError(t, err)
	return c
}

func TestNewCheck(t *testing.T) {
	t.Run("AppliesDefaults", func(t *testing.T) {
		c := newTestCheck(t, nil)

		assert.Contains(t, c.Token, "chk_")
		assert.Equal(t, SourceCheck, c.Source)
		assert.Equal(t, DefaultCurrency, c.Currency)
		assert.Equal(t, StatusPending, c.Status)
		assert.Equal(t, 1, c.ResubmitAllowedCount)
		assert.Equal(t, 1, c.LegalReturnAllowedCount)
		assert.Equal(t, 1, c.Version)
		assert.False(t, c.IsSettled)
		assert.False(t, c.IsLegal)
		assert.Empty(t, c.Events)
		assert.Equal(t, 0, c.DueDate.Hour())
	})

	t.Run("TrailingZerosWithinScale", func(t *testing.T) {
		c := newTestCheck(t, func(p *NewCheckParams) { p.Amount = decimal.RequireFromString("10.500") })
		assert.True(t, c.Amount.Equal(decimal.RequireFromString("10.5")))
	})

	t.Run("MultibyteBankAtLimit", func(t *testing.T) {
		bank := strings.Repeat("ب", MaxBankLen)
		c := newTestCheck(t, func(p *NewCheckParams) { p.Bank = bank })
		assert.Equal(t, bank, c.Bank)
	})

	t.Run("NormalizesCurrency", func(t *testing.T) {
		c := newTestCheck(t, func(p *NewCheckParams) { p.Currency = " usd " })
		assert.Equal(t, "USD", c.Currency)
	})

	tests := []struct {
		name   string
		mutate func(p *NewCheckParams)
		field  string
	}{
		{"ZeroAmount", func(p *NewCheckParams) { p.Amount = decimal.Zero }, "amount"},
		{"NegativeAmount", func(p *NewCheckParams) { p.Amount = decimal.NewFromInt(-5) }, "amount"},
		{"SubCentAmount", func(p *NewCheckParams) { p.Amount = decimal.RequireFromString("10.005") }, "amount"},
		{"LongBank", func(p *NewCheckParams) { p.Bank = strings.Repeat("ب", MaxBankLen+1) }, "bank"},
		{"LongCheckNumber", func(p *NewCheckParams) { p.CheckNumber = strings.Repeat("9", MaxCheckNumberLen+1) }, "check_number"},
		{"LongEntityID", func(p *NewCheckParams) { p.EntityID = strings.Repeat("c", MaxReferenceLen+1) }, "entity_id"},
		{"UnknownDirection", func(p *NewCheckParams) { p.Direction = "SIDEWAYS" }, "direction"},
		{"UnknownSource", func(p *NewCheckParams) { p.Source = "GIFT" }, "source"},
		{"BadCurrency", func(p *NewCheckParams) { p.Currency = "SHEKEL" }, "currency"},
		{"MissingDueDate", func(p *NewCheckParams) { p.DueDate = time.Time{} }, "due_date"},
		{"EntityTypeWithoutID", func(p *NewCheckParams) { p.EntityID = "" }, "entity_id"},
		{"UnknownEntityType", func(p *NewCheckParams) { p.EntityType = "bank" }, "entity_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)

			c, err := NewCheck(p)

			require.Error(t, err)
			assert.Nil(t, c)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCheck_MissingFields(t *testing.T) {
	t.Run("Complete", func(t *testing.T) {
		assert.Empty(t, newTestCheck(t, nil).MissingFields())
	})

	t.Run("EverythingMissing", func(t *testing.T) {
		c := newTestCheck(t, func(p *NewCheckParams) {
			p.EntityType, p.EntityID, p.Bank, p.CheckNumber = "", "", "", " "
		})
		assert.Equal(t, []string{"entity", "bank", "check_number"}, c.MissingFields())
		assert.False(t, c.HasCounterparty())
	})
}

func TestCheck_Clone(t *testing.T) {
	c := newTestCheck(t, func(p *NewCheckParams) {
		p.FXRateIssue = &FXRate{Rate: decimal.RequireFromString("3.7"), Source: FXSourceManual}
	})
	c.Events = append(c.Events, Event{Kind: EventReturned})

	cp := c.Clone()
	cp.Events[0].Kind = EventCashed
	cp.FXRateIssue.Rate = decimal.NewFromInt(1)

	assert.Equal(t, EventReturned, c.Events[0].Kind)
	assert.True(t, c.FXRateIssue.Rate.Equal(decimal.RequireFromString("3.7")))
}

func TestErrors(t *testing.T) {
	t.Run("NotFoundMatchesAnyToken", func(t *testing.T) {
		err := ErrCheckNotFound{Token: "chk_1"}
		assert.True(t, errors.Is(err, ErrCheckNotFound{}))
		assert.True(t, errors.Is(err, ErrCheckNotFound{Token: "chk_1"}))
		assert.False(t, errors.Is(err, ErrCheckNotFound{Token: "chk_2"}))
		assert.True(t, IsClientError(err))
	})

	t.Run("ConcurrencyIsRetryable", func(t *testing.T) {
		err := ErrConcurrentModification{Token: "chk_1"}
		assert.True(t, IsRetryable(err))
		assert.False(t, IsClientError(err))
	})

	t.Run("TransitionErrorMatchesKind", func(t *testing.T) {
		err := rejected(KindCountExhausted, ActionResubmit, "chk_1", "no resubmissions left")
		assert.True(t, errors.Is(err, ErrCountExhausted))
		assert.False(t, errors.Is(err, ErrInvalidTransition))

		var te *TransitionError
		require.True(t, errors.As(err, &te))
		assert.NotEmpty(t, te.Label())
		assert.Contains(t, te.Error(), "RESUBMIT")
	})
}
