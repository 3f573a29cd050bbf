// Package fx captures the exchange rate recorded on a check at issue and cash
// time. A rate is looked up online when a provider is configured, supplied
// manually by the operator, or defaulted for the base currency.
package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/garage-erp/check-lifecycle/internal/config"
	"github.com/garage-erp/check-lifecycle/internal/domain/check"
)

// ErrNoRate is returned when no rate could be obtained for a foreign currency.
var ErrNoRate = errors.New("no exchange rate available")

// Lookup fetches the live rate of one unit of currency in base.
type Lookup interface {
	Rate(ctx context.Context, base, currency string) (decimal.Decimal, error)
}

// Recorder observes which source each captured rate came from.
type Recorder interface {
	IncFXLookup(source string)
}

// HTTPLookup queries a JSON rate endpoint: GET <url>?base=ILS&symbol=USD
// answering {"rate": "3.71"}. Calls go through a circuit breaker and are
// retried with backoff.
type HTTPLookup struct {
	client   *http.Client
	endpoint string
	breaker  *gobreaker.CircuitBreaker
	retry    retryConfig
	logger   *slog.Logger
}

// NewHTTPLookup returns nil when cfg.ProviderURL is empty.
func NewHTTPLookup(logger *slog.Logger, cfg *config.FXConfig) *HTTPLookup {
	if cfg.ProviderURL == "" {
		return nil
	}
	l := &HTTPLookup{
		client:   &http.Client{Timeout: cfg.Timeout},
		endpoint: cfg.ProviderURL,
		retry: retryConfig{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
		},
		logger: logger,
	}
	l.breaker = newCircuitBreaker("fx-provider", uint32(cfg.BreakerMaxFailures), cfg.BreakerOpenTimeout,
		func(from, to gobreaker.State) {
			logger.Warn("FX provider circuit breaker changed state", "from", from.String(), "to", to.String())
		})
	return l
}

type rateResponse struct {
	Rate decimal.Decimal `json:"rate"`
}

// Rate implements Lookup.
func (l *HTTPLookup) Rate(ctx context.Context, base, currency string) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := retryWithBackoff(ctx, l.retry, func() error {
		out, err := l.breaker.Execute(func() (interface{}, error) {
			return l.fetch(ctx, base, currency)
		})
		if err != nil {
			return err
		}
		rate = out.(decimal.Decimal)
		return nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("fx lookup %s/%s: %w", currency, base, err)
	}
	return rate, nil
}

func (l *HTTPLookup) fetch(ctx context.Context, base, currency string) (decimal.Decimal, error) {
	u, err := url.Parse(l.endpoint)
	if err != nil {
		return decimal.Zero, errPermanent{fmt.Errorf("invalid provider url: %w", err)}
	}
	q := u.Query()
	q.Set("base", base)
	q.Set("symbol", currency)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return decimal.Zero, errPermanent{err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return decimal.Zero, errPermanent{fmt.Errorf("provider rejected %s: status %d", currency, resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return decimal.Zero, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode provider response: %w", err)
	}
	if !body.Rate.IsPositive() {
		return decimal.Zero, errPermanent{fmt.Errorf("provider returned non-positive rate %s", body.Rate)}
	}
	return body.Rate, nil
}

// Resolver picks the rate recorded on a check event.
type Resolver struct {
	base     string
	lookup   Lookup // nil when online lookups are disabled
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewResolver builds a resolver quoting against base. lookup and recorder may be nil.
func NewResolver(logger *slog.Logger, base string, lookup Lookup, recorder Recorder) *Resolver {
	r := &Resolver{
		base:     strings.ToUpper(base),
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
	// A typed nil *HTTPLookup must not count as a configured provider.
	if hl, ok := lookup.(*HTTPLookup); !ok || hl != nil {
		r.lookup = lookup
	}
	return r
}

// Resolve returns the rate for currency. A manual rate wins; the base currency
// gets the identity rate; otherwise the online provider is asked. When nothing
// is available the result is (nil, ErrNoRate) and callers record the event
// without a rate.
func (r *Resolver) Resolve(ctx context.Context, currency string, manual *decimal.Decimal) (*check.FXRate, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))

	if manual != nil {
		if !manual.IsPositive() {
			return nil, &check.ValidationError{Field: "fx_rate", Message: "exchange rate must be greater than zero"}
		}
		return r.captured(*manual, check.FXSourceManual), nil
	}

	if currency == "" || currency == r.base {
		return r.captured(decimal.NewFromInt(1), check.FXSourceDefault), nil
	}

	if r.lookup != nil {
		rate, err := r.lookup.Rate(ctx, r.base, currency)
		if err == nil {
			return r.captured(rate, check.FXSourceOnline), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("Online FX lookup failed", "currency", currency, "base", r.base, "error", err)
	}

	return nil, ErrNoRate
}

func (r *Resolver) captured(rate decimal.Decimal, source check.FXSource) *check.FXRate {
	if r.recorder != nil {
		r.recorder.IncFXLookup(string(source))
	}
	return &check.FXRate{Rate: rate, Source: source, RecordedAt: r.now().UTC()}
}
