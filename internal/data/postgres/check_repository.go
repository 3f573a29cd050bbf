// Package postgres provides PostgreSQL implementations of the domain repositories.
// Every repository can be bound to a transaction with WithTx so a check update
// and its outbox rows commit together.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/garage-erp/check-lifecycle/internal/domain/check"
	"github.com/garage-erp/check-lifecycle/internal/platform/persistence"
)

const checkColumns = `token, source, direction, amount, currency, fx_rate_issue, fx_rate_cash, due_date,
		bank, check_number, entity_type, entity_id, status, notes, events, is_settled, is_legal,
		settlement_ref, resubmit_allowed_count, legal_return_allowed_count, version,
		created_at, created_by, updated_at, updated_by`

// CheckRepository implements the check.Repository interface for PostgreSQL
type CheckRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewCheckRepository creates a new PostgreSQL check repository.
func NewCheckRepository(logger *slog.Logger, db *persistence.PostgresDB) check.Repository {
	return &CheckRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx.
func (r *CheckRepository) WithTx(tx pgx.Tx) check.Repository {
	return &CheckRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new check.
func (r *CheckRepository) Create(ctx context.Context, c *check.Check) error {
	query := `
		INSERT INTO checks (` + checkColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25)
	`

	fxIssue, fxCash, events, err := encodeJSONColumns(c)
	if err != nil {
		return err
	}

	_, err = r.querier.Exec(ctx, query,
		c.Token,
		string(c.Source),
		string(c.Direction),
		c.Amount,
		c.Currency,
		fxIssue,
		fxCash,
		c.DueDate,
		c.Bank,
		c.CheckNumber,
		string(c.EntityType),
		c.EntityID,
		string(c.Status),
		c.Notes,
		events,
		c.IsSettled,
		c.IsLegal,
		c.SettlementRef,
		c.ResubmitAllowedCount,
		c.LegalReturnAllowedCount,
		c.Version,
		c.CreatedAt,
		c.CreatedBy,
		c.UpdatedAt,
		c.UpdatedBy,
	)
	if err != nil {
		r.logger.Error("Failed to create check", "token", c.Token, "error", err)
		return fmt.Errorf("failed to create check: %w", err)
	}

	return nil
}

// GetByToken retrieves a check by its token
func (r *CheckRepository) GetByToken(ctx context.Context, token string) (*check.Check, error) {
	query := `
		SELECT ` + checkColumns + `
		FROM checks
		WHERE token = $1
	`

	c, err := scanCheck(r.querier.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, check.ErrCheckNotFound{Token: token}
		}
		r.logger.Error("Failed to get check", "token", token, "error", err)
		return nil, fmt.Errorf("failed to get check: %w", err)
	}

	return c, nil
}

// List returns the checks matching filter ordered by due date, oldest first.
func (r *CheckRepository) List(ctx context.Context, filter check.ListFilter) ([]*check.Check, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Direction != "" {
		args = append(args, string(filter.Direction))
		conds = append(conds, fmt.Sprintf("direction = $%d", len(args)))
	}
	if filter.Source != "" {
		args = append(args, string(filter.Source))
		conds = append(conds, fmt.Sprintf("source = $%d", len(args)))
	}

	query := `SELECT ` + checkColumns + ` FROM checks`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY due_date ASC, created_at ASC`

	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list checks", "error", err)
		return nil, fmt.Errorf("failed to list checks: %w", err)
	}
	defer rows.Close()

	checks := make([]*check.Check, 0)
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			r.logger.Error("Failed to scan check", "error", err)
			return nil, fmt.Errorf("failed to scan check: %w", err)
		}
		checks = append(checks, c)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating checks", "error", err)
		return nil, fmt.Errorf("error iterating checks: %w", err)
	}

	return checks, nil
}

// Update writes every mutable column of c. The stored version must be
// c.Version-1, otherwise ErrConcurrentModification is returned.
func (r *CheckRepository) Update(ctx context.Context, c *check.Check) error {
	query := `
		UPDATE checks
		SET amount = $1, currency = $2, fx_rate_issue = $3, fx_rate_cash = $4, due_date = $5,
			bank = $6, check_number = $7, entity_type = $8, entity_id = $9, status = $10,
			notes = $11, events = $12, is_settled = $13, is_legal = $14, settlement_ref = $15,
			resubmit_allowed_count = $16, legal_return_allowed_count = $17, version = $18,
			updated_at = $19, updated_by = $20
		WHERE token = $21 AND version = $22
	`

	fxIssue, fxCash, events, err := encodeJSONColumns(c)
	if err != nil {
		return err
	}

	result, err := r.querier.Exec(ctx, query,
		c.Amount,
		c.Currency,
		fxIssue,
		fxCash,
		c.DueDate,
		c.Bank,
		c.CheckNumber,
		string(c.EntityType),
		c.EntityID,
		string(c.Status),
		c.Notes,
		events,
		c.IsSettled,
		c.IsLegal,
		c.SettlementRef,
		c.ResubmitAllowedCount,
		c.LegalReturnAllowedCount,
		c.Version,
		c.UpdatedAt,
		c.UpdatedBy,
		c.Token,
		c.Version-1, // Check previous version for optimistic locking
	)
	if err != nil {
		r.logger.Error("Failed to update check", "token", c.Token, "error", err)
		return fmt.Errorf("failed to update check: %w", err)
	}

	if result.RowsAffected() == 0 {
		return check.ErrConcurrentModification{Token: c.Token}
	}

	return nil
}

// LockForUpdate obtains a row lock on the check and returns its current state.
// It must run inside a transaction.
func (r *CheckRepository) LockForUpdate(ctx context.Context, token string) (*check.Check, error) {
	query := `
		SELECT ` + checkColumns + `
		FROM checks
		WHERE token = $1
		FOR UPDATE
	`

	c, err := scanCheck(r.querier.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, check.ErrCheckNotFound{Token: token}
		}
		r.logger.Error("Failed to lock check for update", "token", token, "error", err)
		return nil, fmt.Errorf("failed to lock check for update: %w", err)
	}

	return c, nil
}

// FirstIncomplete returns the token of the oldest check lacking a counterparty,
// bank or check number.
func (r *CheckRepository) FirstIncomplete(ctx context.Context) (string, error) {
	query := `
		SELECT token
		FROM checks
		WHERE entity_type = '' OR btrim(entity_id) = '' OR btrim(bank) = '' OR btrim(check_number) = ''
		ORDER BY created_at ASC, token ASC
		LIMIT 1
	`

	var token string
	err := r.querier.QueryRow(ctx, query).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		r.logger.Error("Failed to find incomplete check", "error", err)
		return "", fmt.Errorf("failed to find incomplete check: %w", err)
	}

	return token, nil
}

func scanCheck(row pgx.Row) (*check.Check, error) {
	var (
		c                       check.Check
		source, direction       string
		entityType, status      string
		fxIssue, fxCash, events []byte
	)
	err := row.Scan(
		&c.Token,
		&source,
		&direction,
		&c.Amount,
		&c.Currency,
		&fxIssue,
		&fxCash,
		&c.DueDate,
		&c.Bank,
		&c.CheckNumber,
		&entityType,
		&c.EntityID,
		&status,
		&c.Notes,
		&events,
		&c.IsSettled,
		&c.IsLegal,
		&c.SettlementRef,
		&c.ResubmitAllowedCount,
		&c.LegalReturnAllowedCount,
		&c.Version,
		&c.CreatedAt,
		&c.CreatedBy,
		&c.UpdatedAt,
		&c.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}

	c.Source = check.Source(source)
	c.Direction = check.Direction(direction)
	c.EntityType = check.EntityType(entityType)
	c.Status = check.Status(status)

	if c.FXRateIssue, err = decodeFXRate(fxIssue); err != nil {
		return nil, fmt.Errorf("invalid fx_rate_issue for check %s: %w", c.Token, err)
	}
	if c.FXRateCash, err = decodeFXRate(fxCash); err != nil {
		return nil, fmt.Errorf("invalid fx_rate_cash for check %s: %w", c.Token, err)
	}
	c.Events = []check.Event{}
	if len(events) > 0 {
		if err := json.Unmarshal(events, &c.Events); err != nil {
			return nil, fmt.Errorf("invalid events for check %s: %w", c.Token, err)
		}
	}
	c.AdoptLegacyNotes()

	return &c, nil
}

// encodeJSONColumns renders the JSONB columns. A missing rate is stored as NULL.
func encodeJSONColumns(c *check.Check) (fxIssue, fxCash, events []byte, err error) {
	if fxIssue, err = encodeFXRate(c.FXRateIssue); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode fx_rate_issue: %w", err)
	}
	if fxCash, err = encodeFXRate(c.FXRateCash); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode fx_rate_cash: %w", err)
	}
	list := c.Events
	if list == nil {
		list = []check.Event{}
	}
	if events, err = json.Marshal(list); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode events: %w", err)
	}
	return fxIssue, fxCash, events, nil
}

func encodeFXRate(rate *check.FXRate) ([]byte, error) {
	if rate == nil {
		return nil, nil
	}
	return json.Marshal(rate)
}

func decodeFXRate(raw []byte) (*check.FXRate, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var rate check.FXRate
	if err := json.Unmarshal(raw, &rate); err != nil {
		return nil, err
	}
	return &rate, nil
}
