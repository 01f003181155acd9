package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ndmx/upscale/internal/domain/account"
	"github.com/ndmx/upscale/internal/domain/security"
	"github.com/ndmx/upscale/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AccountRepository implements account.Repository for PostgreSQL.
type AccountRepository struct {
	conn *Connection
}

var _ account.Repository = (*AccountRepository)(nil)

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(conn *Connection) *AccountRepository {
	return &AccountRepository{conn: conn}
}

const accountColumns = `id, email, name, password_hash, failed_attempts, locked_until, created_at, updated_at`

// Create creates a new account.
func (r *AccountRepository) Create(ctx context.Context, a *account.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.conn.Exec(ctx, query,
		a.ID,
		a.Email.String(),
		a.Name,
		a.PasswordHash,
		a.FailedAttempts,
		nullTime(a.LockedUntil),
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err, "accounts_email_key") {
			return shared.ErrDuplicateAccount
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetByID returns an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.Account, error) {
	if !isUUID(id) {
		return nil, shared.ErrAccountNotFound
	}
	row := r.conn.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetByEmail returns an account by normalized email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email shared.Email) (*account.Account, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email.String())
	return scanAccount(row)
}

// UpdateLoginState locks the account row, applies fn, and writes the account
// and the returned security events in one transaction.
func (r *AccountRepository) UpdateLoginState(ctx context.Context, email shared.Email, fn account.LoginMutation) (*account.Account, error) {
	var result *account.Account

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1 FOR UPDATE`, email.String())
		a, err := scanAccount(row)
		if err != nil {
			return err
		}

		events := fn(a)

		_, err = tx.Exec(ctx, `
			UPDATE accounts SET
				password_hash = $1,
				failed_attempts = $2,
				locked_until = $3,
				updated_at = $4
			WHERE id = $5
		`, a.PasswordHash, a.FailedAttempts, nullTime(a.LockedUntil), a.UpdatedAt, a.ID)
		if err != nil {
			return fmt.Errorf("failed to update login state: %w", err)
		}

		for _, e := range events {
			if err := insertSecurityEvent(ctx, tx, e); err != nil {
				return err
			}
		}

		result = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		a           account.Account
		email       string
		lockedUntil *time.Time
	)
	err := row.Scan(
		&a.ID,
		&email,
		&a.Name,
		&a.PasswordHash,
		&a.FailedAttempts,
		&lockedUntil,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	a.Email = shared.Email(email)
	if lockedUntil != nil {
		a.LockedUntil = lockedUntil.UTC()
	}
	return &a, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SECURITY LOG IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SecurityLogRepository implements security.Log for PostgreSQL.
type SecurityLogRepository struct {
	conn *Connection
}

var _ security.Log = (*SecurityLogRepository)(nil)

// NewSecurityLogRepository creates a new SecurityLogRepository.
func NewSecurityLogRepository(conn *Connection) *SecurityLogRepository {
	return &SecurityLogRepository{conn: conn}
}

// Append inserts one event.
func (r *SecurityLogRepository) Append(ctx context.Context, e security.Event) error {
	return insertSecurityEvent(ctx, r.conn, e)
}

// ListByAccount returns the account's events, newest first.
// An empty accountID selects events with no account.
func (r *SecurityLogRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]security.Event, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, account_id, kind, origin, detail, occurred_at
		FROM security_events
		WHERE account_id IS NOT DISTINCT FROM $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, nullString(accountID), limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list security events: %w", err)
	}
	return scanSecurityEvents(rows)
}

func insertSecurityEvent(ctx context.Context, q Querier, e security.Event) error {
	_, err := q.Exec(ctx, `
		INSERT INTO security_events (id, account_id, kind, origin, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, nullString(e.AccountID), string(e.Kind), e.Origin, e.Detail, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to append security event: %w", err)
	}
	return nil
}

func scanSecurityEvents(rows pgx.Rows) ([]security.Event, error) {
	defer rows.Close()

	var out []security.Event
	for rows.Next() {
		var (
			e         security.Event
			accountID *string
			kind      string
		)
		if err := rows.Scan(&e.ID, &accountID, &kind, &e.Origin, &e.Detail, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		if accountID != nil {
			e.AccountID = *accountID
		}
		e.Kind = security.Kind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// limitOrAll maps a non-positive limit to NULL, which Postgres treats as no limit.
func limitOrAll(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
