package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ndmx/upscale/internal/domain/enrollment"
	"github.com/ndmx/upscale/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENT INTENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// IntentRepository implements enrollment.Repository for PostgreSQL.
// Intents live in payment_intents, their legs in payment_legs.
type IntentRepository struct {
	conn *Connection
}

var _ enrollment.Repository = (*IntentRepository)(nil)

// NewIntentRepository creates a new IntentRepository.
func NewIntentRepository(conn *Connection) *IntentRepository {
	return &IntentRepository{conn: conn}
}

const intentColumns = `id, account_id, course_id, plan, amount_expected, amount_paid, leg_amount, leg_count, status, created_at, updated_at`

const legColumns = `reference, intent_id, sequence, amount, status, authorization_url, access_code, failure_reason, verified_at, created_at`

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a new intent with its legs. The partial unique index on
// active intents turns a concurrent duplicate into ErrDuplicateActiveIntent.
func (r *IntentRepository) Create(ctx context.Context, intent *enrollment.PaymentIntent) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO payment_intents (`+intentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			intent.ID,
			intent.AccountID,
			intent.CourseID,
			string(intent.Plan),
			intent.AmountExpected.Int64(),
			intent.AmountPaid.Int64(),
			intent.LegAmount.Int64(),
			intent.LegCount,
			string(intent.Status),
			intent.CreatedAt,
			intent.UpdatedAt,
		)
		if err != nil {
			if IsUniqueViolation(err, "payment_intents_one_active") {
				return shared.ErrDuplicateActiveIntent
			}
			return fmt.Errorf("failed to create payment intent: %w", err)
		}
		return upsertLegs(ctx, tx, intent.Legs)
	})
}

// Save writes the intent's status and amounts and upserts its legs.
func (r *IntentRepository) Save(ctx context.Context, intent *enrollment.PaymentIntent) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if err := updateIntent(ctx, tx, intent); err != nil {
			return err
		}
		return upsertLegs(ctx, tx, intent.Legs)
	})
}

// Settle closes the leg only if it is still pending in the database, then
// writes the rest of the intent. A false result means another caller
// settled the leg first and nothing was written.
func (r *IntentRepository) Settle(ctx context.Context, intent *enrollment.PaymentIntent, reference string) (bool, error) {
	leg, ok := intent.Leg(reference)
	if !ok {
		return false, shared.ErrLegNotFound
	}

	settled := false
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE payment_legs SET
				status = $1,
				failure_reason = $2,
				verified_at = $3
			WHERE reference = $4 AND status = 'pending'
		`, string(leg.Status), leg.FailureReason, nullTime(leg.VerifiedAt), reference)
		if err != nil {
			return fmt.Errorf("failed to settle payment leg: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payment_legs WHERE reference = $1)`, reference).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check payment leg: %w", err)
			}
			if !exists {
				return shared.ErrLegNotFound
			}
			return nil
		}

		if err := updateIntent(ctx, tx, intent); err != nil {
			return err
		}
		settled = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return settled, nil
}

func updateIntent(ctx context.Context, tx pgx.Tx, intent *enrollment.PaymentIntent) error {
	tag, err := tx.Exec(ctx, `
		UPDATE payment_intents SET
			amount_paid = $1,
			status = $2,
			updated_at = $3
		WHERE id = $4
	`, intent.AmountPaid.Int64(), string(intent.Status), intent.UpdatedAt, intent.ID)
	if err != nil {
		return fmt.Errorf("failed to update payment intent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrIntentNotFound
	}
	return nil
}

func upsertLegs(ctx context.Context, tx pgx.Tx, legs []enrollment.PaymentLeg) error {
	batch := &pgx.Batch{}
	for _, l := range legs {
		batch.Queue(`
			INSERT INTO payment_legs (`+legColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (reference) DO UPDATE SET
				status = EXCLUDED.status,
				authorization_url = EXCLUDED.authorization_url,
				access_code = EXCLUDED.access_code,
				failure_reason = EXCLUDED.failure_reason,
				verified_at = EXCLUDED.verified_at
		`,
			l.Reference,
			l.IntentID,
			l.Sequence,
			l.Amount.Int64(),
			string(l.Status),
			l.AuthorizationURL,
			l.AccessCode,
			l.FailureReason,
			nullTime(l.VerifiedAt),
			l.CreatedAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert payment legs: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// Get returns an intent by ID.
func (r *IntentRepository) Get(ctx context.Context, id string) (*enrollment.PaymentIntent, error) {
	if !isUUID(id) {
		return nil, shared.ErrIntentNotFound
	}
	intents, err := r.query(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(intents) == 0 {
		return nil, shared.ErrIntentNotFound
	}
	return intents[0], nil
}

// GetByReference returns the intent owning the leg.
func (r *IntentRepository) GetByReference(ctx context.Context, reference string) (*enrollment.PaymentIntent, error) {
	intents, err := r.query(ctx, `
		SELECT `+intentColumns+` FROM payment_intents
		WHERE id = (SELECT intent_id FROM payment_legs WHERE reference = $1)
	`, reference)
	if err != nil {
		return nil, err
	}
	if len(intents) == 0 {
		return nil, shared.ErrLegNotFound
	}
	return intents[0], nil
}

// FindActive returns the non-failed intent for (account, course).
func (r *IntentRepository) FindActive(ctx context.Context, accountID, courseID string) (*enrollment.PaymentIntent, error) {
	if !isUUID(accountID) || !isUUID(courseID) {
		return nil, shared.ErrIntentNotFound
	}
	intents, err := r.query(ctx, `
		SELECT `+intentColumns+` FROM payment_intents
		WHERE account_id = $1 AND course_id = $2 AND status <> 'failed'
	`, accountID, courseID)
	if err != nil {
		return nil, err
	}
	if len(intents) == 0 {
		return nil, shared.ErrIntentNotFound
	}
	return intents[0], nil
}

// ListByAccount returns all intents of an account, newest first.
func (r *IntentRepository) ListByAccount(ctx context.Context, accountID string) ([]*enrollment.PaymentIntent, error) {
	if !isUUID(accountID) {
		return nil, nil
	}
	return r.query(ctx, `
		SELECT `+intentColumns+` FROM payment_intents
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
}

// ListWithPendingLegs returns intents that have a pending leg created before the cutoff.
func (r *IntentRepository) ListWithPendingLegs(ctx context.Context, before time.Time) ([]*enrollment.PaymentIntent, error) {
	return r.query(ctx, `
		SELECT `+intentColumns+` FROM payment_intents
		WHERE id IN (
			SELECT intent_id FROM payment_legs
			WHERE status = 'pending' AND created_at < $1
		)
		ORDER BY created_at
	`, before)
}

// query loads intents and then their legs in a second round trip.
func (r *IntentRepository) query(ctx context.Context, sql string, args ...any) ([]*enrollment.PaymentIntent, error) {
	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment intents: %w", err)
	}

	var (
		intents []*enrollment.PaymentIntent
		ids     []string
		byID    = make(map[string]*enrollment.PaymentIntent)
	)
	for rows.Next() {
		var (
			i                         enrollment.PaymentIntent
			plan, status              string
			expected, paid, legAmount int64
		)
		if err := rows.Scan(&i.ID, &i.AccountID, &i.CourseID, &plan, &expected, &paid, &legAmount, &i.LegCount, &status, &i.CreatedAt, &i.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan payment intent: %w", err)
		}
		i.Plan = enrollment.Plan(plan)
		i.Status = enrollment.Status(status)
		i.AmountExpected = shared.Kobo(expected)
		i.AmountPaid = shared.Kobo(paid)
		i.LegAmount = shared.Kobo(legAmount)

		intents = append(intents, &i)
		ids = append(ids, i.ID)
		byID[i.ID] = &i
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read payment intents: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	legRows, err := r.conn.Query(ctx, `
		SELECT `+legColumns+` FROM payment_legs
		WHERE intent_id = ANY($1)
		ORDER BY intent_id, sequence
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment legs: %w", err)
	}
	defer legRows.Close()

	for legRows.Next() {
		var (
			l          enrollment.PaymentLeg
			amount     int64
			status     string
			verifiedAt *time.Time
		)
		if err := legRows.Scan(&l.Reference, &l.IntentID, &l.Sequence, &amount, &status, &l.AuthorizationURL, &l.AccessCode, &l.FailureReason, &verifiedAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment leg: %w", err)
		}
		l.Amount = shared.Kobo(amount)
		l.Status = enrollment.LegStatus(status)
		if verifiedAt != nil {
			l.VerifiedAt = verifiedAt.UTC()
		}
		if intent, ok := byID[l.IntentID]; ok {
			intent.Legs = append(intent.Legs, l)
		}
	}
	return intents, legRows.Err()
}
