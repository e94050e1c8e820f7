package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/platefare/restaurant-payouts/internal/domain"
	"github.com/platefare/restaurant-payouts/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a row exists but is not in a state
	// the operation allows.
	ErrConflict = errors.New("record not in expected state")
)

// Postgres stores payout records, bank info and schedules in Postgres.
// All multi-row mutations run inside a single transaction.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the payout tables when they do not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS payout_records (
			id UUID PRIMARY KEY,
			restaurant_id UUID NOT NULL,
			amount BIGINT NOT NULL CHECK (amount > 0),
			currency TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			order_id UUID,
			payment_intent_id TEXT NOT NULL,
			scheduled_date TIMESTAMPTZ NOT NULL,
			processed_date TIMESTAMPTZ,
			transfer_id TEXT,
			failure_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payout_records_due
			ON payout_records (scheduled_date) WHERE status = 'pending'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payout_records_intent
			ON payout_records (payment_intent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payout_records_restaurant
			ON payout_records (restaurant_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS bank_info (
			id UUID PRIMARY KEY,
			restaurant_id UUID NOT NULL,
			bank_name TEXT NOT NULL,
			account_number TEXT NOT NULL,
			routing_number TEXT NOT NULL,
			account_holder_name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			verified_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bank_info_active
			ON bank_info (restaurant_id) WHERE is_active`,
		`CREATE TABLE IF NOT EXISTS payout_schedules (
			restaurant_id UUID PRIMARY KEY,
			account_id TEXT NOT NULL,
			interval TEXT NOT NULL,
			weekly_anchor INT NOT NULL DEFAULT 5,
			monthly_anchor INT NOT NULL DEFAULT 1 CHECK (monthly_anchor BETWEEN 1 AND 31),
			minimum_amount BIGINT NOT NULL DEFAULT 0,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// runInTx executes fn within a database transaction.
func (p *Postgres) runInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const payoutColumns = `id, restaurant_id, amount, currency, status, order_id, payment_intent_id,
	scheduled_date, processed_date, transfer_id, failure_reason, created_at, updated_at`

func scanPayout(row pgx.Row) (*models.PayoutRecord, error) {
	var rec models.PayoutRecord
	var status string
	err := row.Scan(&rec.ID, &rec.RestaurantID, &rec.Amount, &rec.Currency, &status, &rec.OrderID,
		&rec.PaymentIntentID, &rec.ScheduledDate, &rec.ProcessedDate, &rec.TransferID,
		&rec.FailureReason, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = domain.PayoutStatus(status)
	return &rec, nil
}

func (p *Postgres) CreatePayout(ctx context.Context, payout *models.PayoutRecord) error {
	query := `INSERT INTO payout_records
		(id, restaurant_id, amount, currency, status, order_id, payment_intent_id, scheduled_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at`
	err := p.db.QueryRow(ctx, query,
		payout.ID, payout.RestaurantID, payout.Amount, payout.Currency, string(payout.Status),
		payout.OrderID, payout.PaymentIntentID, payout.ScheduledDate,
	).Scan(&payout.CreatedAt, &payout.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Replayed settlement event: a record with this
			// payment_intent_id already exists.
			return fmt.Errorf("create payout record: %w", ErrConflict)
		}
		return fmt.Errorf("create payout record: %w", err)
	}
	return nil
}

func (p *Postgres) GetPayout(ctx context.Context, id uuid.UUID) (*models.PayoutRecord, error) {
	query := `SELECT ` + payoutColumns + ` FROM payout_records WHERE id = $1`
	rec, err := scanPayout(p.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get payout record: %w", err)
	}
	return rec, nil
}

func (p *Postgres) ClaimDuePayouts(ctx context.Context, now time.Time, limit int32) ([]models.PayoutRecord, error) {
	var claimed []models.PayoutRecord
	err := p.runInTx(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + payoutColumns + `
			FROM payout_records
			WHERE status = 'pending' AND scheduled_date <= $1
			ORDER BY scheduled_date
			LIMIT $2
			FOR UPDATE SKIP LOCKED`
		rows, err := tx.Query(ctx, query, now, limit)
		if err != nil {
			return fmt.Errorf("select due payouts: %w", err)
		}
		defer rows.Close()

		var ids []uuid.UUID
		for rows.Next() {
			rec, err := scanPayout(rows)
			if err != nil {
				return fmt.Errorf("scan due payout: %w", err)
			}
			rec.Status = domain.PayoutStatusProcessing
			claimed = append(claimed, *rec)
			ids = append(ids, rec.ID)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate due payouts: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		tag, err := tx.Exec(ctx,
			`UPDATE payout_records SET status = 'processing', updated_at = NOW() WHERE id = ANY($1)`, ids)
		if err != nil {
			return fmt.Errorf("claim due payouts: %w", err)
		}
		if tag.RowsAffected() != int64(len(ids)) {
			return fmt.Errorf("claim due payouts affected %d of %d rows", tag.RowsAffected(), len(ids))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (p *Postgres) CompletePayouts(ctx context.Context, ids []uuid.UUID, transferID string, processedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return p.runInTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE payout_records
			SET status = 'completed', transfer_id = $2, processed_date = $3, failure_reason = NULL, updated_at = NOW()
			WHERE id = ANY($1) AND status = 'processing'`,
			ids, transferID, processedAt)
		if err != nil {
			return fmt.Errorf("complete payout group: %w", err)
		}
		return requireAll(tag.RowsAffected(), len(ids), "complete payout group")
	})
}

func (p *Postgres) FailPayouts(ctx context.Context, ids []uuid.UUID, reason string, processedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return p.runInTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE payout_records
			SET status = 'failed', failure_reason = $2, processed_date = $3, updated_at = NOW()
			WHERE id = ANY($1) AND status = 'processing'`,
			ids, reason, processedAt)
		if err != nil {
			return fmt.Errorf("fail payout group: %w", err)
		}
		return requireAll(tag.RowsAffected(), len(ids), "fail payout group")
	})
}

func (p *Postgres) ReleasePayouts(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return p.runInTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE payout_records
			SET status = 'pending', updated_at = NOW()
			WHERE id = ANY($1) AND status = 'processing'`, ids)
		if err != nil {
			return fmt.Errorf("release payout group: %w", err)
		}
		return requireAll(tag.RowsAffected(), len(ids), "release payout group")
	})
}

func (p *Postgres) RetryPayout(ctx context.Context, id uuid.UUID, scheduledDate time.Time) error {
	tag, err := p.db.Exec(ctx, `UPDATE payout_records
		SET status = 'pending', failure_reason = NULL, processed_date = NULL, transfer_id = NULL,
			scheduled_date = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'failed'`, id, scheduledDate)
	if err != nil {
		return fmt.Errorf("retry payout: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := p.GetPayout(ctx, id); err != nil {
		return err
	}
	return ErrConflict
}

func (p *Postgres) ListPayoutHistory(ctx context.Context, restaurantID uuid.UUID, limit int32) ([]models.PayoutRecord, error) {
	query := `SELECT ` + payoutColumns + `
		FROM payout_records
		WHERE restaurant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := p.db.Query(ctx, query, restaurantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list payout history: %w", err)
	}
	defer rows.Close()

	var records []models.PayoutRecord
	for rows.Next() {
		rec, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payout record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (p *Postgres) PendingEarnings(ctx context.Context, restaurantID uuid.UUID) (int64, error) {
	var sum int64
	err := p.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payout_records WHERE restaurant_id = $1 AND status = 'pending'`,
		restaurantID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum pending earnings: %w", err)
	}
	return sum, nil
}

// SaveBankInfo deactivates every prior record for the restaurant and
// inserts the new active one in the same transaction, preserving the
// at-most-one-active invariant.
func (p *Postgres) SaveBankInfo(ctx context.Context, info *models.BankInfo) error {
	return p.runInTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE bank_info SET is_active = FALSE WHERE restaurant_id = $1 AND is_active`,
			info.RestaurantID); err != nil {
			return fmt.Errorf("deactivate bank info: %w", err)
		}
		err := tx.QueryRow(ctx, `INSERT INTO bank_info
			(id, restaurant_id, bank_name, account_number, routing_number, account_holder_name, is_active, verified_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, NOW())
			RETURNING created_at`,
			info.ID, info.RestaurantID, info.BankName, info.AccountNumber, info.RoutingNumber,
			info.AccountHolderName, info.VerifiedAt,
		).Scan(&info.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert bank info: %w", err)
		}
		info.IsActive = true
		return nil
	})
}

func (p *Postgres) GetActiveBankInfo(ctx context.Context, restaurantID uuid.UUID) (*models.BankInfo, error) {
	var info models.BankInfo
	err := p.db.QueryRow(ctx, `SELECT id, restaurant_id, bank_name, account_number, routing_number,
			account_holder_name, is_active, verified_at, created_at
		FROM bank_info
		WHERE restaurant_id = $1 AND is_active`, restaurantID,
	).Scan(&info.ID, &info.RestaurantID, &info.BankName, &info.AccountNumber, &info.RoutingNumber,
		&info.AccountHolderName, &info.IsActive, &info.VerifiedAt, &info.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get active bank info: %w", err)
	}
	return &info, nil
}

func (p *Postgres) UpsertSchedule(ctx context.Context, sched *models.PayoutSchedule) error {
	err := p.db.QueryRow(ctx, `INSERT INTO payout_schedules
		(restaurant_id, account_id, interval, weekly_anchor, monthly_anchor, minimum_amount, enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (restaurant_id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			interval = EXCLUDED.interval,
			weekly_anchor = EXCLUDED.weekly_anchor,
			monthly_anchor = EXCLUDED.monthly_anchor,
			minimum_amount = EXCLUDED.minimum_amount,
			enabled = EXCLUDED.enabled,
			updated_at = NOW()
		RETURNING updated_at`,
		sched.RestaurantID, sched.AccountID, string(sched.Interval), int(sched.WeeklyAnchor),
		sched.MonthlyAnchor, sched.MinimumAmount, sched.Enabled,
	).Scan(&sched.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert payout schedule: %w", err)
	}
	return nil
}

func (p *Postgres) GetSchedule(ctx context.Context, restaurantID uuid.UUID) (*models.PayoutSchedule, error) {
	var sched models.PayoutSchedule
	var interval string
	var weeklyAnchor int
	err := p.db.QueryRow(ctx, `SELECT restaurant_id, account_id, interval, weekly_anchor, monthly_anchor,
			minimum_amount, enabled, updated_at
		FROM payout_schedules WHERE restaurant_id = $1`, restaurantID,
	).Scan(&sched.RestaurantID, &sched.AccountID, &interval, &weeklyAnchor, &sched.MonthlyAnchor,
		&sched.MinimumAmount, &sched.Enabled, &sched.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get payout schedule: %w", err)
	}
	sched.Interval = domain.ScheduleInterval(interval)
	sched.WeeklyAnchor = time.Weekday(weeklyAnchor)
	return &sched, nil
}

func (p *Postgres) ListEnabledSchedules(ctx context.Context) ([]models.PayoutSchedule, error) {
	rows, err := p.db.Query(ctx, `SELECT restaurant_id, account_id, interval, weekly_anchor, monthly_anchor,
			minimum_amount, enabled, updated_at
		FROM payout_schedules WHERE enabled ORDER BY restaurant_id`)
	if err != nil {
		return nil, fmt.Errorf("list enabled schedules: %w", err)
	}
	defer rows.Close()

	var schedules []models.PayoutSchedule
	for rows.Next() {
		var sched models.PayoutSchedule
		var interval string
		var weeklyAnchor int
		if err := rows.Scan(&sched.RestaurantID, &sched.AccountID, &interval, &weeklyAnchor,
			&sched.MonthlyAnchor, &sched.MinimumAmount, &sched.Enabled, &sched.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan payout schedule: %w", err)
		}
		sched.Interval = domain.ScheduleInterval(interval)
		sched.WeeklyAnchor = time.Weekday(weeklyAnchor)
		schedules = append(schedules, sched)
	}
	return schedules, rows.Err()
}

func requireAll(affected int64, expected int, operation string) error {
	if affected != int64(expected) {
		return fmt.Errorf("%s affected %d of %d rows", operation, affected, expected)
	}
	return nil
}
