package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"cvforge/internal/types"
)

// UsageRepository provides data access for the usage_counters table.
//
// The table has a composite primary key (user_id, feature, period_start)
// so at most one counter row exists per user, feature, and calendar month.
// Rows for past periods are never read by entitlement checks and never
// deleted; history stays queryable for support and analytics.
type UsageRepository struct {
	db DBTX
}

// NewUsageRepository creates a new UsageRepository backed by the given
// database connection (pool or transaction).
func NewUsageRepository(db DBTX) *UsageRepository {
	return &UsageRepository{db: db}
}

// GetCount returns the consumption count for one feature in the period
// starting at periodStart. A missing row means no usage this period and
// returns 0; rollover is implicit because a new month simply has no row
// yet.
func (r *UsageRepository) GetCount(ctx context.Context, userID string, feature types.Feature, periodStart time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT count FROM usage_counters
		 WHERE user_id = $1 AND feature = $2 AND period_start = $3`,
		userID,
		feature,
		periodStart,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to read usage counter", err)
	}
	return count, nil
}

// Increment adds one consumption unit to the counter for the given
// period, creating the row on first use. The upsert makes concurrent
// increments safe: both land, neither is lost.
func (r *UsageRepository) Increment(ctx context.Context, userID string, feature types.Feature, periodStart, periodEnd time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO usage_counters (user_id, feature, period_start, period_end, count, updated_at)
		 VALUES ($1, $2, $3, $4, 1, NOW())
		 ON CONFLICT (user_id, feature, period_start)
		 DO UPDATE SET count = usage_counters.count + 1, updated_at = NOW()`,
		userID,
		feature,
		periodStart,
		periodEnd,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to increment usage counter", err)
	}
	return nil
}

// IncrementWithCap atomically increments the counter only while it is
// below cap, closing the race between a read-side limit check and the
// recording write. Returns true when the increment was admitted and
// false when the counter had already reached cap.
//
// The cap comparison lives in the UPDATE predicate so two concurrent
// calls at count = cap-1 serialize on the row: exactly one is admitted.
// The INSERT branch carries its own guard so a zero cap rejects even the
// first record of a period.
func (r *UsageRepository) IncrementWithCap(ctx context.Context, userID string, feature types.Feature, periodStart, periodEnd time.Time, cap int) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO usage_counters (user_id, feature, period_start, period_end, count, updated_at)
		 SELECT $1, $2, $3, $4, 1, NOW()
		 WHERE $5 > 0
		 ON CONFLICT (user_id, feature, period_start)
		 DO UPDATE SET count = usage_counters.count + 1, updated_at = NOW()
		 WHERE usage_counters.count < $5`,
		userID,
		feature,
		periodStart,
		periodEnd,
		cap,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to increment usage counter", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetPeriodCounters returns all counter rows for one user in the period
// starting at periodStart. Features with no row this period are absent;
// the caller fills in zeroes from the plan catalog.
func (r *UsageRepository) GetPeriodCounters(ctx context.Context, userID string, periodStart time.Time) ([]types.UsageCounter, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, feature, period_start, period_end, count, updated_at
		 FROM usage_counters
		 WHERE user_id = $1 AND period_start = $2
		 ORDER BY feature ASC`,
		userID,
		periodStart,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query usage counters", err)
	}
	defer rows.Close()

	var results []types.UsageCounter
	for rows.Next() {
		var c types.UsageCounter
		if err := rows.Scan(
			&c.UserID,
			&c.Feature,
			&c.PeriodStart,
			&c.PeriodEnd,
			&c.Count,
			&c.UpdatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan usage counter row", err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating usage counter rows", err)
	}

	return results, nil
}

// ResetForUser zeroes every counter a user has, across all periods.
// Idempotent; called after a plan change so the new tier starts from a
// clean slate, and safe to re-run if the upgrade flow crashes between
// persisting the plan and resetting usage.
func (r *UsageRepository) ResetForUser(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE usage_counters SET count = 0, updated_at = NOW()
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reset usage counters", err)
	}
	return nil
}

// ResetForPeriod zeroes all of a user's counters for the period starting
// at periodStart. Admin support tooling only; idempotent, and a user with
// no counters this period is not an error.
func (r *UsageRepository) ResetForPeriod(ctx context.Context, userID string, periodStart time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE usage_counters SET count = 0, updated_at = NOW()
		 WHERE user_id = $1 AND period_start = $2`,
		userID,
		periodStart,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reset usage counters", err)
	}
	return nil
}
