package billing

import (
	"context"
	"log/slog"
	"time"

	"cvforge/internal/types"
)

// usageWriter is the counter mutation surface the meter needs.
type usageWriter interface {
	Increment(ctx context.Context, userID string, feature types.Feature, periodStart, periodEnd time.Time) error
	IncrementWithCap(ctx context.Context, userID string, feature types.Feature, periodStart, periodEnd time.Time, cap int) (bool, error)
}

// Meter records consumption into the current billing period. It owns
// the period math so callers never touch raw timestamps.
type Meter struct {
	catalog Catalog
	users   userGetter
	usage   usageWriter
	clock   Clock
	logger  *slog.Logger
}

// NewMeter creates a usage meter.
func NewMeter(catalog Catalog, users userGetter, usage usageWriter, clock Clock, logger *slog.Logger) *Meter {
	return &Meter{
		catalog: catalog,
		users:   users,
		usage:   usage,
		clock:   clock,
		logger:  logger,
	}
}

// Record adds one consumption unit unconditionally. Called after a
// gated action succeeded; a failed action is never recorded.
func (m *Meter) Record(ctx context.Context, userID string, feature types.Feature) error {
	period := CurrentPeriod(m.clock)
	return m.usage.Increment(ctx, userID, feature, period.Start, period.End)
}

// RecordWithinCap adds one consumption unit only while the user's plan
// cap has headroom, using the atomic conditional increment. Returns
// true when the unit was admitted. Unlimited plans skip the cap and
// always record.
//
// This closes the window between a CheckLimit read and the recording
// write: two concurrent requests at cap-1 both pass the check, but only
// one increment is admitted here. Callers that have already performed
// the user-facing action treat a false return as already-consumed and
// still succeed; the counter simply refuses to overshoot.
func (m *Meter) RecordWithinCap(ctx context.Context, userID string, feature types.Feature) (bool, error) {
	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	limit, err := m.catalog.LimitFor(user.Plan, feature)
	if err != nil {
		return false, err
	}

	period := CurrentPeriod(m.clock)
	if limit.IsUnlimited() {
		if err := m.usage.Increment(ctx, userID, feature, period.Start, period.End); err != nil {
			return false, err
		}
		return true, nil
	}

	admitted, err := m.usage.IncrementWithCap(ctx, userID, feature, period.Start, period.End, limit.Value())
	if err != nil {
		return false, err
	}
	if !admitted {
		m.logger.WarnContext(ctx, "usage increment rejected at cap",
			"user_id", userID, "feature", feature, "cap", limit.Value())
	}
	return admitted, nil
}
