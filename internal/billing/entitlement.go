package billing

import (
	"context"
	"log/slog"
	"time"

	"cvforge/internal/types"
)

// userGetter is the narrow user lookup the entitlement checker needs.
type userGetter interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// usageLedger is the counter access the entitlement checker needs.
type usageLedger interface {
	GetCount(ctx context.Context, userID string, feature types.Feature, periodStart time.Time) (int, error)
}

// Entitlements answers "may this user do this right now". Checks are
// fail-closed: any error resolving the user, plan, or counter denies the
// action rather than defaulting it open.
type Entitlements struct {
	catalog Catalog
	users   userGetter
	usage   usageLedger
	clock   Clock
	logger  *slog.Logger
}

// NewEntitlements creates the entitlement checker.
func NewEntitlements(catalog Catalog, users userGetter, usage usageLedger, clock Clock, logger *slog.Logger) *Entitlements {
	return &Entitlements{
		catalog: catalog,
		users:   users,
		usage:   usage,
		clock:   clock,
		logger:  logger,
	}
}

// CheckLimit evaluates a count-based gate for one user and feature.
//
// Unlimited plans short-circuit before any ledger read. For limited
// plans the current period's counter is compared against the cap; a
// missing counter row reads as zero, which also covers period rollover.
// On any lookup failure the returned status denies and the error is
// propagated for logging.
func (e *Entitlements) CheckLimit(ctx context.Context, userID string, feature types.Feature) (*types.LimitStatus, error) {
	denied := &types.LimitStatus{Feature: feature, Reached: true, Limit: types.LimitOf(0)}

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		e.logger.WarnContext(ctx, "entitlement check failed closed",
			"user_id", userID, "feature", feature, "error", err)
		return denied, err
	}
	denied.CurrentPlan = user.Plan

	limit, err := e.catalog.LimitFor(user.Plan, feature)
	if err != nil {
		return denied, err
	}

	status := &types.LimitStatus{
		Feature:     feature,
		Limit:       limit,
		CurrentPlan: user.Plan,
	}
	if limit.IsUnlimited() {
		return status, nil
	}

	period := CurrentPeriod(e.clock)
	count, err := e.usage.GetCount(ctx, userID, feature, period.Start)
	if err != nil {
		e.logger.WarnContext(ctx, "entitlement check failed closed",
			"user_id", userID, "feature", feature, "error", err)
		return denied, err
	}

	status.Current = count
	status.Reached = limit.Reached(count)
	if status.Reached {
		status.RequiredPlan = e.requiredPlanFor(user.Plan, feature, limit)
	}
	return status, nil
}

// CheckAccess evaluates a binary tier gate. Returns nil when the user's
// plan unlocks the capability and an AccessDenied AppError otherwise.
// Capability gates run before count gates so a locked feature reports
// "wrong plan" rather than "limit reached".
func (e *Entitlements) CheckAccess(ctx context.Context, userID string, cap types.Capability) error {
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	has, err := e.catalog.HasCapability(user.Plan, cap)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	details := map[string]any{
		"capability":   string(cap),
		"current_plan": string(user.Plan),
	}
	if required := e.requiredPlanForCapability(user.Plan, cap); required != nil {
		details["required_plan"] = string(*required)
	}
	return types.NewAppErrorWithDetails(types.ErrCodeAccessDenied,
		"current plan does not include this feature", nil, details)
}

// DenyLimit converts a reached LimitStatus into the LimitReached
// AppError the API layer returns. The details shape is a contract with
// the upgrade prompt UI.
func DenyLimit(status *types.LimitStatus) *types.AppError {
	details := map[string]any{
		"feature":      string(status.Feature),
		"current":      status.Current,
		"limit":        status.Limit.Sentinel(),
		"current_plan": string(status.CurrentPlan),
	}
	if status.RequiredPlan != nil {
		details["required_plan"] = string(*status.RequiredPlan)
	}
	return types.NewAppErrorWithDetails(types.ErrCodeLimitReached,
		"monthly limit reached for this feature", nil, details)
}

// requiredPlanFor returns the lowest tier strictly above current whose
// cap for the feature strictly exceeds the current cap (unlimited always
// exceeds). Nil when no higher tier improves the limit.
func (e *Entitlements) requiredPlanFor(current types.PlanTier, feature types.Feature, currentLimit types.Limit) *types.PlanTier {
	for _, tier := range types.AllPlanTiers {
		if tier.Rank() <= current.Rank() {
			continue
		}
		candidate, err := e.catalog.LimitFor(tier, feature)
		if err != nil {
			continue
		}
		if candidate.Exceeds(currentLimit) {
			t := tier
			return &t
		}
	}
	return nil
}

// requiredPlanForCapability returns the lowest tier above current that
// unlocks the capability, or nil if none does.
func (e *Entitlements) requiredPlanForCapability(current types.PlanTier, cap types.Capability) *types.PlanTier {
	for _, tier := range types.AllPlanTiers {
		if tier.Rank() <= current.Rank() {
			continue
		}
		has, err := e.catalog.HasCapability(tier, cap)
		if err != nil {
			continue
		}
		if has {
			t := tier
			return &t
		}
	}
	return nil
}

// Summary returns the limit status for every metered feature in the
// current period. Used by the usage endpoint and the operational CLI.
func (e *Entitlements) Summary(ctx context.Context, userID string) ([]types.LimitStatus, error) {
	statuses := make([]types.LimitStatus, 0, len(types.AllFeatures))
	for _, feature := range types.AllFeatures {
		status, err := e.CheckLimit(ctx, userID, feature)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *status)
	}
	return statuses, nil
}
