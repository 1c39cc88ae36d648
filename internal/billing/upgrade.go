package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cvforge/internal/types"
)

// planStore is the user persistence the upgrade controller needs.
type planStore interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
	SetPlan(ctx context.Context, userID string, plan types.PlanTier, startDate time.Time) error
}

// usageResetter zeroes a user's counters after a plan change.
type usageResetter interface {
	ResetForUser(ctx context.Context, userID string) error
}

// auditRecorder appends audit events.
type auditRecorder interface {
	Record(ctx context.Context, event *types.AuditEvent) error
}

// PlanService owns plan transitions: self-serve upgrades and the admin
// override.
type PlanService struct {
	users   planStore
	usage   usageResetter
	catalog Catalog
	clock   Clock
	audit   auditRecorder
	logger  *slog.Logger
}

// NewPlanService creates the plan transition controller.
func NewPlanService(users planStore, usage usageResetter, catalog Catalog, clock Clock, audit auditRecorder, logger *slog.Logger) *PlanService {
	return &PlanService{
		users:   users,
		usage:   usage,
		catalog: catalog,
		clock:   clock,
		audit:   audit,
		logger:  logger,
	}
}

// Upgrade moves a user to a strictly higher tier.
//
// The plan and a fresh plan_start_date are persisted first, then usage
// counters are reset. The reset is idempotent, so a crash between the
// two steps leaves a retryable state rather than a corrupt one. Staying
// on the same tier and downgrading are both rejected as
// InvalidUpgradePath, distinguished only by message.
func (s *PlanService) Upgrade(ctx context.Context, userID string, target types.PlanTier) (*types.PlanChange, error) {
	if _, err := s.catalog.GetPlan(target); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if target == user.Plan {
		return nil, types.NewAppError(types.ErrCodeInvalidUpgradePath,
			fmt.Sprintf("already on the %s plan", target), nil)
	}
	if target.Rank() < user.Plan.Rank() {
		return nil, types.NewAppError(types.ErrCodeInvalidUpgradePath,
			fmt.Sprintf("cannot downgrade from %s to %s", user.Plan, target), nil)
	}

	if err := s.users.SetPlan(ctx, userID, target, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.usage.ResetForUser(ctx, userID); err != nil {
		// Plan change is already durable; surface the error so the
		// caller retries the idempotent reset.
		return nil, err
	}

	change := &types.PlanChange{
		UserID:       userID,
		PreviousPlan: user.Plan,
		NewPlan:      target,
	}
	s.recordAudit(ctx, types.Actor{ID: userID, Type: types.ActorTypeUser},
		types.AuditActionPlanUpgraded, change)

	s.logger.InfoContext(ctx, "plan upgraded",
		"user_id", userID, "from", user.Plan, "to", target)
	return change, nil
}

// SetPlanDirect assigns any valid tier without upgrade-path validation.
// Admin and operational tooling only. Usage counters are reset so the
// user starts the assigned tier with a clean slate.
func (s *PlanService) SetPlanDirect(ctx context.Context, actor types.Actor, userID string, target types.PlanTier) (*types.PlanChange, error) {
	if _, err := s.catalog.GetPlan(target); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.users.SetPlan(ctx, userID, target, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.usage.ResetForUser(ctx, userID); err != nil {
		return nil, err
	}

	change := &types.PlanChange{
		UserID:       userID,
		PreviousPlan: user.Plan,
		NewPlan:      target,
	}
	s.recordAudit(ctx, actor, types.AuditActionAdminPlanOverride, change)

	s.logger.InfoContext(ctx, "plan overridden",
		"user_id", userID, "from", user.Plan, "to", target, "actor_id", actor.ID)
	return change, nil
}

// recordAudit appends a plan-change audit event. Best-effort: a failed
// audit write is logged, never surfaced.
func (s *PlanService) recordAudit(ctx context.Context, actor types.Actor, action string, change *types.PlanChange) {
	oldVal, _ := json.Marshal(change.PreviousPlan)
	newVal, _ := json.Marshal(change.NewPlan)
	err := s.audit.Record(ctx, &types.AuditEvent{
		ID:           uuid.NewString(),
		Actor:        actor,
		Action:       action,
		ResourceID:   change.UserID,
		ResourceType: "user",
		OldValue:     oldVal,
		NewValue:     newVal,
		Timestamp:    s.clock.Now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record audit event",
			"action", action, "user_id", change.UserID, "error", err)
	}
}
