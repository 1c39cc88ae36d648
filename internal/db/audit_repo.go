package db

import (
	"context"

	"cvforge/internal/types"
)

// AuditRepository provides append-only access to the audit_events table.
// Audit writes are best-effort from the caller's perspective: services
// log a warning on failure instead of failing the user-facing operation.
type AuditRepository struct {
	db DBTX
}

// NewAuditRepository creates a new AuditRepository backed by the given
// database connection (pool or transaction).
func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record appends one audit event.
func (r *AuditRepository) Record(ctx context.Context, event *types.AuditEvent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO audit_events (id, actor_id, actor_type, action, resource_id, resource_type,
		 old_value, new_value, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))`,
		event.ID,
		nilIfEmpty(event.Actor.ID),
		event.Actor.Type,
		event.Action,
		nilIfEmpty(event.ResourceID),
		nilIfEmpty(event.ResourceType),
		event.OldValue,
		event.NewValue,
		nilIfZeroTime(event.Timestamp),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record audit event", err)
	}
	return nil
}

// ListByResource returns the audit trail for one resource, newest first.
func (r *AuditRepository) ListByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]types.AuditEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, actor_id, actor_type, action, resource_id, resource_type,
		 old_value, new_value, created_at
		 FROM audit_events
		 WHERE resource_type = $1 AND resource_id = $2
		 ORDER BY created_at DESC
		 LIMIT $3`,
		resourceType,
		resourceID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query audit events", err)
	}
	defer rows.Close()

	var results []types.AuditEvent
	for rows.Next() {
		var (
			e            types.AuditEvent
			actorID      *string
			resourceID   *string
			resourceType *string
		)
		if err := rows.Scan(
			&e.ID,
			&actorID,
			&e.Actor.Type,
			&e.Action,
			&resourceID,
			&resourceType,
			&e.OldValue,
			&e.NewValue,
			&e.Timestamp,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan audit event row", err)
		}
		if actorID != nil {
			e.Actor.ID = *actorID
		}
		if resourceID != nil {
			e.ResourceID = *resourceID
		}
		if resourceType != nil {
			e.ResourceType = *resourceType
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating audit event rows", err)
	}

	return results, nil
}
