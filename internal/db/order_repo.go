package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"cvforge/internal/types"
)

// OrderRepository provides data access for the orders table.
//
// Status transitions are enforced in SQL predicates rather than
// read-modify-write sequences so concurrent webhook deliveries and
// polling verifications cannot double-apply a transition.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository creates a new OrderRepository backed by the given
// database connection (pool or transaction).
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// orderColumns defines the standard set of columns selected for order
// queries. Used consistently across all query methods to avoid column drift.
const orderColumns = `id, user_id, cv_id, package, amount_cents, currency, status, progress,
	provider_reference, access_code, edits_remaining, has_cover_letter,
	has_linkedin_optimization, template_count, generated_file_id,
	created_at, updated_at, completed_at`

// scanOrder scans a single order row into a types.Order struct.
// The columns must match the order defined in orderColumns.
func scanOrder(row pgx.Row) (*types.Order, error) {
	var o types.Order
	var (
		cvID            *string
		providerRef     *string
		accessCode      *string
		generatedFileID *string
	)
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&cvID,
		&o.Package,
		&o.AmountCents,
		&o.Currency,
		&o.Status,
		&o.Progress,
		&providerRef,
		&accessCode,
		&o.EditsRemaining,
		&o.HasCoverLetter,
		&o.HasLinkedInOptimized,
		&o.TemplateCount,
		&generatedFileID,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if cvID != nil {
		o.CVID = *cvID
	}
	if providerRef != nil {
		o.ProviderReference = *providerRef
	}
	if accessCode != nil {
		o.AccessCode = *accessCode
	}
	if generatedFileID != nil {
		o.GeneratedFileID = *generatedFileID
	}
	return &o, nil
}

// Create inserts a new order in pending status with zeroed entitlement
// fields. Entitlements are stamped only by Complete.
func (r *OrderRepository) Create(ctx context.Context, order *types.Order) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO orders (id, user_id, cv_id, package, amount_cents, currency, status, progress,
		 provider_reference, access_code, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW()), COALESCE($11, NOW()))`,
		order.ID,
		order.UserID,
		nilIfEmpty(order.CVID),
		order.Package,
		order.AmountCents,
		order.Currency,
		order.Status,
		order.Progress,
		nilIfEmpty(order.ProviderReference),
		nilIfEmpty(order.AccessCode),
		nilIfZeroTime(order.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictOrderState, "order reference already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create order", err)
	}
	return nil
}

// GetByID retrieves an order by its ID.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*types.Order, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`,
		id,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "order not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve order", err)
	}
	return o, nil
}

// GetByReference retrieves an order by its payment provider reference.
// Used by webhook and verification flows where only the reference is known.
func (r *OrderRepository) GetByReference(ctx context.Context, reference string) (*types.Order, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE provider_reference = $1`,
		reference,
	)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "order not found for reference", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve order by reference", err)
	}
	return o, nil
}

// ListByUser returns a user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]types.Order, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query orders", err)
	}
	defer rows.Close()

	var results []types.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan order row", err)
		}
		results = append(results, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating order rows", err)
	}

	return results, nil
}

// SetProviderDetails records the gateway reference and access code
// returned by charge initialization. Only valid while the order is
// pending.
func (r *OrderRepository) SetProviderDetails(ctx context.Context, orderID, reference, accessCode string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders SET provider_reference = $1, access_code = $2, updated_at = NOW()
		 WHERE id = $3 AND status = 'pending'`,
		reference,
		accessCode,
		orderID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set provider details", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictOrderState, "order is not pending", nil)
	}
	return nil
}

// MarkProcessing transitions a pending order to processing. Returns
// false without error if the order had already left pending, so callers
// can treat the transition as advisory.
func (r *OrderRepository) MarkProcessing(ctx context.Context, orderID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders SET status = 'processing', progress = GREATEST(progress, 10), updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'`,
		orderID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark order processing", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateProgress sets the fulfillment progress percentage on a
// non-terminal order.
func (r *OrderRepository) UpdateProgress(ctx context.Context, orderID string, progress int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE orders SET progress = $1, updated_at = NOW()
		 WHERE id = $2 AND status IN ('pending', 'processing')`,
		progress,
		orderID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update order progress", err)
	}
	return nil
}

// Complete transitions an order to completed and stamps the entitlement
// bundle from the package definition, all in one conditional UPDATE.
//
// The status predicate makes the call idempotent under replayed webhooks
// and concurrent verification polls: only the first caller performs the
// transition. Returns true when this call performed the stamping, and
// (false, nil) when the order was already completed. A failed order
// cannot be resurrected and returns ErrCodeConflictOrderState.
func (r *OrderRepository) Complete(ctx context.Context, orderID string, pkg types.PackageDefinition) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders SET status = 'completed', progress = 100,
		 edits_remaining = $1, has_cover_letter = $2, has_linkedin_optimization = $3,
		 template_count = $4, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $5 AND status IN ('pending', 'processing')`,
		int(pkg.EditsAllowed),
		pkg.CoverLetter,
		pkg.LinkedInOptimization,
		pkg.TemplateCount,
		orderID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to complete order", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// No transition happened; distinguish replay from misuse.
	existing, err := r.GetByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	if existing.Status == types.OrderCompleted {
		return false, nil
	}
	return false, types.NewAppError(types.ErrCodeConflictOrderState,
		"order cannot transition to completed", nil).
		WithDetails(map[string]any{"status": string(existing.Status)})
}

// MarkFailed transitions a pending or processing order to failed.
// Idempotent: an already-failed order returns (false, nil). A completed
// order returns ErrCodeConflictOrderState since terminal states never
// change.
func (r *OrderRepository) MarkFailed(ctx context.Context, orderID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders SET status = 'failed', updated_at = NOW()
		 WHERE id = $1 AND status IN ('pending', 'processing')`,
		orderID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark order failed", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	existing, err := r.GetByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	if existing.Status == types.OrderFailed {
		return false, nil
	}
	return false, types.NewAppError(types.ErrCodeConflictOrderState,
		"order cannot transition to failed", nil).
		WithDetails(map[string]any{"status": string(existing.Status)})
}

// DecrementEdits consumes one edit from a completed order's allowance.
// The conditional UPDATE serializes concurrent consumers on the row:
// edits_remaining never goes below zero. Returns the remaining count
// after the decrement.
//
// The unlimited-edits sentinel value is treated as a plain count and
// decremented like any other; a premium order exhausts after that many
// consumptions.
func (r *OrderRepository) DecrementEdits(ctx context.Context, orderID string) (int, error) {
	var remaining int
	err := r.db.QueryRow(ctx,
		`UPDATE orders SET edits_remaining = edits_remaining - 1, updated_at = NOW()
		 WHERE id = $1 AND status = 'completed' AND edits_remaining > 0
		 RETURNING edits_remaining`,
		orderID,
	).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to decrement edits", err)
	}

	// The predicate rejected the row; find out why.
	existing, getErr := r.GetByID(ctx, orderID)
	if getErr != nil {
		return 0, getErr
	}
	if existing.Status != types.OrderCompleted {
		return 0, types.NewAppError(types.ErrCodeConflictOrderState,
			"order is not completed", nil).
			WithDetails(map[string]any{"status": string(existing.Status)})
	}
	return 0, types.NewAppError(types.ErrCodeEditsExhausted, "edit allowance exhausted", nil)
}

// SetGeneratedFile records the document store ID of the rendered output.
func (r *OrderRepository) SetGeneratedFile(ctx context.Context, orderID, fileID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders SET generated_file_id = $1, updated_at = NOW() WHERE id = $2`,
		fileID,
		orderID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set generated file", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundOrder, "order not found", nil)
	}
	return nil
}
