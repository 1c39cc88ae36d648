package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"cvforge/internal/types"
)

// CVRepository provides data access for the cvs table. All reads are
// scoped by owner; a CV belonging to another user is indistinguishable
// from a missing one.
type CVRepository struct {
	db DBTX
}

// NewCVRepository creates a new CVRepository backed by the given
// database connection (pool or transaction).
func NewCVRepository(db DBTX) *CVRepository {
	return &CVRepository{db: db}
}

const cvColumns = `id, user_id, title, template_id, data, created_at, updated_at`

func scanCV(row pgx.Row) (*types.CV, error) {
	var cv types.CV
	err := row.Scan(
		&cv.ID,
		&cv.UserID,
		&cv.Title,
		&cv.TemplateID,
		&cv.Data,
		&cv.CreatedAt,
		&cv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cv, nil
}

// Create inserts a new CV record.
func (r *CVRepository) Create(ctx context.Context, cv *types.CV) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO cvs (id, user_id, title, template_id, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()), COALESCE($6, NOW()))`,
		cv.ID,
		cv.UserID,
		cv.Title,
		cv.TemplateID,
		cv.Data,
		nilIfZeroTime(cv.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create cv", err)
	}
	return nil
}

// GetByID retrieves a CV by ID scoped to its owner.
// Returns ErrCodeNotFoundCV when missing or owned by someone else.
func (r *CVRepository) GetByID(ctx context.Context, id string, userID string) (*types.CV, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+cvColumns+` FROM cvs WHERE id = $1 AND user_id = $2`,
		id,
		userID,
	)

	cv, err := scanCV(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundCV, "cv not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve cv", err)
	}
	return cv, nil
}

// ListByUser returns a user's CVs, newest first.
func (r *CVRepository) ListByUser(ctx context.Context, userID string, limit int) ([]types.CV, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+cvColumns+` FROM cvs
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query cvs", err)
	}
	defer rows.Close()

	var results []types.CV
	for rows.Next() {
		cv, err := scanCV(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan cv row", err)
		}
		results = append(results, *cv)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating cv rows", err)
	}

	return results, nil
}

// Update replaces the mutable fields of a CV (title, template, payload),
// scoped to the owner.
func (r *CVRepository) Update(ctx context.Context, cv *types.CV) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE cvs SET title = $1, template_id = $2, data = $3, updated_at = NOW()
		 WHERE id = $4 AND user_id = $5`,
		cv.Title,
		cv.TemplateID,
		cv.Data,
		cv.ID,
		cv.UserID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update cv", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundCV, "cv not found", nil)
	}
	return nil
}

// Delete removes a CV, scoped to the owner.
func (r *CVRepository) Delete(ctx context.Context, id string, userID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM cvs WHERE id = $1 AND user_id = $2`,
		id,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete cv", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundCV, "cv not found", nil)
	}
	return nil
}
