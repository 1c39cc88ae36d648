package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cvforge/internal/types"
)

// --- Mock Rows for Query ---

// mockRows implements pgx.Rows for testing Query results.
type mockRows struct {
	data    [][]any
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newMockRows(data [][]any) *mockRows {
	return &mockRows{data: data, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx]
	for i, d := range dest {
		switch v := d.(type) {
		case *time.Time:
			*v = row[i].(time.Time)
		case *int:
			*v = row[i].(int)
		case *string:
			*v = row[i].(string)
		case *types.Feature:
			*v = row[i].(types.Feature)
		}
	}
	return nil
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

// --- UsageRepository Tests ---

var (
	periodStart = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
)

func TestUsageRepository_GetCount_ExistingRow(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewUsageRepository(dbm)

	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*int) = 4
		return nil
	}}
	dbm.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(row)

	count, err := repo.GetCount(context.Background(), "user_1", types.FeatureCVGenerations, periodStart)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestUsageRepository_GetCount_MissingRowIsZero(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewUsageRepository(dbm)

	dbm.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	count, err := repo.GetCount(context.Background(), "user_1", types.FeatureAIRuns, periodStart)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestUsageRepository_GetCount_DBError(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewUsageRepository(dbm)

	dbm.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("connection refused")})

	_, err := repo.GetCount(context.Background(), "user_1", types.FeatureAIRuns, periodStart)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestUsageRepository_Increment_UpsertsOnConflict(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewUsageRepository(dbm)

	dbm.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sql := args.Get(1).(string)
			assert.Contains(t, sql, "ON CONFLICT (user_id, feature, period_start)")
			assert.Contains(t, sql, "count = usage_counters.count + 1")
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Increment(context.Background(), "user_1", types.FeatureCoverLetters, periodStart, periodEnd)
	require.NoError(t, err)
	dbm.AssertExpectations(t)
}

func TestUsageRepository_IncrementWithCap_Admitted(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewUsageRepository(dbm)

	dbm.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			sql := args.Get(1).(string)
			// The cap guard must live inside the UPDATE predicate.
			assert.Contains(t, sql, "WHERE usage_counters.count < $5")
			// The INSERT branch needs its own guard for zero caps.
			assert.Contains(t, sql, "WHERE $5 > 0")
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	admitted, err := repo.IncrementWithCap(context.Background(), "user_1", types.FeatureCVGenerations, periodStart, periodEnd, 5)
	require.NoError(t, err)
	assert.True(t, admitted)
}

func TestUsageRepository_IncrementWithCap_ZeroCapRejectsFirstOfPeriod(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewUsageRepository(dbm)

	// No existing row: the guarded INSERT selects nothing when cap is 0.
	dbm.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	admitted, err := repo.IncrementWithCap(context.Background(), "user_1", types.FeatureCoverLetters, periodStart, periodEnd, 0)
	require.NoError(t, err)
	assert.False(t, admitted)
}

func TestUsageRepository_IncrementWithCap_RejectedAtCap(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewUsageRepository(dbm)

	dbm.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	admitted, err := repo.IncrementWithCap(context.Background(), "user_1", types.FeatureCVGenerations, periodStart, periodEnd, 5)
	require.NoError(t, err)
	assert.False(t, admitted)
}

func TestUsageRepository_GetPeriodCounters(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewUsageRepository(dbm)

	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	rows := newMockRows([][]any{
		{"user_1", types.FeatureAIRuns, periodStart, periodEnd, 12, now},
		{"user_1", types.FeatureCVGenerations, periodStart, periodEnd, 3, now},
	})

	dbm.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	result, err := repo.GetPeriodCounters(context.Background(), "user_1", periodStart)
	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.Equal(t, types.FeatureAIRuns, result[0].Feature)
	assert.Equal(t, 12, result[0].Count)
	assert.Equal(t, types.FeatureCVGenerations, result[1].Feature)
	assert.Equal(t, 3, result[1].Count)
}

func TestUsageRepository_GetPeriodCounters_Empty(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewUsageRepository(dbm)

	dbm.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows(nil), nil)

	result, err := repo.GetPeriodCounters(context.Background(), "user_1", periodStart)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestUsageRepository_ResetForPeriod(t *testing.T) {
	dbm := new(mockDBTX)
	repo := NewUsageRepository(dbm)

	dbm.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 3"), nil)

	err := repo.ResetForPeriod(context.Background(), "user_1", periodStart)
	require.NoError(t, err)
	dbm.AssertExpectations(t)
}
