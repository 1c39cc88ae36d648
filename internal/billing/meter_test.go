package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cvforge/internal/types"
)

func TestMeter_Record(t *testing.T) {
	users := new(mockUsers)
	usage := new(mockUsage)
	meter := NewMeter(NewStaticCatalog(), users, usage, testClock, testLogger())

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	usage.On("Increment", mock.Anything, "user_1", types.FeatureAIRuns, start, end).Return(nil)

	err := meter.Record(context.Background(), "user_1", types.FeatureAIRuns)
	require.NoError(t, err)
	usage.AssertExpectations(t)
}

func TestMeter_RecordWithinCap_Admitted(t *testing.T) {
	users := new(mockUsers)
	usage := new(mockUsage)
	meter := NewMeter(NewStaticCatalog(), users, usage, testClock, testLogger())

	users.On("GetByID", mock.Anything, "user_1").Return(userOnPlan(types.PlanPro), nil)
	usage.On("IncrementWithCap", mock.Anything, "user_1", types.FeatureCVGenerations,
		mock.Anything, mock.Anything, 5).Return(true, nil)

	admitted, err := meter.RecordWithinCap(context.Background(), "user_1", types.FeatureCVGenerations)
	require.NoError(t, err)
	assert.True(t, admitted)
}

func TestMeter_RecordWithinCap_RejectedAtCap(t *testing.T) {
	users := new(mockUsers)
	usage := new(mockUsage)
	meter := NewMeter(NewStaticCatalog(), users, usage, testClock, testLogger())

	users.On("GetByID", mock.Anything, "user_1").Return(userOnPlan(types.PlanBasic), nil)
	usage.On("IncrementWithCap", mock.Anything, "user_1", types.FeatureCVGenerations,
		mock.Anything, mock.Anything, 1).Return(false, nil)

	admitted, err := meter.RecordWithinCap(context.Background(), "user_1", types.FeatureCVGenerations)
	require.NoError(t, err)
	assert.False(t, admitted)
}

func TestMeter_RecordWithinCap_UnlimitedUsesPlainIncrement(t *testing.T) {
	users := new(mockUsers)
	usage := new(mockUsage)
	meter := NewMeter(NewStaticCatalog(), users, usage, testClock, testLogger())

	users.On("GetByID", mock.Anything, "user_1").Return(userOnPlan(types.PlanPremium), nil)
	usage.On("Increment", mock.Anything, "user_1", types.FeatureAIRuns,
		mock.Anything, mock.Anything).Return(nil)

	admitted, err := meter.RecordWithinCap(context.Background(), "user_1", types.FeatureAIRuns)
	require.NoError(t, err)
	assert.True(t, admitted)
	usage.AssertNotCalled(t, "IncrementWithCap",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
