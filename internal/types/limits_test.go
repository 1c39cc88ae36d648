package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitOf_SentinelMapsToUnlimited(t *testing.T) {
	l := LimitOf(-1)
	assert.True(t, l.IsUnlimited())
	assert.Equal(t, -1, l.Sentinel())
}

func TestLimitOf_NegativeClampsToZero(t *testing.T) {
	l := LimitOf(-5)
	assert.False(t, l.IsUnlimited())
	assert.Equal(t, 0, l.Value())
	assert.True(t, l.Reached(0))
}

func TestLimit_Reached(t *testing.T) {
	l := LimitOf(3)
	assert.False(t, l.Reached(0))
	assert.False(t, l.Reached(2))
	assert.True(t, l.Reached(3))
	assert.True(t, l.Reached(10))
}

func TestLimit_UnlimitedNeverReached(t *testing.T) {
	l := Unlimited()
	assert.False(t, l.Reached(0))
	assert.False(t, l.Reached(1<<30))
}

func TestLimit_Exceeds(t *testing.T) {
	assert.True(t, LimitOf(5).Exceeds(LimitOf(1)))
	assert.False(t, LimitOf(1).Exceeds(LimitOf(5)))
	assert.False(t, LimitOf(5).Exceeds(LimitOf(5)))
	assert.True(t, Unlimited().Exceeds(LimitOf(100)))
	assert.False(t, LimitOf(100).Exceeds(Unlimited()))
	assert.False(t, Unlimited().Exceeds(Unlimited()))
}

func TestLimit_JSONRoundTrip(t *testing.T) {
	type payload struct {
		Cap Limit `json:"cap"`
	}

	out, err := json.Marshal(payload{Cap: LimitOf(25)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cap":25}`, string(out))

	out, err = json.Marshal(payload{Cap: Unlimited()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cap":-1}`, string(out))

	var in payload
	require.NoError(t, json.Unmarshal([]byte(`{"cap":-1}`), &in))
	assert.True(t, in.Cap.IsUnlimited())
}

func TestEditAllowance_Unlimited(t *testing.T) {
	assert.True(t, EditAllowance(UnlimitedEditsSentinel).IsUnlimited())
	assert.False(t, EditAllowance(10).IsUnlimited())
	assert.False(t, EditAllowance(0).IsUnlimited())
}

func TestPlanTier_Rank(t *testing.T) {
	assert.Equal(t, 0, PlanBasic.Rank())
	assert.Equal(t, 1, PlanPro.Rank())
	assert.Equal(t, 2, PlanPremium.Rank())
	assert.Equal(t, -1, PlanTier("enterprise").Rank())
	assert.False(t, PlanTier("").Valid())
}
