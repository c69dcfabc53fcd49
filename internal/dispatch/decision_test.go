package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/payment-switch/internal/domain"
)

func testInput() Input {
	return Input{
		MerchantID:    "merchant_1",
		Connector:     "hmacpay",
		PaymentMethod: domain.MethodCard,
		Flow:          domain.FlowAuthorize,
	}
}

func TestDecide_FractionZeroNeverUnified(t *testing.T) {
	in := testInput()
	rollouts := MapRollouts{in.Key(): "0.0"}
	d, err := NewDecider(rollouts, nil, nil)
	require.NoError(t, err)

	for i := 0; i < 10000; i++ {
		assert.Equal(t, PathLegacy, d.Decide(in))
	}
}

func TestDecide_FractionOneAlwaysUnified(t *testing.T) {
	in := testInput()
	rollouts := MapRollouts{in.Key(): "1.0"}
	d, err := NewDecider(rollouts, nil, nil)
	require.NoError(t, err)

	for i := 0; i < 10000; i++ {
		assert.Equal(t, PathUnified, d.Decide(in))
	}
}

func TestDecide_DrawAgainstFraction(t *testing.T) {
	in := testInput()
	rollouts := MapRollouts{in.Key(): "0.5"}

	tests := []struct {
		name string
		draw float64
		want Path
	}{
		{"draw below fraction", 0.49, PathUnified},
		{"draw at fraction", 0.5, PathLegacy},
		{"draw above fraction", 0.99, PathLegacy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDecider(rollouts, func() float64 { return tt.draw }, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Decide(in))
		})
	}
}

func TestDecide_DegradesToLegacy(t *testing.T) {
	in := testInput()

	tests := []struct {
		name     string
		rollouts MapRollouts
	}{
		{"missing fraction", MapRollouts{}},
		{"malformed fraction", MapRollouts{in.Key(): "fifty percent"}},
		{"negative fraction", MapRollouts{in.Key(): "-0.3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDecider(tt.rollouts, func() float64 { return 0 }, nil)
			require.NoError(t, err)
			assert.Equal(t, PathLegacy, d.Decide(in))
		})
	}
}

func TestDecide_GuardRules(t *testing.T) {
	in := testInput()
	rollouts := MapRollouts{in.Key(): "1.0"}

	tests := []struct {
		name string
		rule string
		want Path
	}{
		{"guard allows", `connector == 'hmacpay'`, PathUnified},
		{"guard denies", `connector == 'formpay'`, PathLegacy},
		{"guard on test mode", `test_mode == true`, PathLegacy},
		{"non-boolean result pins legacy", `1 + 1`, PathLegacy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDecider(rollouts, func() float64 { return 0 }, []GuardRule{{Name: "rule", Expression: tt.rule}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Decide(in))
		})
	}
}

func TestNewDecider_RejectsBadGuards(t *testing.T) {
	_, err := NewDecider(MapRollouts{}, nil, []GuardRule{{Name: "empty"}})
	assert.Error(t, err)

	_, err = NewDecider(MapRollouts{}, nil, []GuardRule{{Name: "broken", Expression: "((("}})
	assert.Error(t, err)
}

func TestInputKey(t *testing.T) {
	assert.Equal(t, "merchant_1:hmacpay:card:authorize", testInput().Key())
}
