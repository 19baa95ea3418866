package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gpconsultingargentina/personal-trainer-api/pkg/config"
)

func testPolicy() PolicyConfig {
	return PolicyConfig{
		CancellationWindow: 24 * time.Hour,
		MonthlyTolerance:   map[string]int{"3x": 2, "2x": 1, "1x": 1},
		DefaultTolerance:   1,
	}
}

func TestPolicyEvaluate(t *testing.T) {
	policy := testPolicy()

	tests := []struct {
		name       string
		untilStart time.Duration
		frequency  string
		lateUsed   int
		want       Decision
	}{
		{"outside window", 25 * time.Hour, "2x", 5, Decision{}},
		{"exactly at window", 24 * time.Hour, "2x", 5, Decision{}},
		{"late within tolerance", 3 * time.Hour, "2x", 0, Decision{Late: true}},
		{"late at tolerance", 3 * time.Hour, "2x", 1, Decision{Late: true, Penalize: true}},
		{"late beyond tolerance", 30 * time.Minute, "2x", 2, Decision{Late: true, Penalize: true}},
		{"3x has two free lates", 3 * time.Hour, "3x", 1, Decision{Late: true}},
		{"3x third late penalized", 3 * time.Hour, "3x", 2, Decision{Late: true, Penalize: true}},
		{"unknown frequency uses default", 3 * time.Hour, "5x", 1, Decision{Late: true, Penalize: true}},
		{"unknown frequency first late free", 3 * time.Hour, "5x", 0, Decision{Late: true}},
		{"zero until start is late", 0, "1x", 0, Decision{Late: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.Evaluate(tt.untilStart, tt.frequency, tt.lateUsed)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPolicyTolerance(t *testing.T) {
	policy := testPolicy()
	assert.Equal(t, 2, policy.Tolerance("3x"))
	assert.Equal(t, 1, policy.Tolerance("2x"))
	assert.Equal(t, 1, policy.Tolerance("unmapped"))
}

func TestNewPolicyConfigDefaults(t *testing.T) {
	policy := NewPolicyConfig(config.BookingConfig{})
	assert.Equal(t, 24*time.Hour, policy.CancellationWindow)
	assert.Equal(t, 1, policy.DefaultTolerance)

	custom := NewPolicyConfig(config.BookingConfig{
		CancellationWindow: 12 * time.Hour,
		MonthlyTolerance:   map[string]int{"3x": 3},
		DefaultTolerance:   2,
	})
	assert.Equal(t, 12*time.Hour, custom.CancellationWindow)
	assert.Equal(t, 3, custom.Tolerance("3x"))
	assert.Equal(t, 2, custom.Tolerance("1x"))
}

func TestPolicyZeroConfigForgivesFirstLate(t *testing.T) {
	// An empty booking config must not penalize a student's first late
	// cancellation of the month.
	policy := NewPolicyConfig(config.BookingConfig{})
	assert.Equal(t, Decision{Late: true}, policy.Evaluate(time.Hour, "2x", 0))
	assert.Equal(t, Decision{Late: true, Penalize: true}, policy.Evaluate(time.Hour, "2x", 1))
}
