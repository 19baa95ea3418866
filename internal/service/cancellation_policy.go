package service

import (
	"time"

	"github.com/gpconsultingargentina/personal-trainer-api/pkg/config"
)

// PolicyConfig holds the late-cancellation rules. It is passed in
// explicitly so the rules are testable and tunable per deployment
// instead of living in a package-level table.
type PolicyConfig struct {
	// CancellationWindow is the cutoff before class start under which a
	// cancellation counts as late.
	CancellationWindow time.Duration
	// MonthlyTolerance maps a frequency code to the number of late
	// cancellations forgiven per calendar month.
	MonthlyTolerance map[string]int
	// DefaultTolerance applies to frequency codes with no table entry.
	DefaultTolerance int
}

// NewPolicyConfig adapts the booking configuration into policy rules.
func NewPolicyConfig(cfg config.BookingConfig) PolicyConfig {
	window := cfg.CancellationWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	tolerance := cfg.DefaultTolerance
	if tolerance <= 0 {
		tolerance = 1
	}
	return PolicyConfig{
		CancellationWindow: window,
		MonthlyTolerance:   cfg.MonthlyTolerance,
		DefaultTolerance:   tolerance,
	}
}

// Decision is the outcome of evaluating a cancellation request.
type Decision struct {
	// Late is true when the cancellation happens inside the window.
	Late bool
	// Penalize is true when the late cancellation exceeds the student's
	// monthly tolerance and must cost one credit.
	Penalize bool
}

// Tolerance returns the monthly late-cancellation allowance for a
// frequency code.
func (p PolicyConfig) Tolerance(frequencyCode string) int {
	if n, ok := p.MonthlyTolerance[frequencyCode]; ok {
		return n
	}
	return p.DefaultTolerance
}

// Evaluate decides whether a cancellation is late and whether it incurs
// a credit penalty. untilStart is the time remaining before class start
// and must be non-negative; lateUsedThisMonth counts the student's late
// cancellations already consumed this calendar month, excluding the one
// being evaluated.
func (p PolicyConfig) Evaluate(untilStart time.Duration, frequencyCode string, lateUsedThisMonth int) Decision {
	if untilStart >= p.CancellationWindow {
		return Decision{}
	}
	return Decision{
		Late:     true,
		Penalize: lateUsedThisMonth >= p.Tolerance(frequencyCode),
	}
}
