package dto

import "time"

// TrainerDashboardResponse captures the aggregated trainer dashboard payload.
type TrainerDashboardResponse struct {
	GeneratedAt   time.Time           `json:"generatedAt"`
	TodaysClasses []DashboardClass    `json:"todaysClasses"`
	PendingProofs int                 `json:"pendingProofs"`
	LowCredit     []LowCreditStudent  `json:"lowCreditStudents"`
	WeekSummary   DashboardWeekTotals `json:"weekSummary"`
}

// DashboardClass is a simplified class row for the trainer's day view.
type DashboardClass struct {
	ClassID         string    `db:"class_id" json:"classId"`
	ScheduledAt     time.Time `db:"scheduled_at" json:"scheduledAt"`
	CurrentBookings int       `db:"current_bookings" json:"currentBookings"`
	MaxCapacity     int       `db:"max_capacity" json:"maxCapacity"`
}

// LowCreditStudent flags students about to run out of credits.
type LowCreditStudent struct {
	StudentID        string `db:"student_id" json:"studentId"`
	FullName         string `db:"full_name" json:"fullName"`
	RemainingCredits int    `db:"remaining_credits" json:"remainingCredits"`
}

// DashboardWeekTotals aggregates the current week's activity.
type DashboardWeekTotals struct {
	BookingsCreated   int `json:"bookingsCreated"`
	BookingsCancelled int `json:"bookingsCancelled"`
	CreditsConsumed   int `json:"creditsConsumed"`
}
