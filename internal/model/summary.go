package model

import "time"

// DailySummary is the immutable aggregate written by a day's closeout.
// Amounts are in cents.
type DailySummary struct {
	ID              uint64    // daily_summaries.id
	EventDayID      uint64    // daily_summaries.event_day_id
	Date            time.Time // daily_summaries.summary_date (unique)
	BookingCount    int       // daily_summaries.booking_count
	RevenueTotal    int64     // daily_summaries.revenue_total_cents
	AttendanceTotal int       // daily_summaries.attendance_total
	CostTotal       int64     // daily_summaries.cost_total_cents
	Margin          int64     // daily_summaries.margin_cents
	CreatedAt       time.Time // daily_summaries.created_at
}

// MonthlySummary is a derived re-aggregation of the daily summaries of
// one month.  It can be rebuilt at any time.
type MonthlySummary struct {
	Year            int        // monthly_summaries.year
	Month           time.Month // monthly_summaries.month
	DayCount        int        // monthly_summaries.day_count
	BookingCount    int        // monthly_summaries.booking_count
	RevenueTotal    int64      // monthly_summaries.revenue_total_cents
	AttendanceTotal int        // monthly_summaries.attendance_total
	CostTotal       int64      // monthly_summaries.cost_total_cents
	Margin          int64      // monthly_summaries.margin_cents
	RebuiltAt       time.Time  // monthly_summaries.rebuilt_at
}
