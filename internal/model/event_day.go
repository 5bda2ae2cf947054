package model

import "time"

// DayStatus is the lifecycle state of an EventDay.
type DayStatus string

const (
	DayOpen   DayStatus = "OPEN"
	DayClosed DayStatus = "CLOSED"
)

// EventDay groups the slots scheduled on one calendar date.  Once a day
// is CLOSED no booking, attendance or capacity change is accepted
// against any of its slots.
//
// Fields:
//  ID       – primary key identifier.
//  Date     – calendar date (UTC midnight).
//  Status   – OPEN or CLOSED.
//  ClosedAt – when the closeout ran (nil while OPEN).
type EventDay struct {
	ID        uint64     // event_days.id
	Date      time.Time  // event_days.day_date
	Status    DayStatus  // event_days.status
	ClosedAt  *time.Time // event_days.closed_at (nullable)
	CreatedAt time.Time  // event_days.created_at
}

// IsClosed reports whether the day has been closed out.
func (d EventDay) IsClosed() bool { return d.Status == DayClosed }

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
