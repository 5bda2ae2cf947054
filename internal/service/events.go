package service

import (
	"context"
	"time"

	"github.com/iliyamo/school-show-booking/internal/model"
)

// Event types emitted after a state change has been committed.
const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
	EventBookingExpired   = "booking.expired"
	EventBookingCompleted = "booking.completed"
	EventAttendanceSet    = "booking.attendance_reconciled"
	EventDayClosed        = "day.closed"
)

// Event is a committed domain fact handed to the notification side.
type Event struct {
	Type          string              `json:"type"`
	BookingID     uint64              `json:"booking_id,omitempty"`
	SlotID        uint64              `json:"slot_id,omitempty"`
	EventDayID    uint64              `json:"event_day_id,omitempty"`
	InstitutionID uint64              `json:"institution_id,omitempty"`
	Kind          model.BookingKind   `json:"kind,omitempty"`
	Status        model.BookingStatus `json:"status,omitempty"`
	Headcount     int                 `json:"headcount,omitempty"`
	TotalCents    int64               `json:"total_cents,omitempty"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// Publisher delivers events.  Implementations must not block for long;
// a returned error is logged by the caller and otherwise ignored.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

func bookingEvent(typ string, b *model.Booking, dayID uint64, at time.Time) Event {
	return Event{
		Type:          typ,
		BookingID:     b.ID,
		SlotID:        b.SlotID,
		EventDayID:    dayID,
		InstitutionID: b.InstitutionID,
		Kind:          b.Kind,
		Status:        b.Status,
		Headcount:     b.Requested.Total(),
		TotalCents:    b.ChargedTotal(),
		OccurredAt:    at,
	}
}
