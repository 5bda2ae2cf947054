// Package queue carries committed booking events over RabbitMQ: a
// publisher used by the service layer and a consumer that appends every
// event to an audit log.
package queue

// DefaultQueue is used when BOOKING_EVENTS_QUEUE is unset.
const DefaultQueue = "booking.events"

// Message headers set on every publishing.
const (
	headerEventType = "event_type"
	headerBookingID = "booking_id"
)
