package model

import "time"

// Slot represents one scheduled showing under an EventDay.  The
// capacity ledger owns AvailableCapacity; TotalCapacity is fixed when
// the day scheduler creates the slot.
//
// Fields:
//  ID                – primary key identifier.
//  EventDayID        – parent day.
//  WorkID            – the production performed in this slot.
//  Kind              – THEATER for in-house performances, TRAVEL for touring shows.
//  SeasonID          – season the slot belongs to (nil when unassigned).
//  StartsAt / EndsAt – schedule.
//  TotalCapacity     – seats (or head-count) the slot can take.
//  AvailableCapacity – cached TotalCapacity minus occupancy.
type Slot struct {
	ID                uint64      // slots.id
	EventDayID        uint64      // slots.event_day_id
	WorkID            uint64      // slots.work_id
	Kind              BookingKind // slots.kind
	SeasonID          *uint64     // slots.season_id (nullable)
	StartsAt          time.Time   // slots.starts_at
	EndsAt            time.Time   // slots.ends_at
	TotalCapacity     int         // slots.total_capacity
	AvailableCapacity int         // slots.available_capacity
	CreatedAt         time.Time   // slots.created_at
	UpdatedAt         time.Time   // slots.updated_at
}
