package model

import "time"

// BookingStatus is the state of a booking in its lifecycle.
type BookingStatus string

const (
	StatusHold      BookingStatus = "HOLD"
	StatusPending   BookingStatus = "PENDING"
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusCancelled BookingStatus = "CANCELLED"
	StatusCompleted BookingStatus = "COMPLETED"
	StatusExpired   BookingStatus = "EXPIRED"
)

// Terminal reports whether no further transition is possible.
func (s BookingStatus) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusExpired:
		return true
	}
	return false
}

// Occupies reports whether a booking in this status counts against its
// slot's capacity.  COMPLETED bookings keep their seats: the show
// already happened and the capacity is never handed back.
func (s BookingStatus) Occupies() bool {
	switch s {
	case StatusHold, StatusPending, StatusConfirmed, StatusCompleted:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an edge of the booking
// state machine.
func CanTransition(from, to BookingStatus) bool {
	switch from {
	case StatusHold:
		return to == StatusConfirmed || to == StatusCancelled || to == StatusExpired
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCancelled || to == StatusCompleted
	}
	return false
}

// BookingKind tags the booking variant.  Theater and travel bookings
// share one lifecycle; only pricing lookup and retention differ.
type BookingKind string

const (
	KindTheater BookingKind = "THEATER"
	KindTravel  BookingKind = "TRAVEL"
)

// BillingPolicy designates which head-count drives the charged amount.
type BillingPolicy string

const (
	BillReserved BillingPolicy = "RESERVED"
	BillAttended BillingPolicy = "ATTENDED"
	BillCustom   BillingPolicy = "CUSTOM"
)

// Valid reports whether p is a known policy.
func (p BillingPolicy) Valid() bool {
	return p == BillReserved || p == BillAttended || p == BillCustom
}

// Headcount is a number of students plus accompanying adults.
type Headcount struct {
	Students int `json:"students"`
	Adults   int `json:"adults"`
}

// Total returns students plus adults.
func (h Headcount) Total() int { return h.Students + h.Adults }

// TravelDetails carries the fields only travel bookings have.
type TravelDetails struct {
	Format   string `json:"format"`   // touring format, e.g. HALF_DAY
	Location string `json:"location"` // where the company travels to
}

// Booking records one institution's reservation against a slot.
//
// Fields:
//  Kind           – THEATER or TRAVEL; Travel is set only for TRAVEL.
//  Requested      – reserved head-count; this is what the ledger holds.
//  Attended       – reconciled head-count (nil until reconciled).
//  BillingPolicy  – policy used for the most recent total computation.
//  CustomAmount   – operator supplied total for CUSTOM billing.
//  PricingRuleID  – rule the prices were snapshotted from.
//  PriceValues    – snapshot of the rule's fare values at creation.
//  ExpectedTotal  – total computed at creation (cents).
//  FinalTotal     – total computed at reconciliation (nil until then).
//  ExpiresAt      – hold expiry; only meaningful while HOLD.
type Booking struct {
	ID            uint64           // bookings.id
	Kind          BookingKind      // bookings.kind
	SlotID        uint64           // bookings.slot_id
	InstitutionID uint64           // bookings.institution_id
	Requested     Headcount        // bookings.students / bookings.adults
	Attended      *Headcount       // bookings.attended_students / attended_adults (nullable)
	BillingPolicy BillingPolicy    // bookings.billing_policy
	CustomAmount  *int64           // bookings.custom_amount_cents (nullable)
	PricingRuleID uint64           // bookings.pricing_rule_id
	PriceValues   map[string]int64 // bookings.price_values (JSON)
	ExpectedTotal int64            // bookings.expected_total_cents
	FinalTotal    *int64           // bookings.final_total_cents (nullable)
	Status        BookingStatus    // bookings.status
	ExpiresAt     *time.Time       // bookings.expires_at (nullable)
	Travel        *TravelDetails   // bookings.travel_format / travel_location (nullable)
	CreatedAt     time.Time        // bookings.created_at
	UpdatedAt     time.Time        // bookings.updated_at
}

// ProductType returns the pricing product this booking is charged as.
func (b Booking) ProductType() ProductType {
	if b.Kind == KindTravel && b.Travel != nil {
		return TravelProduct(b.Travel.Format)
	}
	return ProductTheater
}

// IsExpired reports whether a HOLD has passed its expiry at now.  The
// condition is derived; it does not change the stored status.
func (b Booking) IsExpired(now time.Time) bool {
	return b.Status == StatusHold && b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

// ChargedTotal is the amount that counts towards revenue: the final
// total when reconciled, otherwise the expected total.
func (b Booking) ChargedTotal() int64 {
	if b.FinalTotal != nil {
		return *b.FinalTotal
	}
	return b.ExpectedTotal
}

// AttendanceCount is the reconciled head-count, or the requested one
// when attendance was never reconciled.
func (b Booking) AttendanceCount() int {
	if b.Attended != nil {
		return b.Attended.Total()
	}
	return b.Requested.Total()
}

// Clone returns a deep copy.
func (b Booking) Clone() Booking {
	out := b
	if b.Attended != nil {
		a := *b.Attended
		out.Attended = &a
	}
	if b.CustomAmount != nil {
		v := *b.CustomAmount
		out.CustomAmount = &v
	}
	if b.FinalTotal != nil {
		v := *b.FinalTotal
		out.FinalTotal = &v
	}
	if b.ExpiresAt != nil {
		t := *b.ExpiresAt
		out.ExpiresAt = &t
	}
	if b.Travel != nil {
		t := *b.Travel
		out.Travel = &t
	}
	if b.PriceValues != nil {
		out.PriceValues = make(map[string]int64, len(b.PriceValues))
		for k, v := range b.PriceValues {
			out.PriceValues[k] = v
		}
	}
	return out
}
