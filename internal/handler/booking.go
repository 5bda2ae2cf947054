package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-show-booking/internal/model"
	"github.com/iliyamo/school-show-booking/internal/service"
)

// BookingHandler exposes the booking lifecycle.  Authentication and role
// checks are done by middleware before any method runs.
type BookingHandler struct {
	Manager *service.Manager
}

// NewBookingHandler panics when mgr is nil.
func NewBookingHandler(mgr *service.Manager) *BookingHandler {
	if mgr == nil {
		panic("nil manager passed to NewBookingHandler")
	}
	return &BookingHandler{Manager: mgr}
}

type travelRequest struct {
	Format   string `json:"format" validate:"required,max=32"`
	Location string `json:"location" validate:"max=255"`
}

type createBookingRequest struct {
	InstitutionID     uint64         `json:"institution_id" validate:"required"`
	Students          int            `json:"students" validate:"gte=0"`
	Adults            int            `json:"adults" validate:"gte=0"`
	BillingPolicy     string         `json:"billing_policy" validate:"omitempty,oneof=RESERVED ATTENDED CUSTOM"`
	CustomAmountCents *int64         `json:"custom_amount_cents" validate:"omitempty,gte=0"`
	Hold              bool           `json:"hold"`
	Kind              string         `json:"kind" validate:"omitempty,oneof=THEATER TRAVEL"`
	Travel            *travelRequest `json:"travel"`
}

// Create handles POST /v1/slots/:id/bookings.  With "hold": true the
// booking starts as a HOLD that expires after the configured TTL;
// otherwise it starts PENDING.  Returns 201 with the booking.
func (h *BookingHandler) Create(c echo.Context) error {
	slotID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot id"})
	}
	var body createBookingRequest
	if ok, err := bindValid(c, &body); !ok {
		return err
	}
	req := service.CreateRequest{
		SlotID:        slotID,
		InstitutionID: body.InstitutionID,
		Headcount:     model.Headcount{Students: body.Students, Adults: body.Adults},
		BillingPolicy: model.BillingPolicy(body.BillingPolicy),
		CustomAmount:  body.CustomAmountCents,
		AsHold:        body.Hold,
		Kind:          model.BookingKind(body.Kind),
	}
	if body.Travel != nil {
		req.Travel = &model.TravelDetails{Format: body.Travel.Format, Location: body.Travel.Location}
	}
	b, err := h.Manager.Create(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, toBooking(b, h.Manager.Now()))
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	b, err := h.Manager.Get(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toBooking(b, h.Manager.Now()))
}

// Confirm handles POST /v1/bookings/:id/confirm.
func (h *BookingHandler) Confirm(c echo.Context) error {
	return h.apply(c, h.Manager.Confirm)
}

// Cancel handles POST /v1/bookings/:id/cancel.  Cancelling twice is not
// an error.
func (h *BookingHandler) Cancel(c echo.Context) error {
	return h.apply(c, h.Manager.Cancel)
}

// Complete handles POST /v1/bookings/:id/complete.
func (h *BookingHandler) Complete(c echo.Context) error {
	return h.apply(c, h.Manager.Complete)
}

type attendanceRequest struct {
	Students          int    `json:"students" validate:"gte=0"`
	Adults            int    `json:"adults" validate:"gte=0"`
	BillingPolicy     string `json:"billing_policy" validate:"omitempty,oneof=RESERVED ATTENDED CUSTOM"`
	CustomAmountCents *int64 `json:"custom_amount_cents" validate:"omitempty,gte=0"`
}

// ReconcileAttendance handles PUT /v1/bookings/:id/attendance.  The final
// total is recomputed from the prices captured when the booking was made.
func (h *BookingHandler) ReconcileAttendance(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var body attendanceRequest
	if ok, err := bindValid(c, &body); !ok {
		return err
	}
	b, err := h.Manager.ReconcileAttendance(c.Request().Context(), id, service.ReconcileRequest{
		Attended:      model.Headcount{Students: body.Students, Adults: body.Adults},
		BillingPolicy: model.BillingPolicy(body.BillingPolicy),
		CustomAmount:  body.CustomAmountCents,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toBooking(b, h.Manager.Now()))
}

// Purge handles DELETE /v1/bookings/:id.  Only cancelled or expired
// travel bookings can be removed; returns 204.
func (h *BookingHandler) Purge(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	if err := h.Manager.Purge(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *BookingHandler) apply(c echo.Context, op func(ctx context.Context, id uint64) (*model.Booking, error)) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	b, err := op(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toBooking(b, h.Manager.Now()))
}
