package handler

import (
	"time"

	"github.com/iliyamo/school-show-booking/internal/model"
	"github.com/iliyamo/school-show-booking/internal/service"
)

const dateLayout = "2006-01-02"

type bookingResponse struct {
	ID            uint64               `json:"id"`
	Kind          model.BookingKind    `json:"kind"`
	SlotID        uint64               `json:"slot_id"`
	InstitutionID uint64               `json:"institution_id"`
	Status        model.BookingStatus  `json:"status"`
	Expired       bool                 `json:"expired"`
	Requested     model.Headcount      `json:"requested"`
	Attended      *model.Headcount     `json:"attended,omitempty"`
	BillingPolicy model.BillingPolicy  `json:"billing_policy"`
	CustomAmount  *int64               `json:"custom_amount_cents,omitempty"`
	PricingRuleID uint64               `json:"pricing_rule_id"`
	PriceValues   map[string]int64     `json:"price_values"`
	ExpectedTotal int64                `json:"expected_total_cents"`
	FinalTotal    *int64               `json:"final_total_cents,omitempty"`
	ChargedTotal  int64                `json:"charged_total_cents"`
	ExpiresAt     *time.Time           `json:"expires_at,omitempty"`
	Travel        *model.TravelDetails `json:"travel,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func toBooking(b *model.Booking, now time.Time) bookingResponse {
	return bookingResponse{
		ID:            b.ID,
		Kind:          b.Kind,
		SlotID:        b.SlotID,
		InstitutionID: b.InstitutionID,
		Status:        b.Status,
		Expired:       b.IsExpired(now),
		Requested:     b.Requested,
		Attended:      b.Attended,
		BillingPolicy: b.BillingPolicy,
		CustomAmount:  b.CustomAmount,
		PricingRuleID: b.PricingRuleID,
		PriceValues:   b.PriceValues,
		ExpectedTotal: b.ExpectedTotal,
		FinalTotal:    b.FinalTotal,
		ChargedTotal:  b.ChargedTotal(),
		ExpiresAt:     b.ExpiresAt,
		Travel:        b.Travel,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

type inboxItemResponse struct {
	Booking         bookingResponse `json:"booking"`
	Expired         bool            `json:"expired"`
	SecondsToExpiry *int64          `json:"seconds_to_expiry,omitempty"`
}

func toInboxItem(it service.InboxItem, now time.Time) inboxItemResponse {
	out := inboxItemResponse{Booking: toBooking(&it.Booking, now), Expired: it.Expired}
	if it.Booking.Status == model.StatusHold {
		s := int64(it.TimeToExpiry / time.Second)
		out.SecondsToExpiry = &s
	}
	return out
}

type ruleResponse struct {
	ID          uint64            `json:"id"`
	ProductType model.ProductType `json:"product_type"`
	SeasonID    *uint64           `json:"season_id,omitempty"`
	ValidFrom   string            `json:"valid_from"`
	ValidTo     string            `json:"valid_to"`
	Values      map[string]int64  `json:"price_values"`
	Supersedes  *uint64           `json:"supersedes_id,omitempty"`
}

func toRule(r *model.PricingRule) ruleResponse {
	return ruleResponse{
		ID:          r.ID,
		ProductType: r.ProductType,
		SeasonID:    r.SeasonID,
		ValidFrom:   r.ValidFrom.Format(dateLayout),
		ValidTo:     r.ValidTo.Format(dateLayout),
		Values:      r.Values,
		Supersedes:  r.Supersedes,
	}
}

type dailySummaryResponse struct {
	EventDayID      uint64    `json:"event_day_id"`
	Date            string    `json:"date"`
	BookingCount    int       `json:"booking_count"`
	RevenueTotal    int64     `json:"revenue_total_cents"`
	AttendanceTotal int       `json:"attendance_total"`
	CostTotal       int64     `json:"cost_total_cents"`
	Margin          int64     `json:"margin_cents"`
	CreatedAt       time.Time `json:"created_at"`
}

func toDaily(s *model.DailySummary) dailySummaryResponse {
	return dailySummaryResponse{
		EventDayID:      s.EventDayID,
		Date:            s.Date.Format(dateLayout),
		BookingCount:    s.BookingCount,
		RevenueTotal:    s.RevenueTotal,
		AttendanceTotal: s.AttendanceTotal,
		CostTotal:       s.CostTotal,
		Margin:          s.Margin,
		CreatedAt:       s.CreatedAt,
	}
}

type monthlySummaryResponse struct {
	Year            int       `json:"year"`
	Month           int       `json:"month"`
	DayCount        int       `json:"day_count"`
	BookingCount    int       `json:"booking_count"`
	RevenueTotal    int64     `json:"revenue_total_cents"`
	AttendanceTotal int       `json:"attendance_total"`
	CostTotal       int64     `json:"cost_total_cents"`
	Margin          int64     `json:"margin_cents"`
	RebuiltAt       time.Time `json:"rebuilt_at"`
}

func toMonthly(m *model.MonthlySummary) monthlySummaryResponse {
	return monthlySummaryResponse{
		Year:            m.Year,
		Month:           int(m.Month),
		DayCount:        m.DayCount,
		BookingCount:    m.BookingCount,
		RevenueTotal:    m.RevenueTotal,
		AttendanceTotal: m.AttendanceTotal,
		CostTotal:       m.CostTotal,
		Margin:          m.Margin,
		RebuiltAt:       m.RebuiltAt,
	}
}
