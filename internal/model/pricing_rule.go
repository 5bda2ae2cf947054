package model

import (
	"strings"
	"time"
)

// ProductType identifies what a pricing rule prices.
type ProductType string

// ProductTheater prices in-house theater tickets.  Travel products are
// built with TravelProduct.
const ProductTheater ProductType = "THEATER_TICKET"

// TravelProduct returns the product type of a touring format.
func TravelProduct(format string) ProductType {
	return ProductType("TRAVEL_" + strings.ToUpper(strings.TrimSpace(format)))
}

// Fare-class keys understood by billing.
const (
	FareStudent = "student"
	FareAdult   = "adult"
	FareFlat    = "flat" // charged once per booking
)

// PricingRule is one version of a time-bounded price list.  Rules are
// never edited in place: an administrator change appends a new rule
// that names the one it supersedes.
//
// Fields:
//  ProductType  – THEATER_TICKET or TRAVEL_<FORMAT>.
//  SeasonID     – nil for a global rule.
//  ValidFrom/To – inclusive calendar dates.
//  Values       – fare-class key to unit price in cents.
//  Supersedes   – previous version of this rule (nil for the first).
type PricingRule struct {
	ID          uint64           // pricing_rules.id
	ProductType ProductType      // pricing_rules.product_type
	SeasonID    *uint64          // pricing_rules.season_id (nullable)
	ValidFrom   time.Time        // pricing_rules.valid_from
	ValidTo     time.Time        // pricing_rules.valid_to
	Values      map[string]int64 // pricing_rules.price_values (JSON)
	Active      bool             // pricing_rules.is_active
	Supersedes  *uint64          // pricing_rules.supersedes_id (nullable)
	CreatedAt   time.Time        // pricing_rules.created_at
}

// Covers reports whether date falls inside the inclusive validity window.
func (r PricingRule) Covers(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(DateOnly(r.ValidFrom)) && !d.After(DateOnly(r.ValidTo))
}

// IsGlobal reports whether the rule applies regardless of season.
func (r PricingRule) IsGlobal() bool { return r.SeasonID == nil }
