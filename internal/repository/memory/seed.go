package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/iliyamo/school-show-booking/internal/model"
)

// Seed is the JSON document accepted by LoadSeed.  It stands in for the
// day scheduling and pricing administration collaborators when the
// service runs without MySQL.
type Seed struct {
	Days []struct {
		ID   uint64 `json:"id"`
		Date string `json:"date"` // YYYY-MM-DD
	} `json:"days"`
	Slots []struct {
		ID            uint64    `json:"id"`
		EventDayID    uint64    `json:"event_day_id"`
		WorkID        uint64    `json:"work_id"`
		Kind          string    `json:"kind"`
		SeasonID      *uint64   `json:"season_id"`
		StartsAt      time.Time `json:"starts_at"`
		EndsAt        time.Time `json:"ends_at"`
		TotalCapacity int       `json:"total_capacity"`
		// AvailableCapacity defaults to TotalCapacity when absent.
		AvailableCapacity *int `json:"available_capacity"`
	} `json:"slots"`
	PricingRules []struct {
		ID          uint64           `json:"id"`
		ProductType string           `json:"product_type"`
		SeasonID    *uint64          `json:"season_id"`
		ValidFrom   string           `json:"valid_from"`
		ValidTo     string           `json:"valid_to"`
		Values      map[string]int64 `json:"values"`
	} `json:"pricing_rules"`
}

// LoadSeed reads a seed file into s.
func (s *Store) LoadSeed(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}
	for _, d := range seed.Days {
		date, err := time.Parse("2006-01-02", d.Date)
		if err != nil {
			return fmt.Errorf("day %d: %w", d.ID, err)
		}
		s.AddEventDay(model.EventDay{ID: d.ID, Date: date})
	}
	for _, sl := range seed.Slots {
		slot := model.Slot{
			ID:                sl.ID,
			EventDayID:        sl.EventDayID,
			WorkID:            sl.WorkID,
			Kind:              model.BookingKind(sl.Kind),
			SeasonID:          sl.SeasonID,
			StartsAt:          sl.StartsAt,
			EndsAt:            sl.EndsAt,
			TotalCapacity:     sl.TotalCapacity,
			AvailableCapacity: sl.TotalCapacity,
		}
		if sl.AvailableCapacity != nil {
			if *sl.AvailableCapacity < 0 || *sl.AvailableCapacity > sl.TotalCapacity {
				return fmt.Errorf("slot %d: available capacity %d outside 0..%d", sl.ID, *sl.AvailableCapacity, sl.TotalCapacity)
			}
			slot.AvailableCapacity = *sl.AvailableCapacity
		}
		s.PutSlot(slot)
	}
	for _, r := range seed.PricingRules {
		from, err := time.Parse("2006-01-02", r.ValidFrom)
		if err != nil {
			return fmt.Errorf("pricing rule %d: %w", r.ID, err)
		}
		to, err := time.Parse("2006-01-02", r.ValidTo)
		if err != nil {
			return fmt.Errorf("pricing rule %d: %w", r.ID, err)
		}
		s.AddPricingRule(model.PricingRule{
			ID:          r.ID,
			ProductType: model.ProductType(r.ProductType),
			SeasonID:    r.SeasonID,
			ValidFrom:   from,
			ValidTo:     to,
			Values:      r.Values,
			Active:      true,
		})
	}
	return nil
}
