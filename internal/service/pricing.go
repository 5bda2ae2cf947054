package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/school-show-booking/internal/model"
	"github.com/iliyamo/school-show-booking/internal/repository"
)

// Resolver picks the pricing rule that applies to a date and product.
type Resolver struct {
	store repository.Store
}

// NewResolver returns a resolver reading rules from store.
func NewResolver(store repository.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve finds the applicable rule outside of any transaction.
func (r *Resolver) Resolve(ctx context.Context, date time.Time, product model.ProductType, seasonID *uint64) (*model.PricingRule, error) {
	rules, err := r.store.PricingRules(ctx, product)
	if err != nil {
		return nil, err
	}
	return SelectRule(rules, date, product, seasonID)
}

// ResolveTx is Resolve inside a booking transaction.
func (r *Resolver) ResolveTx(ctx context.Context, tx repository.Tx, date time.Time, product model.ProductType, seasonID *uint64) (*model.PricingRule, error) {
	rules, err := tx.PricingRules(ctx, product)
	if err != nil {
		return nil, err
	}
	return SelectRule(rules, date, product, seasonID)
}

// SelectRule applies the resolution order to an already loaded rule set:
// active rules of product covering date; a rule scoped to seasonID beats
// a global one; among rules of the same scope the most recently created
// wins, ties broken by the higher ID.  Rules scoped to another season
// never match.  A rule named as Supersedes by an active rule is retired,
// even on dates its successor no longer covers.
func SelectRule(rules []model.PricingRule, date time.Time, product model.ProductType, seasonID *uint64) (*model.PricingRule, error) {
	retired := make(map[uint64]bool)
	for _, r := range rules {
		if r.Active && r.Supersedes != nil {
			retired[*r.Supersedes] = true
		}
	}
	var seasonal, global []model.PricingRule
	for _, r := range rules {
		if !r.Active || retired[r.ID] || r.ProductType != product || !r.Covers(date) {
			continue
		}
		switch {
		case r.IsGlobal():
			global = append(global, r)
		case seasonID != nil && *r.SeasonID == *seasonID:
			seasonal = append(seasonal, r)
		}
	}
	for _, set := range [][]model.PricingRule{seasonal, global} {
		if len(set) == 0 {
			continue
		}
		sort.SliceStable(set, func(i, j int) bool {
			if !set[i].CreatedAt.Equal(set[j].CreatedAt) {
				return set[i].CreatedAt.After(set[j].CreatedAt)
			}
			return set[i].ID > set[j].ID
		})
		out := set[0]
		return &out, nil
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrPricingRuleNotFound, product, model.DateOnly(date).Format("2006-01-02"))
}

// Evaluate computes a total in cents under policy.
//
// RESERVED prices the requested head-count, ATTENDED the attended one and
// CUSTOM returns the operator supplied amount, which must be present and
// non-negative.  Per-head prices come from the student and adult keys; a
// flat key is added once per booking when present.
func Evaluate(policy model.BillingPolicy, values map[string]int64, requested model.Headcount, attended *model.Headcount, custom *int64) (int64, error) {
	switch policy {
	case model.BillReserved:
		return priceHeads(values, requested), nil
	case model.BillAttended:
		if attended == nil {
			return 0, fmt.Errorf("%w: attended head-count required for ATTENDED billing", ErrInvalidInput)
		}
		return priceHeads(values, *attended), nil
	case model.BillCustom:
		if custom == nil {
			return 0, fmt.Errorf("%w: custom amount required for CUSTOM billing", ErrInvalidInput)
		}
		if *custom < 0 {
			return 0, fmt.Errorf("%w: custom amount must not be negative", ErrInvalidInput)
		}
		return *custom, nil
	}
	return 0, fmt.Errorf("%w: unknown billing policy %q", ErrInvalidInput, policy)
}

func priceHeads(values map[string]int64, h model.Headcount) int64 {
	total := int64(h.Students)*values[model.FareStudent] + int64(h.Adults)*values[model.FareAdult]
	return total + values[model.FareFlat]
}
