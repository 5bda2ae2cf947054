package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/iliyamo/school-show-booking/internal/model"
)

// listPricingRules returns every active rule of a product, newest first.
// Season filtering and date matching belong to the resolver.
func listPricingRules(ctx context.Context, q querier, product model.ProductType) ([]model.PricingRule, error) {
	const sel = `SELECT id, product_type, season_id, valid_from, valid_to, price_values,
                        is_active, supersedes_id, created_at
                 FROM pricing_rules
                 WHERE product_type = ? AND is_active = 1
                 ORDER BY created_at DESC, id DESC`
	rows, err := q.QueryContext(ctx, sel, string(product))
	if err != nil {
		return nil, fmt.Errorf("list pricing rules for %s: %w", product, err)
	}
	defer rows.Close()
	var out []model.PricingRule
	for rows.Next() {
		var r model.PricingRule
		var productType string
		var season, supersedes sql.NullInt64
		var values []byte
		if err := rows.Scan(&r.ID, &productType, &season, &r.ValidFrom, &r.ValidTo, &values,
			&r.Active, &supersedes, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.ProductType = model.ProductType(productType)
		if season.Valid {
			v := uint64(season.Int64)
			r.SeasonID = &v
		}
		if supersedes.Valid {
			v := uint64(supersedes.Int64)
			r.Supersedes = &v
		}
		if err := json.Unmarshal(values, &r.Values); err != nil {
			return nil, fmt.Errorf("decode values of pricing rule %d: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *mysqlTx) PricingRules(ctx context.Context, product model.ProductType) ([]model.PricingRule, error) {
	return listPricingRules(ctx, t.q, product)
}

// PricingRules lists active rules of a product outside a transaction.
func (s *MySQLStore) PricingRules(ctx context.Context, product model.ProductType) ([]model.PricingRule, error) {
	return listPricingRules(ctx, s.db, product)
}
