package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/planet-hub/internal/model"
)

// DefaultCategories is the starter catalog inserted when SEED_CATEGORIES is
// on. Short codes are the issue-code prefixes.
var DefaultCategories = []model.Category{
	{Name: "Water Security", ShortCode: "WTR", Description: "Clean water access, desalination and watershed health.", IconURL: "💧"},
	{Name: "Climate", ShortCode: "CLM", Description: "Emissions, adaptation and climate modelling.", IconURL: "🌡️"},
	{Name: "Clean Energy", ShortCode: "NRG", Description: "Generation, storage and grid transition.", IconURL: "⚡"},
	{Name: "Biodiversity", ShortCode: "BIO", Description: "Ecosystems, species loss and restoration.", IconURL: "🌿"},
	{Name: "Space Habitats", ShortCode: "SPC", Description: "Life support and settlement beyond Earth.", IconURL: "🚀"},
	{Name: "Food Systems", ShortCode: "FDS", Description: "Agriculture, soil and food security.", IconURL: "🌾"},
}

// SeedCategories inserts the categories whose short code is not taken yet
// and reports how many were added. Running it twice is harmless.
func (db *DB) SeedCategories(ctx context.Context, categories []model.Category) (int, error) {
	added := 0
	for _, c := range categories {
		c.ID = xid.New().String()
		c.CreatedAt = time.Now().UTC()
		result, err := db.conn.NamedExecContext(ctx,
			`INSERT INTO categories (`+categoryColumns+`)
			 VALUES (:id, :name, :short_code, :description, :icon_url, :created_at)
			 ON CONFLICT (short_code) DO NOTHING`,
			c,
		)
		if err != nil {
			return added, fmt.Errorf("sqlstore: seeding category %q: %w", c.ShortCode, err)
		}
		if n, err := result.RowsAffected(); err == nil {
			added += int(n)
		}
	}
	return added, nil
}
