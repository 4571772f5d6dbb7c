package database

import (
	"time"

	"github.com/shopspring/decimal"
)

// Price observation sources. At most one non-manual observation is recorded
// per market day.
const (
	SourceAPI          = "api"
	SourceScheduledAPI = "scheduled-api"
	SourceManual       = "manual"
	SourceFallback     = "fallback"
)

type GoldPrice struct {
	ID         int64               `db:"id" json:"id"`
	Price24K   decimal.Decimal     `db:"price_24k" json:"price_24k"`
	Price22K   decimal.NullDecimal `db:"price_22k" json:"price_22k"`
	ObservedAt time.Time           `db:"observed_at" json:"observed_at"`
	Source     string              `db:"source" json:"source"`
}

type PortfolioMetric struct {
	UserID       string          `db:"user_id" json:"-"`
	Date         string          `db:"date" json:"date"`
	Investment   decimal.Decimal `db:"investment" json:"investment"`
	CurrentValue decimal.Decimal `db:"current_value" json:"current_value"`
	TotalWeight  decimal.Decimal `db:"total_weight_grams" json:"total_weight_grams"`
}
