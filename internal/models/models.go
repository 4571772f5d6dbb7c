package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Purchase struct {
	ID           string          `db:"id" json:"purchase_id"`
	UserID       string          `db:"user_id" json:"user_id"`
	WeightGrams  decimal.Decimal `db:"weight_grams" json:"weight_grams"`
	PurchaseDate time.Time       `db:"purchase_date" json:"purchase_date"`
	PricePerGram decimal.Decimal `db:"price_per_gram" json:"price_per_gram"`
	Carat        int             `db:"carat" json:"carat"`
	TotalAmount  decimal.Decimal `db:"total_amount" json:"total_amount"`
	Description  string          `db:"description" json:"description,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// PureWeight is the pure-gold-equivalent mass, weight × carat/24.
func (p Purchase) PureWeight() decimal.Decimal {
	return p.WeightGrams.Mul(decimal.NewFromInt(int64(p.Carat))).Div(decimal.NewFromInt(24))
}

// ValueAt prices the purchase at a 24k per-gram price, adjusted for purity.
func (p Purchase) ValueAt(price24k decimal.Decimal) decimal.Decimal {
	return p.PureWeight().Mul(price24k)
}
