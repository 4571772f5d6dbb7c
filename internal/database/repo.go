package database

import (
	"context"
	"database/sql"
	"time"

	"goldfolio/internal/marketday"
	"goldfolio/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log}
}

func (r *Repo) CreatePurchase(ctx context.Context, userID string, weight decimal.Decimal, date time.Time, pricePerGram decimal.Decimal, carat int, description string) (string, error) {
	total := weight.Mul(pricePerGram)
	var id string
	q := `INSERT INTO purchases (id, user_id, weight_grams, purchase_date, price_per_gram, carat, total_amount, description, created_at, updated_at)
	      VALUES (gen_random_uuid(), $1, $2::numeric, $3, $4::numeric, $5, $6::numeric, $7, now(), now()) RETURNING id`
	if err := r.db.QueryRowContext(ctx, q, userID, weight.String(), date, pricePerGram.String(), carat, total.String(), description).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repo) GetPurchases(ctx context.Context, userID string) ([]models.Purchase, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT id, user_id, weight_grams, purchase_date, price_per_gram, carat, total_amount, COALESCE(description,'') AS description, created_at, updated_at FROM purchases WHERE user_id = $1 ORDER BY purchase_date ASC, created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []models.Purchase{}
	for rows.Next() {
		var p models.Purchase
		if err := rows.StructScan(&p); err != nil {
			r.log.Warnf("scan purchase failed: %v", err)
			continue
		}
		res = append(res, p)
	}
	return res, nil
}

func (r *Repo) UpdatePurchase(ctx context.Context, id, userID string, weight decimal.Decimal, date time.Time, pricePerGram decimal.Decimal, carat int, description string) error {
	total := weight.Mul(pricePerGram)
	res, err := r.db.ExecContext(ctx, `UPDATE purchases SET weight_grams = $1::numeric, purchase_date = $2, price_per_gram = $3::numeric, carat = $4, total_amount = $5::numeric, description = $6, updated_at = now() WHERE id = $7 AND user_id = $8`,
		weight.String(), date, pricePerGram.String(), carat, total.String(), description, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *Repo) DeletePurchase(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM purchases WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *Repo) InsertGoldPrice(ctx context.Context, price24k decimal.Decimal, price22k decimal.NullDecimal, observedAt time.Time, source string) error {
	var p22 interface{}
	if price22k.Valid {
		p22 = price22k.Decimal.String()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO gold_prices (price_24k, price_22k, observed_at, source) VALUES ($1::numeric, $2::numeric, $3, $4)`,
		price24k.String(), p22, observedAt, source)
	return err
}

func (r *Repo) ListGoldPrices(ctx context.Context) ([]GoldPrice, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT id, price_24k, price_22k, observed_at, source FROM gold_prices ORDER BY observed_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []GoldPrice{}
	for rows.Next() {
		var g GoldPrice
		if err := rows.StructScan(&g); err != nil {
			r.log.Warnf("scan gold price failed: %v", err)
			continue
		}
		res = append(res, g)
	}
	return res, nil
}

func (r *Repo) LatestGoldPrice(ctx context.Context) (*GoldPrice, error) {
	var g GoldPrice
	err := r.db.QueryRowxContext(ctx, `SELECT id, price_24k, price_22k, observed_at, source FROM gold_prices ORDER BY observed_at DESC LIMIT 1`).StructScan(&g)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// GoldPriceAsOf returns the most recent observation strictly before cutoff,
// or nil when none exists.
func (r *Repo) GoldPriceAsOf(ctx context.Context, cutoff time.Time) (*GoldPrice, error) {
	var g GoldPrice
	err := r.db.QueryRowxContext(ctx, `SELECT id, price_24k, price_22k, observed_at, source FROM gold_prices WHERE observed_at < $1 ORDER BY observed_at DESC LIMIT 1`, cutoff).StructScan(&g)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// LatestAsOfYesterday resolves the last price known by the end of yesterday
// in the market timezone. The boundary is computed in IST, not UTC: querying
// early in the IST morning must still cover all of yesterday's local day.
func (r *Repo) LatestAsOfYesterday(ctx context.Context, now time.Time) (*GoldPrice, error) {
	_, end := marketday.Yesterday(now, marketday.IST)
	return r.GoldPriceAsOf(ctx, end)
}

// HasNonManualPriceForDay reports whether a non-manual observation already
// exists within the market day containing t.
func (r *Repo) HasNonManualPriceForDay(ctx context.Context, t time.Time) (bool, error) {
	start, end := marketday.DayWindowUTC(t, marketday.IST)
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM gold_prices WHERE observed_at >= $1 AND observed_at < $2 AND source <> 'manual')`, start, end)
	return exists, err
}

// BackfillMissing22k fills the 22k column on legacy rows recorded before the
// column existed, derived as 24k × 22/24.
func (r *Repo) BackfillMissing22k(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE gold_prices SET price_22k = round(price_24k * 22.0 / 24.0, 2) WHERE price_22k IS NULL`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReplaceMetrics atomically swaps the user's whole metric series: delete
// then batch insert in one transaction, so a failed run leaves the previous
// series intact.
func (r *Repo) ReplaceMetrics(ctx context.Context, userID string, metrics []PortfolioMetric) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM portfolio_metrics WHERE user_id = $1`, userID); err != nil {
		return err
	}
	q := `INSERT INTO portfolio_metrics (user_id, date, investment, current_value, total_weight_grams)
	      VALUES ($1, $2::date, $3::numeric, $4::numeric, $5::numeric)
	      ON CONFLICT (user_id, date) DO UPDATE SET investment = EXCLUDED.investment, current_value = EXCLUDED.current_value, total_weight_grams = EXCLUDED.total_weight_grams`
	for _, m := range metrics {
		if _, err := tx.ExecContext(ctx, q, userID, m.Date, m.Investment.String(), m.CurrentValue.String(), m.TotalWeight.String()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) GetMetrics(ctx context.Context, userID string) ([]PortfolioMetric, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT user_id, date::text AS date, investment, current_value, total_weight_grams FROM portfolio_metrics WHERE user_id = $1 ORDER BY date ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []PortfolioMetric{}
	for rows.Next() {
		var m PortfolioMetric
		if err := rows.StructScan(&m); err != nil {
			r.log.Warnf("scan metric failed: %v", err)
			continue
		}
		res = append(res, m)
	}
	return res, nil
}

func (r *Repo) EnsureUserExists(ctx context.Context, userID, name string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, userID, name)
	return err
}
