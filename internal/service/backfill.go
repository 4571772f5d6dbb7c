package service

import (
	"context"
	"time"

	"goldfolio/internal/database"
	"goldfolio/internal/marketday"
	"goldfolio/internal/models"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type BackfillStore interface {
	GetPurchases(ctx context.Context, userID string) ([]models.Purchase, error)
	ListGoldPrices(ctx context.Context) ([]database.GoldPrice, error)
	ReplaceMetrics(ctx context.Context, userID string, metrics []database.PortfolioMetric) error
}

// BackfillService regenerates the per-day portfolio value series by
// replaying the purchase ledger against the price history. The whole series
// is rebuilt and swapped atomically on every run.
type BackfillService struct {
	store    BackfillStore
	fallback decimal.Decimal
	log      *logrus.Logger
	now      func() time.Time
}

func NewBackfillService(store BackfillStore, fallback decimal.Decimal, log *logrus.Logger) *BackfillService {
	return &BackfillService{store: store, fallback: fallback, log: log, now: time.Now}
}

// Run rebuilds the metric series for one user, returning the number of days
// written. No purchases means nothing to backfill. Any load or write error
// aborts without touching the existing series.
func (s *BackfillService) Run(ctx context.Context, userID string) (int, error) {
	purchases, err := s.store.GetPurchases(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "load purchases")
	}
	if len(purchases) == 0 {
		return 0, nil
	}

	prices, err := s.store.ListGoldPrices(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "load price history")
	}

	today := marketday.DateIn(s.now(), marketday.IST)
	rows := buildDailyMetrics(purchases, prices, today, s.fallback)
	if err := s.store.ReplaceMetrics(ctx, userID, rows); err != nil {
		return 0, errors.Wrap(err, "replace metrics")
	}
	s.log.Infof("backfilled %d daily metrics for user %s", len(rows), userID)
	return len(rows), nil
}

// buildDailyMetrics walks every calendar day from the earliest purchase
// through today. A purchase contributes to every day on or after its own
// date (forward fill); each day is valued at the latest observation known by
// the end of that market day, else the static fallback.
func buildDailyMetrics(purchases []models.Purchase, prices []database.GoldPrice, today time.Time, fallback decimal.Decimal) []database.PortfolioMetric {
	start := dateOnly(purchases[0].PurchaseDate)
	for _, p := range purchases[1:] {
		if d := dateOnly(p.PurchaseDate); d.Before(start) {
			start = d
		}
	}
	end := dateOnly(today)

	rows := []database.PortfolioMetric{}
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		cutoff := marketday.EndOfDayUTC(time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, marketday.IST), marketday.IST)
		price := priceAsOf(prices, cutoff, fallback)

		investment := decimal.Zero
		totalWeight := decimal.Zero
		currentValue := decimal.Zero
		for _, p := range purchases {
			if dateOnly(p.PurchaseDate).After(day) {
				continue
			}
			investment = investment.Add(p.TotalAmount)
			totalWeight = totalWeight.Add(p.WeightGrams)
			currentValue = currentValue.Add(p.ValueAt(price))
		}

		rows = append(rows, database.PortfolioMetric{
			Date:         day.Format("2006-01-02"),
			Investment:   investment.Round(2),
			CurrentValue: currentValue.Round(2),
			TotalWeight:  totalWeight.Round(3),
		})
	}
	return rows
}

// priceAsOf returns the last observation strictly before cutoff. Assumes
// prices sorted by observed_at ascending, as the store returns them.
func priceAsOf(prices []database.GoldPrice, cutoff time.Time, fallback decimal.Decimal) decimal.Decimal {
	price := fallback
	for _, obs := range prices {
		if !obs.ObservedAt.Before(cutoff) {
			break
		}
		price = obs.Price24K
	}
	return price
}

// dateOnly strips the time component, keeping the calendar date.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
