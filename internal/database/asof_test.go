package database

import (
	"context"
	"testing"
	"time"

	"goldfolio/internal/marketday"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertObs(t *testing.T, r *Repo, price float64, observedAt time.Time, source string) {
	t.Helper()
	p22 := decimal.NullDecimal{Decimal: decimal.NewFromFloat(price * 22 / 24).Round(2), Valid: true}
	require.NoError(t, r.InsertGoldPrice(context.Background(), decimal.NewFromFloat(price), p22, observedAt.UTC(), source))
}

// Regression shape: a morning query for "yesterday" must return yesterday's
// observation, not an older one. The window is an IST day converted to UTC;
// a naive UTC day subtraction misses observations made after 18:30 UTC.
func TestLatestAsOfYesterday_ISTBoundary(t *testing.T) {
	db := setupDB(t)
	logger := logrus.New()
	r := New(db, logger)
	ctx := context.Background()

	_, _ = db.Exec(`DELETE FROM gold_prices`)

	insertObs(t, r, 6200, time.Date(2025, 3, 1, 14, 0, 0, 0, marketday.IST), SourceAPI)
	insertObs(t, r, 7300, time.Date(2025, 7, 14, 14, 0, 0, 0, marketday.IST), SourceAPI)

	now := time.Date(2025, 7, 15, 9, 0, 0, 0, marketday.IST)
	obs, err := r.LatestAsOfYesterday(ctx, now)
	require.NoError(t, err)
	require.NotNil(t, obs, "expected the 2025-07-14 observation")
	assert.True(t, obs.Price24K.Equal(decimal.NewFromInt(7300)), "got %s, want the July observation not the March one", obs.Price24K)
}

func TestLatestAsOfYesterday_NoObservations(t *testing.T) {
	db := setupDB(t)
	logger := logrus.New()
	r := New(db, logger)

	_, _ = db.Exec(`DELETE FROM gold_prices`)

	obs, err := r.LatestAsOfYesterday(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Nil(t, obs)
}

func TestGoldPriceAsOf_StrictlyBeforeCutoff(t *testing.T) {
	db := setupDB(t)
	logger := logrus.New()
	r := New(db, logger)
	ctx := context.Background()

	_, _ = db.Exec(`DELETE FROM gold_prices`)

	cutoff := time.Date(2025, 7, 14, 18, 30, 0, 0, time.UTC)
	insertObs(t, r, 7000, cutoff.Add(-time.Minute), SourceAPI)
	insertObs(t, r, 7500, cutoff, SourceAPI) // exactly at the boundary: excluded

	obs, err := r.GoldPriceAsOf(ctx, cutoff)
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.True(t, obs.Price24K.Equal(decimal.NewFromInt(7000)))
}

func TestHasNonManualPriceForDay(t *testing.T) {
	db := setupDB(t)
	logger := logrus.New()
	r := New(db, logger)
	ctx := context.Background()

	_, _ = db.Exec(`DELETE FROM gold_prices`)

	day := time.Date(2025, 7, 14, 11, 0, 0, 0, marketday.IST)

	exists, err := r.HasNonManualPriceForDay(ctx, day)
	require.NoError(t, err)
	assert.False(t, exists)

	// manual rows don't count against the one-per-day invariant
	insertObs(t, r, 7100, day, SourceManual)
	exists, err = r.HasNonManualPriceForDay(ctx, day)
	require.NoError(t, err)
	assert.False(t, exists)

	insertObs(t, r, 7200, day.Add(time.Hour), SourceScheduledAPI)
	exists, err = r.HasNonManualPriceForDay(ctx, day)
	require.NoError(t, err)
	assert.True(t, exists)

	// the next IST day is a fresh window
	exists, err = r.HasNonManualPriceForDay(ctx, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, exists)
}
