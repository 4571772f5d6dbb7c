package service

import (
	"context"
	"math"
	"testing"
	"time"

	"goldfolio/internal/models"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func purchase(weight, pricePerGram float64, carat int, date time.Time) models.Purchase {
	w := decimal.NewFromFloat(weight)
	p := decimal.NewFromFloat(pricePerGram)
	return models.Purchase{
		WeightGrams:  w,
		PricePerGram: p,
		Carat:        carat,
		TotalAmount:  w.Mul(p),
		PurchaseDate: date,
	}
}

func TestComputeStats_GainIdentity(t *testing.T) {
	now := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)
	purchases := []models.Purchase{
		purchase(10, 5000, 24, now.AddDate(0, -6, 0)),
		purchase(8.5, 5500, 22, now.AddDate(0, -3, 0)),
		purchase(2.345, 6000, 18, now.AddDate(0, -1, 0)),
	}
	stats := computeStats(purchases, decimal.NewFromInt(7000), now)

	// currentValue − totalInvestment == totalGain before the final rounding
	diff := stats.CurrentValue.Sub(stats.TotalInvestment).Sub(stats.TotalGain).Abs()
	assert.True(t, diff.LessThanOrEqual(decimal.NewFromFloat(0.05)), "identity off by %s", diff)
	assert.Equal(t, 3, stats.PurchaseCount)
}

func TestComputeStats_PurityRatio(t *testing.T) {
	now := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)
	date := now.AddDate(0, -2, 0)
	price := decimal.NewFromInt(7000)

	s24 := computeStats([]models.Purchase{purchase(10, 5000, 24, date)}, price, now)
	s22 := computeStats([]models.Purchase{purchase(10, 5000, 22, date)}, price, now)

	// A 22-carat purchase values at exactly 22/24 of the same 24-carat one.
	want := s24.CurrentValue.Mul(decimal.NewFromInt(22)).Div(decimal.NewFromInt(24)).Round(2)
	assert.True(t, s22.CurrentValue.Equal(want), "got %s want %s", s22.CurrentValue, want)
}

func TestComputeStats_MixedPurityAverages(t *testing.T) {
	now := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)
	date := now.AddDate(0, -2, 0)
	price := decimal.NewFromInt(7000)

	mixed := computeStats([]models.Purchase{
		purchase(10, 5000, 24, date),
		purchase(10, 4600, 22, date),
	}, price, now)
	assert.False(t, mixed.AveragePurePurchasePrice.Equal(mixed.AveragePurchasePrice))
	assert.True(t, mixed.AveragePurePurchasePrice.GreaterThan(mixed.AveragePurchasePrice))

	pure := computeStats([]models.Purchase{
		purchase(10, 5000, 24, date),
		purchase(5, 5200, 24, date),
	}, price, now)
	assert.True(t, pure.AveragePurePurchasePrice.Equal(pure.AveragePurchasePrice))
}

func TestComputeStats_AnnualizedReturnSentinel(t *testing.T) {
	now := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)

	// Too recent: nil, not zero.
	recent := computeStats([]models.Purchase{purchase(10, 5000, 24, now.AddDate(0, 0, -10))}, decimal.NewFromInt(7000), now)
	assert.Nil(t, recent.AnnualizedReturn)

	// Flat price over a year: a real 0%, not the sentinel.
	flat := computeStats([]models.Purchase{purchase(10, 7000, 24, now.AddDate(-1, 0, 0))}, decimal.NewFromInt(7000), now)
	require.NotNil(t, flat.AnnualizedReturn)
	assert.True(t, flat.AnnualizedReturn.Abs().LessThan(decimal.NewFromFloat(0.01)), "got %s", flat.AnnualizedReturn)
}

func TestComputeStats_AnnualizedReturnFormula(t *testing.T) {
	now := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)
	earliest := now.AddDate(-2, 0, 0)

	// 10g bought at 5000, valued at 7000: ratio 1.4 over ~2 years.
	stats := computeStats([]models.Purchase{purchase(10, 5000, 24, earliest)}, decimal.NewFromInt(7000), now)
	require.NotNil(t, stats.AnnualizedReturn)

	// Check currentValue ≈ totalInvestment × (1+rate)^years.
	rate, _ := stats.AnnualizedReturn.Div(decimal.NewFromInt(100)).Float64()
	years := now.Sub(earliest).Hours() / 24 / 365.25
	inv, _ := stats.TotalInvestment.Float64()
	cv, _ := stats.CurrentValue.Float64()
	assert.InDelta(t, cv, inv*math.Pow(1+rate, years), cv*0.001)
}

func TestComputeStats_EmptySet(t *testing.T) {
	stats := computeStats(nil, decimal.NewFromInt(7000), time.Now())
	assert.Equal(t, 0, stats.PurchaseCount)
	assert.True(t, stats.TotalInvestment.IsZero())
	assert.True(t, stats.CurrentValue.IsZero())
	assert.True(t, stats.TotalGain.IsZero())
	assert.Nil(t, stats.AnnualizedReturn)
}

type stubPurchases struct {
	purchases []models.Purchase
	err       error
}

func (s *stubPurchases) GetPurchases(ctx context.Context, userID string) ([]models.Purchase, error) {
	return s.purchases, s.err
}

type stubPricer struct {
	price     decimal.Decimal
	estimated bool
	err       error
	entered   chan struct{}
	release   chan struct{}
}

func (s *stubPricer) CurrentPrice(ctx context.Context) (decimal.Decimal, bool, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
		<-s.release
	}
	return s.price, s.estimated, s.err
}

func TestComputeStats_RejectsInvalidPrice(t *testing.T) {
	svc := NewStatsService(&stubPurchases{}, &stubPricer{price: decimal.Zero}, logrus.New())
	_, err := svc.ComputeStats(context.Background(), "u1")
	assert.True(t, errors.Is(err, ErrInvalidPrice))
}

func TestComputeStats_SingleFlightDropsOverlap(t *testing.T) {
	pricer := &stubPricer{
		price:   decimal.NewFromInt(7000),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := NewStatsService(&stubPurchases{}, pricer, logrus.New())

	done := make(chan error, 1)
	go func() {
		_, err := svc.ComputeStats(context.Background(), "u1")
		done <- err
	}()
	<-pricer.entered // first call is now inside the lock

	_, err := svc.ComputeStats(context.Background(), "u1")
	assert.True(t, errors.Is(err, ErrComputationInFlight))

	// A different user is not blocked.
	pricer2 := &stubPricer{price: decimal.NewFromInt(7000)}
	svc2 := NewStatsService(&stubPurchases{}, pricer2, logrus.New())
	_, err = svc2.ComputeStats(context.Background(), "u2")
	assert.NoError(t, err)

	close(pricer.release)
	require.NoError(t, <-done)

	// After completion the lock is free again.
	pricer.entered = nil
	_, err = svc.ComputeStats(context.Background(), "u1")
	assert.NoError(t, err)
}

func TestComputeStats_EstimatedFlagPropagates(t *testing.T) {
	svc := NewStatsService(&stubPurchases{}, &stubPricer{price: decimal.NewFromInt(7000), estimated: true}, logrus.New())
	stats, err := svc.ComputeStats(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, stats.PriceEstimated)
}
