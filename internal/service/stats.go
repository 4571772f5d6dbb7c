package service

import (
	"context"
	"math"
	"sync"
	"time"

	"goldfolio/internal/models"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	// ErrComputationInFlight means a valuation for the same user is
	// already running; the newer call is dropped, not queued.
	ErrComputationInFlight = errors.New("stats computation already in flight")

	ErrInvalidPrice = errors.New("current price is zero or negative")
)

// Annualized return needs at least this many days of history; below it the
// exponent blows tiny fluctuations into absurd rates.
const minAnnualizeDays = 30

type PortfolioStats struct {
	TotalWeight              decimal.Decimal  `json:"totalWeight"`
	TotalInvestment          decimal.Decimal  `json:"totalInvestment"`
	CurrentValue             decimal.Decimal  `json:"currentValue"`
	TotalGain                decimal.Decimal  `json:"totalGain"`
	GainPercentage           decimal.Decimal  `json:"gainPercentage"`
	AveragePurchasePrice     decimal.Decimal  `json:"averagePurchasePrice"`
	AveragePurePurchasePrice decimal.Decimal  `json:"averagePurePurchasePrice"`
	AnnualizedReturn         *decimal.Decimal `json:"annualizedReturn"` // nil when insufficient history
	PurchaseCount            int              `json:"purchaseCount"`
	PriceEstimated           bool             `json:"priceEstimated"`
}

type PurchaseSource interface {
	GetPurchases(ctx context.Context, userID string) ([]models.Purchase, error)
}

type CurrentPricer interface {
	CurrentPrice(ctx context.Context) (decimal.Decimal, bool, error)
}

type StatsService struct {
	purchases PurchaseSource
	pricer    CurrentPricer
	log       *logrus.Logger
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewStatsService(purchases PurchaseSource, pricer CurrentPricer, log *logrus.Logger) *StatsService {
	return &StatsService{
		purchases: purchases,
		pricer:    pricer,
		log:       log,
		now:       time.Now,
		inFlight:  map[string]bool{},
	}
}

func (s *StatsService) acquire(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[userID] {
		return false
	}
	s.inFlight[userID] = true
	return true
}

func (s *StatsService) release(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, userID)
}

// ComputeStats values the user's purchases at the current price. At most
// one computation runs per user; an overlapping call gets
// ErrComputationInFlight and should re-trigger later if state changed.
func (s *StatsService) ComputeStats(ctx context.Context, userID string) (*PortfolioStats, error) {
	if !s.acquire(userID) {
		return nil, ErrComputationInFlight
	}
	defer s.release(userID)

	price, estimated, err := s.pricer.CurrentPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolve current price")
	}
	if price.Cmp(decimal.Zero) <= 0 {
		return nil, ErrInvalidPrice
	}

	purchases, err := s.purchases.GetPurchases(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "load purchases")
	}

	stats := computeStats(purchases, price, s.now())
	stats.PriceEstimated = estimated
	return stats, nil
}

// computeStats derives all portfolio statistics from the purchase set and a
// single 24k price. Current value is summed per purchase at its own purity;
// multiplying aggregate weight by the price would misprice a mixed-carat
// portfolio. Rounding happens once, here.
func computeStats(purchases []models.Purchase, price24k decimal.Decimal, now time.Time) *PortfolioStats {
	stats := &PortfolioStats{PurchaseCount: len(purchases)}
	if len(purchases) == 0 {
		return stats
	}

	totalWeight := decimal.Zero
	totalInvestment := decimal.Zero
	pureWeight := decimal.Zero
	currentValue := decimal.Zero
	earliest := purchases[0].PurchaseDate
	for _, p := range purchases {
		totalWeight = totalWeight.Add(p.WeightGrams)
		totalInvestment = totalInvestment.Add(p.TotalAmount)
		pureWeight = pureWeight.Add(p.PureWeight())
		currentValue = currentValue.Add(p.ValueAt(price24k))
		if p.PurchaseDate.Before(earliest) {
			earliest = p.PurchaseDate
		}
	}

	totalGain := currentValue.Sub(totalInvestment)
	gainPct := decimal.Zero
	if totalInvestment.Cmp(decimal.Zero) > 0 {
		gainPct = totalGain.Div(totalInvestment).Mul(decimal.NewFromInt(100))
	}
	avgPrice := decimal.Zero
	if totalWeight.Cmp(decimal.Zero) > 0 {
		avgPrice = totalInvestment.Div(totalWeight)
	}
	avgPurePrice := decimal.Zero
	if pureWeight.Cmp(decimal.Zero) > 0 {
		avgPurePrice = totalInvestment.Div(pureWeight)
	}

	stats.TotalWeight = totalWeight.Round(3)
	stats.TotalInvestment = totalInvestment.Round(2)
	stats.CurrentValue = currentValue.Round(2)
	stats.TotalGain = totalGain.Round(2)
	stats.GainPercentage = gainPct.Round(2)
	stats.AveragePurchasePrice = avgPrice.Round(2)
	stats.AveragePurePurchasePrice = avgPurePrice.Round(2)
	stats.AnnualizedReturn = annualizedReturn(totalInvestment, currentValue, earliest, now)
	return stats
}

// annualizedReturn is the single-cash-flow CAGR,
// (currentValue/totalInvestment)^(365.25/elapsedDays) − 1, as a percentage.
// Nil means "not available": too little history or non-positive inputs. A
// zero return stays distinguishable from missing data.
func annualizedReturn(investment, currentValue decimal.Decimal, earliest, now time.Time) *decimal.Decimal {
	elapsedDays := now.Sub(earliest).Hours() / 24
	if elapsedDays < minAnnualizeDays {
		return nil
	}
	if investment.Cmp(decimal.Zero) <= 0 || currentValue.Cmp(decimal.Zero) <= 0 {
		return nil
	}
	ratio, _ := currentValue.Div(investment).Float64()
	rate := math.Pow(ratio, 365.25/elapsedDays) - 1
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil
	}
	pct := decimal.NewFromFloat(rate * 100).Round(2)
	return &pct
}
