package service

import (
	"context"
	"time"

	"goldfolio/internal/database"
	"goldfolio/internal/goldapi"
	"goldfolio/internal/marketday"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrAlreadyRecorded signals that today's observation already exists. Not a
// failure: repeated daily triggers are expected and safe.
var ErrAlreadyRecorded = errors.New("price already recorded for today")

type PriceStore interface {
	InsertGoldPrice(ctx context.Context, price24k decimal.Decimal, price22k decimal.NullDecimal, observedAt time.Time, source string) error
	HasNonManualPriceForDay(ctx context.Context, t time.Time) (bool, error)
	LatestGoldPrice(ctx context.Context) (*database.GoldPrice, error)
}

type SpotFetcher interface {
	FetchSpotPrice(ctx context.Context) (*goldapi.Quote, error)
}

type PriceService struct {
	store    PriceStore
	fetcher  SpotFetcher
	fallback decimal.Decimal
	log      *logrus.Logger
	now      func() time.Time
}

func NewPriceService(store PriceStore, fetcher SpotFetcher, fallback decimal.Decimal, log *logrus.Logger) *PriceService {
	return &PriceService{store: store, fetcher: fetcher, fallback: fallback, log: log, now: time.Now}
}

// RecordDailyPrice records at most one non-manual observation per market
// day. When one already exists it returns ErrAlreadyRecorded. When the
// upstream is unusable the last known price (or the static fallback) is
// recorded with source "fallback" so the history stays continuous.
func (s *PriceService) RecordDailyPrice(ctx context.Context, source string) (*database.GoldPrice, error) {
	now := s.now()
	exists, err := s.store.HasNonManualPriceForDay(ctx, now)
	if err != nil {
		return nil, errors.Wrap(err, "check today's observation")
	}
	if exists {
		return nil, ErrAlreadyRecorded
	}

	price24k, price22k := decimal.Zero, decimal.Zero
	observedAt := now.UTC()

	quote, err := s.fetcher.FetchSpotPrice(ctx)
	if err != nil {
		s.log.Warnf("spot fetch failed, recording fallback price: %v", err)
		source = database.SourceFallback
		price24k = s.fallback
		last, lerr := s.store.LatestGoldPrice(ctx)
		if lerr != nil {
			s.log.Warnf("last known price lookup failed, using static fallback: %v", lerr)
		}
		if last != nil {
			price24k = last.Price24K
		}
		price22k = price24k.Mul(decimal.NewFromInt(22)).Div(decimal.NewFromInt(24))
	} else {
		price24k = quote.Price24K
		price22k = quote.Price22K
		// The provider may return a stale quote timestamp (e.g. Friday's
		// close on a weekend fetch). The idempotence check ran against
		// today's window, so the row must land in it too, or every
		// subsequent tick would insert again.
		if marketday.SameDay(quote.ObservedAt, now, marketday.IST) {
			observedAt = quote.ObservedAt
		}
	}

	obs := &database.GoldPrice{
		Price24K:   price24k,
		Price22K:   decimal.NullDecimal{Decimal: price22k.Round(2), Valid: true},
		ObservedAt: observedAt,
		Source:     source,
	}
	if err := s.store.InsertGoldPrice(ctx, obs.Price24K, obs.Price22K, obs.ObservedAt, obs.Source); err != nil {
		return nil, errors.Wrap(err, "insert observation")
	}
	s.log.Infof("recorded gold price %s/g (source=%s)", obs.Price24K.StringFixed(2), obs.Source)
	return obs, nil
}

// CurrentPrice returns the 24k price to value portfolios at, and whether it
// is estimated (fallback-sourced or static) rather than live.
func (s *PriceService) CurrentPrice(ctx context.Context) (decimal.Decimal, bool, error) {
	last, err := s.store.LatestGoldPrice(ctx)
	if err != nil {
		return decimal.Zero, false, err
	}
	if last == nil {
		return s.fallback, true, nil
	}
	return last.Price24K, last.Source == database.SourceFallback, nil
}

// Start runs the scheduled daily recording loop. Repeated ticks on the same
// market day are no-ops thanks to the idempotent insert.
func (s *PriceService) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.log.Info("price recorder stopping")
				return
			case <-ticker.C:
				if _, err := s.RecordDailyPrice(ctx, database.SourceScheduledAPI); err != nil {
					if errors.Is(err, ErrAlreadyRecorded) {
						s.log.Debug("price already recorded for today")
						continue
					}
					s.log.Warnf("scheduled price recording failed: %v", err)
				}
			}
		}
	}()
}
