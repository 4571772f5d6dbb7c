package goldapi

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrAllCredentialsFailed means every API key was tried and none
	// produced a usable price. Terminal for the call; the caller falls
	// back to the last known or static price.
	ErrAllCredentialsFailed = errors.New("goldapi: all credentials failed")

	// ErrImplausiblePrice means the upstream answered but the 24k price
	// is below the plausibility floor. Treated like an outage by callers.
	ErrImplausiblePrice = errors.New("goldapi: price below plausibility floor")
)

var gramsPerTroyOunce = decimal.NewFromFloat(31.1035)

type Quote struct {
	Price24K   decimal.Decimal
	Price22K   decimal.Decimal
	ObservedAt time.Time
	Source     string
}

type spotResponse struct {
	PriceGram24K float64 `json:"price_gram_24k"`
	PriceGram22K float64 `json:"price_gram_22k"`
	Price        float64 `json:"price"` // per troy ounce
	Timestamp    int64   `json:"timestamp"`
}

// Client fetches the spot price from one upstream provider using an ordered
// list of API keys. Keys are tried in rotation starting from the last key
// that worked, so a dead key is deprioritized instead of being hit first on
// every call.
type Client struct {
	baseURL string
	keys    []string
	floor   decimal.Decimal
	http    *resty.Client

	mu       sync.Mutex
	lastGood int
}

func NewClient(baseURL string, keys []string, floor decimal.Decimal) *Client {
	c := resty.New()
	c.SetTimeout(15 * time.Second)
	return &Client{baseURL: baseURL, keys: keys, floor: floor, http: c}
}

// LastGoodIndex returns the credential index the next fetch will start from.
func (c *Client) LastGoodIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastGood
}

// FetchSpotPrice tries each credential once, in rotation, and returns the
// first usable quote. A transport error, non-2xx status, or underivable
// price advances to the next key. Exhausting all keys returns
// ErrAllCredentialsFailed.
func (c *Client) FetchSpotPrice(ctx context.Context) (*Quote, error) {
	if len(c.keys) == 0 {
		return nil, ErrAllCredentialsFailed
	}

	c.mu.Lock()
	start := c.lastGood
	c.mu.Unlock()

	var lastErr error
	for i := 0; i < len(c.keys); i++ {
		idx := (start + i) % len(c.keys)
		q, err := c.fetchWithKey(ctx, c.keys[idx])
		if err != nil {
			lastErr = err
			continue
		}
		if q.Price24K.Cmp(c.floor) < 0 {
			return nil, errors.Wrapf(ErrImplausiblePrice, "got %s", q.Price24K)
		}
		c.mu.Lock()
		c.lastGood = idx
		c.mu.Unlock()
		return q, nil
	}
	if lastErr != nil {
		return nil, errors.Wrap(ErrAllCredentialsFailed, lastErr.Error())
	}
	return nil, ErrAllCredentialsFailed
}

func (c *Client) fetchWithKey(ctx context.Context, key string) (*Quote, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-access-token", key).
		Get(c.baseURL)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, errors.Errorf("status %d", resp.StatusCode())
	}

	var body spotResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}

	price24k, price22k, err := derivePrices(body)
	if err != nil {
		return nil, err
	}

	observedAt := time.Now().UTC()
	if body.Timestamp > 0 {
		observedAt = time.Unix(body.Timestamp, 0).UTC()
	}
	return &Quote{
		Price24K:   price24k,
		Price22K:   price22k,
		ObservedAt: observedAt,
		Source:     "goldapi",
	}, nil
}

// derivePrices normalizes the response to per-gram prices. The provider's
// native price_gram_24k wins; otherwise the troy-ounce price is converted.
// 22k defaults to 24k × 22/24 when absent.
func derivePrices(body spotResponse) (decimal.Decimal, decimal.Decimal, error) {
	var price24k decimal.Decimal
	switch {
	case body.PriceGram24K > 0:
		price24k = decimal.NewFromFloat(body.PriceGram24K)
	case body.Price > 0:
		price24k = decimal.NewFromFloat(body.Price).Div(gramsPerTroyOunce)
	default:
		return decimal.Zero, decimal.Zero, errors.New("no derivable price in response")
	}

	var price22k decimal.Decimal
	if body.PriceGram22K > 0 {
		price22k = decimal.NewFromFloat(body.PriceGram22K)
	} else {
		price22k = price24k.Mul(decimal.NewFromInt(22)).Div(decimal.NewFromInt(24))
	}
	return price24k, price22k, nil
}
