package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"comms-platform/internal/metrics"
	"comms-platform/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// Service is the pricing oracle: per-country outbound SMS unit prices.
//
// Contract:
// - Cache first; a miss goes to the provider exactly once per country even under concurrency.
// - Only real provider prices are returned. There is no default or estimated price.
// - The cache is best-effort; its failures degrade to provider calls, never to errors.
type Service struct {
	provider Provider
	cache    Cache
	ttl      time.Duration
	group    singleflight.Group
}

// DefaultTTL bounds price staleness.
const DefaultTTL = time.Hour

// FetchTimeout bounds one provider round trip shared by coalesced callers.
const FetchTimeout = 10 * time.Second

var (
	ErrPricingUnavailable = errors.New("pricing: unit price unavailable")
	ErrInvalidCountry     = errors.New("pricing: invalid country code")
)

func NewService(provider Provider, cache Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{provider: provider, cache: cache, ttl: ttl}
}

// UnitPriceUSD returns the provider's current per-segment price for cc.
func (s *Service) UnitPriceUSD(ctx context.Context, cc string) (float64, error) {
	cc = strings.ToUpper(strings.TrimSpace(cc))
	if len(cc) != 2 {
		return 0, ErrInvalidCountry
	}
	log := logger.From(ctx)

	if s.cache != nil {
		usd, ok, err := s.cache.Get(ctx, cc)
		if err != nil {
			log.Warn("pricing cache read failed", "country", cc, "err", err)
		} else if ok {
			metrics.PricingLookupsTotal.WithLabelValues("hit").Inc()
			return usd, nil
		}
	}
	metrics.PricingLookupsTotal.WithLabelValues("miss").Inc()

	// The shared fetch outlives any single caller: a cancelled quote request must not
	// fail the other requests waiting on the same country.
	ch := s.group.DoChan(cc, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FetchTimeout)
		defer cancel()
		return s.fetch(fctx, cc)
	})
	select {
	case <-ctx.Done():
		metrics.PricingLookupsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("%w: %s: %v", ErrPricingUnavailable, cc, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			metrics.PricingLookupsTotal.WithLabelValues("error").Inc()
			log.Error("pricing lookup failed", "country", cc, "err", res.Err)
			return 0, res.Err
		}
		return res.Val.(float64), nil
	}
}

// UnitPriceCents is UnitPriceUSD rounded to whole cents.
func (s *Service) UnitPriceCents(ctx context.Context, cc string) (int64, error) {
	usd, err := s.UnitPriceUSD(ctx, cc)
	if err != nil {
		return 0, err
	}
	return USDToCents(usd), nil
}

func (s *Service) fetch(ctx context.Context, cc string) (float64, error) {
	if s.provider == nil {
		return 0, fmt.Errorf("%w: provider not configured", ErrPricingUnavailable)
	}
	start := time.Now()
	raw, err := s.provider.FetchCountryPricing(ctx, cc)
	metrics.PricingProviderDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, ErrPricingUnavailable) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %s: %v", ErrPricingUnavailable, cc, err)
	}

	usd, err := ExtractUnitPriceUSD(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cc, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cc, usd, s.ttl); err != nil {
			logger.From(ctx).Warn("pricing cache write failed", "country", cc, "err", err)
		}
	}
	return usd, nil
}

// ExtractUnitPriceUSD picks the first available per-segment price from a provider response.
// The first carrier row decides: its first segment price, else its row-level price.
func ExtractUnitPriceUSD(p CountryPricing) (float64, error) {
	for _, row := range p.OutboundSMSPrices {
		var v PriceValue
		switch {
		case len(row.Prices) > 0 && row.Prices[0].CurrentPrice.Present():
			v = row.Prices[0].CurrentPrice
		case row.CurrentPrice.Present():
			v = row.CurrentPrice
		default:
			continue
		}
		usd, err := v.Float()
		if err != nil || math.IsNaN(usd) || math.IsInf(usd, 0) || usd < 0 {
			return 0, fmt.Errorf("%w: non-numeric price %q", ErrPricingUnavailable, string(v))
		}
		return usd, nil
	}
	return 0, fmt.Errorf("%w: no outbound sms prices", ErrPricingUnavailable)
}

// USDToCents rounds a dollar amount to the nearest cent.
func USDToCents(usd float64) int64 {
	return int64(math.Round(usd * 100))
}
