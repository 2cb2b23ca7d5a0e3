package rates

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/fraxionlabs/fraxion-backend/pkg/enums"
	"github.com/fraxionlabs/fraxion-backend/pkg/logger"
)

// rateCache is the slice of the redis client the service needs.
type rateCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	RateCacheKey(currency string) string
}

// Service quotes exchange rates with a short-lived cache in front of the
// provider so a burst of reservations does not hammer it.
type Service struct {
	client Client
	cache  rateCache
	logg   *logger.Logger
	ttl    time.Duration
}

// NewService wires the cached rate service. cache may be nil, in which case
// every quote hits the provider.
func NewService(client Client, cache rateCache, logg *logger.Logger, ttl time.Duration) (*Service, error) {
	if client == nil {
		return nil, errors.New("rate client is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{client: client, cache: cache, logg: logg, ttl: ttl}, nil
}

// Rate returns how much of currency one US dollar buys.
func (s *Service) Rate(ctx context.Context, currency enums.Currency) (decimal.Decimal, error) {
	if currency == enums.CurrencyUSD {
		return decimal.NewFromInt(1), nil
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, s.cache.RateCacheKey(string(currency)))
		if err == nil {
			if rate, parseErr := decimal.NewFromString(cached); parseErr == nil {
				return rate, nil
			}
		} else if !errors.Is(err, goredis.Nil) {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "rate cache read failed")
		}
	}

	rate, err := s.client.Rate(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}

	if s.cache != nil && s.ttl > 0 {
		key := s.cache.RateCacheKey(string(currency))
		if err := s.cache.Set(ctx, key, rate.String(), s.ttl); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "rate cache write failed")
		}
	}
	return rate, nil
}

// ConvertCents converts a USD cent amount into the target currency using
// the current rate. Decimal arithmetic throughout; callers compare against
// tolerances, never floats.
func (s *Service) ConvertCents(ctx context.Context, cents int64, currency enums.Currency) (decimal.Decimal, error) {
	rate, err := s.Rate(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}
	usd := decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
	return usd.Mul(rate), nil
}
