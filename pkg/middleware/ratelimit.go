package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/iota-uz/schemagov/pkg/composables"
	"github.com/iota-uz/schemagov/pkg/httpapi"
)

const rateLimitPrefix = "schemagov:ratelimit"

type RateLimitConfig struct {
	RequestsPerPeriod int
	Period            time.Duration
	Store             limiter.Store
	// KeyFunc defaults to the client IP.
	KeyFunc func(r *http.Request) string
}

func NewMemoryStore() limiter.Store {
	return memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          rateLimitPrefix,
		CleanUpInterval: time.Minute,
	})
}

func NewRedisStore(redisURL string) (limiter.Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return sredis.NewStoreWithOptions(redis.NewClient(opts), limiter.StoreOptions{Prefix: rateLimitPrefix})
}

// ByPrincipal keys the limit on the authenticated username, falling back to the client IP.
func ByPrincipal(r *http.Request) string {
	if username, err := composables.UseUsername(r.Context()); err == nil {
		return "user:" + username
	}
	return limiter.GetIP(r).String()
}

func RateLimit(cfg RateLimitConfig) mux.MiddlewareFunc {
	if cfg.Period <= 0 {
		cfg.Period = time.Second
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	instance := limiter.New(cfg.Store, limiter.Rate{Period: cfg.Period, Limit: int64(cfg.RequestsPerPeriod)})

	opts := []stdlib.Option{
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			meta := map[string]string{}
			if id, ok := composables.UseRequestID(r.Context()); ok {
				meta["request_id"] = id
			}
			_ = httpapi.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", meta)
		}),
	}
	if cfg.KeyFunc != nil {
		opts = append(opts, stdlib.WithKeyGetter(cfg.KeyFunc))
	}
	mw := stdlib.NewMiddleware(instance, opts...)
	return mw.Handler
}
