package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/schemagov/modules/schemas/access"
)

const scopeKeyPrefix = "schemas:scope:"

// ScopeCache stores resolved scopes for a short time. A miss returns (nil, nil).
type ScopeCache interface {
	Get(ctx context.Context, username string) (*access.Scope, error)
	Set(ctx context.Context, username string, scope *access.Scope) error
}

type RedisScopeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisScopeCache connects to addr, which is either host:port or a redis:// URL.
func NewRedisScopeCache(addr string, ttl time.Duration) (*RedisScopeCache, error) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, gerrors.Wrap(err, "parse redis url")
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opts)
	client.AddHook(metricsHook{})
	return &RedisScopeCache{client: client, ttl: ttl}, nil
}

func (c *RedisScopeCache) Get(ctx context.Context, username string) (*access.Scope, error) {
	raw, err := c.client.Get(ctx, scopeKeyPrefix+username).Bytes()
	if errors.Is(err, redis.Nil) {
		scopeCacheLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}
	if err != nil {
		scopeCacheLookups.WithLabelValues("error").Inc()
		return nil, gerrors.Wrap(err, "scope cache get")
	}
	var scope access.Scope
	if err := json.Unmarshal(raw, &scope); err != nil {
		scopeCacheLookups.WithLabelValues("error").Inc()
		return nil, gerrors.Wrap(err, "decode cached scope")
	}
	scopeCacheLookups.WithLabelValues("hit").Inc()
	return &scope, nil
}

func (c *RedisScopeCache) Set(ctx context.Context, username string, scope *access.Scope) error {
	raw, err := json.Marshal(scope)
	if err != nil {
		return gerrors.Wrap(err, "encode scope")
	}
	if err := c.client.Set(ctx, scopeKeyPrefix+username, raw, c.ttl).Err(); err != nil {
		return gerrors.Wrap(err, "scope cache set")
	}
	return nil
}

func (c *RedisScopeCache) Close() error {
	return c.client.Close()
}

type metricsHook struct{}

func (metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			redisErrors.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			redisErrors.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}
