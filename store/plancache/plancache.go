/*
Package plancache puts a Redis read-through cache in front of plan lookups.

Every engine operation loads the calculation's plan, and plans change rarely.
Store wraps any incentive.Store and serves LoadPlan from Redis, falling back
to the wrapped store on a miss. All other methods pass straight through,
including WithTx: reads inside a transaction always hit the database.

Redis failures never fail a lookup. They are logged and the wrapped store
answers instead.

USAGE:
  rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
  cached := plancache.New(sqliteStore, rdb, plancache.WithTTL(10*time.Minute))
  engine := incentive.NewEngine(cached)
*/
package plancache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/incentive-engine/incentive"
)

// DefaultTTL is how long a cached plan lives.
const DefaultTTL = 5 * time.Minute

// Client is the subset of *redis.Client the cache needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// PlanSaver is implemented by stores that can write plans.
type PlanSaver interface {
	SavePlan(ctx context.Context, p incentive.Plan) error
}

// Store caches LoadPlan of the embedded incentive.Store.
type Store struct {
	incentive.Store
	client Client
	ttl    time.Duration
	prefix string
	log    *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the cache entry lifetime.
func WithTTL(ttl time.Duration) Option { return func(s *Store) { s.ttl = ttl } }

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option { return func(s *Store) { s.prefix = prefix } }

// WithLogger sets the logger for cache failures.
func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.log = l } }

// New wraps inner with a plan cache backed by client.
func New(inner incentive.Store, client Client, opts ...Option) *Store {
	s := &Store{
		Store:  inner,
		client: client,
		ttl:    DefaultTTL,
		prefix: "incentive:plan:",
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

// LoadPlan returns the cached plan, loading and caching it on a miss.
func (s *Store) LoadPlan(ctx context.Context, id string) (*incentive.Plan, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	switch {
	case err == nil:
		var p incentive.Plan
		if err := json.Unmarshal(raw, &p); err == nil {
			return &p, nil
		}
		s.log.Warn("discarding undecodable cached plan", zap.String("plan_id", id))
	case errors.Is(err, redis.Nil):
	default:
		s.log.Warn("plan cache read failed", zap.String("plan_id", id), zap.Error(err))
	}

	p, err := s.Store.LoadPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	s.put(ctx, p)
	return p, nil
}

func (s *Store) put(ctx context.Context, p *incentive.Plan) {
	raw, err := json.Marshal(p)
	if err != nil {
		s.log.Warn("plan cache encode failed", zap.String("plan_id", p.ID), zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, s.key(p.ID), raw, s.ttl).Err(); err != nil {
		s.log.Warn("plan cache write failed", zap.String("plan_id", p.ID), zap.Error(err))
	}
}

// Invalidate drops a plan from the cache.
func (s *Store) Invalidate(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("invalidate plan %s: %w", id, err)
	}
	return nil
}

// SavePlan writes through to the wrapped store and invalidates the cached copy.
func (s *Store) SavePlan(ctx context.Context, p incentive.Plan) error {
	saver, ok := s.Store.(PlanSaver)
	if !ok {
		return fmt.Errorf("wrapped store %T cannot save plans", s.Store)
	}
	if err := saver.SavePlan(ctx, p); err != nil {
		return err
	}
	if err := s.Invalidate(ctx, p.ID); err != nil {
		s.log.Warn("plan cache invalidation failed", zap.String("plan_id", p.ID), zap.Error(err))
	}
	return nil
}

var _ incentive.Store = (*Store)(nil)
