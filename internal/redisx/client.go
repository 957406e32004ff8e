package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Store adapts a redis client to the small key/value needs of the service.
type Store struct {
	RDB *redis.Client
}

// FirstSeen marks key as processed and reports whether this call was the first.
func (s *Store) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.RDB.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "setnx %s", key)
	}
	return ok, nil
}

// CheckoutOrderID returns the order created for an idempotency key, if any.
func (s *Store) CheckoutOrderID(ctx context.Context, idemKey string) (string, bool, error) {
	v, err := s.RDB.Get(ctx, fmt.Sprintf(KeyIdemCheckout, idemKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "get idempotency key")
	}
	return v, true, nil
}

func (s *Store) RememberCheckout(ctx context.Context, idemKey, orderID string) error {
	return s.RDB.Set(ctx, fmt.Sprintf(KeyIdemCheckout, idemKey), orderID, TTLIdempotency).Err()
}

// CachedOrder returns the raw cached order JSON and the cache generation the
// caller must hand back to CacheOrder after a miss.
func (s *Store) CachedOrder(ctx context.Context, orderID string) ([]byte, int64, bool, error) {
	var body, gen *redis.StringCmd
	_, err := s.RDB.Pipelined(ctx, func(p redis.Pipeliner) error {
		body = p.Get(ctx, fmt.Sprintf(KeyOrder, orderID))
		gen = p.Get(ctx, fmt.Sprintf(KeyOrderGen, orderID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, errors.Wrap(err, "get cached order")
	}
	g, err := gen.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, errors.Wrap(err, "get order cache generation")
	}
	b, err := body.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, g, false, nil
	}
	if err != nil {
		return nil, g, false, errors.Wrap(err, "get cached order")
	}
	return b, g, true, nil
}

// CacheOrder stores body only while the generation still equals gen, so a
// snapshot read before an invalidation is never cached after it.
func (s *Store) CacheOrder(ctx context.Context, orderID string, body []byte, gen int64) error {
	gkey := fmt.Sprintf(KeyOrderGen, orderID)
	err := s.RDB.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, gkey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, fmt.Sprintf(KeyOrder, orderID), body, TTLOrderCache)
			return nil
		})
		return err
	}, gkey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return errors.Wrap(err, "cache order")
}

func (s *Store) InvalidateOrder(ctx context.Context, orderID string) error {
	gkey := fmt.Sprintf(KeyOrderGen, orderID)
	_, err := s.RDB.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, gkey)
		p.Expire(ctx, gkey, TTLOrderGen)
		p.Del(ctx, fmt.Sprintf(KeyOrder, orderID))
		return nil
	})
	return errors.Wrap(err, "invalidate order")
}
