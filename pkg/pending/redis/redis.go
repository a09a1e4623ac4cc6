// Package redis provides a pending.Store backed by Redis, for deployments
// where several service replicas share one buffer.
//
// Each user's list is stored as a JSON array under its namespaced key with no
// expiry. Upserts use optimistic WATCH/MULTI transactions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/pending"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

var _ pending.Store = (*Store)(nil)

// maxTxRetries bounds optimistic retries when a concurrent writer touches the
// same key.
const maxTxRetries = 10

// Store implements pending.Store on a Redis client.
type Store struct {
	client *goredis.Client
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// New connects to Redis and pings it.
func New(ctx context.Context, opts Options) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pending redis: ping %s: %w", opts.Addr, err)
	}
	return &Store{client: client}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *goredis.Client) *Store { return &Store{client: client} }

// Load implements pending.Store.
func (s *Store) Load(ctx context.Context, userID string) ([]review.PendingUpdate, error) {
	list, err := decode(s.client.Get(ctx, pending.Key(userID)))
	if err != nil {
		return nil, fmt.Errorf("pending redis: load: %w", err)
	}
	return list, nil
}

// Upsert implements pending.Store.
func (s *Store) Upsert(ctx context.Context, userID string, u review.PendingUpdate) ([]review.PendingUpdate, error) {
	key := pending.Key(userID)
	var result []review.PendingUpdate

	txf := func(tx *goredis.Tx) error {
		list, err := decode(tx.Get(ctx, key))
		if err != nil {
			return err
		}
		list = pending.Merge(list, u)
		payload, err := json.Marshal(list)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err == nil {
			result = list
		}
		return err
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("pending redis: upsert: %w", err)
		}
		return result, nil
	}
	return nil, fmt.Errorf("pending redis: upsert: too much contention on %s", key)
}

// Remove implements pending.Store.
func (s *Store) Remove(ctx context.Context, userID string, sent []review.PendingUpdate) error {
	key := pending.Key(userID)

	txf := func(tx *goredis.Tx) error {
		list, err := decode(tx.Get(ctx, key))
		if err != nil {
			return err
		}
		rest := pending.Prune(list, sent)
		if len(rest) == len(list) {
			return nil
		}
		var payload []byte
		if len(rest) > 0 {
			if payload, err = json.Marshal(rest); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			if payload == nil {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, payload, 0)
			}
			return nil
		})
		return err
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("pending redis: remove: %w", err)
		}
		return nil
	}
	return fmt.Errorf("pending redis: remove: too much contention on %s", key)
}

// Clear implements pending.Store.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, pending.Key(userID)).Err(); err != nil {
		return fmt.Errorf("pending redis: clear: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

// Close closes the client.
func (s *Store) Close() error { return s.client.Close() }

func decode(cmd *goredis.StringCmd) ([]review.PendingUpdate, error) {
	raw, err := cmd.Bytes()
	if errors.Is(err, goredis.Nil) {
		return []review.PendingUpdate{}, nil
	}
	if err != nil {
		return nil, err
	}
	list := []review.PendingUpdate{}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return list, nil
}
