package collection

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/redis/go-redis/v9"
	"sort"
)

var _ Store = (*Redis)(nil)

// Redis keeps a collection in one hash: field = record key, value = JSON props.
type Redis struct {
	name   string
	hash   string
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient, name string) *Redis {
	return &Redis{name: name, hash: "collection:" + name, client: client}
}

func (r *Redis) List(ctx context.Context) ([]Item, error) {
	keys, err := r.client.HKeys(ctx, r.hash).Result()
	if err != nil {
		return nil, unavailable("redis.List", err)
	}
	sort.Strings(keys)

	list := make([]Item, len(keys))
	for i, k := range keys {
		list[i] = Item{Collection: r.name, Key: k}
	}
	return list, nil
}

func (r *Redis) Get(ctx context.Context, key string) (Item, error) {
	props, err := r.get(ctx, key)
	if err != nil {
		return Item{}, err
	}
	return Item{Collection: r.name, Key: key, Props: props}, nil
}

// Set is a read-merge-write of the hash field; it carries the same race as
// any Get followed by Set.
func (r *Redis) Set(ctx context.Context, key string, props Props) (Item, error) {
	existing, err := r.get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Item{}, err
	}

	stored := merge(existing, props)
	raw, err := json.Marshal(stored)
	if err != nil {
		return Item{}, unavailable("redis.Set", err)
	}

	if err := r.client.HSet(ctx, r.hash, key, raw).Err(); err != nil {
		return Item{}, unavailable("redis.Set", err)
	}

	var out Props
	if err := json.Unmarshal(raw, &out); err != nil {
		return Item{}, unavailable("redis.Set", err)
	}
	return Item{Collection: r.name, Key: key, Props: out}, nil
}

func (r *Redis) get(ctx context.Context, key string) (Props, error) {
	raw, err := r.client.HGet(ctx, r.hash, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("redis.Get", err)
	}

	var props Props
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, unavailable("redis.Get", err)
	}
	return props, nil
}
