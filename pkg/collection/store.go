// Package collection models the hosted key-value collection the service persists
// participants in, with in-memory, Redis and Postgres backends.
package collection

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when no record exists for the key.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable wraps every backend failure that is not ErrNotFound.
	ErrUnavailable = errors.New("store unavailable")
)

// Props is the property object stored under a key. Values are JSON-compatible:
// string, float64, bool, nil, []interface{} and nested Props-shaped maps.
type Props = map[string]interface{}

// Item is one record of a collection. List leaves Props nil.
type Item struct {
	Collection string `json:"collection"`
	Key        string `json:"key"`
	Props      Props  `json:"props,omitempty"`
}

// Store is the contract of a single named collection.
//
// Set merges the top-level props into the existing record, creating it when
// absent, and returns the record as stored. None of the operations are
// conditional: a Get followed by a Set is not atomic.
type Store interface {
	List(ctx context.Context) ([]Item, error)
	Get(ctx context.Context, key string) (Item, error)
	Set(ctx context.Context, key string, props Props) (Item, error)
}

func unavailable(op string, err error) error {
	return &storeError{op: op, err: err}
}

type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string {
	return e.op + " failed: " + ErrUnavailable.Error() + ": " + e.err.Error()
}

func (e *storeError) Unwrap() error {
	return e.err
}

func (e *storeError) Is(target error) bool {
	return target == ErrUnavailable
}

func merge(dst, src Props) Props {
	if dst == nil {
		dst = make(Props, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
