// Package store provides durable key-value slots for serialized collections.
package store

import "context"

// SlotStore reads and overwrites whole named slots.
//
// Get reports ok=false when the slot has never been written. Put replaces the
// slot contents in full; there is no partial update and no compare-and-swap.
type SlotStore interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}
