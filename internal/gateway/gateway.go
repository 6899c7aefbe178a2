// Package gateway reads and writes a record collection in one durable slot.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pbaille/retro/internal/domain"
	"github.com/pbaille/retro/internal/normalize"
	"github.com/pbaille/retro/internal/reconcile"
	"github.com/pbaille/retro/internal/store"
)

// Gateway owns one slot key. Reads never fail on bad contents: a missing,
// unparsable or non-array slot reads as an empty collection.
type Gateway struct {
	slots store.SlotStore
	key   string
	norm  *normalize.Normalizer
	log   zerolog.Logger
}

// New creates a Gateway for key
func New(slots store.SlotStore, key string, norm *normalize.Normalizer, log zerolog.Logger) *Gateway {
	return &Gateway{
		slots: slots,
		key:   key,
		norm:  norm,
		log:   log.With().Str("slot", key).Logger(),
	}
}

// Key returns the slot name
func (g *Gateway) Key() string {
	return g.key
}

// Load returns the stored collection, newest first
func (g *Gateway) Load(ctx context.Context) ([]domain.Record, error) {
	records, _, err := g.Fetch(ctx)
	return records, err
}

// Fetch is Load plus whether the slot held a recognizable collection. An
// empty array counts as present.
func (g *Gateway) Fetch(ctx context.Context) ([]domain.Record, bool, error) {
	raw, ok, err := g.slots.Get(ctx, g.key)
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", g.key, err)
	}
	if !ok || len(raw) == 0 {
		return []domain.Record{}, false, nil
	}

	v, err := normalize.Decode(raw)
	if err != nil {
		g.log.Warn().Err(err).Msg("slot is not valid JSON, reading as empty")
		return []domain.Record{}, false, nil
	}

	values, ok := normalize.Entries(v)
	if !ok {
		g.log.Warn().Msg("slot holds no record array, reading as empty")
		return []domain.Record{}, false, nil
	}

	records := g.norm.Batch(values, func(i int, err error) {
		g.log.Debug().Int("index", i).Err(err).Msg("dropping stored record")
	})
	return reconcile.Dedupe(records), true, nil
}

// Save overwrites the slot with the full collection, newest first
func (g *Gateway) Save(ctx context.Context, records []domain.Record) error {
	sorted := make([]domain.Record, len(records))
	copy(sorted, records)
	reconcile.SortNewestFirst(sorted)

	data, err := json.Marshal(sorted)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", g.key, err)
	}

	if err := g.slots.Put(ctx, g.key, data); err != nil {
		return fmt.Errorf("save %s: %w", g.key, err)
	}
	return nil
}
