// Package migrate upgrades a legacy single-answer collection into the current
// slot the first time the current slot is found missing or unreadable.
//
// The legacy slot is never written or deleted here.
package migrate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pbaille/retro/internal/domain"
	"github.com/pbaille/retro/internal/gateway"
)

// Result describes what a load did
type Result struct {
	Migrated bool `json:"migrated"`
	Count    int  `json:"count"`
}

// Migrator fronts the current-version gateway
type Migrator struct {
	current *gateway.Gateway
	legacy  *gateway.Gateway
	log     zerolog.Logger
}

// New creates a Migrator. The legacy gateway is only ever read.
func New(current, legacy *gateway.Gateway, log zerolog.Logger) *Migrator {
	return &Migrator{current: current, legacy: legacy, log: log}
}

// Load returns the current collection, migrating from the legacy slot first
// when needed
func (m *Migrator) Load(ctx context.Context) ([]domain.Record, error) {
	records, _, err := m.Run(ctx)
	return records, err
}

// Run is Load that also reports whether a migration happened.
// Once the current slot is populated every later run is a plain load.
func (m *Migrator) Run(ctx context.Context) ([]domain.Record, Result, error) {
	records, present, err := m.current.Fetch(ctx)
	if err != nil {
		return nil, Result{}, err
	}
	if present {
		return records, Result{Count: len(records)}, nil
	}

	upgraded, found, err := m.legacy.Fetch(ctx)
	if err != nil {
		return nil, Result{}, fmt.Errorf("read legacy slot: %w", err)
	}
	if !found {
		return records, Result{}, nil
	}

	if err := m.current.Save(ctx, upgraded); err != nil {
		return nil, Result{}, fmt.Errorf("persist migrated records: %w", err)
	}

	m.log.Info().
		Str("from", m.legacy.Key()).
		Str("to", m.current.Key()).
		Int("records", len(upgraded)).
		Msg("migrated legacy records")

	return upgraded, Result{Migrated: true, Count: len(upgraded)}, nil
}
