// Package journal is the application service over the record store. It wires
// the normalizer, gateway, migrator, reconciliation and query views together
// and serializes every read-modify-write against the current slot.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pbaille/retro/internal/domain"
	"github.com/pbaille/retro/internal/gateway"
	"github.com/pbaille/retro/internal/ident"
	"github.com/pbaille/retro/internal/migrate"
	"github.com/pbaille/retro/internal/normalize"
	"github.com/pbaille/retro/internal/query"
	"github.com/pbaille/retro/internal/reconcile"
	"github.com/pbaille/retro/internal/store"
)

// BackupMediaType is the content type of an exported backup
const BackupMediaType = "application/json"

var (
	// ErrNotFound is returned when no record has the requested id
	ErrNotFound = errors.New("record not found")
	// ErrSameYearQuestion is returned by AddUnique when the year already has the question
	ErrSameYearQuestion = errors.New("year already has this question")
)

// DuplicateError carries the record that blocked AddUnique
type DuplicateError struct {
	Existing domain.Record
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%v: %s", ErrSameYearQuestion, e.Existing.ID)
}

func (e *DuplicateError) Unwrap() error {
	return ErrSameYearQuestion
}

// Options configures a Journal. Zero values pick production defaults.
type Options struct {
	CurrentKey string
	LegacyKey  string
	Clock      ident.Clock
	IDs        ident.IDGenerator
	Logger     *zerolog.Logger
}

// Journal is safe for concurrent use; each operation holds the lock for its
// whole load-then-save sequence.
type Journal struct {
	mu       sync.Mutex
	current  *gateway.Gateway
	migrator *migrate.Migrator
	norm     *normalize.Normalizer
	clock    ident.Clock
	log      zerolog.Logger
}

// New creates a Journal over slots
func New(slots store.SlotStore, opts Options) *Journal {
	if opts.CurrentKey == "" {
		opts.CurrentKey = "entries_v2"
	}
	if opts.LegacyKey == "" {
		opts.LegacyKey = "entries_v1"
	}
	if opts.Clock == nil {
		opts.Clock = ident.SystemClock{}
	}
	if opts.IDs == nil {
		opts.IDs = ident.UUIDGenerator{}
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	norm := normalize.New(opts.Clock, opts.IDs)
	current := gateway.New(slots, opts.CurrentKey, norm, log)
	legacy := gateway.New(slots, opts.LegacyKey, norm, log)

	return &Journal{
		current:  current,
		migrator: migrate.New(current, legacy, log),
		norm:     norm,
		clock:    opts.Clock,
		log:      log,
	}
}

// Entries returns the collection, newest first
func (j *Journal) Entries(ctx context.Context) ([]domain.Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.migrator.Load(ctx)
}

// Migrate runs the legacy upgrade check explicitly
func (j *Journal) Migrate(ctx context.Context) (migrate.Result, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, res, err := j.migrator.Run(ctx)
	return res, err
}

// Add creates a record from d and prepends it
func (j *Journal) Add(ctx context.Context, d domain.Draft) ([]domain.Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec, err := j.norm.Draft(d)
	if err != nil {
		return nil, err
	}

	records, err := j.migrator.Load(ctx)
	if err != nil {
		return nil, err
	}
	return j.prepend(ctx, rec, records)
}

// AddUnique is Add that refuses, with a *DuplicateError, when the year already
// has the same question. The check and the insert happen under one lock.
func (j *Journal) AddUnique(ctx context.Context, d domain.Draft) ([]domain.Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rec, err := j.norm.Draft(d)
	if err != nil {
		return nil, err
	}

	records, err := j.migrator.Load(ctx)
	if err != nil {
		return nil, err
	}
	if existing, ok := reconcile.FindSameYearQuestion(records, rec.Year, rec.Question); ok {
		return nil, &DuplicateError{Existing: existing}
	}
	return j.prepend(ctx, rec, records)
}

func (j *Journal) prepend(ctx context.Context, rec domain.Record, records []domain.Record) ([]domain.Record, error) {
	next := append([]domain.Record{rec}, records...)
	if err := j.current.Save(ctx, next); err != nil {
		return nil, err
	}
	return j.current.Load(ctx)
}

// Update replaces year, question and answers of the record with id
func (j *Journal) Update(ctx context.Context, id string, d domain.Draft) ([]domain.Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	records, err := j.migrator.Load(ctx)
	if err != nil {
		return nil, err
	}

	i := indexOf(records, id)
	if i < 0 {
		return nil, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}

	updated, err := j.norm.Apply(records[i], d)
	if err != nil {
		return nil, err
	}
	records[i] = updated

	if err := j.current.Save(ctx, records); err != nil {
		return nil, err
	}
	return j.current.Load(ctx)
}

// Delete removes the record with id
func (j *Journal) Delete(ctx context.Context, id string) ([]domain.Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	records, err := j.migrator.Load(ctx)
	if err != nil {
		return nil, err
	}

	i := indexOf(records, id)
	if i < 0 {
		return nil, fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}

	next := append(records[:i:i], records[i+1:]...)
	if err := j.current.Save(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// FindSameYearQuestion looks for an existing record with the same year and
// question, so callers can warn before adding a duplicate
func (j *Journal) FindSameYearQuestion(ctx context.Context, year float64, question string) (domain.Record, bool, error) {
	records, err := j.Entries(ctx)
	if err != nil {
		return domain.Record{}, false, err
	}
	r, ok := reconcile.FindSameYearQuestion(records, year, question)
	return r, ok, nil
}

// QuestionBank ranks the questions asked so far
func (j *Journal) QuestionBank(ctx context.Context) ([]domain.QuestionStat, error) {
	records, err := j.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return query.QuestionBank(records), nil
}

// Timeline lists one question's answers year by year
func (j *Journal) Timeline(ctx context.Context, question string) ([]domain.TimelinePoint, error) {
	records, err := j.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return query.Timeline(records, question), nil
}

// Export serializes the collection as a backup envelope
func (j *Journal) Export(ctx context.Context) ([]byte, error) {
	records, err := j.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return EncodeBackup(records, j.clock.Now())
}

// Import restores the collection from backup text. It replaces everything
// currently stored. Malformed text or a missing entries array fails without
// writing; individual malformed entries are dropped.
func (j *Journal) Import(ctx context.Context, text []byte) ([]domain.Record, error) {
	values, err := reconcile.ParseBackup(text)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	dropped := 0
	normalized := j.norm.Batch(values, func(i int, err error) {
		dropped++
		j.log.Debug().Int("index", i).Err(err).Msg("skipping backup entry")
	})
	records := reconcile.Dedupe(normalized)

	if err := j.current.Save(ctx, records); err != nil {
		return nil, err
	}

	j.log.Info().
		Int("entries", len(values)).
		Int("dropped", dropped).
		Int("stored", len(records)).
		Msg("imported backup")

	return records, nil
}

// Rollover clones last year's questions into targetYear with blank answers
func (j *Journal) Rollover(ctx context.Context, targetYear float64) (domain.RolloverResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	records, err := j.migrator.Load(ctx)
	if err != nil {
		return domain.RolloverResult{}, err
	}

	res, err := reconcile.Rollover(records, targetYear, j.norm)
	if err != nil {
		return domain.RolloverResult{}, err
	}

	if err := j.current.Save(ctx, res.Entries); err != nil {
		return domain.RolloverResult{}, err
	}

	res.Entries, err = j.current.Load(ctx)
	if err != nil {
		return domain.RolloverResult{}, err
	}

	j.log.Info().
		Float64("year", targetYear).
		Int("added", res.Added).
		Int("skipped", res.Skipped).
		Msg("rolled over questions")

	return res, nil
}

// EncodeBackup renders records as a pretty-printed backup envelope
func EncodeBackup(records []domain.Record, exportedAt time.Time) ([]byte, error) {
	if records == nil {
		records = []domain.Record{}
	}
	payload := domain.Backup{
		Schema:     domain.SchemaTag,
		ExportedAt: ident.Stamp(exportedAt),
		Entries:    records,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal backup: %w", err)
	}
	return data, nil
}

func indexOf(records []domain.Record, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}
