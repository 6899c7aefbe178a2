package journal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/retro/internal/domain"
	"github.com/pbaille/retro/internal/ident"
	"github.com/pbaille/retro/internal/normalize"
	"github.com/pbaille/retro/internal/reconcile"
	"github.com/pbaille/retro/internal/store"
)

var start = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestJournal(t *testing.T) (*Journal, *store.Memory) {
	t.Helper()
	slots := store.NewMemory()
	j := New(slots, Options{
		Clock: ident.NewSteppingClock(start, time.Second),
		IDs:   ident.NewSequenceGenerator("rec"),
	})
	return j, slots
}

func seed(t *testing.T, slots *store.Memory, records ...domain.Record) {
	t.Helper()
	data, err := json.Marshal(records)
	require.NoError(t, err)
	require.NoError(t, slots.Put(context.Background(), "entries_v2", data))
}

func strengthRecords() []domain.Record {
	return []domain.Record{
		{ID: "1", Year: 2023, Question: "Strength?", Answers: []string{"Communication"}, CreatedAt: "2023-01-01T00:00:00Z"},
		{ID: "2", Year: 2024, Question: "Strength?", Answers: []string{}, CreatedAt: "2024-01-01T00:00:00Z"},
	}
}

func assertInvariants(t *testing.T, records []domain.Record) {
	t.Helper()
	ids := make(map[string]bool, len(records))
	for i, r := range records {
		assert.False(t, ids[r.ID], "duplicate id %s", r.ID)
		ids[r.ID] = true
		if i > 0 {
			assert.GreaterOrEqual(t, records[i-1].CreatedAt, r.CreatedAt, "not newest first at %d", i)
		}
	}
}

func TestRollover_SkipsExistingQuestion(t *testing.T) {
	ctx := context.Background()
	j, slots := newTestJournal(t)
	seed(t, slots, strengthRecords()...)

	res, err := j.Rollover(ctx, 2024)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, res.Entries, 2)
}

func TestRollover_AddsToNewYear(t *testing.T) {
	ctx := context.Background()
	j, slots := newTestJournal(t)
	seed(t, slots, strengthRecords()...)

	res, err := j.Rollover(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 0, res.Skipped)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, domain.Record{
		ID:        "rec-1",
		Year:      2025,
		Question:  "Strength?",
		Answers:   []string{},
		CreatedAt: "2025-03-01T09:30:00.000Z",
	}, res.Entries[0])
	assertInvariants(t, res.Entries)

	stored, err := j.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.Entries, stored)

	again, err := j.Rollover(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Added)
	assert.Equal(t, 1, again.Skipped)
}

func TestImport_DuplicateIDNewestWins(t *testing.T) {
	ctx := context.Background()
	j, _ := newTestJournal(t)

	records, err := j.Import(ctx, []byte(`{"entries":[{"id":"x","createdAt":"2024-01-01","year":2024,"q":"A","answers":["1"]},{"id":"x","createdAt":"2024-06-01","year":2024,"q":"A","answers":["2"]}]}`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "x", records[0].ID)
	assert.Equal(t, []string{"2"}, records[0].Answers)

	stored, err := j.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, records, stored)
}

func TestImport_OutOfRangeYearDropsOnlyThatEntry(t *testing.T) {
	ctx := context.Background()
	j, _ := newTestJournal(t)

	records, err := j.Import(ctx, []byte(`{"entries":[
		{"id":"ok","createdAt":"2024-01-01T00:00:00Z","year":2024,"q":"A"},
		{"id":"bad","createdAt":"2024-02-01T00:00:00Z","year":1e999,"q":"B"}
	]}`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ok", records[0].ID)

	stored, err := j.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, records, stored)
}

func TestImport_InvalidJSONLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	j, slots := newTestJournal(t)
	seed(t, slots, strengthRecords()...)
	before, err := j.Entries(ctx)
	require.NoError(t, err)

	_, err = j.Import(ctx, []byte("not json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, reconcile.ErrParse)

	after, err := j.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestImport_ShapeErrorLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	j, slots := newTestJournal(t)
	seed(t, slots, strengthRecords()...)

	_, err := j.Import(ctx, []byte(`{"schema":"v2"}`))
	assert.ErrorIs(t, err, reconcile.ErrShape)

	after, err := j.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, after, 2)
}

func TestImport_ReplacesCollectionAndDropsBadEntries(t *testing.T) {
	ctx := context.Background()
	j, slots := newTestJournal(t)
	seed(t, slots, strengthRecords()...)

	records, err := j.Import(ctx, []byte(`[
		{"id":"n1","year":2020,"q":"Q1","answers":["a"],"createdAt":"2020-01-01T00:00:00Z"},
		{"id":"n2","year":"later","q":"Q2"},
		{"id":"n3","year":2021,"q":"   "},
		"garbage",
		{"year":2021,"question":"Q4","answer":"line one\nline two"}
	]`))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rec-1", records[0].ID)
	assert.Equal(t, []string{"line one", "line two"}, records[0].Answers)
	assert.Equal(t, "n1", records[1].ID)
	assertInvariants(t, records)
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	j, _ := newTestJournal(t)

	_, err := j.Add(ctx, domain.Draft{Year: 2023, Question: "Win?", Answers: []string{"moved"}})
	require.NoError(t, err)
	_, err = j.Add(ctx, domain.Draft{Year: 2024, Question: "Win?", Answers: []string{"ran", "read"}})
	require.NoError(t, err)
	original, err := j.Add(ctx, domain.Draft{Year: 2024, Question: "Loss?"})
	require.NoError(t, err)

	blob, err := j.Export(ctx)
	require.NoError(t, err)

	other, _ := newTestJournal(t)
	restored, err := other.Import(ctx, blob)
	require.NoError(t, err)

	assert.ElementsMatch(t, original, restored)
}

func TestExport_Golden(t *testing.T) {
	ctx := context.Background()
	j, slots := newTestJournal(t)
	seed(t, slots,
		domain.Record{ID: "a", Year: 2023, Question: "Strength?", Answers: []string{}, CreatedAt: "2023-12-31T10:00:00.000Z"},
		domain.Record{ID: "b", Year: 2024, Question: "Strength?", Answers: []string{"Focus", "Patience"}, CreatedAt: "2024-12-31T10:00:00.000Z"},
	)

	blob, err := j.Export(ctx)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "export", blob)
}

func TestEncodeBackup_EmptyCollection(t *testing.T) {
	blob, err := EncodeBackup(nil, start)
	require.NoError(t, err)

	var b domain.Backup
	require.NoError(t, json.Unmarshal(blob, &b))
	assert.Equal(t, domain.SchemaTag, b.Schema)
	assert.Equal(t, "2025-03-01T09:30:00.000Z", b.ExportedAt)
	assert.NotNil(t, b.Entries)
	assert.Empty(t, b.Entries)
}

func TestAdd_PrependsAndNormalizes(t *testing.T) {
	ctx := context.Background()
	j, _ := newTestJournal(t)

	_, err := j.Add(ctx, domain.Draft{Year: 2024, Question: "First?"})
	require.NoError(t, err)
	records, err := j.Add(ctx, domain.Draft{Year: 2024, Question: "  Second?  ", Answers: []string{" a ", ""}})
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "Second?", records[0].Question)
	assert.Equal(t, []string{"a"}, records[0].Answers)
	assert.Equal(t, "2025-03-01T09:30:01.000Z", records[0].CreatedAt)
	assertInvariants(t, records)
}

func TestAdd_RejectsBlankQuestion(t *testing.T) {
	ctx := context.Background()
	j, slots := newTestJournal(t)

	_, err := j.Add(ctx, domain.Draft{Year: 2024, Question: "  "})
	assert.ErrorIs(t, err, normalize.ErrMissingQuestion)

	_, ok, _ := slots.Get(ctx, "entries_v2")
	assert.False(t, ok)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	j, slots := newTestJournal(t)
	seed(t, slots, strengthRecords()...)

	records, err := j.Update(ctx, "1", domain.Draft{Year: 2022, Question: "Strengths?", Answers: []string{"Listening"}})
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, domain.Record{
		ID:        "1",
		Year:      2022,
		Question:  "Strengths?",
		Answers:   []string{"Listening"},
		CreatedAt: "2023-01-01T00:00:00Z",
	}, records[1])

	_, err = j.Update(ctx, "missing", domain.Draft{Year: 2022, Question: "Q"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = j.Update(ctx, "1", domain.Draft{Year: 2022, Question: ""})
	assert.ErrorIs(t, err, normalize.ErrRejected)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	j, slots := newTestJournal(t)
	seed(t, slots, strengthRecords()...)

	records, err := j.Delete(ctx, "2")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1", records[0].ID)

	_, err = j.Delete(ctx, "2")
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := j.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestDeleteAll_DoesNotResurrectLegacy(t *testing.T) {
	ctx := context.Background()
	j, slots := newTestJournal(t)
	require.NoError(t, slots.Put(ctx, "entries_v1", []byte(`[{"id":"L","year":2020,"q":"Q","a":"x","createdAt":"2020-01-01"}]`)))

	records, err := j.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = j.Delete(ctx, "L")
	require.NoError(t, err)

	records, err = j.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	j, slots := newTestJournal(t)
	require.NoError(t, slots.Put(ctx, "entries_v1", []byte(`{"schema":"recoverse_v1","entries":[{"id":"L","year":2020,"q":"Q","a":"x\ny","createdAt":"2020-01-01"}]}`)))

	res, err := j.Migrate(ctx)
	require.NoError(t, err)
	assert.True(t, res.Migrated)
	assert.Equal(t, 1, res.Count)

	res, err = j.Migrate(ctx)
	require.NoError(t, err)
	assert.False(t, res.Migrated)
	assert.Equal(t, 1, res.Count)
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	j, slots := newTestJournal(t)
	seed(t, slots, strengthRecords()...)

	bank, err := j.QuestionBank(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.QuestionStat{{Question: "Strength?", Count: 2, LastAt: "2024-01-01T00:00:00Z"}}, bank)

	tl, err := j.Timeline(ctx, "Strength?")
	require.NoError(t, err)
	require.Len(t, tl, 2)
	assert.Equal(t, float64(2023), tl[0].Year)
	assert.Equal(t, float64(2024), tl[1].Year)

	r, ok, err := j.FindSameYearQuestion(ctx, 2024, " Strength? ")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", r.ID)
}

func TestConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	j := New(store.NewMemory(), Options{})

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := j.Add(ctx, domain.Draft{Year: 2025, Question: "Q"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	records, err := j.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, records, n)
	assertInvariants(t, records)
}

func TestAddUnique_RefusesSameYearQuestion(t *testing.T) {
	ctx := context.Background()
	j, slots := newTestJournal(t)
	seed(t, slots, strengthRecords()...)

	_, err := j.AddUnique(ctx, domain.Draft{Year: 2024, Question: " Strength? "})
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.ErrorIs(t, err, ErrSameYearQuestion)
	assert.Equal(t, "2", dup.Existing.ID)

	records, err := j.AddUnique(ctx, domain.Draft{Year: 2025, Question: "Strength?"})
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestAddUnique_ConcurrentCallersInsertOnce(t *testing.T) {
	ctx := context.Background()
	j := New(store.NewMemory(), Options{})

	const n = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		dups int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := j.AddUnique(ctx, domain.Draft{Year: 2025, Question: "Q"})
			if errors.Is(err, ErrSameYearQuestion) {
				mu.Lock()
				dups++
				mu.Unlock()
				return
			}
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	records, err := j.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, n-1, dups)
}
