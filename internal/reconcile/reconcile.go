// Package reconcile merges record sets using the identity rule: when two
// records share an id, the one with the greater createdAt wins.
package reconcile

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pbaille/retro/internal/domain"
	"github.com/pbaille/retro/internal/normalize"
)

var (
	// ErrParse reports backup text that is not valid JSON
	ErrParse = errors.New("backup is not valid JSON")
	// ErrShape reports valid JSON without an entries array
	ErrShape = errors.New("backup has no entries array")
)

// ParseBackup decodes backup text into its raw entries. Accepts a bare array
// or an envelope with an "entries" array.
func ParseBackup(text []byte) ([]any, error) {
	v, err := normalize.Decode(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	entries, ok := normalize.Entries(v)
	if !ok {
		return nil, fmt.Errorf("%w: got %s", ErrShape, describe(v))
	}
	return entries, nil
}

// Dedupe keeps one record per id, the newest by createdAt. On equal
// createdAt the first one seen stays. The result is newest first.
func Dedupe(records []domain.Record) []domain.Record {
	index := make(map[string]int, len(records))
	out := make([]domain.Record, 0, len(records))

	for _, r := range records {
		i, seen := index[r.ID]
		if !seen {
			index[r.ID] = len(out)
			out = append(out, r)
			continue
		}
		if out[i].CreatedAt < r.CreatedAt {
			out[i] = r
		}
	}

	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders records by createdAt descending, in place
func SortNewestFirst(records []domain.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt > records[j].CreatedAt
	})
}

// FindSameYearQuestion returns the first record, in the given order, with the
// same year and trimmed question text
func FindSameYearQuestion(records []domain.Record, year float64, question string) (domain.Record, bool) {
	q := strings.TrimSpace(question)
	for _, r := range records {
		if r.Year == year && r.Question == q {
			return r, true
		}
	}
	return domain.Record{}, false
}

// Rollover creates blank-answer copies in targetYear of every distinct
// question asked in the year before. Questions already present in targetYear
// are skipped. New records are prepended to the returned collection.
func Rollover(records []domain.Record, targetYear float64, n *normalize.Normalizer) (domain.RolloverResult, error) {
	prevYear := targetYear - 1

	var questions []string
	seen := make(map[string]bool)
	existing := make(map[string]bool)
	for _, r := range records {
		q := strings.TrimSpace(r.Question)
		switch r.Year {
		case prevYear:
			if q != "" && !seen[q] {
				seen[q] = true
				questions = append(questions, q)
			}
		case targetYear:
			existing[q] = true
		}
	}

	var result domain.RolloverResult
	added := make([]domain.Record, 0, len(questions))
	for _, q := range questions {
		if existing[q] {
			result.Skipped++
			continue
		}
		r, err := n.Draft(domain.Draft{Year: targetYear, Question: q})
		if err != nil {
			return domain.RolloverResult{}, fmt.Errorf("clone %q: %w", q, err)
		}
		added = append(added, r)
	}

	result.Added = len(added)
	result.Entries = append(added, records...)
	return result, nil
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object without entries array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	}
	return fmt.Sprintf("%T", v)
}
