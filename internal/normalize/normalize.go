// Package normalize turns untyped record-like values into valid records.
//
// Input usually comes from Decode, so objects arrive as map[string]any and
// numbers as json.Number. A value is either fully accepted or rejected; a
// partially populated record never escapes.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pbaille/retro/internal/domain"
	"github.com/pbaille/retro/internal/ident"
)

var (
	// ErrRejected wraps every reason a value could not become a record
	ErrRejected = errors.New("record rejected")

	ErrNotObject       = errors.New("not an object")
	ErrInvalidYear     = errors.New("year is not a finite number")
	ErrMissingQuestion = errors.New("question is empty")
)

// Field names, current first, then legacy alternates.
var (
	questionFields = []string{"q", "question"}
	answerFields   = []string{"a", "answer"}
)

// Normalizer validates and completes records. The clock and id source fill in
// createdAt and id when the input lacks them.
type Normalizer struct {
	clock ident.Clock
	ids   ident.IDGenerator
}

// New creates a Normalizer
func New(clock ident.Clock, ids ident.IDGenerator) *Normalizer {
	return &Normalizer{clock: clock, ids: ids}
}

// Entry converts one untyped value into a record
func (n *Normalizer) Entry(v any) (domain.Record, error) {
	obj, ok := v.(map[string]any)
	if !ok || obj == nil {
		return domain.Record{}, reject(ErrNotObject)
	}

	rawYear, present := obj["year"]
	year, ok := toYear(rawYear)
	if !present || !ok {
		return domain.Record{}, reject(ErrInvalidYear)
	}

	question := strings.TrimSpace(toText(firstPresent(obj, questionFields)))
	if question == "" {
		return domain.Record{}, reject(ErrMissingQuestion)
	}

	id, _ := obj["id"].(string)
	if strings.TrimSpace(id) == "" {
		id = n.ids.NewID()
	}

	createdAt, _ := obj["createdAt"].(string)
	if strings.TrimSpace(createdAt) == "" {
		createdAt = ident.Stamp(n.clock.Now())
	}

	return domain.Record{
		ID:        id,
		Year:      year,
		Question:  question,
		Answers:   toAnswers(obj),
		CreatedAt: createdAt,
	}, nil
}

// Draft builds a brand new record from user input
func (n *Normalizer) Draft(d domain.Draft) (domain.Record, error) {
	return n.Entry(draftObject(d))
}

// Apply replaces the user-editable fields of r, keeping its id and createdAt
func (n *Normalizer) Apply(r domain.Record, d domain.Draft) (domain.Record, error) {
	obj := draftObject(d)
	obj["id"] = r.ID
	obj["createdAt"] = r.CreatedAt
	return n.Entry(obj)
}

func draftObject(d domain.Draft) map[string]any {
	answers := make([]any, len(d.Answers))
	for i, a := range d.Answers {
		answers[i] = a
	}
	return map[string]any{
		"year":    d.Year,
		"q":       d.Question,
		"answers": answers,
	}
}

// Batch normalizes every element, dropping rejections. The callback, when
// non-nil, sees each rejected index and reason.
func (n *Normalizer) Batch(values []any, onReject func(i int, err error)) []domain.Record {
	out := make([]domain.Record, 0, len(values))
	for i, v := range values {
		r, err := n.Entry(v)
		if err != nil {
			if onReject != nil {
				onReject(i, err)
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// SplitLines breaks legacy free text into trimmed, non-empty fragments
func SplitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return cleanFragments(strings.Split(s, "\n"))
}

func reject(reason error) error {
	return fmt.Errorf("%w: %w", ErrRejected, reason)
}

func toAnswers(obj map[string]any) []string {
	switch v := obj["answers"].(type) {
	case []any:
		parts := make([]string, 0, len(v))
		for _, el := range v {
			parts = append(parts, toText(el))
		}
		return cleanFragments(parts)
	case []string:
		return cleanFragments(v)
	case string:
		return SplitLines(v)
	}

	if legacy := firstPresent(obj, answerFields); legacy != nil {
		return SplitLines(toText(legacy))
	}
	return []string{}
}

func cleanFragments(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstPresent(obj map[string]any, fields []string) any {
	for _, f := range fields {
		if v, ok := obj[f]; ok && v != nil {
			return v
		}
	}
	return nil
}

// toText renders scalars as text; null and nested values become "" and are
// later dropped as empty.
func toText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// toYear follows numeric coercion of loosely typed JSON: null and blank text
// are 0, out-of-range numbers are rejected like any non-finite value.
func toYear(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case nil:
		f = 0
	case float64:
		f = t
	case json.Number:
		parsed, err := strconv.ParseFloat(string(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case int:
		f = float64(t)
	case string:
		text := strings.TrimSpace(t)
		if text == "" {
			break
		}
		parsed, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if t {
			f = 1
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Decode parses JSON text keeping numbers as json.Number, so a number too
// large for float64 fails only the element holding it.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("invalid character after top-level value")
	}
	return v, nil
}

// Entries finds the record array in a decoded payload: either a bare array or
// an envelope object with an "entries" array.
func Entries(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case map[string]any:
		entries, ok := t["entries"].([]any)
		return entries, ok
	}
	return nil, false
}
