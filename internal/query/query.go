// Package query holds read-only projections over a loaded collection.
package query

import (
	"sort"
	"strings"

	"github.com/pbaille/retro/internal/domain"
)

// QuestionBank ranks distinct questions by how often they were asked, then by
// most recent use
func QuestionBank(records []domain.Record) []domain.QuestionStat {
	index := make(map[string]int)
	bank := []domain.QuestionStat{}

	for _, r := range records {
		i, ok := index[r.Question]
		if !ok {
			index[r.Question] = len(bank)
			bank = append(bank, domain.QuestionStat{Question: r.Question, Count: 1, LastAt: r.CreatedAt})
			continue
		}
		bank[i].Count++
		if bank[i].LastAt < r.CreatedAt {
			bank[i].LastAt = r.CreatedAt
		}
	}

	sort.SliceStable(bank, func(i, j int) bool {
		if bank[i].Count != bank[j].Count {
			return bank[i].Count > bank[j].Count
		}
		return bank[i].LastAt > bank[j].LastAt
	})
	return bank
}

// Timeline lists every answer to one question, oldest year first
func Timeline(records []domain.Record, question string) []domain.TimelinePoint {
	q := strings.TrimSpace(question)

	var matched []domain.Record
	for _, r := range records {
		if r.Question == q {
			matched = append(matched, r)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Year < matched[j].Year
	})

	points := make([]domain.TimelinePoint, len(matched))
	for i, r := range matched {
		points[i] = domain.TimelinePoint{Year: r.Year, Answers: r.Answers, ID: r.ID}
	}
	return points
}
