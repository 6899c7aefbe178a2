package domain

// SchemaTag marks the current record version in backup envelopes
const SchemaTag = "v2"

// TimeLayout is the ISO-8601 form used for every timestamp the system produces.
// It sorts lexicographically in time order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Record is one question/answer journal entry for a given year
type Record struct {
	ID        string   `json:"id"`
	Year      float64  `json:"year"`
	Question  string   `json:"q"`
	Answers   []string `json:"answers"`
	CreatedAt string   `json:"createdAt"`
}

// LegacyRecord is the prior schema: a single free-text answer instead of fragments
type LegacyRecord struct {
	ID        string  `json:"id"`
	Year      float64 `json:"year"`
	Question  string  `json:"q"`
	Answer    string  `json:"a"`
	CreatedAt string  `json:"createdAt"`
}

// Backup is the export/import envelope
type Backup struct {
	Schema     string   `json:"schema"`
	ExportedAt string   `json:"exportedAt"`
	Entries    []Record `json:"entries"`
}

// Draft carries user-supplied fields for add and update
type Draft struct {
	Year     float64  `json:"year"`
	Question string   `json:"q"`
	Answers  []string `json:"answers"`
}

// QuestionStat is one row of the question bank
type QuestionStat struct {
	Question string `json:"q"`
	Count    int    `json:"count"`
	LastAt   string `json:"lastAt"`
}

// TimelinePoint is one year of a per-question timeline
type TimelinePoint struct {
	Year    float64  `json:"year"`
	Answers []string `json:"answers"`
	ID      string   `json:"id"`
}

// RolloverResult reports what a year rollover did
type RolloverResult struct {
	Added   int      `json:"added"`
	Skipped int      `json:"skipped"`
	Entries []Record `json:"entries"`
}
