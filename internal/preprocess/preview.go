package preprocess

import (
	"io"
	"math"
	"sort"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/soltixdb/forecaster/internal/utils"
)

// Candidate score components.
const (
	parsedDateWeight = 0.8
	unixTimeScore    = 0.7
	nameKeywordBonus = 0.15
	unixTimeMin      = 1e9
	unixTimeMax      = 1e13
)

var timeKeywords = []string{"date", "time", "timestamp", "day", "month", "year"}

// TimeCandidate is a column that looks like it holds timestamps.
type TimeCandidate struct {
	Column string  `json:"column"`
	Score  float64 `json:"score"`
}

// Preview summarises the head of an uploaded CSV.
type Preview struct {
	Columns        []string            `json:"columns"`
	TimeCandidates []TimeCandidate     `json:"timeCandidates"`
	Preview        []map[string]string `json:"preview"`
}

// Analyze reads the first utils.PreviewRows rows of r.
func Analyze(r io.Reader) (*Preview, error) {
	table, err := ReadCSV(r, utils.PreviewRows)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]string, len(table.Rows))
	for i, row := range table.Rows {
		rows[i] = make(map[string]string, len(table.Header))
		for j, h := range table.Header {
			rows[i][h] = row[j]
		}
	}

	return &Preview{
		Columns:        table.Header,
		TimeCandidates: DetectTimeColumns(table),
		Preview:        rows,
	}, nil
}

// DetectTimeColumns scores each column on its first few non-empty values.
// Text columns score by the share of values that parse as dates, numeric
// columns score when their magnitude looks like a unix timestamp, and a
// date-like column name adds a bonus. Columns scoring zero are omitted;
// the rest are sorted by score, highest first.
func DetectTimeColumns(table *Table) []TimeCandidate {
	candidates := make([]TimeCandidate, 0)
	for j, name := range table.Header {
		sample := make([]string, 0, utils.TimeCandidateSample)
		for _, row := range table.Rows {
			if v := strings.TrimSpace(row[j]); v != "" {
				sample = append(sample, v)
				if len(sample) == utils.TimeCandidateSample {
					break
				}
			}
		}

		score := sampleScore(sample)
		lower := strings.ToLower(name)
		for _, k := range timeKeywords {
			if strings.Contains(lower, k) {
				score += nameKeywordBonus
				break
			}
		}
		if score > 0 {
			candidates = append(candidates, TimeCandidate{Column: name, Score: utils.Round(score, 2)})
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].Score > candidates[b].Score
	})
	return candidates
}

func sampleScore(sample []string) float64 {
	if len(sample) == 0 {
		return 0
	}

	numeric := true
	sum := 0.0
	for _, s := range sample {
		v, ok := utils.ParseFloat(s)
		if !ok {
			numeric = false
			break
		}
		sum += math.Abs(v)
	}
	if numeric {
		mean := sum / float64(len(sample))
		if mean > unixTimeMin && mean < unixTimeMax {
			return unixTimeScore
		}
		return 0
	}

	parsed := 0
	for _, s := range sample {
		if _, err := dateparse.ParseAny(s); err == nil {
			parsed++
		}
	}
	return float64(parsed) / float64(len(sample)) * parsedDateWeight
}
