package preprocess

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/soltixdb/forecaster/internal/analytics"
	"github.com/soltixdb/forecaster/internal/logging"
	"github.com/soltixdb/forecaster/internal/utils"
)

// bulkLayouts are tried in order; the first one that parses every
// non-empty timestamp is used for the whole column.
var bulkLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006/01/02 15:04:05",
}

// Preparer builds canonical series from raw tables. Timestamps without a
// zone are read in the preparer's location.
type Preparer struct {
	loc    *time.Location
	logger *logging.Logger
}

// NewPreparer creates a preparer. A nil location means UTC.
func NewPreparer(loc *time.Location, logger *logging.Logger) *Preparer {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Global()
	}
	return &Preparer{loc: loc, logger: logger}
}

type preparedRow struct {
	time  time.Time
	value float64
	exog  []float64
}

// Prepare parses the time column, drops rows whose timestamp cannot be
// parsed or whose target is missing, sorts by time (stable, so equal
// timestamps keep file order) and keeps the first row of each timestamp.
// The target becomes analytics.TargetColumn; exogenous columns keep their
// names, with gaps filled from the nearest earlier value (or the first
// later one).
func (p *Preparer) Prepare(table *Table, timeColumn, targetColumn string, exogenous []string) (*analytics.TimeSeries, error) {
	timeIdx := table.ColumnIndex(timeColumn)
	if timeIdx < 0 {
		return nil, analytics.MissingColumn("time", timeColumn)
	}
	targetIdx := table.ColumnIndex(targetColumn)
	if targetIdx < 0 {
		return nil, analytics.MissingColumn("target", targetColumn)
	}
	exogIdx := make([]int, 0, len(exogenous))
	exogNames := make([]string, 0, len(exogenous))
	for _, name := range exogenous {
		if name == targetColumn || name == timeColumn {
			continue
		}
		idx := table.ColumnIndex(name)
		if idx < 0 {
			return nil, analytics.MissingColumn("exogenous", name)
		}
		exogIdx = append(exogIdx, idx)
		exogNames = append(exogNames, name)
	}

	rawTimes := make([]string, len(table.Rows))
	for i, row := range table.Rows {
		rawTimes[i] = row[timeIdx]
	}
	times := p.parseTimes(rawTimes)

	rows := make([]preparedRow, 0, len(table.Rows))
	var badTime, badTarget int
	for i, row := range table.Rows {
		if times[i].IsZero() {
			badTime++
			continue
		}
		v, ok := utils.ParseFloat(row[targetIdx])
		if !ok {
			badTarget++
			continue
		}
		r := preparedRow{time: times[i], value: v, exog: make([]float64, len(exogIdx))}
		for j, idx := range exogIdx {
			if x, ok := utils.ParseFloat(row[idx]); ok {
				r.exog[j] = x
			} else {
				r.exog[j] = math.NaN()
			}
		}
		rows = append(rows, r)
	}

	sort.SliceStable(rows, func(a, b int) bool {
		return rows[a].time.Before(rows[b].time)
	})

	deduped := rows[:0]
	for _, r := range rows {
		if n := len(deduped); n > 0 && r.time.Equal(deduped[n-1].time) {
			continue
		}
		deduped = append(deduped, r)
	}
	duplicates := len(rows) - len(deduped)

	if len(deduped) == 0 {
		return nil, analytics.ErrEmptySeries
	}

	ts := &analytics.TimeSeries{
		Times:  make([]time.Time, len(deduped)),
		Values: make([]float64, len(deduped)),
	}
	for i, r := range deduped {
		ts.Times[i] = r.time
		ts.Values[i] = r.value
	}
	if len(exogNames) > 0 {
		ts.Exogenous = make(map[string][]float64, len(exogNames))
		for j, name := range exogNames {
			col := make([]float64, len(deduped))
			for i, r := range deduped {
				col[i] = r.exog[j]
			}
			ts.Exogenous[name] = fillGaps(col)
		}
	}
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	ts.Frequency = analytics.InferFrequency(ts.Times)

	p.logger.Debug("Prepared time series",
		"rows", len(table.Rows),
		"points", ts.Len(),
		"bad_timestamps", badTime,
		"missing_target", badTarget,
		"duplicates", duplicates,
		"frequency", ts.Frequency.String())

	return ts, nil
}

// parseTimes parses the whole column with one layout when possible, and
// otherwise falls back to per-cell permissive parsing. Unparseable cells
// yield the zero time.
func (p *Preparer) parseTimes(raw []string) []time.Time {
	out := make([]time.Time, len(raw))
	for _, layout := range bulkLayouts {
		if p.parseAll(raw, layout, out) {
			return out
		}
	}
	for i, s := range raw {
		out[i] = p.parseOne(s)
	}
	return out
}

func (p *Preparer) parseAll(raw []string, layout string, out []time.Time) bool {
	seen := false
	for i, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			out[i] = time.Time{}
			continue
		}
		t, err := time.ParseInLocation(layout, s, p.loc)
		if err != nil {
			return false
		}
		out[i] = t
		seen = true
	}
	return seen
}

func (p *Preparer) parseOne(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseIn(s, p.loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// fillGaps forward-fills NaNs, back-fills a leading run, and zeroes a
// column with no values at all.
func fillGaps(col []float64) []float64 {
	first := -1
	for i, v := range col {
		if !math.IsNaN(v) {
			first = i
			break
		}
	}
	if first < 0 {
		for i := range col {
			col[i] = 0
		}
		return col
	}
	for i := 0; i < first; i++ {
		col[i] = col[first]
	}
	for i := first + 1; i < len(col); i++ {
		if math.IsNaN(col[i]) {
			col[i] = col[i-1]
		}
	}
	return col
}
