package preprocess

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/soltixdb/forecaster/internal/analytics"
	"github.com/soltixdb/forecaster/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTable(t *testing.T, csv string) *Table {
	t.Helper()
	table, err := ReadCSV(strings.NewReader(csv), 0)
	require.NoError(t, err)
	return table
}

func newTestPreparer() *Preparer {
	return NewPreparer(time.UTC, logging.Nop())
}

func TestPrepare_SortsAndRenamesTarget(t *testing.T) {
	table := mustTable(t, "date,sales\n2024-01-03,30\n2024-01-01,10\n2024-01-02,20\n")

	ts, err := newTestPreparer().Prepare(table, "date", "sales", nil)
	require.NoError(t, err)

	assert.Equal(t, []float64{10, 20, 30}, ts.Values)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ts.Times[0])
	assert.Equal(t, "D", ts.Frequency.Code)

	y, ok := ts.Column(analytics.TargetColumn)
	require.True(t, ok)
	assert.Equal(t, ts.Values, y)
}

func TestPrepare_DropsBadRows(t *testing.T) {
	csv := "date,sales\n" +
		"2024-01-01,10\n" +
		"not a date,99\n" +
		"2024-01-02,\n" +
		"2024-01-03,NaN\n" +
		"2024-01-04,40\n"
	ts, err := newTestPreparer().Prepare(mustTable(t, csv), "date", "sales", nil)
	require.NoError(t, err)

	assert.Equal(t, []float64{10, 40}, ts.Values)
}

func TestPrepare_DuplicateTimestampsKeepFirst(t *testing.T) {
	csv := "date,sales\n2024-01-02,20\n2024-01-01,10\n2024-01-02,21\n2024-01-02,22\n"
	ts, err := newTestPreparer().Prepare(mustTable(t, csv), "date", "sales", nil)
	require.NoError(t, err)

	assert.Equal(t, []float64{10, 20}, ts.Values)
	require.NoError(t, ts.Validate())
}

func TestPrepare_MixedFormatsFallBackPerRow(t *testing.T) {
	csv := "when,value\n2024-01-01,1\n01/02/2024,2\n2024-01-03T00:00:00,3\n"
	ts, err := newTestPreparer().Prepare(mustTable(t, csv), "when", "value", nil)
	require.NoError(t, err)

	require.Equal(t, 3, ts.Len())
	for i, tm := range ts.Times {
		assert.Equal(t, 2024, tm.Year())
		assert.Equal(t, time.January, tm.Month())
		assert.Equal(t, i+1, tm.Day())
	}
}

func TestPrepare_UsesLocationForNaiveTimes(t *testing.T) {
	tokyo := time.FixedZone("+09:00", 9*3600)
	p := NewPreparer(tokyo, logging.Nop())

	ts, err := p.Prepare(mustTable(t, "ts,v\n2024-01-01 09:00:00,1\n2024-01-01 10:00:00,2\n"), "ts", "v", nil)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ts.Times[0].UTC())
	assert.Equal(t, "H", ts.Frequency.Code)
}

func TestPrepare_MissingColumns(t *testing.T) {
	table := mustTable(t, "date,sales\n2024-01-01,1\n")
	p := newTestPreparer()

	_, err := p.Prepare(table, "date", "revenue", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, analytics.ErrColumnNotFound))
	assert.Contains(t, err.Error(), "revenue")

	_, err = p.Prepare(table, "timestamp", "sales", nil)
	require.Error(t, err)
	var colErr *analytics.ColumnError
	require.True(t, errors.As(err, &colErr))
	assert.Equal(t, "time", colErr.Role)

	_, err = p.Prepare(table, "date", "sales", []string{"price"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exogenous column 'price' not found")
}

func TestPrepare_EmptyAfterCleaning(t *testing.T) {
	table := mustTable(t, "date,sales\nfoo,1\n2024-01-01,\n")

	_, err := newTestPreparer().Prepare(table, "date", "sales", nil)
	assert.ErrorIs(t, err, analytics.ErrEmptySeries)
}

func TestPrepare_ExogenousGapsFilled(t *testing.T) {
	csv := "date,sales,price,promo\n" +
		"2024-01-01,1,,\n" +
		"2024-01-02,2,5,\n" +
		"2024-01-03,3,,\n" +
		"2024-01-04,4,7,\n"
	ts, err := newTestPreparer().Prepare(mustTable(t, csv), "date", "sales", []string{"price", "promo", "sales"})
	require.NoError(t, err)

	assert.Equal(t, []float64{5, 5, 5, 7}, ts.Exogenous["price"])
	assert.Equal(t, []float64{0, 0, 0, 0}, ts.Exogenous["promo"])
	_, dup := ts.Exogenous["sales"]
	assert.False(t, dup, "target must not be duplicated as a regressor")
}

func TestFillGaps(t *testing.T) {
	col := []float64{math.NaN(), 2, math.NaN(), 4}
	assert.Equal(t, []float64{2, 2, 2, 4}, fillGaps(col))
}
