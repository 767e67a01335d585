package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

func TestAlign_IntersectsDates(t *testing.T) {
	histories := []AssetHistory{
		{
			Asset: "EQ",
			Points: []PricePoint{
				{Date: day(2), Price: 100},
				{Date: day(3), Price: 101},
				{Date: day(4), Price: 102, Dividend: 0.5},
				{Date: day(5), Price: 103},
			},
		},
		{
			Asset: "BOND",
			Points: []PricePoint{
				{Date: day(5), Price: 53},
				{Date: day(3), Price: 51},
				{Date: day(4), Price: 52},
			},
		},
	}

	series, err := Align(histories)
	require.NoError(t, err)
	require.NoError(t, series.Validate())

	assert.Equal(t, []string{"EQ", "BOND"}, series.Assets)
	assert.Equal(t, []time.Time{day(3), day(4), day(5)}, series.Dates)
	assert.Equal(t, []float64{101, 102, 103}, series.Prices[0])
	assert.Equal(t, []float64{51, 52, 53}, series.Prices[1])
	assert.Equal(t, []float64{0, 0.5, 0}, series.Dividends[0])
}

func TestAlign_Errors(t *testing.T) {
	tests := []struct {
		name      string
		histories []AssetHistory
	}{
		{name: "no histories", histories: nil},
		{
			name: "duplicate asset",
			histories: []AssetHistory{
				{Asset: "A", Points: []PricePoint{{Date: day(1), Price: 1}, {Date: day(2), Price: 1}}},
				{Asset: "A", Points: []PricePoint{{Date: day(1), Price: 1}, {Date: day(2), Price: 1}}},
			},
		},
		{
			name: "no overlap",
			histories: []AssetHistory{
				{Asset: "A", Points: []PricePoint{{Date: day(1), Price: 1}, {Date: day(2), Price: 1}}},
				{Asset: "B", Points: []PricePoint{{Date: day(3), Price: 1}, {Date: day(4), Price: 1}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Align(tt.histories)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestAlignedSeries_Validate(t *testing.T) {
	valid := AlignedSeries{
		Assets: []string{"A"},
		Dates:  []time.Time{day(1), day(2)},
		Prices: [][]float64{{10, 11}},
	}
	require.NoError(t, valid.Validate())
	require.NoError(t, valid.ValidatePrices())
	assert.Equal(t, 0.0, valid.Dividend(0, 1))

	mismatched := valid
	mismatched.Prices = [][]float64{{10}}
	assert.Error(t, mismatched.Validate())

	unordered := valid
	unordered.Dates = []time.Time{day(2), day(1)}
	assert.Error(t, unordered.Validate())

	badPrice := valid
	badPrice.Prices = [][]float64{{10, 0}}
	err := badPrice.ValidatePrices()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "prices", ve.Field)
}
