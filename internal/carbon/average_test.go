package carbon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(loc string, minute int, rating float64) EmissionsData {
	return EmissionsData{
		Location: loc,
		Time:     time.Date(2022, 1, 1, 0, minute, 0, 0, time.UTC),
		Rating:   rating,
		Duration: 5 * time.Minute,
	}
}

func TestAverageRating(t *testing.T) {
	tests := []struct {
		name    string
		samples []EmissionsData
		want    float64
	}{
		{name: "empty is zero", samples: nil, want: 0},
		{name: "single", samples: []EmissionsData{sample("eastus", 0, 42)}, want: 42},
		{
			name: "mean unweighted by duration",
			samples: []EmissionsData{
				sample("eastus", 0, 10),
				{Location: "eastus", Time: time.Date(2022, 1, 1, 1, 0, 0, 0, time.UTC), Rating: 20, Duration: time.Hour},
				sample("eastus", 10, 30),
			},
			want: 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AverageRating(tt.samples), 1e-9)
		})
	}
}

func TestAverageRating_OrderInvariant(t *testing.T) {
	a := []EmissionsData{sample("x", 0, 1.1), sample("x", 5, 7.3), sample("x", 10, 100.25), sample("x", 15, 0.4)}
	b := []EmissionsData{a[2], a[0], a[3], a[1]}
	assert.InDelta(t, AverageRating(a), AverageRating(b), 1e-9)
}

func TestOptimalDataPoint(t *testing.T) {
	assert.Nil(t, OptimalDataPoint(nil))

	data := []EmissionsData{
		sample("eastus", 10, 30),
		sample("eastus", 5, 10),
		sample("eastus", 0, 10),
		sample("eastus", 15, 40),
	}
	got := OptimalDataPoint(data)
	require.NotNil(t, got)
	assert.Same(t, &data[2], got, "ties go to the earliest timestamp")
}

func TestBestEmissions(t *testing.T) {
	assert.Nil(t, BestEmissions(nil))

	data := []EmissionsData{
		sample("eastus", 0, 20),
		sample("westus", 0, 5),
		sample("westus", 5, 9),
		sample("eastus", 5, 5),
	}
	got := BestEmissions(data)
	require.Len(t, got, 2)
	assert.Equal(t, "westus", got[0].Location)
	assert.Equal(t, "eastus", got[1].Location)
}
