package jsonfile

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
	"github.com/rshade/carbon-aware-sci/internal/datasource"
)

func loadTestSource(t *testing.T) *Source {
	t.Helper()
	ds, err := LoadFile("testdata/dataset.json")
	require.NoError(t, err)
	return New(ds, zerolog.Nop())
}

func ts(h, m int) time.Time {
	return time.Date(2022, 1, 1, h, m, 0, 0, time.UTC)
}

func TestSource_GetCarbonIntensity(t *testing.T) {
	src := loadTestSource(t)
	eastus := carbon.Location{RegionName: "eastus"}
	westus := carbon.Location{RegionName: "westus"}

	tests := []struct {
		name      string
		locations []carbon.Location
		start     time.Time
		end       time.Time
		wantCount int
	}{
		{name: "all eastus", locations: []carbon.Location{eastus}, wantCount: 12},
		{name: "both locations", locations: []carbon.Location{eastus, westus}, wantCount: 16},
		{name: "case insensitive", locations: []carbon.Location{{RegionName: "EastUS"}}, wantCount: 12},
		{name: "bounded", locations: []carbon.Location{eastus}, start: ts(0, 0), end: ts(0, 15), wantCount: 3},
		{name: "instant", locations: []carbon.Location{eastus}, start: ts(0, 7), end: ts(0, 7), wantCount: 1},
		{name: "unknown location", locations: []carbon.Location{{RegionName: "mars"}}, wantCount: 0},
		{name: "no locations", locations: nil, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := src.GetCarbonIntensity(context.Background(), tt.locations, tt.start, tt.end)
			require.NoError(t, err)
			assert.Len(t, got, tt.wantCount)
			for _, d := range got {
				assert.Equal(t, 5*time.Minute, d.Duration)
			}
		})
	}
}

func TestSource_GetCurrentForecast_LatestWins(t *testing.T) {
	src := loadTestSource(t)

	f, err := src.GetCurrentForecast(context.Background(), carbon.Location{RegionName: "eastus"})
	require.NoError(t, err)

	assert.Equal(t, ts(1, 0), f.GeneratedAt)
	assert.Equal(t, "eastus", f.Location)
	require.Len(t, f.ForecastData, 6)
	assert.Equal(t, 50.0, f.ForecastData[0].Rating)
}

func TestSource_GetCurrentForecast_FillsLocationAndNumericDuration(t *testing.T) {
	src := loadTestSource(t)

	f, err := src.GetCurrentForecast(context.Background(), carbon.Location{RegionName: "westus"})
	require.NoError(t, err)
	require.Len(t, f.ForecastData, 2)
	assert.Equal(t, "westus", f.ForecastData[0].Location)
	assert.Equal(t, 5*time.Minute, f.ForecastData[0].Duration)
}

func TestSource_GetCurrentForecast_NotFound(t *testing.T) {
	src := loadTestSource(t)

	_, err := src.GetCurrentForecast(context.Background(), carbon.Location{RegionName: "northeurope"})
	assert.ErrorIs(t, err, datasource.ErrNotFound)
}

func TestSource_Inventory(t *testing.T) {
	src := loadTestSource(t)

	info, err := src.LookupResource(context.Background(), carbon.ComputeResource{Name: "vm-west"})
	require.NoError(t, err)
	assert.Equal(t, "westus", info.Location.RegionName)
	assert.Equal(t, "Azure", info.Location.CloudProvider)
	assert.Equal(t, "Standard_E8d_v4", info.VMSize)

	_, err = src.LookupResource(context.Background(), carbon.ComputeResource{Name: "ghost"})
	assert.ErrorIs(t, err, datasource.ErrNotFound)

	_, err = src.GetUtilization(context.Background(), carbon.ComputeResource{Name: "ghost"}, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, datasource.ErrNotFound)
}

func TestSource_GetUtilization(t *testing.T) {
	src := loadTestSource(t)
	vm := carbon.ComputeResource{Name: "vm-west"}

	all, err := src.GetUtilization(context.Background(), vm, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ts(0, 0), all[0].Timestamp, "samples are chronological")
	assert.Equal(t, 0.75, all[0].CPUUtilization)
	assert.Equal(t, 30*time.Minute, all[0].Duration)

	late, err := src.GetUtilization(context.Background(), vm, ts(0, 30), ts(1, 0))
	require.NoError(t, err)
	require.Len(t, late, 1)
	assert.Equal(t, 0.25, late[0].CPUUtilization)
}

func TestSource_EndIsExclusive(t *testing.T) {
	src := loadTestSource(t)
	ctx := context.Background()

	intensity, err := src.GetCarbonIntensity(ctx, []carbon.Location{{RegionName: "eastus"}}, ts(0, 0), ts(0, 10))
	require.NoError(t, err)
	require.Len(t, intensity, 2)
	for _, d := range intensity {
		assert.True(t, d.Time.Before(ts(0, 10)), "sample at %s starts at or after end", d.Time)
	}

	util, err := src.GetUtilization(ctx, carbon.ComputeResource{Name: "vm-west"}, ts(0, 0), ts(0, 30))
	require.NoError(t, err)
	require.Len(t, util, 1)
	assert.Equal(t, ts(0, 0), util[0].Timestamp)

	// A sample ending exactly at start does not overlap either.
	util, err = src.GetUtilization(ctx, carbon.ComputeResource{Name: "vm-west"}, ts(0, 30), ts(0, 45))
	require.NoError(t, err)
	require.Len(t, util, 1)
	assert.Equal(t, ts(0, 30), util[0].Timestamp)
}

func TestSource_CanceledContext(t *testing.T) {
	src := loadTestSource(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.GetCarbonIntensity(ctx, []carbon.Location{{RegionName: "eastus"}}, time.Time{}, time.Time{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte(`{"emissions": [`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"emissions": [{"duration": "five minutes"}]}`))
	assert.Error(t, err)

	_, err = LoadFile("testdata/missing.json")
	assert.Error(t, err)
}
