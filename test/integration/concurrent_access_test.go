// Package integration provides end-to-end and concurrency tests for the SCI
// engine.
//
// This file contains concurrent access tests verifying thread safety of the
// engine, catalogs and data sources under high concurrency (100+ goroutines).
//
// Run with: go test ./test/integration/... -v -run Concurrent
package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
	"github.com/rshade/carbon-aware-sci/internal/datasource/jsonfile"
	"github.com/rshade/carbon-aware-sci/internal/hardware"
	"github.com/rshade/carbon-aware-sci/internal/location"
	"github.com/rshade/carbon-aware-sci/internal/sci"
)

const (
	// numGoroutines is the number of concurrent goroutines for stress testing.
	numGoroutines = 150

	// numIterations is the number of iterations per goroutine.
	numIterations = 10

	hourInterval = "2022-01-01T00:00:00Z/2022-01-01T01:00:00Z"
)

func newEngine(t *testing.T) (*sci.Aggregator, *sci.EmissionsService) {
	t.Helper()
	ds, err := jsonfile.LoadFile("../../data/dataset.json")
	require.NoError(t, err)
	src := jsonfile.New(ds, zerolog.Nop())
	catalog, err := hardware.DefaultCatalog()
	require.NoError(t, err)
	return sci.NewAggregator(src, src, catalog, zerolog.Nop()), sci.NewEmissionsService(src, zerolog.Nop())
}

// collect runs fn numGoroutines×numIterations times concurrently and returns
// every result, failing the test on the first error.
func collect[T any](t *testing.T, fn func() (T, error)) []T {
	t.Helper()

	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines*numIterations)
	results := make(chan T, numGoroutines*numIterations)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numIterations; j++ {
				v, err := fn()
				if err != nil {
					errs <- err
					return
				}
				results <- v
			}
		}()
	}

	wg.Wait()
	close(errs)
	close(results)

	for err := range errs {
		require.NoError(t, err, "No errors should occur during concurrent access")
	}

	out := make([]T, 0, numGoroutines*numIterations)
	for v := range results {
		out = append(out, v)
	}
	assert.Len(t, out, numGoroutines*numIterations, "Should have received all expected results")
	return out
}

// TestConcurrentAccess_SciScore verifies that concurrent score requests over
// shared data sources all produce the same score.
func TestConcurrentAccess_SciScore(t *testing.T) {
	agg, _ := newEngine(t)
	resources := []carbon.ComputeResource{{Name: "vm-east"}, {Name: "vm-west"}}

	scores := collect(t, func() (carbon.SciScore, error) {
		return agg.CalculateSciScore(context.Background(), resources, hourInterval)
	})

	first := scores[0]
	for _, s := range scores[1:] {
		assert.Equal(t, first, s, "fan-in sums must not depend on completion order")
	}
}

// TestConcurrentAccess_Forecasts verifies that concurrent resampling never
// shares the optimal pointer between results.
func TestConcurrentAccess_Forecasts(t *testing.T) {
	_, emissions := newEngine(t)
	query := sci.ForecastQuery{
		Locations:  []carbon.Location{{RegionName: "eastus"}, {RegionName: "westus"}},
		WindowSize: 10 * time.Minute,
	}

	results := collect(t, func() ([]carbon.Forecast, error) {
		return emissions.GetCurrentForecasts(context.Background(), query)
	})

	for _, forecasts := range results {
		require.Len(t, forecasts, 2)
		east := forecasts[0]
		require.NotNil(t, east.OptimalDataPoint)
		assert.Equal(t, 32.5, east.OptimalDataPoint.Rating)
		assert.Same(t, &east.ForecastData[1], east.OptimalDataPoint)
	}
}

// TestConcurrentAccess_HardwareCatalog verifies first-use initialization and
// lookups of the embedded catalog under contention.
func TestConcurrentAccess_HardwareCatalog(t *testing.T) {
	profiles := collect(t, func() (hardware.Profile, error) {
		c, err := hardware.DefaultCatalog()
		if err != nil {
			return hardware.Profile{}, err
		}
		return c.Profile("Standard_E16d_v4", "")
	})

	for _, p := range profiles {
		assert.Equal(t, 8, p.AllocatedCores)
		assert.InDelta(t, 8.0/26.0, carbon.CoreShare(p), 1e-12)
	}
}

// TestConcurrentAccess_LocationCatalog verifies concurrent region lookups.
func TestConcurrentAccess_LocationCatalog(t *testing.T) {
	positions := collect(t, func() (location.Geoposition, error) {
		c, err := location.DefaultCatalog()
		if err != nil {
			return location.Geoposition{}, err
		}
		return c.Geoposition(carbon.Location{RegionName: "EastUS"})
	})

	for _, p := range positions {
		assert.Equal(t, "eastus", p.Name)
	}
}
