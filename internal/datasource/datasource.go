// Package datasource defines the capabilities the SCI engine consumes from
// external systems: carbon intensity data and compute inventory/telemetry.
//
// Concrete variants live in subpackages (jsonfile, watttime, azure,
// telemetrydb, cache) and are selected by configuration through the factory
// package. Every variant reports failures wrapped with its Name so callers
// can tell which upstream failed.
package datasource

import (
	"context"
	"errors"
	"time"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
)

var (
	// ErrNotFound is returned when a location or resource is unknown to the source.
	ErrNotFound = errors.New("not found")

	// ErrUnsupported is returned when a source does not implement an operation.
	ErrUnsupported = errors.New("operation not supported by data source")
)

// CarbonIntensitySource provides carbon intensity samples and forecasts.
type CarbonIntensitySource interface {
	// Name identifies the source in logs, metrics and wrapped errors.
	Name() string

	// GetCarbonIntensity returns the samples for the given locations whose
	// windows overlap the half-open range [start, end); a sample starting
	// exactly at end is excluded. An empty result is not an error.
	GetCarbonIntensity(ctx context.Context, locations []carbon.Location, start, end time.Time) ([]carbon.EmissionsData, error)

	// GetCurrentForecast returns the most recent forecast for a location at
	// its native cadence.
	GetCurrentForecast(ctx context.Context, location carbon.Location) (carbon.Forecast, error)
}

// ResourceInfo is what an inventory knows about a compute resource.
type ResourceInfo struct {
	Location carbon.Location
	VMSize   string
}

// ComputeInventory resolves compute resources and reports their utilization.
type ComputeInventory interface {
	Name() string

	// LookupResource returns the location and VM size of a resource.
	LookupResource(ctx context.Context, resource carbon.ComputeResource) (ResourceInfo, error)

	// GetUtilization returns the CPU utilization samples whose windows
	// overlap the half-open range [start, end), oldest first.
	GetUtilization(ctx context.Context, resource carbon.ComputeResource, start, end time.Time) ([]carbon.UtilizationSample, error)
}
