// Package jsonfile serves carbon intensity, forecasts, resource inventory and
// utilization from a single JSON dataset, read from disk or object storage.
package jsonfile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
	"github.com/rshade/carbon-aware-sci/internal/datasource"
)

// Name is the data source name reported in logs and errors.
const Name = "json"

// Source implements datasource.CarbonIntensitySource and
// datasource.ComputeInventory over an in-memory Dataset. It is read-only and
// safe for concurrent use.
type Source struct {
	dataset *Dataset
	logger  zerolog.Logger
}

var (
	_ datasource.CarbonIntensitySource = (*Source)(nil)
	_ datasource.ComputeInventory      = (*Source)(nil)
)

// New returns a Source over ds.
func New(ds *Dataset, logger zerolog.Logger) *Source {
	logger = logger.With().Str("source", Name).Logger()
	logger.Info().
		Int("emissions", len(ds.Emissions)).
		Int("forecasts", len(ds.Forecasts)).
		Int("resources", len(ds.Resources)).
		Msg("json dataset loaded")
	return &Source{dataset: ds, logger: logger}
}

// Name implements datasource.CarbonIntensitySource.
func (s *Source) Name() string {
	return Name
}

// GetCarbonIntensity returns the samples for the requested locations whose
// windows overlap [start, end). Zero bounds are unbounded.
func (s *Source) GetCarbonIntensity(ctx context.Context, locations []carbon.Location, start, end time.Time) ([]carbon.EmissionsData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var matched []carbon.EmissionsData
	for _, sample := range s.dataset.Emissions {
		for _, loc := range locations {
			if sameLocation(sample.Location, loc.RegionName) {
				matched = append(matched, sample.toEmissionsData())
				break
			}
		}
	}

	out := carbon.FilterByDateRange(matched, start, end)
	s.logger.Debug().
		Int("locations", len(locations)).
		Int("samples", len(out)).
		Msg("carbon intensity query")
	return out, nil
}

// GetCurrentForecast returns the most recently generated forecast for the
// location.
func (s *Source) GetCurrentForecast(ctx context.Context, location carbon.Location) (carbon.Forecast, error) {
	if err := ctx.Err(); err != nil {
		return carbon.Forecast{}, err
	}

	var latest *ForecastEntry
	for i := range s.dataset.Forecasts {
		f := &s.dataset.Forecasts[i]
		if !sameLocation(f.Location, location.RegionName) {
			continue
		}
		if latest == nil || f.GeneratedAt.After(latest.GeneratedAt) {
			latest = f
		}
	}
	if latest == nil {
		return carbon.Forecast{}, fmt.Errorf("%s: forecast for %q: %w", Name, location.RegionName, datasource.ErrNotFound)
	}

	data := make([]carbon.EmissionsData, len(latest.Data))
	for i, sample := range latest.Data {
		data[i] = sample.toEmissionsData()
		if data[i].Location == "" {
			data[i].Location = location.RegionName
		}
	}

	return carbon.Forecast{
		GeneratedAt:  latest.GeneratedAt.UTC(),
		Location:     location.RegionName,
		ForecastData: data,
	}, nil
}

// LookupResource implements datasource.ComputeInventory.
func (s *Source) LookupResource(ctx context.Context, resource carbon.ComputeResource) (datasource.ResourceInfo, error) {
	if err := ctx.Err(); err != nil {
		return datasource.ResourceInfo{}, err
	}

	r, ok := s.resource(resource.Name)
	if !ok {
		return datasource.ResourceInfo{}, fmt.Errorf("%s: resource %q: %w", Name, resource.Name, datasource.ErrNotFound)
	}
	return datasource.ResourceInfo{
		Location: carbon.Location{RegionName: r.Location, CloudProvider: r.CloudProvider},
		VMSize:   r.VMSize,
	}, nil
}

// GetUtilization returns the resource's samples overlapping [start, end).
func (s *Source) GetUtilization(ctx context.Context, resource carbon.ComputeResource, start, end time.Time) ([]carbon.UtilizationSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, ok := s.resource(resource.Name)
	if !ok {
		return nil, fmt.Errorf("%s: resource %q: %w", Name, resource.Name, datasource.ErrNotFound)
	}

	var out []carbon.UtilizationSample
	for _, u := range r.Utilization {
		ts := u.Timestamp.UTC()
		d := time.Duration(u.Duration)
		if !end.IsZero() && !ts.Before(end) {
			continue
		}
		if !start.IsZero() && !ts.Add(d).After(start) {
			continue
		}
		out = append(out, carbon.UtilizationSample{
			Timestamp:      ts,
			CPUUtilization: u.CPU,
			Duration:       d,
		})
	}
	return out, nil
}

func (s *Source) resource(name string) (Resource, bool) {
	for _, r := range s.dataset.Resources {
		if r.Name == name {
			return r, true
		}
	}
	return Resource{}, false
}
