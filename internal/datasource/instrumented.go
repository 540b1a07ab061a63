package datasource

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
	"github.com/rshade/carbon-aware-sci/internal/metrics"
)

// InstrumentedSource records call counts and latency for a CarbonIntensitySource.
type InstrumentedSource struct {
	next    CarbonIntensitySource
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewInstrumentedSource wraps next with metrics and debug logging.
func NewInstrumentedSource(next CarbonIntensitySource, m *metrics.Metrics, logger zerolog.Logger) *InstrumentedSource {
	return &InstrumentedSource{
		next:    next,
		metrics: m,
		logger:  logger.With().Str("source", next.Name()).Logger(),
	}
}

// Name returns the wrapped source's name.
func (s *InstrumentedSource) Name() string {
	return s.next.Name()
}

// GetCarbonIntensity delegates to the wrapped source.
func (s *InstrumentedSource) GetCarbonIntensity(ctx context.Context, locations []carbon.Location, start, end time.Time) ([]carbon.EmissionsData, error) {
	begin := time.Now()
	data, err := s.next.GetCarbonIntensity(ctx, locations, start, end)
	s.observe("GetCarbonIntensity", begin, err)
	if err == nil {
		s.logger.Debug().
			Int("locations", len(locations)).
			Int("samples", len(data)).
			Int64("duration_ms", time.Since(begin).Milliseconds()).
			Msg("carbon intensity fetched")
	}
	return data, err
}

// GetCurrentForecast delegates to the wrapped source.
func (s *InstrumentedSource) GetCurrentForecast(ctx context.Context, location carbon.Location) (carbon.Forecast, error) {
	begin := time.Now()
	f, err := s.next.GetCurrentForecast(ctx, location)
	s.observe("GetCurrentForecast", begin, err)
	return f, err
}

func (s *InstrumentedSource) observe(operation string, begin time.Time, err error) {
	s.metrics.ObserveDataSourceCall(s.next.Name(), operation, begin, err)
	if err != nil {
		s.logger.Warn().Err(err).Str("operation", operation).Msg("data source call failed")
	}
}

// InstrumentedInventory records call counts and latency for a ComputeInventory.
type InstrumentedInventory struct {
	next    ComputeInventory
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewInstrumentedInventory wraps next with metrics and debug logging.
func NewInstrumentedInventory(next ComputeInventory, m *metrics.Metrics, logger zerolog.Logger) *InstrumentedInventory {
	return &InstrumentedInventory{
		next:    next,
		metrics: m,
		logger:  logger.With().Str("source", next.Name()).Logger(),
	}
}

// Name returns the wrapped inventory's name.
func (i *InstrumentedInventory) Name() string {
	return i.next.Name()
}

// LookupResource delegates to the wrapped inventory.
func (i *InstrumentedInventory) LookupResource(ctx context.Context, resource carbon.ComputeResource) (ResourceInfo, error) {
	begin := time.Now()
	info, err := i.next.LookupResource(ctx, resource)
	i.observe("LookupResource", begin, err)
	return info, err
}

// GetUtilization delegates to the wrapped inventory.
func (i *InstrumentedInventory) GetUtilization(ctx context.Context, resource carbon.ComputeResource, start, end time.Time) ([]carbon.UtilizationSample, error) {
	begin := time.Now()
	samples, err := i.next.GetUtilization(ctx, resource, start, end)
	i.observe("GetUtilization", begin, err)
	return samples, err
}

func (i *InstrumentedInventory) observe(operation string, begin time.Time, err error) {
	i.metrics.ObserveDataSourceCall(i.next.Name(), operation, begin, err)
	if err != nil {
		i.logger.Warn().Err(err).Str("operation", operation).Msg("data source call failed")
	}
}
