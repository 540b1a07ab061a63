package sci

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
	"github.com/rshade/carbon-aware-sci/internal/datasource"
	"github.com/rshade/carbon-aware-sci/internal/trace"
)

// EmissionsQuery selects raw carbon intensity samples.
type EmissionsQuery struct {
	Locations []carbon.Location

	// Start defaults to now; End defaults to Start.
	Start time.Time
	End   time.Time
}

// ForecastQuery selects and resamples current forecasts.
type ForecastQuery struct {
	Locations []carbon.Location

	// DataStartAt and DataEndAt bound the forecast; zero is unbounded.
	DataStartAt time.Time
	DataEndAt   time.Time

	// WindowSize is the requested rolling window; zero keeps the native cadence.
	WindowSize time.Duration
}

// EmissionsService answers emissions and forecast queries.
type EmissionsService struct {
	source datasource.CarbonIntensitySource
	logger zerolog.Logger
	now    func() time.Time
}

// NewEmissionsService returns a service reading from source.
func NewEmissionsService(source datasource.CarbonIntensitySource, logger zerolog.Logger) *EmissionsService {
	return &EmissionsService{
		source: source,
		logger: logger.With().Str("component", "emissions").Logger(),
		now:    time.Now,
	}
}

// GetEmissionsData returns the samples of the requested locations that
// overlap [Start, End).
func (s *EmissionsService) GetEmissionsData(ctx context.Context, q EmissionsQuery) ([]carbon.EmissionsData, error) {
	if len(q.Locations) == 0 {
		return nil, carbon.NewValidationError(carbon.ErrEmptyLocations, "no locations requested")
	}

	start := q.Start.UTC()
	if q.Start.IsZero() {
		start = s.now().UTC()
	}
	end := q.End.UTC()
	if q.End.IsZero() {
		end = start
	}
	if start.After(end) {
		return nil, carbon.NewValidationError(carbon.ErrInvertedInterval,
			"start %s is after end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	data, err := s.source.GetCarbonIntensity(ctx, q.Locations, start, end)
	if err != nil {
		return nil, fmt.Errorf("emissions data: %w", err)
	}

	s.logger.Debug().
		Str(trace.FieldTraceID, trace.ID(ctx)).
		Str(trace.FieldOperation, "GetEmissionsData").
		Int("locations", len(q.Locations)).
		Int("samples", len(data)).
		Msg("emissions data retrieved")
	return data, nil
}

// GetBestEmissionsData returns every sample sharing the lowest rating among
// the results of GetEmissionsData.
func (s *EmissionsService) GetBestEmissionsData(ctx context.Context, q EmissionsQuery) ([]carbon.EmissionsData, error) {
	data, err := s.GetEmissionsData(ctx, q)
	if err != nil {
		return nil, err
	}
	best := carbon.BestEmissions(data)
	if best == nil {
		best = []carbon.EmissionsData{}
	}
	return best, nil
}

// GetCurrentForecasts fetches the current forecast of every location and
// resamples it to the requested window and bounds. Results follow the order
// of q.Locations.
func (s *EmissionsService) GetCurrentForecasts(ctx context.Context, q ForecastQuery) ([]carbon.Forecast, error) {
	if len(q.Locations) == 0 {
		return nil, carbon.NewValidationError(carbon.ErrEmptyLocations, "no locations requested")
	}
	if q.WindowSize < 0 || q.WindowSize > carbon.MaxWindowSize {
		return nil, carbon.NewValidationError(carbon.ErrInvalidWindowSize,
			"window size must be between 0 and %s, got %s", carbon.MaxWindowSize, q.WindowSize)
	}
	if !q.DataStartAt.IsZero() && !q.DataEndAt.IsZero() && q.DataStartAt.After(q.DataEndAt) {
		return nil, carbon.NewValidationError(carbon.ErrInvertedInterval,
			"dataStartAt %s is after dataEndAt %s", q.DataStartAt.Format(time.RFC3339), q.DataEndAt.Format(time.RFC3339))
	}

	requestedAt := s.now().UTC()
	out := make([]carbon.Forecast, len(q.Locations))

	g, gctx := errgroup.WithContext(ctx)
	for i, loc := range q.Locations {
		g.Go(func() error {
			raw, err := s.source.GetCurrentForecast(gctx, loc)
			if err != nil {
				return fmt.Errorf("forecast for %q: %w", loc.RegionName, err)
			}
			raw.RequestedAt = requestedAt
			out[i] = carbon.ResampleForecast(raw, q.DataStartAt.UTC(), q.DataEndAt.UTC(), q.WindowSize)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str(trace.FieldTraceID, trace.ID(ctx)).
		Str(trace.FieldOperation, "GetCurrentForecasts").
		Int("locations", len(q.Locations)).
		Dur("window", q.WindowSize).
		Msg("forecasts resampled")
	return out, nil
}
