package sci

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
	"github.com/rshade/carbon-aware-sci/internal/datasource"
	"github.com/rshade/carbon-aware-sci/internal/hardware"
	"github.com/rshade/carbon-aware-sci/internal/metrics"
	"github.com/rshade/carbon-aware-sci/internal/trace"
)

// Aggregator computes SCI scores and their components.
type Aggregator struct {
	intensity datasource.CarbonIntensitySource
	inventory datasource.ComputeInventory
	resolver  *Resolver
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithMetrics counts computed scores on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// NewAggregator returns an Aggregator reading carbon intensity from
// intensity and hardware data from inventory and catalog. inventory may be
// nil when only CalculateAverageCarbonIntensity is used; resource operations
// then fail with datasource.ErrUnsupported.
func NewAggregator(
	intensity datasource.CarbonIntensitySource,
	inventory datasource.ComputeInventory,
	catalog *hardware.Catalog,
	logger zerolog.Logger,
	opts ...Option,
) *Aggregator {
	a := &Aggregator{
		intensity: intensity,
		inventory: inventory,
		resolver:  NewResolver(inventory, catalog, logger),
		logger:    logger.With().Str("component", "sci").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type scoreOptions struct {
	functionalUnit int64
}

// ScoreOption tunes a single CalculateSciScore call.
type ScoreOption func(*scoreOptions)

// WithFunctionalUnit sets the SCI denominator. Zero selects the default of 1;
// negative values are rejected.
func WithFunctionalUnit(n int64) ScoreOption {
	return func(o *scoreOptions) {
		o.functionalUnit = n
	}
}

// resourceEmissions is the per-resource contribution to a score.
type resourceEmissions struct {
	intensity float64
	energy    float64
	embodied  float64
}

// CalculateSciScore computes the SCI score of resources over timeInterval.
//
// The interval, resource list and functional unit are validated before any
// data source is called. Every resource is resolved, then its location's
// average carbon intensity, energy and embodied emissions are computed
// concurrently. The score components are the sums over all resources. Any
// failure aborts the whole score.
func (a *Aggregator) CalculateSciScore(ctx context.Context, resources []carbon.ComputeResource, timeInterval string, opts ...ScoreOption) (carbon.SciScore, error) {
	start := time.Now()

	o := scoreOptions{functionalUnit: carbon.DefaultFunctionalUnit}
	for _, opt := range opts {
		opt(&o)
	}
	if o.functionalUnit < 0 {
		return carbon.SciScore{}, carbon.NewValidationError(carbon.ErrInvalidFunctionalUnit,
			"functional unit must be positive, got %d", o.functionalUnit)
	}

	interval, err := carbon.ParseTimeInterval(timeInterval)
	if err != nil {
		return carbon.SciScore{}, err
	}
	if len(resources) == 0 {
		return carbon.SciScore{}, carbon.NewValidationError(carbon.ErrNoResources, "resources list is empty")
	}

	parts, err := a.collect(ctx, resources, interval, true)
	if err != nil {
		return carbon.SciScore{}, err
	}

	var ci, energy, embodied decimal.Decimal
	for _, p := range parts {
		ci = ci.Add(decimal.NewFromFloat(p.intensity))
		energy = energy.Add(decimal.NewFromFloat(p.energy))
		embodied = embodied.Add(decimal.NewFromFloat(p.embodied))
	}

	score := carbon.NewSciScore(energy.InexactFloat64(), ci.InexactFloat64(), embodied.InexactFloat64(), o.functionalUnit)
	if a.metrics != nil {
		a.metrics.SciScoresComputed.Inc()
	}

	a.logger.Info().
		Str(trace.FieldTraceID, trace.ID(ctx)).
		Str(trace.FieldOperation, "CalculateSciScore").
		Int("resources", len(resources)).
		Dur("interval", interval.Duration()).
		Float64("sci_score", score.SciScoreValue).
		Float64("energy_kwh", score.EnergyValue).
		Float64("carbon_intensity", score.MarginalCarbonIntensityValue).
		Float64("embodied_g", score.EmbodiedEmissionsValue).
		Int64(trace.FieldDurationMs, time.Since(start).Milliseconds()).
		Msg("sci score computed")
	return score, nil
}

// CalculateAverageCarbonIntensity returns the mean carbon intensity of
// location over timeInterval. No samples yield 0.
func (a *Aggregator) CalculateAverageCarbonIntensity(ctx context.Context, location carbon.Location, timeInterval string) (float64, error) {
	interval, err := carbon.ParseTimeInterval(timeInterval)
	if err != nil {
		return 0, err
	}
	if location.RegionName == "" {
		return 0, carbon.NewValidationError(carbon.ErrEmptyLocations, "location region name is empty")
	}
	return a.averageIntensity(ctx, location, interval)
}

// CalculateEnergy returns the total energy in kWh used by resources over
// timeInterval.
func (a *Aggregator) CalculateEnergy(ctx context.Context, resources []carbon.ComputeResource, timeInterval string) (float64, error) {
	parts, err := a.validateAndCollect(ctx, resources, timeInterval)
	if err != nil {
		return 0, err
	}
	total := decimal.Zero
	for _, p := range parts {
		total = total.Add(decimal.NewFromFloat(p.energy))
	}
	return total.InexactFloat64(), nil
}

// CalculateEmbodiedEmissions returns the total embodied emissions in gCO2
// attributed to resources over timeInterval.
func (a *Aggregator) CalculateEmbodiedEmissions(ctx context.Context, resources []carbon.ComputeResource, timeInterval string) (float64, error) {
	parts, err := a.validateAndCollect(ctx, resources, timeInterval)
	if err != nil {
		return 0, err
	}
	total := decimal.Zero
	for _, p := range parts {
		total = total.Add(decimal.NewFromFloat(p.embodied))
	}
	return total.InexactFloat64(), nil
}

func (a *Aggregator) validateAndCollect(ctx context.Context, resources []carbon.ComputeResource, timeInterval string) ([]resourceEmissions, error) {
	interval, err := carbon.ParseTimeInterval(timeInterval)
	if err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, carbon.NewValidationError(carbon.ErrNoResources, "resources list is empty")
	}
	return a.collect(ctx, resources, interval, false)
}

// collect resolves resources and computes each one's contribution. The
// carbon intensity lookup is skipped when withIntensity is false.
func (a *Aggregator) collect(ctx context.Context, resources []carbon.ComputeResource, interval carbon.TimeInterval, withIntensity bool) ([]resourceEmissions, error) {
	if a.inventory == nil {
		return nil, fmt.Errorf("no compute inventory configured: %w", datasource.ErrUnsupported)
	}
	resolved, err := a.resolver.ResolveAll(ctx, resources)
	if err != nil {
		return nil, err
	}

	parts := make([]resourceEmissions, len(resolved))
	g, gctx := errgroup.WithContext(ctx)
	for i, res := range resolved {
		if withIntensity {
			g.Go(func() error {
				ci, err := a.averageIntensity(gctx, res.Location, interval)
				if err != nil {
					return err
				}
				parts[i].intensity = ci
				return nil
			})
		}
		g.Go(func() error {
			samples, err := a.inventory.GetUtilization(gctx, res, interval.Start, interval.End)
			if err != nil {
				return fmt.Errorf("utilization for %q: %w", res.Name, err)
			}
			parts[i].energy = carbon.EnergyKWh(*res.Hardware, samples)
			parts[i].embodied = carbon.EmbodiedEmissionsGrams(*res.Hardware, samples)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

func (a *Aggregator) averageIntensity(ctx context.Context, location carbon.Location, interval carbon.TimeInterval) (float64, error) {
	data, err := a.intensity.GetCarbonIntensity(ctx, []carbon.Location{location}, interval.Start, interval.End)
	if err != nil {
		return 0, fmt.Errorf("carbon intensity for %q: %w", location.RegionName, err)
	}
	avg := carbon.AverageRating(data)
	a.logger.Debug().
		Str(trace.FieldTraceID, trace.ID(ctx)).
		Str("location", location.RegionName).
		Int("samples", len(data)).
		Float64("average", avg).
		Msg("average carbon intensity")
	return avg, nil
}
