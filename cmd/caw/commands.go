package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
	"github.com/rshade/carbon-aware-sci/internal/config"
	"github.com/rshade/carbon-aware-sci/internal/datasource"
	"github.com/rshade/carbon-aware-sci/internal/datasource/factory"
	"github.com/rshade/carbon-aware-sci/internal/hardware"
	"github.com/rshade/carbon-aware-sci/internal/location"
	"github.com/rshade/carbon-aware-sci/internal/sci"
)

// environment is the engine wired from configuration.
type environment struct {
	aggregator *sci.Aggregator
	emissions  *sci.EmissionsService
	close      func()
}

// newEnvironment wires the engine. The compute inventory is only built when
// withInventory is set; the other commands never resolve resources.
func newEnvironment(ctx context.Context, configPath string, withInventory bool, logger zerolog.Logger) (*environment, error) {
	cfg, err := config.Load(configPath, logger)
	if err != nil {
		return nil, err
	}
	hardware.SetLogger(logger)
	location.SetLogger(logger)

	catalog, err := hardware.DefaultCatalog()
	if err != nil {
		return nil, err
	}
	deps := factory.Deps{Logger: logger}

	var (
		intensity datasource.CarbonIntensitySource
		inventory datasource.ComputeInventory
		closeFn   func() error
	)
	if withInventory {
		sources, err := factory.New(ctx, cfg, deps)
		if err != nil {
			return nil, err
		}
		intensity, inventory, closeFn = sources.Intensity, sources.Inventory, sources.Close
	} else {
		intensity, closeFn, err = factory.NewCarbonIntensitySource(ctx, cfg, deps)
		if err != nil {
			return nil, err
		}
	}

	return &environment{
		aggregator: sci.NewAggregator(intensity, inventory, catalog, logger),
		emissions:  sci.NewEmissionsService(intensity, logger),
		close: func() {
			if err := closeFn(); err != nil {
				logger.Warn().Err(err).Msg("failed to close data sources")
			}
		},
	}, nil
}

type command func(ctx context.Context, env *environment, opts *cliOptions) (any, error)

var commands = map[string]command{
	"emissions": emissionsCommand,
	"best":      bestCommand,
	"average":   averageCommand,
	"forecast":  forecastCommand,
	"sci":       sciCommand,
}

type emissionsOutput struct {
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
	Duration  string    `json:"duration"`
	Rating    float64   `json:"rating"`
}

func toOutput(data []carbon.EmissionsData) []emissionsOutput {
	out := make([]emissionsOutput, len(data))
	for i, d := range data {
		out[i] = emissionsOutput{Location: d.Location, Timestamp: d.Time, Duration: d.Duration.String(), Rating: d.Rating}
	}
	return out
}

func (o *cliOptions) locationList() []carbon.Location {
	out := make([]carbon.Location, len(o.locations))
	for i, name := range o.locations {
		out[i] = carbon.Location{RegionName: name}
	}
	return out
}

func (o *cliOptions) bounds() (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if o.start != "" {
		if start, err = carbon.ParseTimestamp(o.start); err != nil {
			return start, end, err
		}
	}
	if o.end != "" {
		if end, err = carbon.ParseTimestamp(o.end); err != nil {
			return start, end, err
		}
	}
	return start, end, nil
}

// interval builds "<start>/<end>" from -t and --toTime, both required.
func (o *cliOptions) interval() (string, error) {
	if o.start == "" || o.end == "" {
		return "", fmt.Errorf("-t/--time and --toTime are required")
	}
	return o.start + "/" + o.end, nil
}

func emissionsCommand(ctx context.Context, env *environment, opts *cliOptions) (any, error) {
	start, end, err := opts.bounds()
	if err != nil {
		return nil, err
	}
	data, err := env.emissions.GetEmissionsData(ctx, sci.EmissionsQuery{Locations: opts.locationList(), Start: start, End: end})
	if err != nil {
		return nil, err
	}
	return toOutput(data), nil
}

func bestCommand(ctx context.Context, env *environment, opts *cliOptions) (any, error) {
	start, end, err := opts.bounds()
	if err != nil {
		return nil, err
	}
	data, err := env.emissions.GetBestEmissionsData(ctx, sci.EmissionsQuery{Locations: opts.locationList(), Start: start, End: end})
	if err != nil {
		return nil, err
	}
	return toOutput(data), nil
}

func averageCommand(ctx context.Context, env *environment, opts *cliOptions) (any, error) {
	if len(opts.locations) != 1 {
		return nil, fmt.Errorf("exactly one location is required")
	}
	interval, err := opts.interval()
	if err != nil {
		return nil, err
	}
	avg, err := env.aggregator.CalculateAverageCarbonIntensity(ctx, opts.locationList()[0], interval)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"location":        opts.locations[0],
		"timeInterval":    interval,
		"carbonIntensity": avg,
	}, nil
}

type forecastOutput struct {
	Location         string            `json:"location"`
	GeneratedAt      time.Time         `json:"generatedAt"`
	RequestedAt      time.Time         `json:"requestedAt"`
	DataStartAt      time.Time         `json:"dataStartAt"`
	DataEndAt        time.Time         `json:"dataEndAt"`
	WindowSize       string            `json:"windowSize"`
	OptimalDataPoint *emissionsOutput  `json:"optimalDataPoint,omitempty"`
	ForecastData     []emissionsOutput `json:"forecastData"`
}

func forecastCommand(ctx context.Context, env *environment, opts *cliOptions) (any, error) {
	start, end, err := opts.bounds()
	if err != nil {
		return nil, err
	}
	window, err := carbon.WindowSizeFromMinutes(int64(opts.windowMinutes))
	if err != nil {
		return nil, err
	}
	forecasts, err := env.emissions.GetCurrentForecasts(ctx, sci.ForecastQuery{
		Locations:   opts.locationList(),
		DataStartAt: start,
		DataEndAt:   end,
		WindowSize:  window,
	})
	if err != nil {
		return nil, err
	}

	out := make([]forecastOutput, len(forecasts))
	for i, f := range forecasts {
		out[i] = forecastOutput{
			Location:     f.Location,
			GeneratedAt:  f.GeneratedAt,
			RequestedAt:  f.RequestedAt,
			DataStartAt:  f.DataStartAt,
			DataEndAt:    f.DataEndAt,
			WindowSize:   f.WindowSize.String(),
			ForecastData: toOutput(f.ForecastData),
		}
		if f.OptimalDataPoint != nil {
			best := toOutput([]carbon.EmissionsData{*f.OptimalDataPoint})[0]
			out[i].OptimalDataPoint = &best
		}
	}
	return out, nil
}

func sciCommand(ctx context.Context, env *environment, opts *cliOptions) (any, error) {
	interval, err := opts.interval()
	if err != nil {
		return nil, err
	}
	resources := make([]carbon.ComputeResource, len(opts.resources))
	for i, r := range opts.resources {
		resources[i] = carbon.ComputeResource{Name: r.Name}
		if r.Processor != "" {
			resources[i].Properties = map[string]string{carbon.PropertyProcessor: r.Processor}
		}
	}
	score, err := env.aggregator.CalculateSciScore(ctx, resources, interval, sci.WithFunctionalUnit(opts.functionalUnit))
	if err != nil {
		return nil, err
	}
	return score, nil
}
