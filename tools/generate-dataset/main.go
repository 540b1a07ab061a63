// Package main generates a synthetic JSON dataset for the jsonfile data
// sources.
//
// The emissions series follow a daily curve per region with seeded noise, the
// forecasts continue each series from the last emissions sample, and every
// resource gets hourly CPU utilization. The output is validated against the
// embedded hardware and region catalogs before it is written.
//
// Usage:
//
//	go run ./tools/generate-dataset [--out FILE] [--regions LIST] [--resources LIST]
//
// Flags:
//
//	--out        Output file (default: ./data/dataset.json)
//	--regions    Comma-separated region names (default: eastus,westus)
//	--resources  Comma-separated name=region:vmSize entries
//	--start      First sample time, RFC 3339 (default: 2022-01-01T00:00:00Z)
//	--hours      Hours of history to generate (default: 24)
//	--cadence    Sample cadence (default: 5m)
//	--forecast   Forecast horizon (default: 8h)
//	--seed       Noise seed (default: 1)
//	--validate   Validate the dataset before writing (default: true)
package main

import (
	"errors"
	"flag"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
	"github.com/rshade/carbon-aware-sci/internal/datasource/jsonfile"
	"github.com/rshade/carbon-aware-sci/internal/hardware"
	"github.com/rshade/carbon-aware-sci/internal/location"
)

const (
	// minRating keeps generated intensities positive.
	minRating = 5.0

	cloudProvider = "Azure"
)

type params struct {
	regions   []string
	resources []jsonfile.Resource
	start     time.Time
	hours     int
	cadence   time.Duration
	forecast  time.Duration
	seed      uint64
}

func main() {
	out := flag.String("out", "./data/dataset.json", "Output file")
	regions := flag.String("regions", "eastus,westus", "Comma-separated region names")
	resources := flag.String("resources", "vm-east=eastus:Standard_E4d_v4,vm-west=westus:Standard_E8d_v4", "Comma-separated name=region:vmSize entries")
	start := flag.String("start", "2022-01-01T00:00:00Z", "First sample time (RFC 3339)")
	hours := flag.Int("hours", 24, "Hours of history to generate")
	cadence := flag.Duration("cadence", 5*time.Minute, "Sample cadence")
	forecast := flag.Duration("forecast", 8*time.Hour, "Forecast horizon")
	seed := flag.Uint64("seed", 1, "Noise seed")
	validate := flag.Bool("validate", true, "Validate the dataset before writing")
	flag.Parse()

	p, err := parseParams(*regions, *resources, *start, *hours, *cadence, *forecast, *seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ds := generate(p)

	if *validate {
		if err := validateDataset(ds); err != nil {
			fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Validation passed")
	}

	if err := write(*out, ds); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing dataset: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d emissions samples, %d forecasts and %d resources to %s\n",
		len(ds.Emissions), len(ds.Forecasts), len(ds.Resources), *out)
}

func parseParams(regions, resources, start string, hours int, cadence, forecast time.Duration, seed uint64) (params, error) {
	p := params{hours: hours, cadence: cadence, forecast: forecast, seed: seed}

	for _, r := range strings.Split(regions, ",") {
		if r = strings.TrimSpace(r); r != "" {
			p.regions = append(p.regions, r)
		}
	}
	if len(p.regions) == 0 {
		return params{}, errors.New("at least one region is required")
	}

	ts, err := carbon.ParseTimestamp(start)
	if err != nil {
		return params{}, fmt.Errorf("invalid --start: %w", err)
	}
	p.start = ts

	if hours <= 0 {
		return params{}, fmt.Errorf("--hours must be positive, got %d", hours)
	}
	if cadence <= 0 || cadence > time.Hour {
		return params{}, fmt.Errorf("--cadence must be in (0, 1h], got %s", cadence)
	}
	if forecast < 0 {
		return params{}, fmt.Errorf("--forecast must not be negative, got %s", forecast)
	}

	for _, entry := range strings.Split(resources, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, rest, ok := strings.Cut(entry, "=")
		region, size, ok2 := strings.Cut(rest, ":")
		if !ok || !ok2 || name == "" || region == "" || size == "" {
			return params{}, fmt.Errorf("invalid resource %q, want name=region:vmSize", entry)
		}
		p.resources = append(p.resources, jsonfile.Resource{
			Name:          name,
			Location:      region,
			CloudProvider: cloudProvider,
			VMSize:        size,
		})
	}
	return p, nil
}

// generate builds the dataset. The same params always produce the same
// dataset.
func generate(p params) *jsonfile.Dataset {
	rng := rand.New(rand.NewPCG(p.seed, p.seed^0x9e3779b97f4a7c15))
	end := p.start.Add(time.Duration(p.hours) * time.Hour)

	ds := &jsonfile.Dataset{}
	for _, region := range p.regions {
		base := regionBase(region)
		for t := p.start; t.Before(end); t = t.Add(p.cadence) {
			ds.Emissions = append(ds.Emissions, sample(region, t, base, p.cadence, rng))
		}

		if p.forecast > 0 {
			f := jsonfile.ForecastEntry{Location: region, GeneratedAt: end}
			for t := end; t.Before(end.Add(p.forecast)); t = t.Add(p.cadence) {
				f.Data = append(f.Data, sample(region, t, base, p.cadence, rng))
			}
			ds.Forecasts = append(ds.Forecasts, f)
		}
	}

	for _, r := range p.resources {
		for t := p.start; t.Before(end); t = t.Add(time.Hour) {
			r.Utilization = append(r.Utilization, jsonfile.UtilizationEntry{
				Timestamp: t,
				CPU:       math.Round(rng.Float64()*100) / 100,
				Duration:  jsonfile.Duration(time.Hour),
			})
		}
		ds.Resources = append(ds.Resources, r)
	}
	return ds
}

// regionBase derives a stable mean intensity between 100 and 500 gCO2/kWh.
func regionBase(region string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(region)))
	return 100 + float64(h.Sum32()%400)
}

// sample follows a daily curve that peaks in the early evening (UTC).
func sample(region string, t time.Time, base float64, cadence time.Duration, rng *rand.Rand) jsonfile.Sample {
	hour := float64(t.Hour()) + float64(t.Minute())/60
	curve := math.Sin(2 * math.Pi * (hour - 12) / 24)
	rating := base + 0.25*base*curve + (rng.Float64()-0.5)*0.05*base
	return jsonfile.Sample{
		Location: region,
		Time:     t,
		Rating:   math.Round(math.Max(rating, minRating)*10) / 10,
		Duration: jsonfile.Duration(cadence),
	}
}

// validateDataset round-trips the dataset through the loader and checks
// every region and VM size against the embedded catalogs.
func validateDataset(ds *jsonfile.Dataset) error {
	raw, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	parsed, err := jsonfile.Parse(raw)
	if err != nil {
		return err
	}

	regions, err := location.DefaultCatalog()
	if err != nil {
		return err
	}
	sizes, err := hardware.DefaultCatalog()
	if err != nil {
		return err
	}

	var errs []error
	seen := map[string]bool{}
	for _, s := range parsed.Emissions {
		if seen[s.Location] {
			continue
		}
		seen[s.Location] = true
		if _, err := regions.Geoposition(carbon.Location{RegionName: s.Location}); err != nil {
			errs = append(errs, err)
		}
	}
	for _, r := range parsed.Resources {
		if _, err := regions.Geoposition(carbon.Location{RegionName: r.Location}); err != nil {
			errs = append(errs, fmt.Errorf("resource %s: %w", r.Name, err))
		}
		if _, err := sizes.Profile(r.VMSize, ""); err != nil {
			if errors.Is(err, hardware.ErrUnknownVMSize) {
				err = fmt.Errorf("%w (known sizes: %s)", err, strings.Join(sizes.VMSizeNames(), ", "))
			}
			errs = append(errs, fmt.Errorf("resource %s: %w", r.Name, err))
		}
		if len(r.Utilization) == 0 {
			errs = append(errs, fmt.Errorf("resource %s has no utilization", r.Name))
		}
	}
	return errors.Join(errs...)
}

func write(path string, ds *jsonfile.Dataset) error {
	raw, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}
