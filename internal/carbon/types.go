// Package carbon provides the aggregation and scoring math of the SCI engine:
// time interval parsing, carbon intensity averaging, forecast resampling and
// the power/embodied-emissions model.
package carbon

import (
	"time"

	"github.com/rshade/carbon-aware-sci/internal/hardware"
)

// Location identifies where a workload runs. RegionName is the identity used
// by every data source (e.g. "eastus", "westus").
type Location struct {
	// RegionName is the cloud region or grid location name.
	RegionName string `json:"regionName"`

	// CloudProvider is informational (e.g. "Azure").
	CloudProvider string `json:"cloudProvider,omitempty"`
}

// String returns the region name.
func (l Location) String() string {
	return l.RegionName
}

// TimeInterval is a pair of UTC instants with Start <= End.
type TimeInterval struct {
	Start time.Time
	End   time.Time
}

// Duration returns End - Start.
func (t TimeInterval) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// EmissionsData is a single carbon intensity sample for a location.
type EmissionsData struct {
	// Location is the region name the sample belongs to.
	Location string `json:"location"`

	// Time is the start of the sample window.
	Time time.Time `json:"timestamp"`

	// Rating is the carbon intensity in gCO2/kWh.
	Rating float64 `json:"value"`

	// Duration is the length of the sample window.
	Duration time.Duration `json:"duration"`
}

// End returns the exclusive end of the sample window.
func (e EmissionsData) End() time.Time {
	return e.Time.Add(e.Duration)
}

// Forecast is a forecast of carbon intensity for a single location.
type Forecast struct {
	GeneratedAt time.Time
	Location    string
	RequestedAt time.Time
	DataStartAt time.Time
	DataEndAt   time.Time

	// WindowSize is the effective rolling window of ForecastData.
	WindowSize time.Duration

	// ForecastData is chronological with unique timestamps.
	ForecastData []EmissionsData

	// OptimalDataPoint points into ForecastData; nil when ForecastData is empty.
	OptimalDataPoint *EmissionsData
}

// UtilizationSample is a CPU utilization reading over a time window.
type UtilizationSample struct {
	Timestamp time.Time

	// CPUUtilization is a fraction in [0, 1].
	CPUUtilization float64

	Duration time.Duration
}

// ComputeResource describes a workload host. Hardware is nil until the
// resource has been resolved against the hardware catalog.
type ComputeResource struct {
	Name       string
	Properties map[string]string
	Location   Location
	Hardware   *hardware.Profile
}

// Property returns the named property or "".
func (r ComputeResource) Property(key string) string {
	if r.Properties == nil {
		return ""
	}
	return r.Properties[key]
}

// ProcessorOverride returns the "processor" property, if any.
func (r ComputeResource) ProcessorOverride() string {
	return r.Property(PropertyProcessor)
}

// SciScore is the Software Carbon Intensity result.
//
// SciScoreValue = (EnergyValue × MarginalCarbonIntensityValue + EmbodiedEmissionsValue) / FunctionalUnitValue
type SciScore struct {
	SciScoreValue                float64 `json:"sciScore"`
	EnergyValue                  float64 `json:"energyValue"`
	MarginalCarbonIntensityValue float64 `json:"marginalCarbonIntensityValue"`
	EmbodiedEmissionsValue       float64 `json:"embodiedEmissionsValue"`
	FunctionalUnitValue          int64   `json:"functionalUnitValue"`
}

// NewSciScore builds a score whose SciScoreValue satisfies the SCI formula.
// A functionalUnit below 1 is treated as 1.
func NewSciScore(energyKWh, marginalCI, embodiedG float64, functionalUnit int64) SciScore {
	if functionalUnit < 1 {
		functionalUnit = DefaultFunctionalUnit
	}
	return SciScore{
		SciScoreValue:                (energyKWh*marginalCI + embodiedG) / float64(functionalUnit),
		EnergyValue:                  energyKWh,
		MarginalCarbonIntensityValue: marginalCI,
		EmbodiedEmissionsValue:       embodiedG,
		FunctionalUnitValue:          functionalUnit,
	}
}
