package api

import (
	"time"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
)

// emissionsDataDTO reports durations in whole minutes.
type emissionsDataDTO struct {
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
	Duration  int64     `json:"duration"`
	Value     float64   `json:"value"`
}

func toEmissionsDTO(d carbon.EmissionsData) emissionsDataDTO {
	return emissionsDataDTO{
		Location:  d.Location,
		Timestamp: d.Time.UTC(),
		Duration:  int64(d.Duration / time.Minute),
		Value:     d.Rating,
	}
}

func toEmissionsDTOs(data []carbon.EmissionsData) []emissionsDataDTO {
	out := make([]emissionsDataDTO, len(data))
	for i, d := range data {
		out[i] = toEmissionsDTO(d)
	}
	return out
}

type forecastDTO struct {
	GeneratedAt       time.Time          `json:"generatedAt"`
	RequestedAt       time.Time          `json:"requestedAt"`
	Location          string             `json:"location"`
	DataStartAt       time.Time          `json:"dataStartAt"`
	DataEndAt         time.Time          `json:"dataEndAt"`
	WindowSize        int64              `json:"windowSize"`
	OptimalDataPoints []emissionsDataDTO `json:"optimalDataPoints"`
	ForecastData      []emissionsDataDTO `json:"forecastData"`
}

func toForecastDTO(f carbon.Forecast) forecastDTO {
	dto := forecastDTO{
		GeneratedAt:       f.GeneratedAt.UTC(),
		RequestedAt:       f.RequestedAt.UTC(),
		Location:          f.Location,
		DataStartAt:       f.DataStartAt.UTC(),
		DataEndAt:         f.DataEndAt.UTC(),
		WindowSize:        int64(f.WindowSize / time.Minute),
		OptimalDataPoints: []emissionsDataDTO{},
		ForecastData:      toEmissionsDTOs(f.ForecastData),
	}
	if f.OptimalDataPoint != nil {
		dto.OptimalDataPoints = append(dto.OptimalDataPoints, toEmissionsDTO(*f.OptimalDataPoint))
	}
	return dto
}

type locationDTO struct {
	RegionName    string `json:"regionName"`
	CloudProvider string `json:"cloudProvider,omitempty"`
}

type computeResourceDTO struct {
	Name       string            `json:"name"`
	Processor  string            `json:"processor,omitempty"`
	Location   *locationDTO      `json:"location,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

func (c computeResourceDTO) toResource() carbon.ComputeResource {
	props := make(map[string]string, len(c.Properties)+1)
	for k, v := range c.Properties {
		props[k] = v
	}
	if c.Processor != "" {
		props[carbon.PropertyProcessor] = c.Processor
	}
	r := carbon.ComputeResource{Name: c.Name, Properties: props}
	if c.Location != nil {
		r.Location = carbon.Location{RegionName: c.Location.RegionName, CloudProvider: c.Location.CloudProvider}
	}
	return r
}

type sciScoreRequest struct {
	Resources      []computeResourceDTO `json:"resources"`
	TimeInterval   string               `json:"timeInterval"`
	FunctionalUnit int64                `json:"functionalUnit"`
}

type marginalCarbonIntensityRequest struct {
	Location     locationDTO `json:"location"`
	TimeInterval string      `json:"timeInterval"`
}

type marginalCarbonIntensityResponse struct {
	MarginalCarbonIntensityValue float64 `json:"marginalCarbonIntensityValue"`
}

type averageCarbonIntensityResponse struct {
	Location        string    `json:"location"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	CarbonIntensity float64   `json:"carbonIntensity"`
}
