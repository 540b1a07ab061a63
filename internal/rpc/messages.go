package rpc

// Location identifies a region.
type Location struct {
	RegionName    string `json:"regionName"`
	CloudProvider string `json:"cloudProvider,omitempty"`
}

// ComputeResource is a resource to score.
type ComputeResource struct {
	Name       string            `json:"name"`
	Processor  string            `json:"processor,omitempty"`
	Location   *Location         `json:"location,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// SciScoreRequest asks for the SCI score of resources over TimeInterval
// ("<start>/<end>").
type SciScoreRequest struct {
	Resources      []ComputeResource `json:"resources"`
	TimeInterval   string            `json:"timeInterval"`
	FunctionalUnit int64             `json:"functionalUnit,omitempty"`
}

// SciScoreResponse carries the score and its components.
type SciScoreResponse struct {
	SciScore                     float64 `json:"sciScore"`
	EnergyValue                  float64 `json:"energyValue"`
	MarginalCarbonIntensityValue float64 `json:"marginalCarbonIntensityValue"`
	EmbodiedEmissionsValue       float64 `json:"embodiedEmissionsValue"`
	FunctionalUnitValue          int64   `json:"functionalUnitValue"`
}

// ForecastRequest asks for the current forecast of one location. Times are
// RFC 3339; empty bounds are unbounded and a zero window keeps the native
// cadence.
type ForecastRequest struct {
	Location          string `json:"location"`
	DataStartAt       string `json:"dataStartAt,omitempty"`
	DataEndAt         string `json:"dataEndAt,omitempty"`
	WindowSizeMinutes int64  `json:"windowSizeMinutes,omitempty"`
}

// EmissionsData is one sample; Duration is in minutes.
type EmissionsData struct {
	Location  string  `json:"location"`
	Timestamp string  `json:"timestamp"`
	Duration  int64   `json:"duration"`
	Value     float64 `json:"value"`
}

// ForecastResponse is a resampled forecast.
type ForecastResponse struct {
	Location          string          `json:"location"`
	GeneratedAt       string          `json:"generatedAt"`
	RequestedAt       string          `json:"requestedAt"`
	DataStartAt       string          `json:"dataStartAt"`
	DataEndAt         string          `json:"dataEndAt"`
	WindowSizeMinutes int64           `json:"windowSizeMinutes"`
	OptimalDataPoint  *EmissionsData  `json:"optimalDataPoint,omitempty"`
	ForecastData      []EmissionsData `json:"forecastData"`
}

// AverageCarbonIntensityRequest asks for the mean intensity of a location.
type AverageCarbonIntensityRequest struct {
	Location     string `json:"location"`
	TimeInterval string `json:"timeInterval"`
}

// AverageCarbonIntensityResponse carries the mean intensity in gCO2/kWh.
type AverageCarbonIntensityResponse struct {
	Location        string  `json:"location"`
	CarbonIntensity float64 `json:"carbonIntensity"`
}
