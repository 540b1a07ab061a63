package watttime

import "time"

// Paths relative to the API base URL.
const (
	pathLogin                  = "login"
	pathData                   = "data"
	pathForecast               = "forecast"
	pathBalancingAuthorityFrom = "ba-from-loc"
)

// lbsPerMWhToGramsPerKWh converts a MOER value in lbs/MWh to gCO2/kWh.
const lbsPerMWhToGramsPerKWh = 453.59237 / 1000

type loginResult struct {
	Token string `json:"token"`
}

type balancingAuthority struct {
	ID           int    `json:"id"`
	Abbreviation string `json:"abbrev"`
	Name         string `json:"name"`
}

// gridEmissionDataPoint is a MOER reading. Value is in lbs/MWh and Frequency
// in seconds.
type gridEmissionDataPoint struct {
	BalancingAuthority string    `json:"ba"`
	Datatype           string    `json:"datatype,omitempty"`
	Frequency          *int      `json:"frequency,omitempty"`
	Market             string    `json:"market,omitempty"`
	PointTime          time.Time `json:"point_time"`
	Value              float64   `json:"value"`
	Version            string    `json:"version,omitempty"`
}

type forecast struct {
	GeneratedAt  time.Time               `json:"generated_at"`
	ForecastData []gridEmissionDataPoint `json:"forecast"`
}
