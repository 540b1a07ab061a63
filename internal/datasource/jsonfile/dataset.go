package jsonfile

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
)

// Duration is a time.Duration read from a Go duration string ("5m") or a
// number of seconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var seconds float64
	if err := json.Unmarshal(b, &seconds); err != nil {
		return fmt.Errorf("duration must be a string or number of seconds: %s", b)
	}
	*d = Duration(time.Duration(seconds * float64(time.Second)))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Sample is one carbon intensity reading in the dataset.
type Sample struct {
	Location string    `json:"location"`
	Time     time.Time `json:"time"`
	Rating   float64   `json:"rating"`
	Duration Duration  `json:"duration"`
}

// ForecastEntry is a stored forecast for one location.
type ForecastEntry struct {
	Location    string    `json:"location"`
	GeneratedAt time.Time `json:"generatedAt"`
	Data        []Sample  `json:"data"`
}

// UtilizationEntry is one CPU reading. CPU is a fraction in [0, 1].
type UtilizationEntry struct {
	Timestamp time.Time `json:"timestamp"`
	CPU       float64   `json:"cpu"`
	Duration  Duration  `json:"duration"`
}

// Resource is a compute resource known to the dataset.
type Resource struct {
	Name          string             `json:"name"`
	Location      string             `json:"location"`
	CloudProvider string             `json:"cloudProvider,omitempty"`
	VMSize        string             `json:"vmSize"`
	Utilization   []UtilizationEntry `json:"utilization"`
}

// Dataset is the on-disk document served by the JSON source.
type Dataset struct {
	Emissions []Sample        `json:"emissions"`
	Forecasts []ForecastEntry `json:"forecasts"`
	Resources []Resource      `json:"resources"`
}

// Parse decodes a dataset document and orders every series chronologically.
func Parse(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}

	byTime := func(a, b Sample) int { return a.Time.Compare(b.Time) }
	slices.SortStableFunc(ds.Emissions, byTime)
	for i := range ds.Forecasts {
		slices.SortStableFunc(ds.Forecasts[i].Data, byTime)
	}
	for i := range ds.Resources {
		slices.SortStableFunc(ds.Resources[i].Utilization, func(a, b UtilizationEntry) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
	}
	return &ds, nil
}

func (s Sample) toEmissionsData() carbon.EmissionsData {
	return carbon.EmissionsData{
		Location: s.Location,
		Time:     s.Time.UTC(),
		Rating:   s.Rating,
		Duration: time.Duration(s.Duration),
	}
}

func sameLocation(a, b string) bool {
	return strings.EqualFold(a, b)
}
