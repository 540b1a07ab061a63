package sci

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
	"github.com/rshade/carbon-aware-sci/internal/datasource"
	"github.com/rshade/carbon-aware-sci/internal/hardware"
)

const (
	testCPU  = "Test CPU 8C"
	altCPU   = "Alt CPU 16C"
	otherCPU = "Other CPU 4C"
)

// testCatalog holds one VM size with 2 of the 8 cores of a 90-200 W processor.
func testCatalog(t *testing.T) *hardware.Catalog {
	t.Helper()
	c, err := hardware.NewCatalog([]byte(`
processors:
  - {name: "Test CPU 8C", cores: 8, idle_watts: 90, max_watts: 200}
  - {name: "Alt CPU 16C", cores: 16, idle_watts: 50, max_watts: 150}
  - {name: "Other CPU 4C", cores: 4, idle_watts: 10, max_watts: 40}
vm_sizes:
  - name: Test_D2
    cores: 2
    default_processor: "Test CPU 8C"
    valid_processors: ["Test CPU 8C", "Alt CPU 16C"]
  - name: Test_D4
    cores: 4
    default_processor: "Test CPU 8C"
`))
	require.NoError(t, err)
	return c
}

var t0 = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

const hourInterval = "2022-01-01T00:00:00Z/2022-01-01T01:00:00Z"

type fakeIntensity struct {
	samples   map[string][]carbon.EmissionsData
	forecasts map[string]carbon.Forecast
	err       error
	calls     atomic.Int32
}

func (f *fakeIntensity) Name() string { return "fake" }

func (f *fakeIntensity) GetCarbonIntensity(ctx context.Context, locations []carbon.Location, start, end time.Time) ([]carbon.EmissionsData, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	var out []carbon.EmissionsData
	for _, loc := range locations {
		out = append(out, f.samples[strings.ToLower(loc.RegionName)]...)
	}
	return carbon.FilterByDateRange(out, start, end), nil
}

func (f *fakeIntensity) GetCurrentForecast(ctx context.Context, location carbon.Location) (carbon.Forecast, error) {
	f.calls.Add(1)
	if f.err != nil {
		return carbon.Forecast{}, f.err
	}
	fc, ok := f.forecasts[location.RegionName]
	if !ok {
		return carbon.Forecast{}, fmt.Errorf("fake: %q: %w", location.RegionName, datasource.ErrNotFound)
	}
	return fc, nil
}

type fakeInventory struct {
	mu          sync.Mutex
	resources   map[string]datasource.ResourceInfo
	utilization map[string][]carbon.UtilizationSample
	utilErr     error
	lookups     atomic.Int32
	seen        []string
}

func (f *fakeInventory) Name() string { return "fake" }

func (f *fakeInventory) LookupResource(ctx context.Context, resource carbon.ComputeResource) (datasource.ResourceInfo, error) {
	f.lookups.Add(1)
	f.mu.Lock()
	f.seen = append(f.seen, resource.Name)
	f.mu.Unlock()
	info, ok := f.resources[resource.Name]
	if !ok {
		return datasource.ResourceInfo{}, fmt.Errorf("fake: %q: %w", resource.Name, datasource.ErrNotFound)
	}
	return info, nil
}

func (f *fakeInventory) GetUtilization(ctx context.Context, resource carbon.ComputeResource, start, end time.Time) ([]carbon.UtilizationSample, error) {
	if f.utilErr != nil {
		return nil, f.utilErr
	}
	return f.utilization[resource.Name], nil
}

func sample(loc string, minute int, rating float64) carbon.EmissionsData {
	return carbon.EmissionsData{
		Location: loc,
		Time:     t0.Add(time.Duration(minute) * time.Minute),
		Rating:   rating,
		Duration: 5 * time.Minute,
	}
}

// newFakes returns an intensity source averaging 50 in eastus and 100 in
// westus, and an inventory with one hour at 50% for vm-a (eastus, Test_D2)
// and vm-b (westus, Test_D4).
func newFakes() (*fakeIntensity, *fakeInventory) {
	intensity := &fakeIntensity{
		samples: map[string][]carbon.EmissionsData{
			"eastus": {sample("eastus", 0, 40), sample("eastus", 5, 60)},
			"westus": {sample("westus", 0, 100)},
		},
	}
	hour := []carbon.UtilizationSample{{Timestamp: t0, CPUUtilization: 0.5, Duration: time.Hour}}
	inventory := &fakeInventory{
		resources: map[string]datasource.ResourceInfo{
			"vm-a": {Location: carbon.Location{RegionName: "eastus"}, VMSize: "Test_D2"},
			"vm-b": {Location: carbon.Location{RegionName: "westus"}, VMSize: "Test_D4"},
			"vm-z": {Location: carbon.Location{RegionName: "eastus"}, VMSize: "Unknown_Size"},
		},
		utilization: map[string][]carbon.UtilizationSample{
			"vm-a": hour,
			"vm-b": hour,
		},
	}
	return intensity, inventory
}

func resource(name string, props ...string) carbon.ComputeResource {
	r := carbon.ComputeResource{Name: name}
	if len(props) > 0 {
		r.Properties = map[string]string{}
		for i := 0; i+1 < len(props); i += 2 {
			r.Properties[props[i]] = props[i+1]
		}
	}
	return r
}
