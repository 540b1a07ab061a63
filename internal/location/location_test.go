package location

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
)

func TestDefaultCatalog_Geoposition(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	tests := []struct {
		region  string
		wantLat float64
		wantLon float64
	}{
		{region: "eastus", wantLat: 37.3719, wantLon: -79.8164},
		{region: "westus", wantLat: 37.783, wantLon: -122.417},
		{region: " WestEurope ", wantLat: 52.3667, wantLon: 4.9},
	}
	for _, tt := range tests {
		t.Run(tt.region, func(t *testing.T) {
			g, err := c.Geoposition(carbon.Location{RegionName: tt.region})
			require.NoError(t, err)
			assert.InDelta(t, tt.wantLat, g.Latitude, 1e-6)
			assert.InDelta(t, tt.wantLon, g.Longitude, 1e-6)
		})
	}
}

func TestDefaultCatalog_UnknownRegion(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	_, err = c.Geoposition(carbon.Location{RegionName: "invalid location"})
	assert.ErrorIs(t, err, ErrUnknownRegion)
}

func TestNewCatalog_SkipsInvalid(t *testing.T) {
	c, err := NewCatalog([]byte(`
regions:
  - {name: ok, latitude: 1, longitude: 2}
  - {name: bad, latitude: 91, longitude: 0}
  - {latitude: 1, longitude: 1}
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, c.Names())

	_, err = NewCatalog([]byte("regions: {"))
	assert.Error(t, err)
}
