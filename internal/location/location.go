// Package location maps cloud region names to geopositions.
package location

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
)

//go:embed data/azure_regions.yaml
var azureRegionsYAML []byte

// ErrUnknownRegion is returned when a region is not in the catalog.
var ErrUnknownRegion = errors.New("unknown region")

// Geoposition is a named point on the globe.
type Geoposition struct {
	Name        string  `yaml:"name"`
	DisplayName string  `yaml:"display_name"`
	Latitude    float64 `yaml:"latitude"`
	Longitude   float64 `yaml:"longitude"`
}

// Catalog resolves region names case-insensitively.
type Catalog struct {
	regions map[string]Geoposition
}

var (
	defaultCatalog     *Catalog
	defaultCatalogErr  error
	defaultCatalogOnce sync.Once

	logger = zerolog.Nop()
)

// SetLogger sets the logger used to report skipped catalog entries.
func SetLogger(l zerolog.Logger) {
	logger = l.With().Str("component", "location").Logger()
}

// DefaultCatalog returns the embedded Azure region catalog.
func DefaultCatalog() (*Catalog, error) {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = NewCatalog(azureRegionsYAML)
	})
	return defaultCatalog, defaultCatalogErr
}

// NewCatalog parses a YAML region list. Entries without a name or with
// out-of-range coordinates are skipped.
func NewCatalog(data []byte) (*Catalog, error) {
	var file struct {
		Regions []Geoposition `yaml:"regions"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse region catalog: %w", err)
	}

	c := &Catalog{regions: make(map[string]Geoposition, len(file.Regions))}
	for _, r := range file.Regions {
		if r.Name == "" || math.Abs(r.Latitude) > 90 || math.Abs(r.Longitude) > 180 {
			logger.Warn().Str("region", r.Name).Msg("skipping invalid region entry")
			continue
		}
		c.regions[strings.ToLower(r.Name)] = r
	}
	return c, nil
}

// Geoposition returns the position of loc's region.
func (c *Catalog) Geoposition(loc carbon.Location) (Geoposition, error) {
	g, ok := c.regions[strings.ToLower(strings.TrimSpace(loc.RegionName))]
	if !ok {
		return Geoposition{}, fmt.Errorf("%w: %q", ErrUnknownRegion, loc.RegionName)
	}
	return g, nil
}

// Names returns every region name, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.regions))
	for _, r := range c.regions {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}
