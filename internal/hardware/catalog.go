// Package hardware provides the immutable catalog of VM sizes and the
// physical processors backing them, used to turn a VM size name into a
// power profile.
package hardware

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

//go:embed data/azure_vm_sizes.yaml
var azureVMSizesYAML []byte

var (
	// ErrUnknownVMSize is returned when a VM size is not in the catalog.
	ErrUnknownVMSize = errors.New("unknown vm size")

	// ErrUnknownProcessor is returned when a processor name is not in the catalog.
	ErrUnknownProcessor = errors.New("unknown processor")

	// ErrInvalidProcessorOverride is returned when a processor override is not
	// valid for the VM size.
	ErrInvalidProcessorOverride = errors.New("invalid processor override")
)

// Processor describes the power curve of a physical processor.
type Processor struct {
	Name           string  `yaml:"name"`
	TotalCores     int     `yaml:"cores"`
	IdlePowerWatts float64 `yaml:"idle_watts"`
	MaxPowerWatts  float64 `yaml:"max_watts"`
}

// VMSize is a provider-specific VM size and its processor options.
type VMSize struct {
	Name             string   `yaml:"name"`
	Cores            int      `yaml:"cores"`
	DefaultProcessor string   `yaml:"default_processor"`
	ValidProcessors  []string `yaml:"valid_processors"`
}

// Profile is the resolved hardware of a compute resource: the cores it is
// allocated and the processor it runs on.
type Profile struct {
	VMSize          string
	AllocatedCores  int
	Processor       Processor
	ValidProcessors []Processor
}

// IsValidProcessor reports whether name is one of the profile's valid processors.
func (p Profile) IsValidProcessor(name string) bool {
	return slices.ContainsFunc(p.ValidProcessors, func(v Processor) bool { return v.Name == name })
}

type catalogFile struct {
	Processors []Processor `yaml:"processors"`
	VMSizes    []VMSize    `yaml:"vm_sizes"`
}

// Catalog is a read-only lookup of VM sizes and processors. It is safe for
// concurrent use once constructed.
type Catalog struct {
	processors map[string]Processor
	sizes      map[string]VMSize
}

var (
	defaultCatalog     *Catalog
	defaultCatalogErr  error
	defaultCatalogOnce sync.Once

	logger = zerolog.Nop()
)

// SetLogger sets the logger used to report skipped catalog entries.
// Call it before the first DefaultCatalog call.
func SetLogger(l zerolog.Logger) {
	logger = l.With().Str("component", "hardware").Logger()
}

// DefaultCatalog returns the embedded Azure catalog, parsing it on first use.
func DefaultCatalog() (*Catalog, error) {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = NewCatalog(azureVMSizesYAML)
	})
	return defaultCatalog, defaultCatalogErr
}

// NewCatalog parses a YAML catalog. Entries with missing names, non-positive
// core counts, invalid power values or unknown processors are skipped.
func NewCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse hardware catalog: %w", err)
	}

	c := &Catalog{
		processors: make(map[string]Processor, len(file.Processors)),
		sizes:      make(map[string]VMSize, len(file.VMSizes)),
	}

	for _, p := range file.Processors {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" || p.TotalCores < 1 || p.IdlePowerWatts < 0 || p.MaxPowerWatts < p.IdlePowerWatts {
			logger.Warn().Str("processor", p.Name).Msg("skipping invalid processor entry")
			continue
		}
		c.processors[p.Name] = p
	}

	for _, s := range file.VMSizes {
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" || s.Cores < 1 {
			logger.Warn().Str("vm_size", s.Name).Msg("skipping invalid vm size entry")
			continue
		}
		if _, ok := c.processors[s.DefaultProcessor]; !ok {
			logger.Warn().
				Str("vm_size", s.Name).
				Str("processor", s.DefaultProcessor).
				Msg("skipping vm size with unknown default processor")
			continue
		}
		if !slices.Contains(s.ValidProcessors, s.DefaultProcessor) {
			s.ValidProcessors = append(s.ValidProcessors, s.DefaultProcessor)
		}
		valid := s.ValidProcessors[:0]
		for _, name := range s.ValidProcessors {
			if _, ok := c.processors[name]; ok {
				valid = append(valid, name)
			}
		}
		s.ValidProcessors = valid
		c.sizes[s.Name] = s
	}

	if len(c.sizes) == 0 {
		return nil, fmt.Errorf("hardware catalog contains no valid vm sizes")
	}
	return c, nil
}

// Processor returns the named processor.
func (c *Catalog) Processor(name string) (Processor, bool) {
	p, ok := c.processors[name]
	return p, ok
}

// VMSize returns the named VM size.
func (c *Catalog) VMSize(name string) (VMSize, bool) {
	s, ok := c.sizes[name]
	return s, ok
}

// VMSizeNames returns all VM size names, sorted.
func (c *Catalog) VMSizeNames() []string {
	names := make([]string, 0, len(c.sizes))
	for name := range c.sizes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Profile resolves a VM size into a hardware profile. When processorOverride
// is non-empty it must be one of the size's valid processors; otherwise the
// size's default processor is used.
func (c *Catalog) Profile(vmSize, processorOverride string) (Profile, error) {
	size, ok := c.VMSize(vmSize)
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownVMSize, vmSize)
	}

	profile := Profile{
		VMSize:          size.Name,
		AllocatedCores:  size.Cores,
		ValidProcessors: make([]Processor, 0, len(size.ValidProcessors)),
	}
	for _, name := range size.ValidProcessors {
		profile.ValidProcessors = append(profile.ValidProcessors, c.processors[name])
	}

	chosen := size.DefaultProcessor
	if processorOverride != "" {
		if !profile.IsValidProcessor(processorOverride) {
			return Profile{}, fmt.Errorf("%w: %q is not a valid processor for %s",
				ErrInvalidProcessorOverride, processorOverride, size.Name)
		}
		chosen = processorOverride
	}
	profile.Processor = c.processors[chosen]
	return profile, nil
}
