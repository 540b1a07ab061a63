package carbon

import "time"

const (
	// EmbodiedEmissionsPerDeviceGrams is the total embodied emissions of one
	// server (2000 kgCO2e).
	EmbodiedEmissionsPerDeviceGrams = 2_000_000.0

	// ExpectedLifespanHours is the amortization period for embodied
	// emissions (5 years).
	ExpectedLifespanHours = 43_800.0

	// DefaultFunctionalUnit is the SCI denominator when the caller does not
	// provide one.
	DefaultFunctionalUnit int64 = 1

	// PropertyProcessor is the compute resource property that overrides the
	// VM size's default processor.
	PropertyProcessor = "processor"

	// MaxWindowSize is the longest rolling window a caller may request.
	MaxWindowSize = 366 * 24 * time.Hour

	// wattsPerKilowatt converts power draw to kW.
	wattsPerKilowatt = 1000.0
)
