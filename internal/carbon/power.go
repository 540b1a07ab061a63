package carbon

import (
	"math"

	"github.com/rshade/carbon-aware-sci/internal/hardware"
)

// CoreShare returns the fraction of the physical processor allocated to the
// resource. Returns 0 when the processor core count is unknown.
func CoreShare(profile hardware.Profile) float64 {
	if profile.Processor.TotalCores <= 0 {
		return 0
	}
	return float64(profile.AllocatedCores) / float64(profile.Processor.TotalCores)
}

// PowerDrawKW returns the processor power draw in kW at the given CPU
// utilization, interpolating linearly between idle and max power.
func PowerDrawKW(utilization, idleWatts, maxWatts float64) float64 {
	u := Clamp(utilization, 0, 1)
	return (u*(maxWatts-idleWatts) + idleWatts) / wattsPerKilowatt
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// EnergyKWh estimates the energy used by a resource over its utilization
// samples.
//
// For each sample:
//  1. powerDrawKw = (utilization × (maxWatts - idleWatts) + idleWatts) / 1000
//  2. coreShare = allocatedCores / totalCores
//  3. energy += coreShare × powerDrawKw × durationHours
//
// No samples, or samples with zero duration, contribute 0.
func EnergyKWh(profile hardware.Profile, samples []UtilizationSample) float64 {
	share := CoreShare(profile)
	if share == 0 {
		return 0
	}

	var energy float64
	for _, s := range samples {
		hours := s.Duration.Hours()
		if hours <= 0 {
			continue
		}
		draw := PowerDrawKW(s.CPUUtilization, profile.Processor.IdlePowerWatts, profile.Processor.MaxPowerWatts)
		energy += share * draw * hours
	}
	return energy
}

// EmbodiedEmissionsGrams amortizes the device's embodied emissions over the
// time the resource was reserved and its share of the processor.
//
// For each sample:
//
//	embodied += 2,000,000 gCO2 × (durationHours / 43,800) × (allocatedCores / totalCores)
func EmbodiedEmissionsGrams(profile hardware.Profile, samples []UtilizationSample) float64 {
	share := CoreShare(profile)
	if share == 0 {
		return 0
	}

	var embodied float64
	for _, s := range samples {
		hours := s.Duration.Hours()
		if hours <= 0 {
			continue
		}
		timeShare := hours / ExpectedLifespanHours
		embodied += EmbodiedEmissionsPerDeviceGrams * timeShare * share
	}
	return embodied
}
