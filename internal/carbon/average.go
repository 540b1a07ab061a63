package carbon

// AverageRating returns the arithmetic mean of the samples' ratings, not
// weighted by duration. An empty input is a valid "no signal" case and
// returns 0.
func AverageRating(samples []EmissionsData) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.Rating
	}
	return sum / float64(len(samples))
}

// OptimalDataPoint returns a pointer to the element of data with the lowest
// rating. Ties go to the earliest timestamp. Returns nil for empty data.
func OptimalDataPoint(data []EmissionsData) *EmissionsData {
	var best *EmissionsData
	for i := range data {
		d := &data[i]
		if best == nil || d.Rating < best.Rating ||
			(d.Rating == best.Rating && d.Time.Before(best.Time)) {
			best = d
		}
	}
	return best
}

// BestEmissions returns every sample sharing the minimum rating, in input
// order. Returns nil for empty data.
func BestEmissions(data []EmissionsData) []EmissionsData {
	best := OptimalDataPoint(data)
	if best == nil {
		return nil
	}
	var out []EmissionsData
	for _, d := range data {
		if d.Rating == best.Rating {
			out = append(out, d)
		}
	}
	return out
}
