package carbon

import (
	"math"
	"slices"
	"time"
)

// SampleCadence returns the native cadence D of chronologically ordered data:
// the first sample's duration, or the gap between the first two timestamps
// when that duration is unset. Returns 0 when it cannot be determined.
func SampleCadence(data []EmissionsData) time.Duration {
	if len(data) == 0 {
		return 0
	}
	if data[0].Duration > 0 {
		return data[0].Duration
	}
	if len(data) > 1 {
		if gap := data[1].Time.Sub(data[0].Time); gap > 0 {
			return gap
		}
	}
	return 0
}

// EffectiveWindowSize rounds the requested window up to a whole multiple of
// the cadence. Windows at or below the cadence are floored to the cadence.
// When the rounded window does not fit in a time.Duration, the largest
// multiple of the cadence that does is returned.
func EffectiveWindowSize(requested, cadence time.Duration) time.Duration {
	if cadence <= 0 {
		return 0
	}
	if requested <= cadence {
		return cadence
	}
	k := requested / cadence
	if requested%cadence != 0 {
		k++
	}
	if maxK := time.Duration(math.MaxInt64) / cadence; k > maxK {
		k = maxK
	}
	return cadence * k
}

// WindowSizeFromMinutes converts a caller-supplied window in minutes,
// rejecting negative values and windows longer than MaxWindowSize.
func WindowSizeFromMinutes(minutes int64) (time.Duration, error) {
	if minutes < 0 || minutes > int64(MaxWindowSize/time.Minute) {
		return 0, NewValidationError(ErrInvalidWindowSize,
			"window size must be between 0 and %d minutes, got %d", int64(MaxWindowSize/time.Minute), minutes)
	}
	return time.Duration(minutes) * time.Minute, nil
}

// overlaps reports whether a sample window intersects [start, end). A zero
// bound is unbounded on that side. When start == end the sample must contain
// that instant.
func overlaps(s EmissionsData, start, end time.Time) bool {
	if !start.IsZero() && !end.IsZero() && start.Equal(end) {
		if s.Duration <= 0 {
			return s.Time.Equal(start)
		}
		return !s.Time.After(start) && s.End().After(start)
	}
	if !end.IsZero() && !s.Time.Before(end) {
		return false
	}
	if start.IsZero() {
		return true
	}
	if s.Duration <= 0 {
		return !s.Time.Before(start)
	}
	return s.End().After(start)
}

// FilterByDateRange keeps the samples whose window overlaps [start, end).
func FilterByDateRange(data []EmissionsData, start, end time.Time) []EmissionsData {
	out := make([]EmissionsData, 0, len(data))
	for _, d := range data {
		if overlaps(d, start, end) {
			out = append(out, d)
		}
	}
	return out
}

// ResampleForecast filters a forecast to [start, end) and merges its samples
// into rolling windows of the requested size.
//
// The algorithm:
//  1. W_eff = D when window <= D, otherwise D × ceil(window / D)
//  2. k = W_eff / D raw samples are merged per output sample
//  3. filtered samples are grouped into consecutive groups of k; a trailing
//     partial group is kept
//  4. each output takes the group's first timestamp, the mean rating and
//     duration W_eff
//  5. OptimalDataPoint is recomputed over the output
//
// A single surviving raw sample keeps its own duration. The input forecast
// is not modified.
func ResampleForecast(f Forecast, start, end time.Time, window time.Duration) Forecast {
	raw := slices.Clone(f.ForecastData)
	slices.SortStableFunc(raw, func(a, b EmissionsData) int {
		return a.Time.Compare(b.Time)
	})

	cadence := SampleCadence(raw)
	effective := EffectiveWindowSize(window, cadence)

	filtered := FilterByDateRange(raw, start, end)

	out := Forecast{
		GeneratedAt: f.GeneratedAt,
		Location:    f.Location,
		RequestedAt: f.RequestedAt,
		DataStartAt: start,
		DataEndAt:   end,
		WindowSize:  effective,
	}
	if out.DataStartAt.IsZero() && len(raw) > 0 {
		out.DataStartAt = raw[0].Time
	}
	if out.DataEndAt.IsZero() && len(raw) > 0 {
		out.DataEndAt = raw[len(raw)-1].End()
	}

	out.ForecastData = rollingWindows(filtered, cadence, effective)
	out.OptimalDataPoint = OptimalDataPoint(out.ForecastData)
	return out
}

// rollingWindows groups chronologically ordered samples per ResampleForecast.
func rollingWindows(data []EmissionsData, cadence, effective time.Duration) []EmissionsData {
	if len(data) == 0 {
		return []EmissionsData{}
	}
	if len(data) == 1 {
		return []EmissionsData{data[0]}
	}

	k := 1
	if cadence > 0 && effective > 0 {
		k = int(effective / cadence)
	}

	out := make([]EmissionsData, 0, (len(data)+k-1)/k)
	for i := 0; i < len(data); i += k {
		group := data[i:min(i+k, len(data))]
		duration := effective
		if cadence <= 0 {
			duration = group[0].Duration
		}
		out = append(out, EmissionsData{
			Location: group[0].Location,
			Time:     group[0].Time,
			Rating:   AverageRating(group),
			Duration: duration,
		})
	}
	return out
}
