package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
	"github.com/rshade/carbon-aware-sci/internal/sci"
)

// maxBodyBytes bounds POST bodies.
const maxBodyBytes = 1 << 20

// locationsParam collects repeated and comma separated location values.
func locationsParam(r *http.Request, key string) []carbon.Location {
	var out []carbon.Location
	for _, raw := range r.URL.Query()[key] {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, carbon.Location{RegionName: name})
			}
		}
	}
	return out
}

// timeParam parses an optional timestamp query parameter.
func timeParam(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := carbon.ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, carbon.NewValidationError(carbon.ErrUnparsableTimestamp, "%s: could not parse %q", key, raw)
	}
	return t, nil
}

func emissionsQuery(r *http.Request) (sci.EmissionsQuery, error) {
	start, err := timeParam(r, "time")
	if err != nil {
		return sci.EmissionsQuery{}, err
	}
	end, err := timeParam(r, "toTime")
	if err != nil {
		return sci.EmissionsQuery{}, err
	}
	return sci.EmissionsQuery{Locations: locationsParam(r, "location"), Start: start, End: end}, nil
}

func (s *Server) emissionsByLocations(w http.ResponseWriter, r *http.Request) {
	q, err := emissionsQuery(r)
	if err != nil {
		s.writeError(w, r, "GetEmissionsData", err)
		return
	}
	data, err := s.emissions.GetEmissionsData(r.Context(), q)
	if err != nil {
		s.writeError(w, r, "GetEmissionsData", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, toEmissionsDTOs(data))
}

func (s *Server) bestEmissionsByLocations(w http.ResponseWriter, r *http.Request) {
	q, err := emissionsQuery(r)
	if err != nil {
		s.writeError(w, r, "GetBestEmissionsData", err)
		return
	}
	data, err := s.emissions.GetBestEmissionsData(r.Context(), q)
	if err != nil {
		s.writeError(w, r, "GetBestEmissionsData", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, toEmissionsDTOs(data))
}

func (s *Server) averageCarbonIntensity(w http.ResponseWriter, r *http.Request) {
	const op = "CalculateAverageCarbonIntensity"
	locations := locationsParam(r, "location")
	if len(locations) != 1 {
		s.writeError(w, r, op, carbon.NewValidationError(carbon.ErrEmptyLocations, "exactly one location is required"))
		return
	}
	raw := r.URL.Query().Get("timeInterval")
	interval, err := carbon.ParseTimeInterval(raw)
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}

	avg, err := s.aggregator.CalculateAverageCarbonIntensity(r.Context(), locations[0], raw)
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, averageCarbonIntensityResponse{
		Location:        locations[0].RegionName,
		StartTime:       interval.Start,
		EndTime:         interval.End,
		CarbonIntensity: avg,
	})
}

func (s *Server) currentForecasts(w http.ResponseWriter, r *http.Request) {
	const op = "GetCurrentForecasts"
	start, err := timeParam(r, "dataStartAt")
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	end, err := timeParam(r, "dataEndAt")
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	var window time.Duration
	if raw := r.URL.Query().Get("windowSize"); raw != "" {
		minutes, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, op, carbon.NewValidationError(carbon.ErrInvalidWindowSize,
				"windowSize must be a whole number of minutes, got %q", raw))
			return
		}
		if window, err = carbon.WindowSizeFromMinutes(minutes); err != nil {
			s.writeError(w, r, op, err)
			return
		}
	}

	forecasts, err := s.emissions.GetCurrentForecasts(r.Context(), sci.ForecastQuery{
		Locations:   locationsParam(r, "location"),
		DataStartAt: start,
		DataEndAt:   end,
		WindowSize:  window,
	})
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}

	out := make([]forecastDTO, len(forecasts))
	for i, f := range forecasts {
		out[i] = toForecastDTO(f)
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) sciScore(w http.ResponseWriter, r *http.Request) {
	const op = "CalculateSciScore"
	var req sciScoreRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, op, err)
		return
	}

	resources := make([]carbon.ComputeResource, len(req.Resources))
	for i, res := range req.Resources {
		resources[i] = res.toResource()
	}

	score, err := s.aggregator.CalculateSciScore(r.Context(), resources, req.TimeInterval,
		sci.WithFunctionalUnit(req.FunctionalUnit))
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, score)
}

func (s *Server) marginalCarbonIntensity(w http.ResponseWriter, r *http.Request) {
	const op = "CalculateMarginalCarbonIntensity"
	var req marginalCarbonIntensityRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, op, err)
		return
	}

	loc := carbon.Location{RegionName: req.Location.RegionName, CloudProvider: req.Location.CloudProvider}
	avg, err := s.aggregator.CalculateAverageCarbonIntensity(r.Context(), loc, req.TimeInterval)
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, marginalCarbonIntensityResponse{MarginalCarbonIntensityValue: avg})
}

// errMalformedBody marks an undecodable request body.
var errMalformedBody = errors.New("malformed request body")

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &carbon.ValidationError{Kind: errMalformedBody, Detail: err.Error()}
	}
	return nil
}
