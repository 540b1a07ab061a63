package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
	"github.com/rshade/carbon-aware-sci/internal/config"
	"github.com/rshade/carbon-aware-sci/internal/datasource"
	"github.com/rshade/carbon-aware-sci/internal/datasource/jsonfile"
	"github.com/rshade/carbon-aware-sci/internal/hardware"
	"github.com/rshade/carbon-aware-sci/internal/metrics"
	"github.com/rshade/carbon-aware-sci/internal/sci"
	"github.com/rshade/carbon-aware-sci/internal/trace"
)

const hour = "2022-01-01T00:00:00Z/2022-01-01T01:00:00Z"

func newTestServer(t *testing.T, cors config.CORSConfig) (*httptest.Server, *metrics.Metrics) {
	t.Helper()
	ds, err := jsonfile.LoadFile("../datasource/jsonfile/testdata/dataset.json")
	require.NoError(t, err)
	src := jsonfile.New(ds, zerolog.Nop())
	catalog, err := hardware.DefaultCatalog()
	require.NoError(t, err)

	m := metrics.New()
	agg := sci.NewAggregator(src, src, catalog, zerolog.Nop(), sci.WithMetrics(m))
	emissions := sci.NewEmissionsService(src, zerolog.Nop())

	srv := httptest.NewServer(NewServer(agg, emissions, m, cors, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv, m
}

func get(t *testing.T, srv *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func post(t *testing.T, srv *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, config.CORSConfig{})
	resp := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(trace.HeaderRequestID))
}

func TestEmissionsByLocations(t *testing.T) {
	srv, _ := newTestServer(t, config.CORSConfig{})

	resp := get(t, srv, "/emissions/bylocations?location=eastus&time=2022-01-01T00:00:00Z&toTime=2022-01-01T00:15:00Z")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	data := decode[[]emissionsDataDTO](t, resp)
	require.Len(t, data, 3)
	assert.Equal(t, "eastus", data[0].Location)
	assert.Equal(t, int64(5), data[0].Duration)
	assert.Equal(t, []float64{60, 55, 50}, []float64{data[0].Value, data[1].Value, data[2].Value})
}

func TestBestEmissionsByLocations(t *testing.T) {
	srv, _ := newTestServer(t, config.CORSConfig{})

	resp := get(t, srv, "/emissions/bylocations/best?location=eastus,westus&time=2022-01-01T00:00:00Z&toTime=2022-01-01T01:00:00Z")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := decode[[]emissionsDataDTO](t, resp)
	require.Len(t, data, 2)
	for _, d := range data {
		assert.Equal(t, "westus", d.Location)
		assert.Equal(t, 20.0, d.Value)
	}
}

func TestAverageCarbonIntensity(t *testing.T) {
	srv, _ := newTestServer(t, config.CORSConfig{})

	resp := get(t, srv, "/emissions/average-carbon-intensity?location=eastus&timeInterval="+hour)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[averageCarbonIntensityResponse](t, resp)
	assert.InDelta(t, 50.75, body.CarbonIntensity, 1e-9)
	assert.Equal(t, "eastus", body.Location)
	assert.Equal(t, 1, body.EndTime.Hour())
}

func TestCurrentForecasts(t *testing.T) {
	srv, _ := newTestServer(t, config.CORSConfig{})

	resp := get(t, srv, "/emissions/forecasts/current?location=eastus&windowSize=10")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	forecasts := decode[[]forecastDTO](t, resp)
	require.Len(t, forecasts, 1)
	f := forecasts[0]
	assert.Equal(t, int64(10), f.WindowSize)
	assert.Equal(t, 1, f.GeneratedAt.Hour(), "latest forecast wins")
	require.Len(t, f.ForecastData, 3)
	assert.Equal(t, 45.0, f.ForecastData[0].Value)
	assert.Equal(t, 32.5, f.ForecastData[1].Value)
	assert.Equal(t, 50.0, f.ForecastData[2].Value)
	require.Len(t, f.OptimalDataPoints, 1)
	assert.Equal(t, f.ForecastData[1], f.OptimalDataPoints[0])
}

func TestSciScore(t *testing.T) {
	srv, _ := newTestServer(t, config.CORSConfig{})

	resp := post(t, srv, "/sci-scores", `{"resources":[{"name":"vm-east"}],"timeInterval":"`+hour+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	score := decode[carbon.SciScore](t, resp)
	assert.InDelta(t, 0.145*2/26, score.EnergyValue, 1e-9)
	assert.InDelta(t, 50.75, score.MarginalCarbonIntensityValue, 1e-9)
	assert.Equal(t, int64(1), score.FunctionalUnitValue)
	assert.InDelta(t, score.EnergyValue*score.MarginalCarbonIntensityValue+score.EmbodiedEmissionsValue,
		score.SciScoreValue, 1e-9)

	scrape := get(t, srv, "/metrics")
	body, err := io.ReadAll(scrape.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "carbonaware_sci_scores_computed_total 1")
	assert.Contains(t, string(body), `route="/sci-scores"`)
}

func TestSciScore_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantDetail string
	}{
		{
			name:       "invalid processor",
			body:       `{"resources":[{"name":"vm-east","processor":"AMD EPYC 7763"}],"timeInterval":"` + hour + `"}`,
			wantStatus: http.StatusBadRequest,
			wantDetail: "AMD EPYC 7763",
		},
		{
			name:       "bad interval",
			body:       `{"resources":[{"name":"vm-east"}],"timeInterval":"2022-01-01"}`,
			wantStatus: http.StatusBadRequest,
			wantDetail: "malformed time interval",
		},
		{
			name:       "no resources",
			body:       `{"resources":[],"timeInterval":"` + hour + `"}`,
			wantStatus: http.StatusBadRequest,
			wantDetail: "compute resource",
		},
		{
			name:       "unknown resource",
			body:       `{"resources":[{"name":"vm-missing"}],"timeInterval":"` + hour + `"}`,
			wantStatus: http.StatusNotFound,
			wantDetail: "vm-missing",
		},
		{
			name:       "malformed body",
			body:       `{"resources":`,
			wantStatus: http.StatusBadRequest,
			wantDetail: "malformed request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, config.CORSConfig{})
			req, err := http.NewRequest(http.MethodPost, srv.URL+"/sci-scores", strings.NewReader(tt.body))
			require.NoError(t, err)
			req.Header.Set(trace.HeaderRequestID, "req-123")

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			p := decode[problem](t, resp)
			assert.Equal(t, tt.wantStatus, p.Status)
			assert.Equal(t, http.StatusText(tt.wantStatus), p.Title)
			assert.Contains(t, p.Detail, tt.wantDetail)
			assert.Equal(t, "req-123", p.RequestID)
			assert.Equal(t, "req-123", resp.Header.Get(trace.HeaderRequestID))
		})
	}
}

func TestMarginalCarbonIntensity(t *testing.T) {
	srv, _ := newTestServer(t, config.CORSConfig{})

	resp := post(t, srv, "/sci-scores/marginal-carbon-intensity",
		`{"location":{"regionName":"eastus"},"timeInterval":"`+hour+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[marginalCarbonIntensityResponse](t, resp)
	assert.InDelta(t, 50.75, body.MarginalCarbonIntensityValue, 1e-9)
}

func TestQueryValidation(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{name: "no location", path: "/emissions/bylocations?time=2022-01-01T00:00:00Z"},
		{name: "bad time", path: "/emissions/bylocations?location=eastus&time=noon"},
		{name: "bad window", path: "/emissions/forecasts/current?location=eastus&windowSize=-5"},
		{name: "window overflows duration", path: "/emissions/forecasts/current?location=eastus&windowSize=153722867"},
		{name: "window not a number", path: "/emissions/forecasts/current?location=eastus&windowSize=1e3"},
		{name: "average needs one location", path: "/emissions/average-carbon-intensity?location=eastus,westus&timeInterval=" + hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, config.CORSConfig{})
			resp := get(t, srv, tt.path)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	srv, _ := newTestServer(t, config.CORSConfig{})

	resp := get(t, srv, "/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	p := decode[problem](t, resp)
	assert.NotEmpty(t, p.RequestID)

	resp = get(t, srv, "/sci-scores")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	maxAge := 300
	srv, _ := newTestServer(t, config.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		MaxAge:         &maxAge,
	})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/sci-scores", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "300", resp.Header.Get("Access-Control-Max-Age"))

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example.com")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: carbon.NewValidationError(carbon.ErrEmptyLocations, "x"), want: http.StatusBadRequest},
		{name: "not found", err: fmt.Errorf("src: %w", datasource.ErrNotFound), want: http.StatusNotFound},
		{name: "resolution", err: &sci.ResolutionError{Resource: "vm", Err: hardware.ErrUnknownVMSize}, want: http.StatusUnprocessableEntity},
		{name: "unsupported", err: datasource.ErrUnsupported, want: http.StatusNotImplemented},
		{name: "deadline", err: fmt.Errorf("upstream: %w", context.DeadlineExceeded), want: http.StatusGatewayTimeout},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
