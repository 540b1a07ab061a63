package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_CountsByRouteTemplate(t *testing.T) {
	m := New()

	r := mux.NewRouter()
	r.Use(m.Middleware)
	r.HandleFunc("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.TotalRequests.WithLabelValues("GET", "/items/{id}", "418")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRequests.WithLabelValues("GET", "/items/{id}")))
}

func TestObserveDataSourceCall(t *testing.T) {
	m := New()

	m.ObserveDataSourceCall("json", "GetCarbonIntensity", time.Now(), nil)
	m.ObserveDataSourceCall("json", "GetCarbonIntensity", time.Now(), errors.New("boom"))
	m.ObserveDataSourceCall("json", "GetCarbonIntensity", time.Now(), nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DataSourceCalls.WithLabelValues("json", "GetCarbonIntensity", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DataSourceCalls.WithLabelValues("json", "GetCarbonIntensity", "error")))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New()
	m.SciScoresComputed.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "carbonaware_sci_scores_computed_total 1"))
	assert.Contains(t, body, "go_goroutines")
}
