package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/ocean-matchup/internal/grid"
	"go.ngs.io/ocean-matchup/internal/metrics"
	"go.ngs.io/ocean-matchup/internal/usecase"
)

// fakeReader serves datasets by path; the files themselves only need to
// exist on disk.
type fakeReader map[string]*grid.Dataset

func (r fakeReader) Open(path string, _ ...string) (*grid.Dataset, error) {
	ds, ok := r[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return ds.Copy(), nil
}

func setup(t *testing.T) (*gin.Engine, *metrics.Collector, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	out := t.TempDir()

	ds, err := grid.NewRegular([]float64{0, 1}, []float64{50, 51}, nil, []time.Time{time.Date(2001, 3, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	_, err = ds.AddVariable("observation", "mmol/m3", []float64{1, 2, 3, 4})
	require.NoError(t, err)
	_, err = ds.AddVariable("model", "mmol/m3", []float64{2, 2, 2, 2})
	require.NoError(t, err)
	ds.SetAttr("start_year", "2001")
	ds.SetAttr("end_year", "2003")

	path := filepath.Join(out, "gridded", "nws", "nitrate", "nsbc_nitrate_surface.nc")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	reportPath := filepath.Join(out, "matchup_report.md")
	collector := metrics.NewCollector("ocean_matchup")
	catalog := usecase.NewCatalogUseCase(out, reportPath, fakeReader{path: ds})
	return SetupRouter(catalog, collector), collector, reportPath
}

func get(router *gin.Engine, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	router, _, _ := setup(t)
	w := get(router, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_ListMatchups(t *testing.T) {
	router, _, _ := setup(t)

	tests := []struct {
		name  string
		query string
		count int
	}{
		{"all", "", 1},
		{"domain filter", "?domain=nws", 1},
		{"other domain", "?domain=global", 0},
		{"variable filter", "?variable=oxygen", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(router, "/v1/matchups"+tt.query)
			require.Equal(t, http.StatusOK, w.Code)

			var body struct {
				Matchups []usecase.Artifact `json:"matchups"`
				Count    int                `json:"count"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.count, body.Count)
			assert.Len(t, body.Matchups, tt.count)
		})
	}

	w := get(router, "/v1/matchups")
	assert.Contains(t, w.Body.String(), `"source":"nsbc"`)
	assert.Contains(t, w.Body.String(), `"start_year":"2001"`)
}

func TestRouter_GetMatchup(t *testing.T) {
	router, _, _ := setup(t)

	w := get(router, "/v1/matchups/nws/nitrate")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Files []usecase.ArtifactDetail `json:"files"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Files, 1)
	assert.Equal(t, 2, body.Files[0].NX)
	assert.Equal(t, 4, body.Files[0].Channels[0].ValidCount)

	assert.Equal(t, http.StatusBadRequest, get(router, "/v1/matchups/arctic/nitrate").Code)
	assert.Equal(t, http.StatusNotFound, get(router, "/v1/matchups/nws/plankton").Code)
	assert.Equal(t, http.StatusNotFound, get(router, "/v1/matchups/global/nitrate").Code)
}

func TestRouter_Report(t *testing.T) {
	router, _, reportPath := setup(t)
	assert.Equal(t, http.StatusNotFound, get(router, "/v1/report").Code)

	require.NoError(t, os.WriteFile(reportPath, []byte("### Matchups for nitrate\n\n"), 0o644))
	w := get(router, "/v1/report")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, w.Body.String(), "Matchups for nitrate")
}

func TestRouter_Variables(t *testing.T) {
	router, _, _ := setup(t)
	w := get(router, "/v1/variables")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"display_name":"Sea-air CO2 flux"`)
}

func TestRouter_Metrics(t *testing.T) {
	router, collector, _ := setup(t)
	get(router, "/health")
	get(router, "/health")
	get(router, "/v1/matchups/nws/plankton")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.APIRequestsTotal.WithLabelValues("/health", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.APIRequestsTotal.WithLabelValues("/v1/matchups/:domain/:variable", "GET", "404")))

	w := get(router, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ocean_matchup_api_requests_total")
}
