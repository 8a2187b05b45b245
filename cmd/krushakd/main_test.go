package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krushak/internal/config"
	"krushak/internal/telemetry"
)

// fakeBackend serves the subset of the Krushak backend API krushakd uses.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.HandleFunc("GET /api/weather", func(w http.ResponseWriter, r *http.Request) {
		city := r.URL.Query().Get("city")
		w.Write([]byte(`{"ok":true,"weather":{"city":"` + city + `","temperature":31.5,"humidity":58,"rainfall":4,"description":"haze"}}`))
	})
	mux.HandleFunc("POST /api/predict", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"ok":true,
			"results":{
				"RandomForestClassifier":{"prediction":"Urea","probabilities":{"Urea":0.9,"DAP":0.1}},
				"KNeighborsClassifier":{"prediction":"Urea","probabilities":{"Urea":0.6,"DAP":0.4}},
				"SVC":{"prediction":"DAP"}},
			"soil_health":{"health_score":81,"overall_status":"Excellent","insights":[],"recommendations":[]}}`))
	})
	mux.HandleFunc("POST /api/download-report/{format}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7 report"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

type testServer struct {
	t       *testing.T
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	t.Setenv("KRUSHAK_API_URL", fakeBackend(t).URL)
	t.Setenv("SESSION_CAPACITY", "4")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := buildServer(cfg, logger, telemetry.New())
	require.NoError(t, err)
	return &testServer{t: t, handler: srv.Handler()}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type sessionEnvelope struct {
	Data struct {
		ID       string `json:"id"`
		Snapshot struct {
			State       string          `json:"state"`
			Draft       map[string]any  `json:"draft"`
			Predictions json.RawMessage `json:"predictions"`
		} `json:"snapshot"`
	} `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) sessionEnvelope {
	t.Helper()
	var env sessionEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Contains(t, resp["components"], "backend")
}

func TestFullWorkflow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/v1/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode(t, rec).Data.ID
	require.NotEmpty(t, id)
	base := "/v1/sessions/" + id

	rec = s.do(http.MethodPost, base+"/weather", `{"city":"Pune"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decode(t, rec)
	assert.Equal(t, "weather_ready", env.Data.Snapshot.State)
	assert.Equal(t, 31.5, env.Data.Snapshot.Draft["Temparature"])
	assert.Equal(t, 8.0, env.Data.Snapshot.Draft["Moisture"])

	for field, value := range map[string]string{
		"Soil_Type": "Loamy", "Crop_Type": "Wheat",
		"Nitrogen": "30", "Potassium": "20", "Phosphorous": "25",
	} {
		rec = s.do(http.MethodPut, base+"/fields/"+field, `{"value":"`+value+`"}`)
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", field, rec.Body.String())
	}

	rec = s.do(http.MethodPost, base+"/predictions", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "prediction_ready", decode(t, rec).Data.Snapshot.State)

	rec = s.do(http.MethodGet, base+"/confidence?sort=desc", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var conf struct {
		Data struct {
			Confidence []struct {
				Model   string `json:"model"`
				Percent int    `json:"confidence_percent"`
			} `json:"confidence"`
			Consensus struct {
				Label string `json:"label"`
				Votes int    `json:"votes"`
			} `json:"consensus"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conf))
	require.Len(t, conf.Data.Confidence, 3)
	assert.Equal(t, "Urea", conf.Data.Consensus.Label)
	assert.Equal(t, 2, conf.Data.Consensus.Votes)

	rec = s.do(http.MethodPost, base+"/reports/pdf", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "krushak_report.pdf")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = s.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `krushak_backend_calls_total{outcome="ok",service="predict"} 1`)
	assert.Contains(t, body, `krushak_sessions_active 1`)
	assert.Contains(t, body, `route="/v1/sessions/{id}/predictions"`)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/v2/anything", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found_route")
}

func TestNewLogger(t *testing.T) {
	for level, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	} {
		logger := newLogger(level)
		if !logger.Enabled(context.Background(), want) {
			t.Errorf("%s: level %v not enabled", level, want)
		}
		if want > slog.LevelDebug && logger.Enabled(context.Background(), want-1) {
			t.Errorf("%s: level below %v enabled", level, want)
		}
	}
}
