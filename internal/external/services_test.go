package external

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"krushak/internal/core"
	"krushak/internal/types"
)

func validParams() types.ParameterSet {
	return types.ParameterSet{
		Temperature: 28,
		Humidity:    65,
		Moisture:    0,
		SoilType:    types.SoilLoamy,
		CropType:    types.CropWheat,
		Nitrogen:    30,
		Potassium:   20,
		Phosphorus:  25,
	}
}

func expectValidation(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	if appErr.Code != code {
		t.Fatalf("expected code %s, got %s", code, appErr.Code)
	}
}

// -- Weather --

func TestFetchWeather_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/weather" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("city") != "Navi Mumbai" {
			t.Errorf("city not escaped/forwarded: %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"ok":true,"weather":{"city":"Navi Mumbai","country":"IN","temperature":28.37,"humidity":65,"rainfall":1.25,"description":"light rain","wind_speed":3.6,"icon":"10d","pressure":1008}}`))
	}))
	defer server.Close()

	client := NewWeatherClient(newTestClient(t, server.URL), testLogger())
	reading, err := client.FetchWeather(context.Background(), "  Navi Mumbai ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.City != "Navi Mumbai" || reading.Country != "IN" {
		t.Errorf("unexpected location %+v", reading)
	}
	if reading.Temperature == nil || *reading.Temperature != 28.37 {
		t.Errorf("temperature must be returned unrounded, got %v", reading.Temperature)
	}
	if reading.RainfallLastHour == nil || *reading.RainfallLastHour != 1.25 {
		t.Errorf("unexpected rainfall %v", reading.RainfallLastHour)
	}
	if reading.Icon != "10d" || reading.Description != "light rain" {
		t.Errorf("unexpected description/icon %+v", reading)
	}
}

func TestFetchWeather_AbsentFieldsStayUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true,"weather":{"temperature":31}}`))
	}))
	defer server.Close()

	client := NewWeatherClient(newTestClient(t, server.URL), nil)
	reading, err := client.FetchWeather(context.Background(), "Nagpur")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.City != "Nagpur" {
		t.Errorf("missing city should fall back to the requested one, got %q", reading.City)
	}
	if reading.Humidity != nil || reading.RainfallLastHour != nil || reading.WindSpeed != nil {
		t.Errorf("absent fields must stay nil: %+v", reading)
	}
}

func TestFetchWeather_EmptyCityMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := NewWeatherClient(newTestClient(t, server.URL), nil)
	for _, city := range []string{"", "   ", "\t\n"} {
		_, err := client.FetchWeather(context.Background(), city)
		expectValidation(t, err, types.ErrCodeValidationEmptyCity)
		if !types.IsValidationError(err) {
			t.Error("empty city must be a validation error")
		}
	}
	if calls.Load() != 0 {
		t.Errorf("expected no network calls, got %d", calls.Load())
	}
}

func TestFetchWeather_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind types.RemoteErrorKind
	}{
		{"city not found", http.StatusOK, `{"ok":false,"error":"city not found"}`, types.RemoteServerRejected},
		{"upstream failure", http.StatusInternalServerError, `{"ok":false,"error":"Weather API unavailable"}`, types.RemoteServerRejected},
		{"missing weather object", http.StatusOK, `{"ok":true}`, types.RemoteMalformed},
		{"weather of wrong type", http.StatusOK, `{"ok":true,"weather":"sunny"}`, types.RemoteMalformed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewWeatherClient(newTestClient(t, server.URL), nil)
			reading, err := client.FetchWeather(context.Background(), "Pune")
			if reading != nil {
				t.Errorf("expected nil reading, got %+v", reading)
			}
			expectKind(t, err, tc.wantKind)
		})
	}
}

func TestFetchWeatherAt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		if q.Get("lat") != "18.52" || q.Get("lon") != "73.8567" {
			t.Errorf("unexpected coordinates %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"ok":true,"weather":{"city":"Pune","humidity":70}}`))
	}))
	defer server.Close()

	client := NewWeatherClient(newTestClient(t, server.URL), nil)
	reading, err := client.FetchWeatherAt(context.Background(), 18.52, 73.8567)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.City != "Pune" {
		t.Errorf("unexpected city %q", reading.City)
	}

	for _, c := range []struct{ lat, lon float64 }{{91, 0}, {0, -181}, {math.NaN(), 0}} {
		_, err := client.FetchWeatherAt(context.Background(), c.lat, c.lon)
		expectValidation(t, err, types.ErrCodeValidationCoordinates)
	}
	if calls.Load() != 1 {
		t.Errorf("invalid coordinates must not reach the server; got %d calls", calls.Load())
	}
}

// -- Prediction --

const predictOK = `{
	"ok": true,
	"results": {
		"RandomForestClassifier": {"prediction": "Urea", "probabilities": {"Urea": 0.7, "DAP": 0.3}},
		"SVC": {"prediction": "DAP"}
	},
	"soil_health": {"health_score": 72, "overall_status": "Good", "insights": ["ok"], "recommendations": ["add compost"]}
}`

func TestPredict_Success(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/predict" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		w.Write([]byte(predictOK))
	}))
	defer server.Close()

	client := NewPredictionClient(newTestClient(t, server.URL), core.NewValidator(testLogger()), testLogger())
	out, err := client.Predict(context.Background(), validParams(), "hi-IN")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantKeys := []string{"Temparature", "Humidity", "Moisture", "Soil_Type", "Crop_Type", "Nitrogen", "Potassium", "Phosphorous", "language"}
	for _, k := range wantKeys {
		if _, ok := received[k]; !ok {
			t.Errorf("request body missing %q: %v", k, received)
		}
	}
	if len(received) != len(wantKeys) {
		t.Errorf("unexpected request keys: %v", received)
	}
	if received["language"] != "hi" {
		t.Errorf("language not normalized: %v", received["language"])
	}
	if received["Soil_Type"] != "Loamy" || received["Temparature"] != 28.0 {
		t.Errorf("unexpected feature values: %v", received)
	}

	if got := out.Predictions.Models(); len(got) != 2 || got[0] != "RandomForestClassifier" || got[1] != "SVC" {
		t.Errorf("unexpected model order %v", got)
	}
	if out.SoilHealth.HealthScore != 72 || out.SoilHealth.OverallStatus != types.StatusGood {
		t.Errorf("unexpected soil health %+v", out.SoilHealth)
	}
}

func TestPredict_UnsupportedLanguageFallsBack(t *testing.T) {
	var lang string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Language string `json:"language"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		lang = body.Language
		w.Write([]byte(predictOK))
	}))
	defer server.Close()

	client := NewPredictionClient(newTestClient(t, server.URL), nil, nil)
	if _, err := client.Predict(context.Background(), validParams(), "fr"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lang != "en" {
		t.Errorf("expected fallback to en, got %q", lang)
	}
}

func TestPredict_ValidationBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := NewPredictionClient(newTestClient(t, server.URL), nil, nil)

	cases := []struct {
		name   string
		mutate func(*types.ParameterSet)
		code   types.ErrorCode
	}{
		{"soil outside set", func(p *types.ParameterSet) { p.SoilType = "Alluvial" }, types.ErrCodeValidationOutOfSet},
		{"crop outside set", func(p *types.ParameterSet) { p.CropType = "Banana" }, types.ErrCodeValidationOutOfSet},
		{"empty soil", func(p *types.ParameterSet) { p.SoilType = "" }, types.ErrCodeValidationMissingField},
		{"infinite moisture", func(p *types.ParameterSet) { p.Moisture = math.Inf(-1) }, types.ErrCodeValidationNotNumeric},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams()
			tc.mutate(&p)
			_, err := client.Predict(context.Background(), p, types.LanguageEnglish)
			expectValidation(t, err, tc.code)
		})
	}
	if calls.Load() != 0 {
		t.Errorf("validation failures must not reach the server; got %d calls", calls.Load())
	}
}

func TestPredict_NeverPartial(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing soil health", `{"ok":true,"results":{"SVC":{"prediction":"DAP"}}}`},
		{"missing results", `{"ok":true,"soil_health":{"health_score":50,"overall_status":"Fair","insights":[],"recommendations":[]}}`},
		{"empty results", `{"ok":true,"results":{},"soil_health":{"health_score":50,"overall_status":"Fair","insights":[],"recommendations":[]}}`},
		{"probabilities do not sum to one", `{"ok":true,"results":{"RF":{"prediction":"Urea","probabilities":{"Urea":0.5,"DAP":0.2}}},"soil_health":{"health_score":50,"overall_status":"Fair","insights":[],"recommendations":[]}}`},
		{"label is not arg-max", `{"ok":true,"results":{"RF":{"prediction":"DAP","probabilities":{"Urea":0.8,"DAP":0.2}}},"soil_health":{"health_score":50,"overall_status":"Fair","insights":[],"recommendations":[]}}`},
		{"score out of range", `{"ok":true,"results":{"SVC":{"prediction":"DAP"}},"soil_health":{"health_score":140,"overall_status":"Excellent","insights":[],"recommendations":[]}}`},
		{"results not an object", `{"ok":true,"results":["SVC"],"soil_health":{"health_score":50,"overall_status":"Fair","insights":[],"recommendations":[]}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewPredictionClient(newTestClient(t, server.URL), nil, nil)
			out, err := client.Predict(context.Background(), validParams(), types.LanguageEnglish)
			if out != nil {
				t.Errorf("expected no outcome, got %+v", out)
			}
			expectKind(t, err, types.RemoteMalformed)
		})
	}
}

func TestPredict_ServerRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"error":"Missing field: Nitrogen"}`))
	}))
	defer server.Close()

	client := NewPredictionClient(newTestClient(t, server.URL), nil, nil)
	_, err := client.Predict(context.Background(), validParams(), types.LanguageEnglish)
	expectKind(t, err, types.RemoteServerRejected)
}

// -- Report --

func reportRequest() ReportRequest {
	params := validParams()
	return ReportRequest{
		InputData:   &params,
		Predictions: types.NewPredictionSet(types.ModelResult{Model: "SVC", PredictedLabel: "DAP"}),
		SoilHealth:  &types.SoilHealth{HealthScore: 80, OverallStatus: types.StatusExcellent},
		Weather:     &types.WeatherReading{City: "Pune", Temperature: types.Float(28)},
		Language:    types.LanguageMarathi,
	}
}

func TestExport_Success(t *testing.T) {
	var body map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/download-report/excel" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Disposition", `attachment; filename="server_name.xlsx"`)
		w.Write([]byte("PK\x03\x04xlsx"))
	}))
	defer server.Close()

	client := NewReportClient(newTestClient(t, server.URL), testLogger())
	doc, err := client.Export(context.Background(), reportRequest(), types.ReportExcel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, k := range []string{"input_data", "predictions", "soil_health", "weather_data", "language"} {
		if _, ok := body[k]; !ok {
			t.Errorf("report body missing %q", k)
		}
	}
	if string(body["predictions"]) != `{"SVC":{"prediction":"DAP"}}` {
		t.Errorf("unexpected predictions payload %s", body["predictions"])
	}
	if string(body["language"]) != `"mr"` {
		t.Errorf("unexpected language %s", body["language"])
	}

	if doc.Filename != "krushak_report.xlsx" || doc.Format != types.ReportExcel {
		t.Errorf("unexpected document metadata %+v", doc)
	}
	if doc.ContentType != types.ReportExcel.ContentType() {
		t.Errorf("missing content type should default from format, got %q", doc.ContentType)
	}
	if string(doc.Data) != "PK\x03\x04xlsx" {
		t.Errorf("unexpected data %q", doc.Data)
	}
}

func TestExport_LocalFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := NewReportClient(newTestClient(t, server.URL), nil)

	empty := reportRequest()
	empty.Predictions = types.NewPredictionSet()
	_, err := client.Export(context.Background(), empty, types.ReportPDF)
	expectValidation(t, err, types.ErrCodeValidationNoPredictions)

	missing := reportRequest()
	missing.Predictions = nil
	_, err = client.Export(context.Background(), missing, types.ReportPDF)
	expectValidation(t, err, types.ErrCodeValidationNoPredictions)

	_, err = client.Export(context.Background(), reportRequest(), "docx")
	expectValidation(t, err, types.ErrCodeValidationReportFormat)

	if calls.Load() != 0 {
		t.Errorf("local failures must not reach the server; got %d calls", calls.Load())
	}
}

func TestExport_ServerRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"ok":false,"error":"PDF generation failed"}`))
	}))
	defer server.Close()

	client := NewReportClient(newTestClient(t, server.URL), nil)
	doc, err := client.Export(context.Background(), reportRequest(), types.ReportPDF)
	if doc != nil {
		t.Errorf("expected nil document, got %+v", doc)
	}
	expectKind(t, err, types.RemoteServerRejected)

	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Message != "PDF generation failed" {
		t.Errorf("expected server message, got %q", appErr.Message)
	}
}
