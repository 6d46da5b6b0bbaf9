package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"energywatch/internal/analytics"
	"energywatch/internal/forecaster"
	"energywatch/internal/insights"
	"energywatch/internal/models"
)

func day(offset int) time.Time {
	return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

type stubBackend struct {
	readings     []models.DailyReading
	readingsErr  error
	observations map[string]models.WeatherObservation
	authToken    *models.AuthToken
	authErr      error
	valid        bool
}

func (s *stubBackend) FetchDailyReadings(_ context.Context, _, _ time.Time) ([]models.DailyReading, error) {
	return s.readings, s.readingsErr
}

func (s *stubBackend) FetchWeather(_ context.Context, _, _ time.Time) (map[string]models.WeatherObservation, error) {
	return s.observations, nil
}

func (s *stubBackend) Authenticate(_ context.Context) (*models.AuthToken, error) {
	return s.authToken, s.authErr
}

func (s *stubBackend) Validate(_ context.Context) bool {
	return s.valid
}

func newTestServer(backend *stubBackend) *Server {
	analyticsSvc := analytics.NewService(backend, nil, "sensor-1")
	forecastSvc := forecaster.NewService(backend)
	insightsSvc := insights.NewService(backend, backend, analyticsSvc, forecastSvc)
	return New(0, backend, backend, backend, analyticsSvc, forecastSvc, insightsSvc)
}

func doRequest(t *testing.T, srv *Server, method, path string) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	var envelope models.APIResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("bad envelope: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, envelope
}

func readings(values ...float64) []models.DailyReading {
	out := make([]models.DailyReading, len(values))
	for i, v := range values {
		out[i] = models.DailyReading{Date: day(i), ConsumptionKwh: v}
	}
	return out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&stubBackend{})
	rec, _ := doRequest(t, srv, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestDateRangeValidation(t *testing.T) {
	srv := newTestServer(&stubBackend{readings: readings(1, 2, 3)})

	tests := []struct {
		name string
		path string
	}{
		{name: "missing both", path: "/api/energy/data"},
		{name: "missing toDate", path: "/api/energy/data?fromDate=2026-03-01"},
		{name: "malformed fromDate", path: "/api/energy/data?fromDate=01-03-2026&toDate=2026-03-05"},
		{name: "malformed toDate", path: "/api/energy/data?fromDate=2026-03-01&toDate=tomorrow"},
		{name: "inverted range", path: "/api/energy/data?fromDate=2026-03-05&toDate=2026-03-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, envelope := doRequest(t, srv, http.MethodGet, tt.path)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if envelope.Success {
				t.Error("success = true on validation failure")
			}
			if len(envelope.Errors) == 0 {
				t.Error("missing error details")
			}
		})
	}
}

func TestEnergyEndpoints(t *testing.T) {
	srv := newTestServer(&stubBackend{readings: readings(5, 10, 15)})

	t.Run("data", func(t *testing.T) {
		rec, envelope := doRequest(t, srv, http.MethodGet, "/api/energy/data?fromDate=2026-03-01&toDate=2026-03-03")
		if rec.Code != http.StatusOK || !envelope.Success {
			t.Fatalf("status = %d, success = %v", rec.Code, envelope.Success)
		}
	})

	t.Run("total", func(t *testing.T) {
		_, envelope := doRequest(t, srv, http.MethodGet, "/api/energy/total?fromDate=2026-03-01&toDate=2026-03-03")
		data := envelope.Data.(map[string]interface{})
		if data["totalKwh"].(float64) != 30 {
			t.Errorf("totalKwh = %v, want 30", data["totalKwh"])
		}
		if data["days"].(float64) != 3 {
			t.Errorf("days = %v, want 3", data["days"])
		}
	})

	t.Run("average", func(t *testing.T) {
		_, envelope := doRequest(t, srv, http.MethodGet, "/api/energy/average?fromDate=2026-03-01&toDate=2026-03-03")
		data := envelope.Data.(map[string]interface{})
		if data["averageDailyKwh"].(float64) != 10 {
			t.Errorf("averageDailyKwh = %v, want 10", data["averageDailyKwh"])
		}
	})

	t.Run("average with no data", func(t *testing.T) {
		empty := newTestServer(&stubBackend{})
		_, envelope := doRequest(t, empty, http.MethodGet, "/api/energy/average?fromDate=2026-03-01&toDate=2026-03-03")
		data := envelope.Data.(map[string]interface{})
		if data["averageDailyKwh"].(float64) != 0 {
			t.Errorf("averageDailyKwh = %v, want 0", data["averageDailyKwh"])
		}
	})
}

func TestAnomaliesEndpointFiltersFlaggedDays(t *testing.T) {
	srv := newTestServer(&stubBackend{readings: readings(10, 10, 10, 10, 10, 10, 10, 30)})

	rec, envelope := doRequest(t, srv, http.MethodGet, "/api/analytics/anomalies?fromDate=2026-03-01&toDate=2026-03-08")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	raw, _ := json.Marshal(envelope.Data)
	var anomalies []models.AnalyticsResult
	if err := json.Unmarshal(raw, &anomalies); err != nil {
		t.Fatal(err)
	}
	if len(anomalies) != 1 {
		t.Fatalf("got %d anomalies, want 1", len(anomalies))
	}
	if !anomalies[0].IsAnomaly {
		t.Error("returned day not flagged")
	}
}

func TestForecastValidation(t *testing.T) {
	srv := newTestServer(&stubBackend{readings: readings(1, 2, 3)})

	for _, path := range []string{
		"/api/forecast?days=0",
		"/api/forecast?days=31",
		"/api/forecast?days=abc",
		"/api/forecast?fromDate=soon",
	} {
		rec, _ := doRequest(t, srv, http.MethodGet, path)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}

	rec, envelope := doRequest(t, srv, http.MethodGet, "/api/forecast")
	if rec.Code != http.StatusOK || !envelope.Success {
		t.Errorf("default forecast: status = %d, success = %v", rec.Code, envelope.Success)
	}
}

func TestForecastPredictions(t *testing.T) {
	srv := newTestServer(&stubBackend{readings: readings(10, 11, 12, 10, 11, 12, 10)})

	_, envelope := doRequest(t, srv, http.MethodGet, "/api/forecast/predictions?fromDate=2026-04-01&days=5")
	raw, _ := json.Marshal(envelope.Data)
	var forecasts []models.ForecastResult
	if err := json.Unmarshal(raw, &forecasts); err != nil {
		t.Fatal(err)
	}
	if len(forecasts) != 5 {
		t.Errorf("got %d forecasts, want 5", len(forecasts))
	}
}

func TestInsightsFilters(t *testing.T) {
	srv := newTestServer(&stubBackend{readings: readings(10, 10, 10, 10, 10, 10, 10, 10)})
	rangeQuery := "?fromDate=2026-03-01&toDate=2026-03-08"

	t.Run("by type is case-insensitive", func(t *testing.T) {
		_, envelope := doRequest(t, srv, http.MethodGet, "/api/insights/type/totalconsumption"+rangeQuery)
		raw, _ := json.Marshal(envelope.Data)
		var filtered []models.InsightResult
		if err := json.Unmarshal(raw, &filtered); err != nil {
			t.Fatal(err)
		}
		if len(filtered) != 1 || filtered[0].Type != models.InsightTotalConsumption {
			t.Errorf("filtered = %+v", filtered)
		}
	})

	t.Run("by severity", func(t *testing.T) {
		_, envelope := doRequest(t, srv, http.MethodGet, "/api/insights/severity/info"+rangeQuery)
		raw, _ := json.Marshal(envelope.Data)
		var filtered []models.InsightResult
		if err := json.Unmarshal(raw, &filtered); err != nil {
			t.Fatal(err)
		}
		for _, i := range filtered {
			if i.Severity != models.SeverityInfo {
				t.Errorf("severity = %s, want info", i.Severity)
			}
		}
	})

	t.Run("unknown severity rejected", func(t *testing.T) {
		rec, _ := doRequest(t, srv, http.MethodGet, "/api/insights/severity/urgent"+rangeQuery)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestWeatherByDate(t *testing.T) {
	backend := &stubBackend{observations: map[string]models.WeatherObservation{
		"2026-03-01": {Date: day(0), Temperature: 21, Condition: "Clear"},
	}}
	srv := newTestServer(backend)

	t.Run("found", func(t *testing.T) {
		rec, envelope := doRequest(t, srv, http.MethodGet, "/api/weather/date/2026-03-01")
		if rec.Code != http.StatusOK || !envelope.Success {
			t.Errorf("status = %d, success = %v", rec.Code, envelope.Success)
		}
	})

	t.Run("missing day", func(t *testing.T) {
		rec, _ := doRequest(t, srv, http.MethodGet, "/api/weather/date/2026-03-09")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("malformed date", func(t *testing.T) {
		rec, _ := doRequest(t, srv, http.MethodGet, "/api/weather/date/yesterday")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestUpstreamFailureMapsTo502(t *testing.T) {
	backend := &stubBackend{readingsErr: &models.UpstreamError{
		Service:    "meter",
		StatusCode: http.StatusServiceUnavailable,
		Message:    "down",
	}}
	srv := newTestServer(backend)

	rec, envelope := doRequest(t, srv, http.MethodGet, "/api/energy/data?fromDate=2026-03-01&toDate=2026-03-03")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if envelope.Success {
		t.Error("success = true on upstream failure")
	}
}

func TestAuthEndpoints(t *testing.T) {
	backend := &stubBackend{
		authToken: &models.AuthToken{TokenType: "Bearer", ExpiresAt: time.Now().Add(time.Hour)},
		valid:     true,
	}
	srv := newTestServer(backend)

	t.Run("token", func(t *testing.T) {
		rec, envelope := doRequest(t, srv, http.MethodPost, "/api/auth/token")
		if rec.Code != http.StatusOK || !envelope.Success {
			t.Fatalf("status = %d, success = %v", rec.Code, envelope.Success)
		}
		data := envelope.Data.(map[string]interface{})
		if _, exposed := data["accessToken"]; exposed {
			t.Error("access token leaked in response")
		}
		if data["tokenType"] != "Bearer" {
			t.Errorf("tokenType = %v", data["tokenType"])
		}
	})

	t.Run("validate", func(t *testing.T) {
		_, envelope := doRequest(t, srv, http.MethodGet, "/api/auth/validate")
		data := envelope.Data.(map[string]interface{})
		if data["valid"] != true {
			t.Errorf("valid = %v, want true", data["valid"])
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&stubBackend{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
