package weather

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"energywatch/internal/config"
	"energywatch/internal/models"
)

func rangeDays(n int) (time.Time, time.Time) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, n-1)
}

func TestSimulateCoversRange(t *testing.T) {
	from, to := rangeDays(7)
	observations := Simulate(from, to, rand.New(rand.NewSource(1)))

	if len(observations) != 7 {
		t.Fatalf("expected 7 observations, got %d", len(observations))
	}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if _, ok := observations[models.DateKey(day)]; !ok {
			t.Errorf("missing observation for %s", models.DateKey(day))
		}
	}
}

func TestSimulateValueRanges(t *testing.T) {
	from, to := rangeDays(60)
	observations := Simulate(from, to, rand.New(rand.NewSource(7)))

	known := map[string]bool{}
	for _, c := range simConditions {
		known[c] = true
	}

	for key, obs := range observations {
		if obs.TempMin < baseTempMin-4 || obs.TempMin > baseTempMin+4 {
			t.Errorf("%s: temp min %.2f out of range", key, obs.TempMin)
		}
		if obs.TempMax < baseTempMax-4 || obs.TempMax > baseTempMax+4 {
			t.Errorf("%s: temp max %.2f out of range", key, obs.TempMax)
		}
		if obs.Temperature < obs.TempMin || obs.Temperature > obs.TempMax {
			t.Errorf("%s: temperature %.2f outside [%.2f, %.2f]", key, obs.Temperature, obs.TempMin, obs.TempMax)
		}
		if obs.FeelsLike < obs.Temperature {
			t.Errorf("%s: feels-like %.2f below temperature %.2f", key, obs.FeelsLike, obs.Temperature)
		}
		if obs.Humidity < 30 || obs.Humidity >= 70 {
			t.Errorf("%s: humidity %d out of range", key, obs.Humidity)
		}
		if !known[obs.Condition] {
			t.Errorf("%s: unknown condition %q", key, obs.Condition)
		}
	}
}

func TestSimulateDeterministicWithFixedSeed(t *testing.T) {
	from, to := rangeDays(10)

	first := Simulate(from, to, rand.New(rand.NewSource(42)))
	second := Simulate(from, to, rand.New(rand.NewSource(42)))

	for key, obs := range first {
		if second[key] != obs {
			t.Errorf("%s differs between identically seeded runs", key)
		}
	}
}

func TestWeightedChoiceHonorsWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		counts[weightedChoice(simConditions, simWeights, rng)]++
	}

	if counts["Clear"] < counts["Thunderstorm"] {
		t.Errorf("Clear (%d) should dominate Thunderstorm (%d)", counts["Clear"], counts["Thunderstorm"])
	}
	for _, c := range simConditions {
		if counts[c] == 0 {
			t.Errorf("condition %q never chosen over 10000 draws", c)
		}
	}
}

func owmPayload(day time.Time, temps []float64, condition string) openWeatherResponse {
	var payload openWeatherResponse
	for i, temp := range temps {
		var item openWeatherItem
		item.Dt = day.Add(time.Duration(i*3) * time.Hour).Unix()
		item.Main.Temp = temp
		item.Main.FeelsLike = temp + 1
		item.Main.TempMin = temp - 2
		item.Main.TempMax = temp + 2
		item.Main.Humidity = 50
		item.Weather = []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		}{{Main: condition, Description: "test"}}
		payload.List = append(payload.List, item)
	}
	return payload
}

func TestFetchWeatherFromAPI(t *testing.T) {
	from, to := rangeDays(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("appid") == "" {
			t.Error("missing appid query parameter")
		}
		if r.URL.Query().Get("units") != "metric" {
			t.Error("missing metric units")
		}
		json.NewEncoder(w).Encode(owmPayload(from, []float64{18, 22, 26}, "Clouds"))
	}))
	defer srv.Close()

	client := NewClient(config.WeatherConfig{
		APIKey:          "key",
		APIURL:          srv.URL,
		CacheTTLMinutes: 0,
	}, rand.New(rand.NewSource(1)), nil)

	observations, err := client.FetchWeather(context.Background(), from, to)
	if err != nil {
		t.Fatal(err)
	}

	obs, ok := observations[models.DateKey(from)]
	if !ok {
		t.Fatalf("missing observation for %s", models.DateKey(from))
	}
	if obs.Temperature != 22 { // mean of 18, 22, 26
		t.Errorf("temperature = %.2f, want 22", obs.Temperature)
	}
	if obs.TempMin != 16 || obs.TempMax != 28 {
		t.Errorf("extremes = [%.2f, %.2f], want [16, 28]", obs.TempMin, obs.TempMax)
	}
	if obs.Condition != "Clouds" {
		t.Errorf("condition = %q, want Clouds", obs.Condition)
	}
}

func TestFetchWeatherFallsBackOnAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(config.WeatherConfig{
		APIKey: "key",
		APIURL: srv.URL,
	}, rand.New(rand.NewSource(1)), nil)

	from, to := rangeDays(3)
	observations, err := client.FetchWeather(context.Background(), from, to)
	if err != nil {
		t.Fatal(err)
	}
	if len(observations) != 3 {
		t.Errorf("expected 3 simulated observations, got %d", len(observations))
	}
}

func TestFetchWeatherSimulatesWithoutAPIKey(t *testing.T) {
	client := NewClient(config.WeatherConfig{}, rand.New(rand.NewSource(1)), nil)

	from, to := rangeDays(5)
	observations, err := client.FetchWeather(context.Background(), from, to)
	if err != nil {
		t.Fatal(err)
	}
	if len(observations) != 5 {
		t.Errorf("expected 5 simulated observations, got %d", len(observations))
	}
}

func TestGroupByDayFiltersRange(t *testing.T) {
	from, to := rangeDays(1)
	outside := from.AddDate(0, 0, 5)

	payload := owmPayload(from, []float64{20}, "Clear")
	payload.List = append(payload.List, owmPayload(outside, []float64{25}, "Rain").List...)

	observations := groupByDay(payload.List, from, to)
	if len(observations) != 1 {
		t.Fatalf("expected 1 day, got %d", len(observations))
	}
	if _, ok := observations[models.DateKey(outside)]; ok {
		t.Error("out-of-range day not filtered")
	}
}
