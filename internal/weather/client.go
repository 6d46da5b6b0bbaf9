package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"energywatch/internal/config"
	"energywatch/internal/metrics"
	"energywatch/internal/models"
)

// openWeatherResponse mirrors the 5-day/3-hour forecast payload.
type openWeatherResponse struct {
	List []openWeatherItem `json:"list"`
}

type openWeatherItem struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
}

// Client fetches per-day weather observations. Without an API key, or when
// the provider fails, it falls back to simulated observations; callers
// cannot tell the difference and are not meant to.
type Client struct {
	httpClient *http.Client
	cfg        config.WeatherConfig
	rdb        *redis.Client // optional range cache
	cacheTTL   time.Duration

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewClient creates a weather client. rng seeds the simulated fallback;
// rdb may be nil.
func NewClient(cfg config.WeatherConfig, rng *rand.Rand, rdb *redis.Client) *Client {
	ttl := time.Duration(cfg.CacheTTLMinutes) * time.Minute
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cfg:        cfg,
		rdb:        rdb,
		cacheTTL:   ttl,
		rng:        rng,
	}
}

// FetchWeather returns observations keyed by calendar day for the range
// [from, to]. An empty map is valid.
func (c *Client) FetchWeather(ctx context.Context, from, to time.Time) (map[string]models.WeatherObservation, error) {
	if cached := c.loadCached(ctx, from, to); cached != nil {
		return cached, nil
	}

	observations := c.fetch(ctx, from, to)
	c.storeCached(ctx, from, to, observations)
	return observations, nil
}

func (c *Client) fetch(ctx context.Context, from, to time.Time) map[string]models.WeatherObservation {
	if c.cfg.APIKey == "" {
		log.Printf("Weather API key not configured, returning simulated weather data")
		return c.simulate(from, to)
	}

	observations, err := c.fetchFromAPI(ctx, from, to)
	if err != nil {
		log.Printf("Failed to fetch weather data, using simulated data: %v", err)
		return c.simulate(from, to)
	}
	if len(observations) == 0 {
		return c.simulate(from, to)
	}
	return observations
}

func (c *Client) fetchFromAPI(ctx context.Context, from, to time.Time) (map[string]models.WeatherObservation, error) {
	url := fmt.Sprintf("%s?lat=%.4f&lon=%.4f&appid=%s&units=metric",
		c.cfg.APIURL, c.cfg.Latitude, c.cfg.Longitude, c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build weather request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordUpstreamRequest("weather", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API returned status %d", resp.StatusCode)
	}

	var payload openWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}

	return groupByDay(payload.List, from, to), nil
}

// groupByDay folds 3-hourly forecast entries into daily observations:
// mean temperature/feels-like/humidity, min/max extremes, first entry's
// condition. Days outside [from, to] are dropped.
func groupByDay(items []openWeatherItem, from, to time.Time) map[string]models.WeatherObservation {
	type bucket struct {
		obs   models.WeatherObservation
		sumT  float64
		sumF  float64
		sumH  float64
		count int
	}

	fromDay, toDay := dateOnly(from), dateOnly(to)
	buckets := make(map[string]*bucket)

	for _, item := range items {
		day := dateOnly(time.Unix(item.Dt, 0).UTC())
		if day.Before(fromDay) || day.After(toDay) {
			continue
		}

		key := models.DateKey(day)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{obs: models.WeatherObservation{
				Date:    day,
				TempMin: item.Main.TempMin,
				TempMax: item.Main.TempMax,
			}}
			if len(item.Weather) > 0 {
				b.obs.Condition = item.Weather[0].Main
				b.obs.Description = item.Weather[0].Description
			}
			buckets[key] = b
		}

		b.sumT += item.Main.Temp
		b.sumF += item.Main.FeelsLike
		b.sumH += float64(item.Main.Humidity)
		b.count++
		if item.Main.TempMin < b.obs.TempMin {
			b.obs.TempMin = item.Main.TempMin
		}
		if item.Main.TempMax > b.obs.TempMax {
			b.obs.TempMax = item.Main.TempMax
		}
	}

	observations := make(map[string]models.WeatherObservation, len(buckets))
	for key, b := range buckets {
		b.obs.Temperature = b.sumT / float64(b.count)
		b.obs.FeelsLike = b.sumF / float64(b.count)
		b.obs.Humidity = int(b.sumH / float64(b.count))
		observations[key] = b.obs
	}

	return observations
}

func (c *Client) simulate(from, to time.Time) map[string]models.WeatherObservation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Simulate(from, to, c.rng)
}

func cacheKey(from, to time.Time) string {
	return fmt.Sprintf("energywatch:weather:%s:%s", models.DateKey(from), models.DateKey(to))
}

func (c *Client) loadCached(ctx context.Context, from, to time.Time) map[string]models.WeatherObservation {
	if c.rdb == nil || c.cacheTTL <= 0 {
		return nil
	}

	data, err := c.rdb.Get(ctx, cacheKey(from, to)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Failed to read weather cache: %v", err)
		}
		return nil
	}

	var observations map[string]models.WeatherObservation
	if err := json.Unmarshal([]byte(data), &observations); err != nil {
		log.Printf("Failed to parse weather cache: %v", err)
		return nil
	}
	return observations
}

func (c *Client) storeCached(ctx context.Context, from, to time.Time, observations map[string]models.WeatherObservation) {
	if c.rdb == nil || c.cacheTTL <= 0 {
		return
	}

	data, err := json.Marshal(observations)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(from, to), data, c.cacheTTL).Err(); err != nil {
		log.Printf("Failed to write weather cache: %v", err)
	}
}
