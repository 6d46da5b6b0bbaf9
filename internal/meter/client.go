package meter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"energywatch/internal/config"
	"energywatch/internal/metrics"
	"energywatch/internal/models"
	"energywatch/internal/store"
)

// TokenSource supplies a valid bearer token for the metering platform.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// dataRequest is the metering platform's range-query payload.
type dataRequest struct {
	UseCsv   bool     `json:"useCsv"`
	DeviceID string   `json:"deviceId"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Sensors  []string `json:"sensors"`
}

// Client fetches daily consumption readings from the metering platform.
type Client struct {
	httpClient *http.Client
	cfg        config.MeterConfig
	tokens     TokenSource
	archive    *store.Store // optional, written to best-effort
}

// NewClient creates a metering platform client. archive may be nil.
func NewClient(cfg config.MeterConfig, tokens TokenSource, archive *store.Store) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cfg:        cfg,
		tokens:     tokens,
		archive:    archive,
	}
}

// FetchDailyReadings fetches raw per-day aggregates for the date range and
// normalizes them into a chronologically sorted series. An empty range is
// valid and yields an empty series.
func (c *Client) FetchDailyReadings(ctx context.Context, from, to time.Time) ([]models.DailyReading, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	payload := dataRequest{
		UseCsv:   false,
		DeviceID: c.cfg.DeviceID,
		From:     from.Format(models.DateLayout),
		To:       to.Format(models.DateLayout),
		Sensors:  []string{c.cfg.SensorID},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build data request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordUpstreamRequest("meter", time.Since(start), err)
	if err != nil {
		if archived := c.fromArchive(ctx, from, to); archived != nil {
			return archived, nil
		}
		return nil, &models.UpstreamError{Service: "meter", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		if archived := c.fromArchive(ctx, from, to); archived != nil {
			return archived, nil
		}
		return nil, &models.UpstreamError{
			Service:    "meter",
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	var raw []models.RawMeterReading
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &models.UpstreamError{Service: "meter", Message: "failed to decode response", Err: err}
	}

	readings := NormalizeReadings(raw)
	log.Printf("Fetched %d energy readings for %s..%s",
		len(readings), payload.From, payload.To)

	if c.archive != nil {
		if err := c.archive.SaveReadings(ctx, c.cfg.SensorID, readings); err != nil {
			log.Printf("Failed to archive readings: %v", err)
		}
	}

	return readings, nil
}

// fromArchive serves previously archived readings when the platform is
// unreachable. Returns nil when there is no archive or nothing stored.
func (c *Client) fromArchive(ctx context.Context, from, to time.Time) []models.DailyReading {
	if c.archive == nil {
		return nil
	}

	readings, err := c.archive.GetReadings(ctx, c.cfg.SensorID, from, to)
	if err != nil {
		log.Printf("Failed to read archived readings: %v", err)
		return nil
	}
	if len(readings) == 0 {
		return nil
	}

	log.Printf("Meter platform unreachable, serving %d archived readings", len(readings))
	return readings
}
