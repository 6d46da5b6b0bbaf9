package models

import "time"

// DateLayout is the calendar-day format used across the API and for
// weather map keys.
const DateLayout = "2006-01-02"

// DateKey normalizes a timestamp to its calendar-day key.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// RawMeterReading is one per-day aggregate as returned by the metering
// platform. The meter reports cumulative Wh counters, so daily consumption
// is max-min scaled to kWh.
type RawMeterReading struct {
	SensorID string  `json:"sensorId"`
	Year     int     `json:"year"`
	Month    int     `json:"month"`
	Day      int     `json:"day"`
	Count    int     `json:"count"`
	Sum      float64 `json:"sum"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// Date returns the calendar day of the reading.
func (r RawMeterReading) Date() time.Time {
	return time.Date(r.Year, time.Month(r.Month), r.Day, 0, 0, 0, 0, time.UTC)
}

// ConsumptionKwh derives the day's net consumption in kWh.
func (r RawMeterReading) ConsumptionKwh() float64 {
	return (r.Max - r.Min) / 1000
}

// DailyReading is one day's normalized energy consumption.
type DailyReading struct {
	Date           time.Time `json:"date"`
	ConsumptionKwh float64   `json:"kwhConsumption"`
}

// AnalyticsResult is the per-day analytics record. MovingAverage is nil for
// the first windowSize-1 days of a series; such days are never flagged.
type AnalyticsResult struct {
	Date                 time.Time `json:"date"`
	KwhConsumption       float64   `json:"kwhConsumption"`
	MovingAverage        *float64  `json:"movingAverage7Day"`
	IsAnomaly            bool      `json:"isAnomaly"`
	DeviationFromAverage *float64  `json:"deviationFromAverage,omitempty"`
	AnomalyReason        string    `json:"anomalyReason,omitempty"`
}

// AnalyticsSummary aggregates a range of daily results.
type AnalyticsSummary struct {
	FromDate          time.Time         `json:"fromDate"`
	ToDate            time.Time         `json:"toDate"`
	TotalEnergyUsed   float64           `json:"totalEnergyUsed"`
	AverageDailyUse   float64           `json:"averageDailyUse"`
	NumberOfAnomalies int               `json:"numberOfAnomalies"`
	DailyResults      []AnalyticsResult `json:"dailyResults"`
}

// TrendDirection classifies the consumption trend over a history window.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "Increasing"
	TrendDecreasing TrendDirection = "Decreasing"
	TrendStable     TrendDirection = "Stable"
	TrendUnknown    TrendDirection = "Unknown"
)

// ForecastResult is a single projected day.
type ForecastResult struct {
	Date            time.Time `json:"date"`
	PredictedKwh    float64   `json:"predictedKwh"`
	ConfidenceLower float64   `json:"confidenceLower"`
	ConfidenceUpper float64   `json:"confidenceUpper"`
	Method          string    `json:"method"`
}

// ForecastSummary bundles projections with the trend over the full history.
type ForecastSummary struct {
	Forecasts                    []ForecastResult `json:"forecasts"`
	AverageHistoricalConsumption float64          `json:"averageHistoricalConsumption"`
	TrendDirection               TrendDirection   `json:"trendDirection"`
	TrendStrength                float64          `json:"trendStrength"`
}

// WeatherObservation is one day's weather, real or simulated.
type WeatherObservation struct {
	Date        time.Time `json:"date"`
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feelsLike"`
	TempMin     float64   `json:"tempMin"`
	TempMax     float64   `json:"tempMax"`
	Humidity    int       `json:"humidity"`
	Condition   string    `json:"main"`
	Description string    `json:"description"`
}

// InsightSeverity is the closed severity set; the wire form stays lowercase.
type InsightSeverity string

const (
	SeverityInfo     InsightSeverity = "info"
	SeverityWarning  InsightSeverity = "warning"
	SeverityCritical InsightSeverity = "critical"
)

// InsightType tags each insight with the generator that produced it.
type InsightType string

const (
	InsightNoData             InsightType = "NoData"
	InsightTotalConsumption   InsightType = "TotalConsumption"
	InsightAverageConsumption InsightType = "AverageConsumption"
	InsightPeakConsumption    InsightType = "PeakConsumption"
	InsightLowestConsumption  InsightType = "LowestConsumption"
	InsightNoAnomalies        InsightType = "NoAnomalies"
	InsightAnomalyDetected    InsightType = "AnomalyDetected"
	InsightSignificantAnomaly InsightType = "SignificantAnomaly"
	InsightWeatherImpact      InsightType = "WeatherImpact"
	InsightWeatherPattern     InsightType = "WeatherPattern"
	InsightConsumptionTrend   InsightType = "ConsumptionTrend"
	InsightWeeklyComparison   InsightType = "WeeklyComparison"
	InsightForecastPrediction InsightType = "ForecastPrediction"
)

// InsightResult is a single derived observation.
type InsightResult struct {
	Type        InsightType          `json:"type"`
	Message     string               `json:"message"`
	Severity    InsightSeverity      `json:"severity"`
	RelatedDate *time.Time           `json:"relatedDate,omitempty"`
	Metadata    map[string]MetaValue `json:"metadata,omitempty"`
}

// InsightsSummary is the full insight report for a range.
type InsightsSummary struct {
	Insights          []InsightResult `json:"insights"`
	OverallAssessment string          `json:"overallAssessment"`
	GeneratedAt       time.Time       `json:"generatedAt"`
}

// AuthToken is a bearer token for the metering platform. ExpiresAt is
// derived from ExpiresIn at acquisition time.
type AuthToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// APIResponse is the envelope returned by every endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Errors  []string    `json:"errors,omitempty"`
}
