package forecaster

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"energywatch/internal/models"
)

const (
	// historyDays is how far back the forecast looks for its history.
	historyDays = 30
	// recentWindow is the tail of the history used for the projection.
	recentWindow = 14

	forecastMethod = "Linear Trend (60%) + Moving Average (40%)"
)

// EnergyFetcher supplies normalized daily readings for a date range.
type EnergyFetcher interface {
	FetchDailyReadings(ctx context.Context, from, to time.Time) ([]models.DailyReading, error)
}

// Service projects future consumption from recent history.
type Service struct {
	energy EnergyFetcher
}

func NewService(energy EnergyFetcher) *Service {
	return &Service{energy: energy}
}

// Forecast fetches the 30 days preceding from and projects days future
// values. Empty history yields an empty forecast with an unknown trend.
func (s *Service) Forecast(ctx context.Context, from time.Time, days int) (*models.ForecastSummary, error) {
	historicalStart := from.AddDate(0, 0, -historyDays)
	historical, err := s.energy.FetchDailyReadings(ctx, historicalStart, from.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}

	if len(historical) == 0 {
		log.Printf("No historical data available for forecasting")
		return &models.ForecastSummary{
			Forecasts:      []models.ForecastResult{},
			TrendDirection: models.TrendUnknown,
		}, nil
	}

	direction, strength := Trend(historical)

	avg := 0.0
	for _, r := range historical {
		avg += r.ConsumptionKwh
	}
	avg /= float64(len(historical))

	summary := &models.ForecastSummary{
		Forecasts:                    Project(historical, days),
		AverageHistoricalConsumption: avg,
		TrendDirection:               direction,
		TrendStrength:                strength,
	}

	log.Printf("Forecast generated: trend %s with strength %.2f", direction, strength)
	return summary, nil
}

// Project generates daysToForecast entries from the tail of the history:
// a least-squares trend over the last 14 readings blended 60/40 with their
// mean, bounded below at zero, with a +-2 sigma confidence band.
func Project(historical []models.DailyReading, daysToForecast int) []models.ForecastResult {
	forecasts := []models.ForecastResult{}
	sorted := sortedByDate(historical)
	if len(sorted) == 0 {
		return forecasts
	}

	recent := sorted
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}

	movingAvg := 0.0
	values := make([]float64, 0, len(recent))
	for _, r := range recent {
		movingAvg += r.ConsumptionKwh
		values = append(values, r.ConsumptionKwh)
	}
	movingAvg /= float64(len(recent))

	slope, intercept := LinearRegression(recent)
	mean := movingAvg
	stdDev := populationStdDev(values, mean)

	lastDate := sorted[len(sorted)-1].Date
	confidenceMargin := 2 * stdDev

	for i := 1; i <= daysToForecast; i++ {
		x := float64(len(recent) + i)
		trendValue := slope*x + intercept
		predicted := math.Max(0, trendValue*0.6+movingAvg*0.4)

		forecasts = append(forecasts, models.ForecastResult{
			Date:            lastDate.AddDate(0, 0, i),
			PredictedKwh:    predicted,
			ConfidenceLower: math.Max(0, predicted-confidenceMargin),
			ConfidenceUpper: predicted + confidenceMargin,
			Method:          forecastMethod,
		})
	}

	return forecasts
}

// Trend classifies the slope over the entire supplied history. A slope
// below 1% of the average counts as stable; fewer than 2 points is
// unknown.
func Trend(data []models.DailyReading) (models.TrendDirection, float64) {
	if len(data) < 2 {
		return models.TrendUnknown, 0
	}

	sorted := sortedByDate(data)
	slope, _ := LinearRegression(sorted)

	avg := 0.0
	for _, r := range sorted {
		avg += r.ConsumptionKwh
	}
	avg /= float64(len(sorted))

	if avg == 0 {
		// All-zero history: no meaningful trend to report.
		return models.TrendStable, 0
	}

	strength := math.Abs(slope) / avg * 100

	switch {
	case math.Abs(slope) < avg*0.01:
		return models.TrendStable, strength
	case slope > 0:
		return models.TrendIncreasing, strength
	default:
		return models.TrendDecreasing, strength
	}
}

// LinearRegression fits consumption against the integer index 0..n-1 by
// ordinary least squares. Calendar gaps are ignored; spacing is assumed
// equal.
func LinearRegression(data []models.DailyReading) (slope, intercept float64) {
	n := len(data)
	if n < 2 {
		if n == 1 {
			return 0, data[0].ConsumptionKwh
		}
		return 0, 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, r := range data {
		x := float64(i)
		y := r.ConsumptionKwh
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	fn := float64(n)
	slope = (fn*sumXY - sumX*sumY) / (fn*sumXX - sumX*sumX)
	intercept = (sumY - slope*sumX) / fn
	return slope, intercept
}

func sortedByDate(readings []models.DailyReading) []models.DailyReading {
	sorted := make([]models.DailyReading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}

func populationStdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	return math.Sqrt(sumSquaredDiff / float64(len(values)))
}
