package analytics

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"energywatch/internal/models"
	"energywatch/internal/store"
)

const (
	// DefaultWindowSize is the trailing moving-average window in days.
	DefaultWindowSize = 7
	// DefaultThreshold is the anomaly threshold in standard deviations.
	DefaultThreshold = 1.5
)

// EnergyFetcher supplies normalized daily readings for a date range.
type EnergyFetcher interface {
	FetchDailyReadings(ctx context.Context, from, to time.Time) ([]models.DailyReading, error)
}

// Service computes per-day analytics over fetched consumption data.
type Service struct {
	energy   EnergyFetcher
	archive  *store.Store // optional, flagged days are recorded best-effort
	sensorID string
}

// NewService creates the analytics service. archive may be nil.
func NewService(energy EnergyFetcher, archive *store.Store, sensorID string) *Service {
	return &Service{energy: energy, archive: archive, sensorID: sensorID}
}

// Analyze fetches readings for the range and returns the full analytics
// summary. Upstream failures are propagated unchanged; an empty range
// yields an all-zero summary.
func (s *Service) Analyze(ctx context.Context, from, to time.Time) (*models.AnalyticsSummary, error) {
	readings, err := s.energy.FetchDailyReadings(ctx, from, to)
	if err != nil {
		return nil, err
	}

	summary := Summarize(readings, from, to)
	log.Printf("Analysis complete: %d anomalies detected out of %d days",
		summary.NumberOfAnomalies, len(summary.DailyResults))

	if s.archive != nil && summary.NumberOfAnomalies > 0 {
		if err := s.archive.SaveAnomalies(ctx, s.sensorID, summary.DailyResults); err != nil {
			log.Printf("Failed to archive anomalies: %v", err)
		}
	}
	return summary, nil
}

// Summarize runs the moving-average and anomaly stages over an already
// fetched series and aggregates totals from the raw readings.
func Summarize(readings []models.DailyReading, from, to time.Time) *models.AnalyticsSummary {
	summary := &models.AnalyticsSummary{
		FromDate:     from,
		ToDate:       to,
		DailyResults: []models.AnalyticsResult{},
	}

	if len(readings) == 0 {
		return summary
	}

	results := DetectAnomalies(readings, DefaultThreshold)

	total := 0.0
	for _, r := range readings {
		total += r.ConsumptionKwh
	}

	anomalies := 0
	for _, r := range results {
		if r.IsAnomaly {
			anomalies++
		}
	}

	summary.TotalEnergyUsed = total
	summary.AverageDailyUse = total / float64(len(readings))
	summary.NumberOfAnomalies = anomalies
	summary.DailyResults = results
	return summary
}

// ComputeMovingAverage produces one result per reading with the trailing
// windowed mean. The first windowSize-1 positions have no average.
func ComputeMovingAverage(readings []models.DailyReading, windowSize int) []models.AnalyticsResult {
	sorted := sortedByDate(readings)
	results := make([]models.AnalyticsResult, 0, len(sorted))

	for i, current := range sorted {
		result := models.AnalyticsResult{
			Date:           current.Date,
			KwhConsumption: current.ConsumptionKwh,
		}

		if i >= windowSize-1 {
			sum := 0.0
			for j := i - windowSize + 1; j <= i; j++ {
				sum += sorted[j].ConsumptionKwh
			}
			avg := sum / float64(windowSize)
			result.MovingAverage = &avg
		}

		results = append(results, result)
	}

	return results
}

// DetectAnomalies flags days whose deviation from the moving average
// exceeds threshold standard deviations. The deviation is local to the
// window but the standard deviation is computed over the whole input
// range; that asymmetry is deliberate.
func DetectAnomalies(readings []models.DailyReading, threshold float64) []models.AnalyticsResult {
	results := ComputeMovingAverage(readings, DefaultWindowSize)

	values := make([]float64, 0, len(readings))
	for _, r := range readings {
		values = append(values, r.ConsumptionKwh)
	}

	mean := calculateMean(values)
	stdDev := calculateStdDev(values, mean)
	log.Printf("Mean consumption: %.2f kWh, Std Dev: %.2f kWh", mean, stdDev)

	for i := range results {
		result := &results[i]
		if result.MovingAverage == nil {
			continue
		}

		deviation := result.KwhConsumption - *result.MovingAverage
		result.DeviationFromAverage = &deviation

		if math.Abs(deviation) > threshold*stdDev {
			result.IsAnomaly = true
			if deviation > 0 {
				result.AnomalyReason = fmt.Sprintf("High consumption: %.2f kWh above 7-day average (%.2f kWh)",
					deviation, *result.MovingAverage)
			} else {
				result.AnomalyReason = fmt.Sprintf("Low consumption: %.2f kWh below 7-day average (%.2f kWh)",
					math.Abs(deviation), *result.MovingAverage)
			}
		}
	}

	return results
}

func sortedByDate(readings []models.DailyReading) []models.DailyReading {
	sorted := make([]models.DailyReading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}

// calculateMean calculates the mean of a slice of float64 values
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// calculateStdDev calculates the population standard deviation
func calculateStdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}

	variance := sumSquaredDiff / float64(len(values))
	return math.Sqrt(variance)
}
