package insights

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"energywatch/internal/analytics"
	"energywatch/internal/forecaster"
	"energywatch/internal/models"
)

// insightForecastDays is the horizon of the forecast embedded in an
// insight run.
const insightForecastDays = 3

// EnergyFetcher supplies normalized daily readings for a date range.
type EnergyFetcher interface {
	FetchDailyReadings(ctx context.Context, from, to time.Time) ([]models.DailyReading, error)
}

// WeatherFetcher supplies observations keyed by calendar day.
type WeatherFetcher interface {
	FetchWeather(ctx context.Context, from, to time.Time) (map[string]models.WeatherObservation, error)
}

// Service correlates consumption, analytics, forecast and weather data
// into a ranked list of findings.
type Service struct {
	energy     EnergyFetcher
	weather    WeatherFetcher
	analytics  *analytics.Service
	forecaster *forecaster.Service

	now func() time.Time
}

func NewService(energy EnergyFetcher, weather WeatherFetcher, a *analytics.Service, f *forecaster.Service) *Service {
	return &Service{
		energy:     energy,
		weather:    weather,
		analytics:  a,
		forecaster: f,
		now:        time.Now,
	}
}

// Generate runs the full insight pipeline for the range. When there is no
// energy data at all it short-circuits with a single NoData warning.
func (s *Service) Generate(ctx context.Context, from, to time.Time) (*models.InsightsSummary, error) {
	readings, err := s.energy.FetchDailyReadings(ctx, from, to)
	if err != nil {
		return nil, err
	}

	if len(readings) == 0 {
		return &models.InsightsSummary{
			Insights: []models.InsightResult{{
				Type:     models.InsightNoData,
				Message:  "No energy data available for the selected period.",
				Severity: models.SeverityWarning,
			}},
			OverallAssessment: "Insufficient data for analysis.",
			GeneratedAt:       s.now().UTC(),
		}, nil
	}

	weatherData, err := s.weather.FetchWeather(ctx, from, to)
	if err != nil {
		return nil, err
	}

	analyticsSummary, err := s.analytics.Analyze(ctx, from, to)
	if err != nil {
		return nil, err
	}

	forecastSummary, err := s.forecaster.Forecast(ctx, to.AddDate(0, 0, 1), insightForecastDays)
	if err != nil {
		return nil, err
	}

	var insights []models.InsightResult
	insights = append(insights, consumptionInsights(readings, analyticsSummary)...)
	insights = append(insights, anomalyInsights(analyticsSummary)...)
	if len(weatherData) > 0 {
		insights = append(insights, weatherCorrelationInsights(readings, weatherData)...)
	}
	insights = append(insights, trendInsights(readings, forecastSummary)...)
	insights = append(insights, forecastInsights(forecastSummary, analyticsSummary)...)

	summary := &models.InsightsSummary{
		Insights:          insights,
		OverallAssessment: overallAssessment(analyticsSummary, forecastSummary, insights),
		GeneratedAt:       s.now().UTC(),
	}

	log.Printf("Generated %d insights", len(insights))
	return summary, nil
}

func consumptionInsights(readings []models.DailyReading, summary *models.AnalyticsSummary) []models.InsightResult {
	insights := []models.InsightResult{
		{
			Type:     models.InsightTotalConsumption,
			Message:  fmt.Sprintf("Total energy consumption for the period: %.2f kWh over %d days.", summary.TotalEnergyUsed, len(readings)),
			Severity: models.SeverityInfo,
			Metadata: map[string]models.MetaValue{
				"totalKwh": models.MetaNumber(summary.TotalEnergyUsed),
				"days":     models.MetaInt(len(readings)),
			},
		},
		{
			Type:     models.InsightAverageConsumption,
			Message:  fmt.Sprintf("Average daily energy consumption: %.2f kWh.", summary.AverageDailyUse),
			Severity: models.SeverityInfo,
			Metadata: map[string]models.MetaValue{
				"avgKwh": models.MetaNumber(summary.AverageDailyUse),
			},
		},
	}

	// First occurrence wins on ties for both extremes.
	peak, lowest := readings[0], readings[0]
	for _, r := range readings[1:] {
		if r.ConsumptionKwh > peak.ConsumptionKwh {
			peak = r
		}
		if r.ConsumptionKwh < lowest.ConsumptionKwh {
			lowest = r
		}
	}

	peakDate := peak.Date
	insights = append(insights, models.InsightResult{
		Type: models.InsightPeakConsumption,
		Message: fmt.Sprintf("Peak consumption occurred on %s with %.2f kWh, which is %.1f%% above average.",
			models.DateKey(peak.Date), peak.ConsumptionKwh, pctChange(peak.ConsumptionKwh, summary.AverageDailyUse)),
		Severity:    models.SeverityInfo,
		RelatedDate: &peakDate,
		Metadata: map[string]models.MetaValue{
			"peakKwh": models.MetaNumber(peak.ConsumptionKwh),
			"date":    models.MetaDate(peak.Date),
		},
	})

	lowestDate := lowest.Date
	insights = append(insights, models.InsightResult{
		Type: models.InsightLowestConsumption,
		Message: fmt.Sprintf("Lowest consumption occurred on %s with %.2f kWh.",
			models.DateKey(lowest.Date), lowest.ConsumptionKwh),
		Severity:    models.SeverityInfo,
		RelatedDate: &lowestDate,
		Metadata: map[string]models.MetaValue{
			"lowestKwh": models.MetaNumber(lowest.ConsumptionKwh),
			"date":      models.MetaDate(lowest.Date),
		},
	})

	return insights
}

func anomalyInsights(summary *models.AnalyticsSummary) []models.InsightResult {
	if summary.NumberOfAnomalies == 0 {
		return []models.InsightResult{{
			Type:     models.InsightNoAnomalies,
			Message:  "No unusual consumption patterns detected. Energy usage has been consistent.",
			Severity: models.SeverityInfo,
		}}
	}

	severity := models.SeverityInfo
	if summary.NumberOfAnomalies > 3 {
		severity = models.SeverityWarning
	}

	insights := []models.InsightResult{{
		Type:     models.InsightAnomalyDetected,
		Message:  fmt.Sprintf("%d day(s) with unusual consumption patterns detected.", summary.NumberOfAnomalies),
		Severity: severity,
		Metadata: map[string]models.MetaValue{
			"anomalyCount": models.MetaInt(summary.NumberOfAnomalies),
		},
	}}

	// The single largest absolute deviation; first occurrence wins ties.
	var significant *models.AnalyticsResult
	for i := range summary.DailyResults {
		r := &summary.DailyResults[i]
		if !r.IsAnomaly {
			continue
		}
		if significant == nil || math.Abs(deref(r.DeviationFromAverage)) > math.Abs(deref(significant.DeviationFromAverage)) {
			significant = r
		}
	}

	if significant != nil {
		date := significant.Date
		insights = append(insights, models.InsightResult{
			Type: models.InsightSignificantAnomaly,
			Message: fmt.Sprintf("Most significant anomaly on %s: %s",
				models.DateKey(significant.Date), significant.AnomalyReason),
			Severity:    models.SeverityWarning,
			RelatedDate: &date,
			Metadata: map[string]models.MetaValue{
				"deviation":   models.MetaNumber(deref(significant.DeviationFromAverage)),
				"consumption": models.MetaNumber(significant.KwhConsumption),
			},
		})
	}

	return insights
}

func weatherCorrelationInsights(readings []models.DailyReading, weatherData map[string]models.WeatherObservation) []models.InsightResult {
	var insights []models.InsightResult

	overallAvg := meanConsumption(readings)

	type pair struct {
		energy  models.DailyReading
		weather models.WeatherObservation
	}

	var correlated []pair
	for _, r := range readings {
		if obs, ok := weatherData[models.DateKey(r.Date)]; ok {
			correlated = append(correlated, pair{energy: r, weather: obs})
		}
	}
	if len(correlated) == 0 {
		return insights
	}

	var hotDays []pair
	for _, p := range correlated {
		if p.weather.Temperature > 28 && p.energy.ConsumptionKwh > overallAvg {
			hotDays = append(hotDays, p)
		}
	}

	if len(hotDays) > 0 {
		var sumTemp, sumKwh float64
		for _, p := range hotDays {
			sumTemp += p.weather.Temperature
			sumKwh += p.energy.ConsumptionKwh
		}
		avgTemp := sumTemp / float64(len(hotDays))
		increase := pctChange(sumKwh/float64(len(hotDays)), overallAvg)

		insights = append(insights, models.InsightResult{
			Type: models.InsightWeatherImpact,
			Message: fmt.Sprintf("Energy consumption increased by %.1f%% on hot days (avg %.1f°C) compared to overall average, likely due to increased cooling demand.",
				increase, avgTemp),
			Severity: models.SeverityInfo,
			Metadata: map[string]models.MetaValue{
				"avgTempHotDays":  models.MetaNumber(avgTemp),
				"increasePercent": models.MetaNumber(increase),
				"daysCount":       models.MetaInt(len(hotDays)),
			},
		})
	}

	var rainyDays []pair
	for _, p := range correlated {
		if strings.Contains(strings.ToLower(p.weather.Condition), "rain") {
			rainyDays = append(rainyDays, p)
		}
	}

	if len(rainyDays) > 0 {
		sumKwh := 0.0
		for _, p := range rainyDays {
			sumKwh += p.energy.ConsumptionKwh
		}
		change := pctChange(sumKwh/float64(len(rainyDays)), overallAvg)

		direction := "higher"
		if change <= 0 {
			direction = "lower"
		}

		insights = append(insights, models.InsightResult{
			Type: models.InsightWeatherPattern,
			Message: fmt.Sprintf("On rainy days (%d days), energy consumption was %.1f%% %s than average.",
				len(rainyDays), math.Abs(change), direction),
			Severity: models.SeverityInfo,
			Metadata: map[string]models.MetaValue{
				"rainyDays":     models.MetaInt(len(rainyDays)),
				"changePercent": models.MetaNumber(change),
			},
		})
	}

	return insights
}

func trendInsights(readings []models.DailyReading, forecast *models.ForecastSummary) []models.InsightResult {
	var message string
	switch forecast.TrendDirection {
	case models.TrendIncreasing:
		message = fmt.Sprintf("Energy consumption is trending upward with a %.1f%% increase rate. Consider investigating causes for rising consumption.", forecast.TrendStrength)
	case models.TrendDecreasing:
		message = fmt.Sprintf("Energy consumption is trending downward with a %.1f%% decrease rate. This could indicate improved efficiency or reduced usage.", forecast.TrendStrength)
	case models.TrendStable:
		message = "Energy consumption has remained stable over the analyzed period."
	default:
		message = "Unable to determine consumption trend."
	}

	severity := models.SeverityInfo
	if forecast.TrendDirection == models.TrendIncreasing && forecast.TrendStrength > 5 {
		severity = models.SeverityWarning
	}

	insights := []models.InsightResult{{
		Type:     models.InsightConsumptionTrend,
		Message:  message,
		Severity: severity,
		Metadata: map[string]models.MetaValue{
			"trend":    models.MetaString(string(forecast.TrendDirection)),
			"strength": models.MetaNumber(forecast.TrendStrength),
		},
	}}

	if len(readings) >= 14 {
		sorted := make([]models.DailyReading, len(readings))
		copy(sorted, readings)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Date.Before(sorted[j].Date)
		})

		lastWeek := 0.0
		for _, r := range sorted[len(sorted)-7:] {
			lastWeek += r.ConsumptionKwh
		}
		previousWeek := 0.0
		for _, r := range sorted[len(sorted)-14 : len(sorted)-7] {
			previousWeek += r.ConsumptionKwh
		}

		weekChange := pctChange(lastWeek, previousWeek)

		var weekMessage string
		if weekChange > 0 {
			weekMessage = fmt.Sprintf("Last week's consumption increased by %.1f%% compared to the previous week.", weekChange)
		} else {
			weekMessage = fmt.Sprintf("Last week's consumption decreased by %.1f%% compared to the previous week.", math.Abs(weekChange))
		}

		weekSeverity := models.SeverityInfo
		if math.Abs(weekChange) > 15 {
			weekSeverity = models.SeverityWarning
		}

		insights = append(insights, models.InsightResult{
			Type:     models.InsightWeeklyComparison,
			Message:  weekMessage,
			Severity: weekSeverity,
			Metadata: map[string]models.MetaValue{
				"lastWeekKwh":     models.MetaNumber(lastWeek),
				"previousWeekKwh": models.MetaNumber(previousWeek),
				"changePercent":   models.MetaNumber(weekChange),
			},
		})
	}

	return insights
}

func forecastInsights(forecast *models.ForecastSummary, analyticsSummary *models.AnalyticsSummary) []models.InsightResult {
	if len(forecast.Forecasts) == 0 {
		return nil
	}

	avgForecast := 0.0
	for _, f := range forecast.Forecasts {
		avgForecast += f.PredictedKwh
	}
	avgForecast /= float64(len(forecast.Forecasts))

	change := pctChange(avgForecast, analyticsSummary.AverageDailyUse)

	var message string
	switch {
	case change > 5:
		message = fmt.Sprintf("Next 3 days forecast: Expected consumption %.1f%% higher than recent average. Plan for increased energy demand.", change)
	case change < -5:
		message = fmt.Sprintf("Next 3 days forecast: Expected consumption %.1f%% lower than recent average.", math.Abs(change))
	default:
		message = "Next 3 days forecast: Expected consumption similar to recent average."
	}

	severity := models.SeverityInfo
	if change > 10 {
		severity = models.SeverityWarning
	}

	return []models.InsightResult{{
		Type:     models.InsightForecastPrediction,
		Message:  message,
		Severity: severity,
		Metadata: map[string]models.MetaValue{
			"avgForecastKwh": models.MetaNumber(avgForecast),
			"changePercent":  models.MetaNumber(change),
		},
	}}
}

// overallAssessment produces the single closing statement. Exactly one
// branch fires, checked in priority order.
func overallAssessment(analyticsSummary *models.AnalyticsSummary, forecast *models.ForecastSummary, insights []models.InsightResult) string {
	critical, warnings := 0, 0
	for _, i := range insights {
		switch i.Severity {
		case models.SeverityCritical:
			critical++
		case models.SeverityWarning:
			warnings++
		}
	}

	if critical > 0 {
		return fmt.Sprintf("Critical attention required: %d critical issue(s) detected. Energy consumption shows significant anomalies that need immediate investigation.", critical)
	}

	if warnings > 2 {
		return fmt.Sprintf("Monitor closely: %d warning(s) detected. Energy consumption patterns show notable variations from expected behavior.", warnings)
	}

	if forecast.TrendDirection == models.TrendIncreasing && forecast.TrendStrength > 10 {
		return fmt.Sprintf("Rising consumption trend detected. Average daily use is %.2f kWh with an increasing trajectory. Consider energy optimization strategies.", analyticsSummary.AverageDailyUse)
	}

	if forecast.TrendDirection == models.TrendDecreasing {
		return fmt.Sprintf("Positive trend: Energy consumption is decreasing. Average daily use is %.2f kWh with improving efficiency.", analyticsSummary.AverageDailyUse)
	}

	return fmt.Sprintf("Normal operation: Energy consumption is stable at %.2f kWh per day on average. %d anomaly(ies) detected over %d days.",
		analyticsSummary.AverageDailyUse, analyticsSummary.NumberOfAnomalies, len(analyticsSummary.DailyResults))
}

// pctChange returns the percentage change of value against base, treating
// a zero base as no change rather than dividing by zero.
func pctChange(value, base float64) float64 {
	if base == 0 {
		return 0
	}
	return (value/base - 1) * 100
}

func meanConsumption(readings []models.DailyReading) float64 {
	if len(readings) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range readings {
		sum += r.ConsumptionKwh
	}
	return sum / float64(len(readings))
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
