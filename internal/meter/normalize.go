package meter

import (
	"sort"

	"energywatch/internal/models"
)

// NormalizeReadings converts raw per-day meter aggregates into daily
// consumption readings sorted ascending by date. Duplicate dates are kept
// as-is; downstream stages process them in sequence order.
func NormalizeReadings(raw []models.RawMeterReading) []models.DailyReading {
	readings := make([]models.DailyReading, 0, len(raw))
	for _, r := range raw {
		readings = append(readings, models.DailyReading{
			Date:           r.Date(),
			ConsumptionKwh: r.ConsumptionKwh(),
		})
	}

	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Date.Before(readings[j].Date)
	})

	return readings
}
