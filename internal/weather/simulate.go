package weather

import (
	"math/rand"
	"strings"
	"time"

	"energywatch/internal/models"
)

// Typical Johannesburg summer temperatures, used as the simulation
// baseline.
const (
	baseTempMin = 15.0
	baseTempMax = 28.0
)

var (
	simConditions = []string{"Clear", "Partly Cloudy", "Cloudy", "Rain", "Thunderstorm"}
	simWeights    = []float64{0.4, 0.3, 0.15, 0.1, 0.05}
)

// Simulate generates one observation per calendar day in [from, to] from
// the supplied random source. A fixed seed yields a fixed sequence.
func Simulate(from, to time.Time, rng *rand.Rand) map[string]models.WeatherObservation {
	observations := make(map[string]models.WeatherObservation)

	for day := dateOnly(from); !day.After(dateOnly(to)); day = day.AddDate(0, 0, 1) {
		variation := rng.Float64()*8 - 4 // -4 to +4 degrees
		tempMin := baseTempMin + variation
		tempMax := baseTempMax + variation
		avgTemp := (tempMin + tempMax) / 2

		condition := weightedChoice(simConditions, simWeights, rng)

		observations[models.DateKey(day)] = models.WeatherObservation{
			Date:        day,
			Temperature: avgTemp,
			FeelsLike:   avgTemp + rng.Float64()*2,
			TempMin:     tempMin,
			TempMax:     tempMax,
			Humidity:    rng.Intn(40) + 30,
			Condition:   condition,
			Description: strings.ToLower(condition),
		}
	}

	return observations
}

func weightedChoice(items []string, weights []float64, rng *rand.Rand) string {
	total := 0.0
	for _, w := range weights {
		total += w
	}

	value := rng.Float64() * total
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if value < cumulative {
			return items[i]
		}
	}

	return items[len(items)-1]
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
