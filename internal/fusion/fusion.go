// Package fusion merges current conditions and sun times into a display-ready
// result for one unit system.
package fusion

import (
	"strconv"
	"time"

	"github.com/kjstillabower/weather-fusion-service/internal/models"
)

const (
	// providerTimeLayout is the provider's naive local timestamp, e.g. "2024-04-28 21:07".
	providerTimeLayout = "2006-01-02 15:04"
	// displayTimeLayout renders as "Sunday, April 28, 9:07 PM".
	displayTimeLayout = "Monday, January 2, 3:04 PM"
)

type unitLabels struct {
	temp, speed, precip string
}

var (
	metricLabels   = unitLabels{temp: "°C", speed: "kph", precip: "mm"}
	imperialLabels = unitLabels{temp: "°F", speed: "mph", precip: "in"}
)

// Fuse builds the result for location under unit. It has no side effects; equal
// inputs give equal outputs. Any unit other than Imperial is rendered as Metric.
func Fuse(location models.Candidate, conditions models.CurrentConditions, sun models.SunTimes, unit models.Unit) models.FusedResult {
	if unit != models.Imperial {
		unit = models.Metric
	}
	labels, pick := metricLabels, metricReading
	if unit == models.Imperial {
		labels, pick = imperialLabels, imperialReading
	}

	return models.FusedResult{
		Name:          location.DisplayName(),
		Time:          FormatLocalTime(location.LocalTime),
		ConditionText: conditions.ConditionText,
		ConditionIcon: conditions.ConditionIcon,
		Temp:          FormatMeasure(pick(conditions.Temperature), labels.temp),
		TempFeel:      FormatMeasure(pick(conditions.FeelsLike), labels.temp),
		WindSpeed:     FormatMeasure(pick(conditions.WindSpeed), labels.speed),
		WindAngle:     FormatAngle(conditions.WindDegree),
		Precip:        FormatMeasure(pick(conditions.Precipitation), labels.precip),
		Sunrise:       sun.Sunrise,
		Sunset:        sun.Sunset,
		Unit:          unit,
	}
}

func metricReading(r models.Reading) float64   { return r.Metric }
func imperialReading(r models.Reading) float64 { return r.Imperial }

// FormatMeasure renders "<v> <label>" with the shortest decimal form of v,
// so 11.0 becomes "11 °C" and 51.8 stays "51.8 °F".
func FormatMeasure(v float64, label string) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + label
}

// FormatAngle renders a wind direction as "<degrees>°".
func FormatAngle(degrees int) string {
	return strconv.Itoa(degrees) + "°"
}

// FormatLocalTime turns "2024-04-28 21:07" into "Sunday, April 28, 9:07 PM".
// Unparseable input is returned unchanged.
func FormatLocalTime(raw string) string {
	t, err := time.Parse(providerTimeLayout, raw)
	if err != nil {
		return raw
	}
	return t.Format(displayTimeLayout)
}
