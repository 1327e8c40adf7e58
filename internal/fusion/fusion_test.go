package fusion

import (
	"reflect"
	"strings"
	"testing"

	"github.com/kjstillabower/weather-fusion-service/internal/models"
)

var (
	parisLocation = models.Candidate{
		Name:       "Paris",
		Region:     "Ile-de-France",
		Country:    "France",
		Latitude:   48.87,
		Longitude:  2.33,
		TimeZoneID: "Europe/Paris",
		LocalTime:  "2024-04-28 21:07",
	}
	parisConditions = models.CurrentConditions{
		Location:      parisLocation,
		ConditionText: "Light rain",
		ConditionIcon: "//cdn.weatherapi.com/weather/64x64/night/296.png",
		Temperature:   models.Reading{Metric: 11.0, Imperial: 51.8},
		FeelsLike:     models.Reading{Metric: 8.8, Imperial: 47.8},
		WindSpeed:     models.Reading{Metric: 9.0, Imperial: 5.6},
		Precipitation: models.Reading{Metric: 0.0, Imperial: 0.0},
		WindDegree:    260,
	}
	parisSun = models.SunTimes{Sunrise: "6:32:10 AM", Sunset: "9:03:44 PM", Latitude: 48.87, Longitude: 2.33, TimeZoneID: "Europe/Paris"}
)

func TestFuse_Metric(t *testing.T) {
	got := Fuse(parisLocation, parisConditions, parisSun, models.Metric)

	want := models.FusedResult{
		Name:          "Paris, Ile-de-France, France",
		Time:          "Sunday, April 28, 9:07 PM",
		ConditionText: "Light rain",
		ConditionIcon: "//cdn.weatherapi.com/weather/64x64/night/296.png",
		Temp:          "11 °C",
		TempFeel:      "8.8 °C",
		WindSpeed:     "9 kph",
		WindAngle:     "260°",
		Precip:        "0 mm",
		Sunrise:       "6:32:10 AM",
		Sunset:        "9:03:44 PM",
		Unit:          models.Metric,
	}
	if got != want {
		t.Errorf("Fuse() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestFuse_Imperial(t *testing.T) {
	got := Fuse(parisLocation, parisConditions, parisSun, models.Imperial)

	if got.Temp != "51.8 °F" {
		t.Errorf("Temp = %q, want %q", got.Temp, "51.8 °F")
	}
	if got.WindSpeed != "5.6 mph" {
		t.Errorf("WindSpeed = %q, want %q", got.WindSpeed, "5.6 mph")
	}
	if got.TempFeel != "47.8 °F" || got.Precip != "0 in" {
		t.Errorf("TempFeel/Precip = %q/%q", got.TempFeel, got.Precip)
	}
	if got.WindAngle != "260°" || got.Unit != models.Imperial {
		t.Errorf("WindAngle/Unit = %q/%q", got.WindAngle, got.Unit)
	}
}

func TestFuse_Idempotent(t *testing.T) {
	for _, unit := range []models.Unit{models.Metric, models.Imperial} {
		a := Fuse(parisLocation, parisConditions, parisSun, unit)
		b := Fuse(parisLocation, parisConditions, parisSun, unit)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("Fuse(%s) not idempotent: %+v vs %+v", unit, a, b)
		}
	}
}

// TestFuse_UnitExclusivity checks that the formatted measurements of one unit
// system never carry the other system's labels.
func TestFuse_UnitExclusivity(t *testing.T) {
	tests := []struct {
		unit      models.Unit
		forbidden []string
	}{
		{unit: models.Metric, forbidden: []string{"°F", "mph", " in"}},
		{unit: models.Imperial, forbidden: []string{"°C", "kph", " mm"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.unit), func(t *testing.T) {
			r := Fuse(parisLocation, parisConditions, parisSun, tt.unit)
			for _, field := range []string{r.Temp, r.TempFeel, r.WindSpeed, r.Precip, r.WindAngle, r.Time, r.Name} {
				for _, f := range tt.forbidden {
					if strings.Contains(field, f) {
						t.Errorf("field %q contains %q under %s", field, f, tt.unit)
					}
				}
			}
		})
	}
}

func TestFuse_UnknownUnitFallsBackToMetric(t *testing.T) {
	got := Fuse(parisLocation, parisConditions, parisSun, models.Unit("kelvin"))
	if got.Unit != models.Metric || got.Temp != "11 °C" {
		t.Errorf("Fuse(kelvin) = %+v", got)
	}
}

func TestFormatMeasure(t *testing.T) {
	tests := []struct {
		v     float64
		label string
		want  string
	}{
		{v: 11.0, label: "°C", want: "11 °C"},
		{v: 51.8, label: "°F", want: "51.8 °F"},
		{v: -3.5, label: "°C", want: "-3.5 °C"},
		{v: 0.01, label: "in", want: "0.01 in"},
		{v: 0, label: "mm", want: "0 mm"},
	}
	for _, tt := range tests {
		if got := FormatMeasure(tt.v, tt.label); got != tt.want {
			t.Errorf("FormatMeasure(%v, %q) = %q, want %q", tt.v, tt.label, got, tt.want)
		}
	}
}

func TestFormatLocalTime(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "2024-04-28 21:07", want: "Sunday, April 28, 9:07 PM"},
		{raw: "2024-01-01 00:05", want: "Monday, January 1, 12:05 AM"},
		{raw: "2024-07-04 12:30", want: "Thursday, July 4, 12:30 PM"},
		{raw: "not a time", want: "not a time"},
		{raw: "", want: ""},
	}
	for _, tt := range tests {
		if got := FormatLocalTime(tt.raw); got != tt.want {
			t.Errorf("FormatLocalTime(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestFormatAngle(t *testing.T) {
	if got := FormatAngle(0); got != "0°" {
		t.Errorf("FormatAngle(0) = %q", got)
	}
	if got := FormatAngle(359); got != "359°" {
		t.Errorf("FormatAngle(359) = %q", got)
	}
}

func BenchmarkFuse(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = Fuse(parisLocation, parisConditions, parisSun, models.Imperial)
	}
}
