package models

import (
	"fmt"
	"strings"
)

// Candidate is one resolved location as reported by the weather provider.
type Candidate struct {
	Name       string  `json:"name"`
	Region     string  `json:"region"`
	Country    string  `json:"country"`
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lon"`
	TimeZoneID string  `json:"tzId,omitempty"`
	LocalTime  string  `json:"localTime,omitempty"` // naive provider timestamp, e.g. "2024-04-28 21:07"
}

// DisplayName returns "<name>, <region>, <country>".
func (c Candidate) DisplayName() string {
	return fmt.Sprintf("%s, %s, %s", c.Name, c.Region, c.Country)
}

// Reading holds the same measurement in both unit systems.
type Reading struct {
	Metric   float64 `json:"metric"`
	Imperial float64 `json:"imperial"`
}

// CurrentConditions is a per-location snapshot. Every Reading carries both units;
// unit selection happens only in fusion.
type CurrentConditions struct {
	Location      Candidate `json:"location"`
	ConditionText string    `json:"conditionText"`
	ConditionIcon string    `json:"conditionIcon"` // protocol-relative, e.g. "//cdn.weatherapi.com/..."
	Temperature   Reading   `json:"temperature"`   // °C / °F
	FeelsLike     Reading   `json:"feelsLike"`     // °C / °F
	WindSpeed     Reading   `json:"windSpeed"`     // kph / mph
	Precipitation Reading   `json:"precipitation"` // mm / in
	WindDegree    int       `json:"windDegree"`
	LastUpdated   string    `json:"lastUpdated,omitempty"`
}

// SunTimes holds provider-formatted sunrise and sunset for a coordinate/timezone triple.
type SunTimes struct {
	Sunrise    string  `json:"sunrise"`
	Sunset     string  `json:"sunset"`
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lon"`
	TimeZoneID string  `json:"tzId"`
}

// Unit selects which reading of a dual-unit measurement is displayed.
type Unit string

const (
	Metric   Unit = "metric"
	Imperial Unit = "imperial"
)

// ParseUnit accepts "metric", "imperial" and "us" (alias of imperial), case-insensitive.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "metric":
		return Metric, nil
	case "imperial", "us":
		return Imperial, nil
	}
	return "", fmt.Errorf("unknown unit %q", s)
}

// FusedResult is the display-ready record. It is built once per search or unit
// toggle and never modified afterwards.
type FusedResult struct {
	Name          string `json:"name"`
	Time          string `json:"time"`
	ConditionText string `json:"conditionText"`
	ConditionIcon string `json:"conditionIcon"`
	Temp          string `json:"temp"`
	TempFeel      string `json:"tempFeel"`
	WindSpeed     string `json:"windSpeed"`
	WindAngle     string `json:"windAngle"`
	Precip        string `json:"precip"`
	Sunrise       string `json:"sunrise"`
	Sunset        string `json:"sunset"`
	Unit          Unit   `json:"unit"`
}

// IconURL returns the condition icon with an explicit scheme.
func (r FusedResult) IconURL() string {
	if strings.HasPrefix(r.ConditionIcon, "//") {
		return "https:" + r.ConditionIcon
	}
	return r.ConditionIcon
}
