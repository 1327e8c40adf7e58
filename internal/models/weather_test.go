package models

import "testing"

func TestCandidate_DisplayName(t *testing.T) {
	c := Candidate{Name: "Paris", Region: "Ile-de-France", Country: "France"}
	if got := c.DisplayName(); got != "Paris, Ile-de-France, France" {
		t.Errorf("DisplayName() = %q, want %q", got, "Paris, Ile-de-France, France")
	}
}

func TestParseUnit(t *testing.T) {
	tests := []struct {
		in      string
		want    Unit
		wantErr bool
	}{
		{"metric", Metric, false},
		{"METRIC", Metric, false},
		{" imperial ", Imperial, false},
		{"us", Imperial, false},
		{"kelvin", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseUnit(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseUnit(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseUnit(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFusedResult_IconURL(t *testing.T) {
	r := FusedResult{ConditionIcon: "//cdn.weatherapi.com/weather/64x64/night/296.png"}
	if got := r.IconURL(); got != "https://cdn.weatherapi.com/weather/64x64/night/296.png" {
		t.Errorf("IconURL() = %q", got)
	}
	r = FusedResult{ConditionIcon: "https://example.com/a.png"}
	if got := r.IconURL(); got != "https://example.com/a.png" {
		t.Errorf("IconURL() = %q", got)
	}
}
