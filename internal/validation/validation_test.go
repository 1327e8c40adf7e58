package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestValidateQuery(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		maxLen  int
		wantErr error
	}{
		{name: "empty", input: "", maxLen: 100, wantErr: ErrQueryEmpty},
		{name: "spaces", input: "   ", maxLen: 100, wantErr: ErrQueryEmpty},
		{name: "tab and newline", input: "\t\n", maxLen: 100, wantErr: ErrQueryEmpty},
		{name: "single char", input: "P", maxLen: 100},
		{name: "city", input: "Paris", maxLen: 100},
		{name: "punctuation allowed", input: "St. John's (NL)", maxLen: 100},
		{name: "coordinates", input: "48.87,2.33", maxLen: 100},
		{name: "unicode counted in runes", input: "Zürich", maxLen: 6},
		{name: "at limit", input: strings.Repeat("a", 10), maxLen: 10},
		{name: "over limit", input: strings.Repeat("a", 11), maxLen: 10, wantErr: ErrQueryTooLong},
		{name: "no limit", input: strings.Repeat("a", 1000), maxLen: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateQuery(tc.input, tc.maxLen)
			if tc.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateQuery(%q) error = %v, want nil", tc.input, err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateQuery(%q) error = %v, want %v", tc.input, err, tc.wantErr)
			}
		})
	}
}

func TestValidateSessionID(t *testing.T) {
	valid := uuid.NewString()
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{name: "valid", id: valid},
		{name: "uppercase", id: strings.ToUpper(valid)},
		{name: "empty", id: "", wantErr: true},
		{name: "garbage", id: "not-a-uuid", wantErr: true},
		{name: "braced", id: "{" + valid + "}", wantErr: true},
		{name: "urn", id: "urn:uuid:" + valid, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSessionID(tc.id)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateSessionID(%q) error = %v, wantErr %v", tc.id, err, tc.wantErr)
			}
		})
	}
}
