package transcript

import (
	"testing"
	"time"
)

func TestDateFromFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     time.Time
		wantErr  bool
	}{
		{"year month day with ticker", "2020-Jul-30-AAPL.txt", time.Date(2020, 7, 30, 0, 0, 0, 0, time.UTC), false},
		{"year month day", "2019-Apr-1.txt", time.Date(2019, 4, 1, 0, 0, 0, 0, time.UTC), false},
		{"iso date", "2018-10-25.txt", time.Date(2018, 10, 25, 0, 0, 0, 0, time.UTC), false},
		{"month year", "Jan-2017.txt", time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"no date", "transcript.txt", time.Time{}, true},
		{"unknown month", "2020-Xyz-30.txt", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DateFromFilename(tt.filename)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DateFromFilename(%q) error = nil, want error", tt.filename)
				}
				return
			}
			if err != nil {
				t.Fatalf("DateFromFilename(%q) error = %v", tt.filename, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("DateFromFilename(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestQuarterLabel(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		want string
	}{
		{"q1", time.Date(2020, 2, 15, 0, 0, 0, 0, time.UTC), "Q1 2020"},
		{"q2 boundary", time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC), "Q2 2020"},
		{"q3", time.Date(2020, 7, 30, 0, 0, 0, 0, time.UTC), "Q3 2020"},
		{"q4 boundary", time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC), "Q4 2019"},
		{"zero date", time.Time{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QuarterLabel(tt.date); got != tt.want {
				t.Errorf("QuarterLabel(%v) = %q, want %q", tt.date, got, tt.want)
			}
		})
	}
}

func TestDocumentID(t *testing.T) {
	if got := DocumentID("AAPL", "2020-Jul-30-AAPL.txt"); got != "aapl_2020-Jul-30-AAPL.txt" {
		t.Errorf("DocumentID() = %q", got)
	}
}

func TestIsKnownTicker(t *testing.T) {
	tests := []struct {
		ticker string
		want   bool
	}{
		{"AAPL", true},
		{"aapl", true},
		{"ZZZZ", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsKnownTicker(tt.ticker); got != tt.want {
			t.Errorf("IsKnownTicker(%q) = %v, want %v", tt.ticker, got, tt.want)
		}
	}
}

func TestCompanyName(t *testing.T) {
	tests := []struct {
		ticker string
		want   string
	}{
		{"AAPL", "Apple Inc."},
		{"nvda", "NVIDIA Corporation"},
		{"ZZZZ", "ZZZZ"},
	}
	for _, tt := range tests {
		if got := CompanyName(tt.ticker); got != tt.want {
			t.Errorf("CompanyName(%q) = %q, want %q", tt.ticker, got, tt.want)
		}
	}
}
