package transcript

import (
	"fmt"
	"regexp"
	"time"
)

var (
	// 2020-Apr-30 or 2020-Apr-30-AAPL
	datePatternYMD = regexp.MustCompile(`(\d{4})-([A-Za-z]{3})-(\d{1,2})`)
	// Apr-2020
	datePatternMY = regexp.MustCompile(`([A-Za-z]{3})-(\d{4})`)
	// 2020-04-30
	datePatternISO = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
)

var monthAbbrev = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// DateFromFilename extracts the fiscal call date from a transcript
// filename. Supported forms: 2020-Apr-30-AAPL.txt, 2020-04-30.txt,
// Apr-2020.txt (day defaults to the 1st).
func DateFromFilename(filename string) (time.Time, error) {
	if m := datePatternISO.FindStringSubmatch(filename); m != nil {
		t, err := time.Parse("2006-01-02", fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]))
		if err == nil {
			return t, nil
		}
	}
	if m := datePatternYMD.FindStringSubmatch(filename); m != nil {
		if month, ok := monthAbbrev[m[2]]; ok {
			t, err := time.Parse("2006-Jan-2", fmt.Sprintf("%s-%s-%s", m[1], month.String()[:3], m[3]))
			if err == nil {
				return t, nil
			}
		}
	}
	if m := datePatternMY.FindStringSubmatch(filename); m != nil {
		if month, ok := monthAbbrev[m[1]]; ok {
			t, err := time.Parse("2006-Jan-2", fmt.Sprintf("%s-%s-1", m[2], month.String()[:3]))
			if err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("no recognizable date in filename: %s", filename)
}

// QuarterLabel derives the calendar-quarter label for a date, e.g.
// "Q3 2020" for 2020-07-30.
func QuarterLabel(date time.Time) string {
	if date.IsZero() {
		return ""
	}
	q := (int(date.Month())-1)/3 + 1
	return fmt.Sprintf("Q%d %d", q, date.Year())
}
