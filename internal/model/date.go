package model

import "time"

const DateLayout = "2006-01-02"

// ParseDate parses "YYYY-MM-DD" without going through time.Parse.
// Returns zero time and false on invalid input.
func ParseDate(s string) (time.Time, bool) {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return time.Time{}, false
	}
	for i, c := range []byte(s) {
		if i == 4 || i == 7 {
			continue
		}
		if c < '0' || c > '9' {
			return time.Time{}, false
		}
	}
	y := int(s[0]-'0')*1000 + int(s[1]-'0')*100 + int(s[2]-'0')*10 + int(s[3]-'0')
	m := time.Month(int(s[5]-'0')*10 + int(s[6]-'0'))
	d := int(s[8]-'0')*10 + int(s[9]-'0')
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	// Reject rollovers such as 2024-02-31.
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// FormatDate renders t as a calendar date in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Today returns the UTC calendar day containing t.
func Today(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
