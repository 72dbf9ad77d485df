package schedule

import "fmt"

// parseClock parses a local HH:MM clock time into minutes since midnight.
// A valid value has a one or two digit hour in [0,23], a ':' separator, and
// a two-digit minute in [00,59]. The boolean result is false for anything
// else; callers degrade gracefully instead of erroring.
func parseClock(s string) (int, bool) {
	if len(s) < 4 || len(s) > 5 {
		return 0, false
	}
	sep := len(s) - 3
	if s[sep] != ':' {
		return 0, false
	}

	hour := 0
	for i := 0; i < sep; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		hour = hour*10 + int(c-'0')
	}
	if hour > 23 {
		return 0, false
	}

	m1, m2 := s[sep+1], s[sep+2]
	if m1 < '0' || m1 > '5' || m2 < '0' || m2 > '9' {
		return 0, false
	}
	minute := int(m1-'0')*10 + int(m2-'0')

	return hour*60 + minute, true
}

// formatClock renders minutes since midnight as zero-padded HH:MM.
func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// minutesApart is the absolute clock distance between two times on the
// same day.
func minutesApart(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
