package booking

import (
	"time"

	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
)

// ParseSlot parses a slot token as zero-padded 24-hour "HH:MM".
func ParseSlot(token string) (hour, minute int, err error) {
	bad := &healthapi.ValidationError{Field: "slot", Message: "must be formatted HH:MM"}
	if len(token) != 5 || token[2] != ':' {
		return 0, 0, bad
	}
	for i, c := range token {
		if i == 2 {
			continue
		}
		if c < '0' || c > '9' {
			return 0, 0, bad
		}
	}
	hour = int(token[0]-'0')*10 + int(token[1]-'0')
	minute = int(token[3]-'0')*10 + int(token[4]-'0')
	if hour > 23 || minute > 59 {
		return 0, 0, bad
	}
	return hour, minute, nil
}

// Interval combines a YYYY-MM-DD calendar date with a slot token in loc and
// returns the appointment interval [start, start+duration).
func Interval(date, slot string, duration time.Duration, loc *time.Location) (start, end time.Time, err error) {
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, &healthapi.ValidationError{Field: "date", Message: "must be formatted YYYY-MM-DD"}
	}
	hour, minute, err := ParseSlot(slot)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start = time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
	return start, start.Add(duration), nil
}
