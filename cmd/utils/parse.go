package utils

import (
	"time"
)

const TimeLayout = "2006-01-02 15:04:05"

var beijing = time.FixedZone("Beijing Time", int((8 * time.Hour).Seconds()))

func ParseBeijingTime(str string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, str, beijing)
}

// SignalTime returns str in the canonical layout, or now when str is empty.
func SignalTime(str string, now time.Time) (string, error) {
	if str == "" {
		return now.In(beijing).Format(TimeLayout), nil
	}
	t, err := ParseBeijingTime(str)
	if err != nil {
		return "", err
	}
	return t.Format(TimeLayout), nil
}
