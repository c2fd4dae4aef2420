package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration reads either a Go duration ("10m", "1h30m") or a bare number of seconds.
type Duration time.Duration

// Seconds converts a possibly fractional second count.
func Seconds(s float64) Duration {
	return Duration(s * float64(time.Second))
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		return fmt.Errorf("empty duration")
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Seconds(f)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: use seconds or a Go duration like 10m", s)
	}
	*d = Duration(parsed)
	return nil
}
