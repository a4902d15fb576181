package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDurationField parses a Go duration string, plus whole days as "<n>d".
// Empty means 0. path names the field in errors.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	var (
		d   time.Duration
		err error
	)
	if n, ok := strings.CutSuffix(s, "d"); ok {
		var days int
		days, err = strconv.Atoi(n)
		d = time.Duration(days) * 24 * time.Hour
	} else {
		d, err = time.ParseDuration(s)
	}
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", path, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

// Location resolves the engine timezone. Empty means UTC.
func (e EngineConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(e.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone: %w", err)
	}
	return loc, nil
}

// MaxOverdueDays converts max_overdue_age to whole days. 0 means unlimited.
func (e EngineConfig) MaxOverdueDays() (int, error) {
	d, err := ParseDurationField("engine.max_overdue_age", e.MaxOverdueAge)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, nil
	}
	days := int(d / (24 * time.Hour))
	if days < 1 {
		return 0, fmt.Errorf("engine.max_overdue_age: must be at least 24h, got %s", d)
	}
	return days, nil
}

type HTTPTimeouts struct {
	Read  time.Duration
	Write time.Duration
	Idle  time.Duration
}

func (h HTTPConfig) Timeouts() (HTTPTimeouts, error) {
	var (
		t   HTTPTimeouts
		err error
	)
	if t.Read, err = ParseDurationOrDefault("http.read_timeout", h.ReadTimeout, 10*time.Second); err != nil {
		return t, err
	}
	if t.Write, err = ParseDurationOrDefault("http.write_timeout", h.WriteTimeout, 30*time.Second); err != nil {
		return t, err
	}
	if t.Idle, err = ParseDurationOrDefault("http.idle_timeout", h.IdleTimeout, 2*time.Minute); err != nil {
		return t, err
	}
	return t, nil
}

func (h HTTPConfig) AddrOrDefault() string {
	if a := strings.TrimSpace(h.Addr); a != "" {
		return a
	}
	return "127.0.0.1:8080"
}
