package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Interval is one of the supported publishing periods.
type Interval int

const (
	Every2m Interval = iota + 1
	Every5m
	Every15m
	Every30m
	Every1h
	Every2h
	Every4h
	Every6h
	Every12h
	Every1d
)

type intervalDef struct {
	name string
	d    time.Duration
	spec string
}

// Boundaries are wall-clock multiples in UTC.
var intervalDefs = map[Interval]intervalDef{
	Every2m:  {"2m", 2 * time.Minute, "*/2 * * * *"},
	Every5m:  {"5m", 5 * time.Minute, "*/5 * * * *"},
	Every15m: {"15m", 15 * time.Minute, "*/15 * * * *"},
	Every30m: {"30m", 30 * time.Minute, "*/30 * * * *"},
	Every1h:  {"1h", time.Hour, "0 * * * *"},
	Every2h:  {"2h", 2 * time.Hour, "0 */2 * * *"},
	Every4h:  {"4h", 4 * time.Hour, "0 */4 * * *"},
	Every6h:  {"6h", 6 * time.Hour, "0 */6 * * *"},
	Every12h: {"12h", 12 * time.Hour, "0 */12 * * *"},
	Every1d:  {"1d", 24 * time.Hour, "0 0 * * *"},
}

var schedules = func() map[Interval]cron.Schedule {
	out := make(map[Interval]cron.Schedule, len(intervalDefs))
	for i, def := range intervalDefs {
		s, err := cron.ParseStandard("CRON_TZ=UTC " + def.spec)
		if err != nil {
			panic(fmt.Sprintf("scheduler: bad schedule for %s: %v", def.name, err))
		}
		out[i] = s
	}
	return out
}()

// Intervals returns every supported interval, shortest first.
func Intervals() []Interval {
	return []Interval{Every2m, Every5m, Every15m, Every30m, Every1h, Every2h, Every4h, Every6h, Every12h, Every1d}
}

// ParseInterval accepts the short names "2m" through "1d".
func ParseInterval(s string) (Interval, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, i := range Intervals() {
		if intervalDefs[i].name == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unsupported interval %q", s)
}

func (i Interval) String() string {
	if def, ok := intervalDefs[i]; ok {
		return def.name
	}
	return fmt.Sprintf("Interval(%d)", int(i))
}

// Duration is the nominal period.
func (i Interval) Duration() time.Duration {
	return intervalDefs[i].d
}

// Valid reports whether i is one of the supported intervals.
func (i Interval) Valid() bool {
	_, ok := intervalDefs[i]
	return ok
}

// Next returns the first interval boundary strictly after t, in UTC.
// For 5m, 10:32:00 gives 10:35:00 and 10:35:00 gives 10:40:00.
func (i Interval) Next(t time.Time) time.Time {
	s, ok := schedules[i]
	if !ok {
		return t
	}
	return s.Next(t.UTC())
}
