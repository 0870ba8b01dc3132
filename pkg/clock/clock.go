package clock

import (
	"fmt"
	"sync"
	"time"

	"watchearn/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const DayKeyLayout = "2006-01-02"

var Module = fx.Module("clock",
	fx.Provide(
		func() Clock { return System{} },
		NewCalendar,
	),
)

type Clock interface {
	Now() time.Time
}

type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed is a manually driven Clock.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = t
}

func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// DayKey returns the calendar date of t in loc formatted as YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayKeyLayout)
}

type Calendar struct {
	Clock    Clock
	Location *time.Location
}

// NewCalendar fails on an unknown QUOTA_TIMEZONE so day boundaries never
// shift silently.
func NewCalendar(c Clock, cfg *config.Config) (*Calendar, error) {
	loc := time.UTC
	if cfg.QuotaTimezone != "" {
		l, err := time.LoadLocation(cfg.QuotaTimezone)
		if err != nil {
			zap.L().Error("[Clock] Unknown quota timezone", zap.String("timezone", cfg.QuotaTimezone), zap.Error(err))
			return nil, fmt.Errorf("load quota timezone %q: %w", cfg.QuotaTimezone, err)
		}
		loc = l
	}
	return &Calendar{Clock: c, Location: loc}, nil
}

// Today returns the current instant and its day key.
func (c *Calendar) Today() (time.Time, string) {
	now := c.Clock.Now()
	return now, DayKey(now, c.Location)
}
