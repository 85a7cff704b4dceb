// Package Clock converts between venue-local wall-clock values and absolute
// instants using the venue's IANA time zone, never the host's own offset.
package Clock

import (
	"errors"
	"fmt"
	"sync"
	"time"
	// Zone data ships with the binary so hosts without tzdata resolve venues the same way.
	_ "time/tzdata"
)

const DateLayout = "2006-01-02"

var (
	ErrUnknownZone      = errors.New("unknown time zone")
	ErrInvalidWallClock = errors.New("invalid wall clock value")
	ErrInvalidDate      = errors.New("invalid date")
)

// GapPolicy decides how a wall-clock value inside a spring-forward gap is resolved.
type GapPolicy string

const (
	// OffsetAfter applies the UTC offset in effect after the transition.
	// 02:30 in a 02:00 to 03:00 gap becomes 01:30 on the old offset.
	OffsetAfter GapPolicy = "offset_after"
	// ShiftForward advances the wall clock by the gap length, so 02:30 becomes 03:30.
	ShiftForward GapPolicy = "shift_forward"
)

func ParseGapPolicy(s string) (GapPolicy, error) {
	switch GapPolicy(s) {
	case "", OffsetAfter:
		return OffsetAfter, nil
	case ShiftForward:
		return ShiftForward, nil
	}
	return "", fmt.Errorf("unknown DST gap policy %q", s)
}

type WallClock struct {
	Year   int        `json:"year"`
	Month  time.Month `json:"month"`
	Day    int        `json:"day"`
	Hour   int        `json:"hour"`
	Minute int        `json:"minute"`
	Second int        `json:"second"`
}

func (w WallClock) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", w.Year, int(w.Month), w.Day, w.Hour, w.Minute, w.Second)
}

func (w WallClock) naive() time.Time {
	return time.Date(w.Year, w.Month, w.Day, w.Hour, w.Minute, w.Second, 0, time.UTC)
}

func wallOf(t time.Time) WallClock {
	return WallClock{
		Year:   t.Year(),
		Month:  t.Month(),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

var locations sync.Map

// Location loads an IANA zone once and caches it.
func Location(tz string) (*time.Location, error) {
	if cached, ok := locations.Load(tz); ok {
		return cached.(*time.Location), nil
	}
	if tz == "" {
		return nil, fmt.Errorf("%w: empty zone id", ErrUnknownZone)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownZone, tz)
	}
	locations.Store(tz, loc)
	return loc, nil
}

// Adapter resolves wall-clock values for a fixed gap policy.
type Adapter struct {
	Policy GapPolicy
}

func New(policy GapPolicy) *Adapter {
	if policy == "" {
		policy = OffsetAfter
	}
	return &Adapter{Policy: policy}
}

// ToAbsolute returns the instant that the venue's clocks show as w.
// Ambiguous values in a fall-back overlap resolve to the earlier instant.
func (a *Adapter) ToAbsolute(w WallClock, tz string) (time.Time, error) {
	loc, err := Location(tz)
	if err != nil {
		return time.Time{}, err
	}
	naive := w.naive()
	if wallOf(naive) != w {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidWallClock, w)
	}

	// Transitions are at least days apart, so the offsets 36 hours either
	// side of the naive value bracket any transition on this date.
	_, before := naive.Add(-36 * time.Hour).In(loc).Zone()
	_, after := naive.Add(36 * time.Hour).In(loc).Zone()

	early := naive.Add(-time.Duration(before) * time.Second)
	late := naive.Add(-time.Duration(after) * time.Second)

	earlyOK := wallOf(early.In(loc)) == w
	lateOK := wallOf(late.In(loc)) == w

	switch {
	case earlyOK && lateOK:
		if late.Before(early) {
			return late.In(loc), nil
		}
		return early.In(loc), nil
	case earlyOK:
		return early.In(loc), nil
	case lateOK:
		return late.In(loc), nil
	}

	// Spring-forward gap.
	if a.Policy == ShiftForward {
		return early.In(loc), nil
	}
	return late.In(loc), nil
}

// ToWallClock returns the components the venue's clocks show at instant t.
func (a *Adapter) ToWallClock(t time.Time, tz string) (WallClock, error) {
	loc, err := Location(tz)
	if err != nil {
		return WallClock{}, err
	}
	return wallOf(t.In(loc)), nil
}

// StartOfDay is the first instant of a venue-local calendar date. Where the
// clocks jump over midnight the day begins at the transition, whatever the
// adapter's gap policy, so the instant always reads back as the same date.
func (a *Adapter) StartOfDay(date, tz string) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	midnight := WallClock{Year: d.Year(), Month: d.Month(), Day: d.Day()}
	return dayStart.ToAbsolute(midnight, tz)
}

var dayStart = &Adapter{Policy: ShiftForward}

// LocalDate formats the venue-local calendar date of t.
func LocalDate(t time.Time, tz string) (string, error) {
	loc, err := Location(tz)
	if err != nil {
		return "", err
	}
	return t.In(loc).Format(DateLayout), nil
}

// ParseDate parses YYYY-MM-DD into a UTC midnight used only for calendar arithmetic.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// ValidDate reports whether s is a YYYY-MM-DD calendar date.
func ValidDate(s string) bool {
	_, err := ParseDate(s)
	return err == nil
}

func AddDays(date string, n int) (string, error) {
	d, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return d.AddDate(0, 0, n).Format(DateLayout), nil
}
