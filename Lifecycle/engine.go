// Package Lifecycle holds the equipment lifecycle rules: the placement registry,
// plan generation, the task workflow, placement moves and the issue tracker.
// Every mutating operation runs in one store transaction.
package Lifecycle

import (
	"context"
	"errors"
	"time"

	"Pitstop/Clock"
	"Pitstop/Models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const DefaultSharedPoolID = "shared_pool"

type Settings struct {
	TimeZone     string
	SharedPoolID string
	GapPolicy    Clock.GapPolicy
	Notifier     Notifier
	Now          func() time.Time
}

type Engine struct {
	DB       *gorm.DB
	Log      *zap.Logger
	Clock    *Clock.Adapter
	Notifier Notifier

	timeZone     string
	sharedPoolID string
	now          func() time.Time
}

func New(db *gorm.DB, log *zap.Logger, s Settings) (*Engine, error) {
	if _, err := Clock.Location(s.TimeZone); err != nil {
		return nil, Models.ErrUnknownTimeZone
	}
	if log == nil {
		log = zap.NewNop()
	}
	if s.SharedPoolID == "" {
		s.SharedPoolID = DefaultSharedPoolID
	}
	if s.Notifier == nil {
		s.Notifier = NopNotifier{}
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return &Engine{
		DB:           db,
		Log:          log,
		Clock:        Clock.New(s.GapPolicy),
		Notifier:     s.Notifier,
		timeZone:     s.TimeZone,
		sharedPoolID: s.SharedPoolID,
		now:          s.Now,
	}, nil
}

func (e *Engine) TimeZone() string     { return e.timeZone }
func (e *Engine) SharedPoolID() string { return e.sharedPoolID }

func (e *Engine) Now() time.Time {
	return e.now().UTC()
}

// Today is the venue-local calendar date.
func (e *Engine) Today() string {
	d, _ := Clock.LocalDate(e.now(), e.timeZone)
	return d
}

func (e *Engine) localDate(t time.Time) string {
	d, _ := Clock.LocalDate(t, e.timeZone)
	return d
}

// serviceInstant turns a venue-local date into the absolute instant stored as a service timestamp.
func (e *Engine) serviceInstant(date string) (time.Time, error) {
	t, err := e.Clock.StartOfDay(date, e.timeZone)
	if err != nil {
		return time.Time{}, Models.ErrInvalidDate
	}
	return t.UTC(), nil
}

func (e *Engine) db(ctx context.Context) *gorm.DB {
	return e.DB.WithContext(ctx)
}

// notFound converts gorm's missing-row error into the lifecycle error for the entity.
func notFound(err error, missing *Models.Error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return missing
	}
	return err
}

func validateDate(s string) error {
	if !Clock.ValidDate(s) {
		return Models.ErrInvalidDate
	}
	return nil
}
