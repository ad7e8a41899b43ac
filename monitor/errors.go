package monitor

import (
	"errors"

	"github.com/Adversit/competitor-intel/monitor/internal/schedule"
)

// ErrSourceNotFound is returned when an operation references an unknown source.
var ErrSourceNotFound = errors.New("monitor: source not found")

// ErrCompetitorNotFound is returned when an operation references an unknown competitor.
var ErrCompetitorNotFound = errors.New("monitor: competitor not found")

// ErrEventNotFound is returned when an operation references an unknown change event.
var ErrEventNotFound = errors.New("monitor: change event not found")

// ErrBattlecardNotFound is returned when a competitor has no battlecard yet.
var ErrBattlecardNotFound = errors.New("monitor: battlecard not found")

// ErrDuplicateSource is returned when a source with the same URL already exists.
var ErrDuplicateSource = errors.New("monitor: source with this URL already exists")

// ErrInvalidInput is returned when input fails validation.
var ErrInvalidInput = errors.New("monitor: invalid input")

// ErrQuotaExceeded is returned when a resource limit is reached.
var ErrQuotaExceeded = errors.New("monitor: quota exceeded")

// ErrBadSchedule is returned when a cron expression cannot be parsed.
// Reported synchronously at source-add/update time; the source is left
// unscheduled.
var ErrBadSchedule = schedule.ErrBadSchedule
