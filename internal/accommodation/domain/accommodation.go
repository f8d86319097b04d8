package domain

import (
	"errors"
	"time"
)

var (
	// ErrInvalidRange rejects empty or inverted stays before any slot is touched.
	ErrInvalidRange = errors.New("invalid date range")
	ErrNotFound     = errors.New("accommodation not found")
)

// Unit is an accommodation with its optimistic-concurrency token. Version
// increments on every successful lock; callers must present the version they
// last read.
type Unit struct {
	ID            int64
	Version       int64
	DailyRate     int64 // cents per night
	TotalCapacity int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Slot is one unit-day. A stay locks every slot in [checkIn, checkOut).
type Slot struct {
	AccommodationID int64
	Date            time.Time
	Locked          bool
}

// LockResult reports the outcome of a lock attempt. Reason is set on failure.
type LockResult struct {
	Success   bool
	Reason    string
	DailyRate int64
}

const (
	ReasonStaleVersion = "stale version, re-read and retry"
	ReasonDatesTaken   = "dates unavailable"
)

// Day normalizes a timestamp to its calendar day in UTC; slot identity is the
// day, never the wall clock.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Nights returns the stay length for [checkIn, checkOut). Zero or negative
// means the range is invalid.
func Nights(checkIn, checkOut time.Time) int {
	return int(Day(checkOut).Sub(Day(checkIn)).Hours() / 24)
}
