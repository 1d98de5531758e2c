package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/db"
)

// OverlapPolicy decides which existing start times conflict with a new one.
type OverlapPolicy string

const (
	// PolicyStrict treats appointments as [t, t+D) intervals and rejects any
	// intersection.
	PolicyStrict OverlapPolicy = "strict"
	// PolicyLegacy only rejects existing starts inside [t, t+D), so an
	// appointment already running when t begins is not detected.
	PolicyLegacy OverlapPolicy = "legacy"
)

func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch OverlapPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyLegacy:
		return PolicyLegacy, nil
	default:
		return "", fmt.Errorf("unknown overlap policy %q", s)
	}
}

// StorageGuard is the database backstop matching p. Legacy bookings may
// legitimately intersect, so only identical starts are refused there.
func (p OverlapPolicy) StorageGuard(d time.Duration) db.OverlapGuard {
	return db.OverlapGuard{Duration: d, StartOnly: p == PolicyLegacy}
}

// IsSlotConflict reports whether err is the storage backstop refusing an
// overlapping booking.
func IsSlotConflict(err error) bool {
	return db.IsOverlapGuardViolation(err)
}

// Window is the range of existing start times that conflict with a booking.
// To is always exclusive.
type Window struct {
	From          time.Time
	FromInclusive bool
	To            time.Time
}

func (p OverlapPolicy) Window(at time.Time, d time.Duration) Window {
	if p == PolicyLegacy {
		return Window{From: at, FromInclusive: true, To: at.Add(d)}
	}
	return Window{From: at.Add(-d), FromInclusive: false, To: at.Add(d)}
}

func (w Window) Contains(start time.Time) bool {
	if start.Before(w.From) || !start.Before(w.To) {
		return false
	}
	if start.Equal(w.From) {
		return w.FromInclusive
	}
	return true
}
