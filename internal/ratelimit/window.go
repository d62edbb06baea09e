// Package ratelimit implements the per-key sliding-window admission check
// used by the queue service.
package ratelimit

import "time"

// Window is a per-key sliding-window rate limiter: at most maxEvents events
// per key within the configured duration.
//
// Every admitted request — whether it ends up routed to MAIN or sidelined
// to EXCESS — must record a timestamp, since sustained per-key overload
// depends on EXCESS-routed events aging the window the same way MAIN-routed
// ones do. A reserve-and-block limiter that only registers an event when
// the category isn't already blocked (catrate.Limiter.Allow, for instance)
// doesn't fit: once a hot key trips the limit, its window stops growing,
// ages out within one period, and lets a fresh burst straight back into
// MAIN. Window is deliberately a plain trimmed-slice-per-key instead, per
// the admission algorithm's own data model, so every call is recorded.
//
// Window is not safe for concurrent use on its own; the queue engine calls
// it only while already holding its own lock.
type Window struct {
	period    time.Duration
	maxEvents int
	events    map[string][]time.Time
}

// NewWindow builds a Window admitting at most maxEvents events per key
// within period.
func NewWindow(period time.Duration, maxEvents int) *Window {
	return &Window{
		period:    period,
		maxEvents: maxEvents,
		events:    make(map[string][]time.Time),
	}
}

// Allow records one event for key at the current time and reports whether
// the window, after recording it, is still within maxEvents. The event is
// always recorded, regardless of the return value — callers must call this
// exactly once per admitted request, MAIN- or EXCESS-routed alike.
func (w *Window) Allow(key string) bool {
	return w.allowAt(key, time.Now())
}

func (w *Window) allowAt(key string, now time.Time) bool {
	cutoff := now.Add(-w.period)
	kept := w.events[key][:0]
	for _, t := range w.events[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	w.events[key] = kept
	return len(kept) <= w.maxEvents
}
