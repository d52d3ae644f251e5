/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package tick abstracts the periodic schedulers that drive the client: the
// render frame and the input sampler. Production code uses Every; tests use
// Manual to feed exact timestamps.
package tick

import (
	"sync"
	"time"
)

type Source interface {
	C() <-chan time.Time
	Stop()
}

type ticker struct {
	t *time.Ticker
}

// Every returns a Source backed by a time.Ticker.
func Every(d time.Duration) Source {
	return &ticker{t: time.NewTicker(d)}
}

func (t *ticker) C() <-chan time.Time { return t.t.C }

func (t *ticker) Stop() { t.t.Stop() }

// Hz converts a rate to a tick period, falling back to def when hz is not
// positive.
func Hz(hz int, def time.Duration) time.Duration {
	if hz <= 0 {
		return def
	}

	return time.Second / time.Duration(hz)
}

// Manual is a Source whose ticks are pushed by the caller.
type Manual struct {
	ch      chan time.Time
	once    sync.Once
	stopped chan struct{}
}

func NewManual() *Manual {
	return &Manual{
		ch:      make(chan time.Time),
		stopped: make(chan struct{}),
	}
}

func (m *Manual) C() <-chan time.Time { return m.ch }

func (m *Manual) Stop() {
	m.once.Do(func() { close(m.stopped) })
}

// Fire delivers one tick, blocking until the consumer takes it. It reports
// false if the source was stopped first.
func (m *Manual) Fire(t time.Time) bool {
	select {
	case m.ch <- t:
		return true
	case <-m.stopped:
		return false
	}
}

// Frame measures the time between successive ticks.
type Frame struct {
	Max  time.Duration
	last time.Time
}

// Delta returns the elapsed time since the previous call, capped at Max. The
// first call after Reset returns zero.
func (f *Frame) Delta(now time.Time) time.Duration {
	if f.last.IsZero() {
		f.last = now
		return 0
	}

	d := now.Sub(f.last)
	f.last = now

	if d < 0 {
		return 0
	}
	if f.Max > 0 && d > f.Max {
		return f.Max
	}

	return d
}

func (f *Frame) Reset() {
	f.last = time.Time{}
}
