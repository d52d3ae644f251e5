/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package input turns held-key state into paddle motion and outbound move
// commands at a fixed sampling rate.
package input

import (
	"strings"
	"sync"
	"time"

	"github.com/Seednode/netpong/protocol"
)

const (
	DefaultStep         = 0.025
	DefaultInterval     = 20 * time.Millisecond
	DefaultSendInterval = 50 * time.Millisecond
)

type Key string

const (
	KeyUp   Key = "up"
	KeyDown Key = "down"
)

// ParseKey maps browser-style key names onto paddle keys.
func ParseKey(name string) (Key, bool) {
	switch strings.ToLower(name) {
	case "w", "arrowup", "up":
		return KeyUp, true
	case "s", "arrowdown", "down":
		return KeyDown, true
	}

	return "", false
}

// Keys reports which paddle keys are currently held.
type Keys interface {
	Held() (up, down bool)
}

// KeyState is a Keys that can be written from any goroutine.
type KeyState struct {
	mu   sync.Mutex
	up   bool
	down bool
}

func (k *KeyState) Set(key Key, held bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	switch key {
	case KeyUp:
		k.up = held
	case KeyDown:
		k.down = held
	}
}

func (k *KeyState) Press(key Key)   { k.Set(key, true) }
func (k *KeyState) Release(key Key) { k.Set(key, false) }

// Clear releases every key, as when focus is lost.
func (k *KeyState) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.up, k.down = false, false
}

func (k *KeyState) Held() (bool, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.up, k.down
}

// Mode selects what the sampler emits. The queue channel wants the absolute
// paddle position; the tournament-match channel wants a direction.
type Mode int

const (
	ModePosition Mode = iota
	ModeDirection
)

type Sample struct {
	// Delta is the predicted paddle move for this tick; zero when idle.
	Delta     float64
	Direction protocol.Direction
	// Send is set when a move command should be written now.
	Send bool
}

func (s Sample) Moved() bool { return s.Delta != 0 }

type Sampler struct {
	Keys    Keys
	Mode    Mode
	Step    float64
	MinSend time.Duration

	lastSend time.Time
	dirty    bool
}

func NewSampler(keys Keys, mode Mode, minSend time.Duration) *Sampler {
	return &Sampler{
		Keys:    keys,
		Mode:    mode,
		Step:    DefaultStep,
		MinSend: minSend,
	}
}

// Sample reads the keys once. In position mode a move that was throttled is
// remembered and sent on the next permitted tick, so the last position always
// reaches the server. Direction commands are not replayed.
func (s *Sampler) Sample(now time.Time) Sample {
	var out Sample

	up, down := s.Keys.Held()
	switch {
	case up && !down:
		out.Delta = -s.Step
		out.Direction = protocol.DirectionUp
	case down && !up:
		out.Delta = s.Step
		out.Direction = protocol.DirectionDown
	}

	if out.Moved() {
		s.dirty = true
	}

	if !s.lastSend.IsZero() && now.Sub(s.lastSend) < s.MinSend {
		if s.Mode == ModeDirection {
			s.dirty = false
		}

		return out
	}

	switch s.Mode {
	case ModePosition:
		out.Send = s.dirty
	case ModeDirection:
		out.Send = out.Moved()
	}

	if out.Send {
		s.lastSend = now
	}
	s.dirty = false

	return out
}

func (s *Sampler) Reset() {
	s.lastSend = time.Time{}
	s.dirty = false
}
