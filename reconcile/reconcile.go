/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package reconcile keeps the locally rendered paddle and ball positions
// converging on the values the server declares authoritative.
//
// The local player's paddle is predicted: input moves it immediately and the
// server value only replaces it when the two disagree by more than
// CorrectionThreshold. The opponent's paddle and the ball are never predicted;
// they are interpolated toward the last server value once per frame.
package reconcile

import (
	"math"
	"time"
)

const (
	// Rates are the fraction of the remaining distance closed per 60Hz frame.
	PaddleRate = 0.3
	BallRate   = 0.5

	// MaxDelta bounds a single frame step after a stall.
	MaxDelta = 50 * time.Millisecond

	// CorrectionThreshold is the largest disagreement between the predicted
	// own paddle and a server echo that is treated as redundant.
	CorrectionThreshold = 0.1

	Center = 0.5
)

// Clamp limits v to the normalised field [0,1].
func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return Center
	}

	return min(1, max(0, v))
}

// Approach moves v toward target by rate*dt*60 of the remaining distance.
// The factor is capped at 1 so a long frame lands on the target instead of
// overshooting it.
func Approach(v, target, rate float64, dt time.Duration) float64 {
	f := rate * dt.Seconds() * 60
	if f >= 1 {
		return target
	}
	if f <= 0 {
		return v
	}

	return v + (target-v)*f
}

// Follower is an interpolated scalar.
type Follower struct {
	Value  float64
	Target float64
}

func (f *Follower) step(rate float64, dt time.Duration) {
	f.Value = Approach(f.Value, f.Target, rate, dt)
}

type Ball struct {
	X, Y             float64
	TargetX, TargetY float64
}

// AtCenterTarget reports whether the authoritative ball position is exactly
// the serve position.
func (b Ball) AtCenterTarget() bool {
	return b.TargetX == Center && b.TargetY == Center
}

type Snapshot struct {
	Own      float64 `json:"own_paddle"`
	Opponent float64 `json:"opponent_paddle"`
	BallX    float64 `json:"ball_x"`
	BallY    float64 `json:"ball_y"`
}

// Reconciler is not safe for concurrent use; it belongs to the client's
// event loop.
type Reconciler struct {
	Own      float64
	Opponent Follower
	Ball     Ball

	PaddleRate float64
	BallRate   float64
	Threshold  float64
}

func New() *Reconciler {
	r := &Reconciler{
		PaddleRate: PaddleRate,
		BallRate:   BallRate,
		Threshold:  CorrectionThreshold,
	}
	r.Reset()

	return r
}

// Reset puts every paddle and the ball back on the centre line.
func (r *Reconciler) Reset() {
	r.Own = Center
	r.Opponent = Follower{Value: Center, Target: Center}
	r.Ball = Ball{X: Center, Y: Center, TargetX: Center, TargetY: Center}
}

// Nudge applies a predicted local move and returns the clamped position.
func (r *Reconciler) Nudge(delta float64) float64 {
	r.Own = Clamp(r.Own + delta)

	return r.Own
}

// Correct snaps the own paddle to the server value only when the prediction
// has drifted past the threshold. It reports whether a snap happened.
func (r *Reconciler) Correct(server float64) bool {
	server = Clamp(server)
	if math.Abs(r.Own-server) <= r.Threshold {
		return false
	}

	r.Own = server

	return true
}

func (r *Reconciler) SetOpponentTarget(v float64) {
	r.Opponent.Target = Clamp(v)
}

// SetBallTarget takes coordinates already converted to the local perspective.
func (r *Reconciler) SetBallTarget(x, y float64) {
	r.Ball.TargetX = Clamp(x)
	r.Ball.TargetY = Clamp(y)
}

func (r *Reconciler) SnapBallToCenter() {
	r.Ball = Ball{X: Center, Y: Center, TargetX: Center, TargetY: Center}
}

// Advance runs one frame of interpolation. dt is capped at MaxDelta.
func (r *Reconciler) Advance(dt time.Duration) {
	dt = min(dt, MaxDelta)
	if dt <= 0 {
		return
	}

	r.Opponent.step(r.PaddleRate, dt)

	x := Follower{Value: r.Ball.X, Target: r.Ball.TargetX}
	y := Follower{Value: r.Ball.Y, Target: r.Ball.TargetY}
	x.step(r.BallRate, dt)
	y.step(r.BallRate, dt)
	r.Ball.X, r.Ball.Y = x.Value, y.Value
}

func (r *Reconciler) Snapshot() Snapshot {
	return Snapshot{
		Own:      r.Own,
		Opponent: r.Opponent.Value,
		BallX:    r.Ball.X,
		BallY:    r.Ball.Y,
	}
}
