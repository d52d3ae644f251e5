/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package match

import "github.com/Seednode/netpong/protocol"

// Transition describes what a handled message did to the match.
type Transition interface {
	isTransition()
}

// Ignored covers stale, premature and foreign messages.
type Ignored struct {
	Reason string
}

type Waiting struct{}

type Assigned struct {
	PlayerNumber int
	Opponent     protocol.PlayerRef
}

// Updated means positions or targets changed without a correction.
type Updated struct{}

// Corrected means the predicted own paddle was snapped to the server value.
type Corrected struct {
	From, To float64
}

type PointScored struct {
	Score Score
}

// GameOver is terminal. Stats is set once on the queue channel and must be
// sent back to the server.
type GameOver struct {
	Winner  protocol.ID
	Won     bool
	Score   Score
	Message string
	Stats   *protocol.GameOverStats
}

type Failed struct {
	Err error
}

func (Ignored) isTransition()     {}
func (Waiting) isTransition()     {}
func (Assigned) isTransition()    {}
func (Updated) isTransition()     {}
func (Corrected) isTransition()   {}
func (PointScored) isTransition() {}
func (GameOver) isTransition()    {}
func (Failed) isTransition()      {}
