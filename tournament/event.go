/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package tournament

import (
	"time"

	"github.com/Seednode/netpong/protocol"
)

// Event is the outcome of one tournament message.
type Event interface {
	isEvent()
}

type Ignored struct {
	Reason string
}

type RosterUpdated struct {
	State State
}

// MatchAssigned asks the owner to tear down any previous match and open the
// tournament-match channel for MatchID.
type MatchAssigned struct {
	MatchID    string
	OpponentID protocol.ID
	Stage      Stage
}

// CountdownTick reports the seconds left before the final. A non-zero StartIn
// asks the owner to call BeginFinal after that delay.
type CountdownTick struct {
	Seconds      int
	FinalMatchID string
	StartIn      time.Duration
}

// Finished is terminal; the owner tears down any live match.
type Finished struct {
	Results protocol.Results
	Won     bool
}

type Failed struct {
	Err error
}

func (Ignored) isEvent()       {}
func (RosterUpdated) isEvent() {}
func (MatchAssigned) isEvent() {}
func (CountdownTick) isEvent() {}
func (Finished) isEvent()      {}
func (Failed) isEvent()        {}
