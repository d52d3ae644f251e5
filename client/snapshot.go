/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package client

import (
	"time"

	"github.com/Seednode/netpong/match"
	"github.com/Seednode/netpong/reconcile"
	"github.com/Seednode/netpong/tournament"
)

// Snapshot is what a renderer needs. It is rebuilt by the loop and may be
// read from any goroutine.
type Snapshot struct {
	At         time.Time          `json:"at"`
	Match      *match.Context     `json:"match,omitempty"`
	Positions  reconcile.Snapshot `json:"positions"`
	Tournament tournament.State   `json:"tournament"`
}

func (c *Client) Snapshot() Snapshot {
	if s := c.snapshot.Load(); s != nil {
		return *s
	}

	return Snapshot{Positions: reconcile.New().Snapshot()}
}

func (c *Client) publish() {
	s := &Snapshot{
		At:         time.Now(),
		Tournament: c.tournament.State(),
	}

	if c.match != nil {
		ctx := c.match.Context()
		s.Match = &ctx
		s.Positions = c.match.Reconciler().Snapshot()
	} else {
		s.Positions = reconcile.New().Snapshot()
	}

	c.snapshot.Store(s)
}
