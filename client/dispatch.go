/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package client

import (
	"errors"

	"github.com/Seednode/netpong/logging"
	"github.com/Seednode/netpong/match"
	"github.com/Seednode/netpong/protocol"
	"github.com/Seednode/netpong/tournament"
	"github.com/Seednode/netpong/transport"
)

func (c *Client) dispatch(ev transport.Event) {
	src := ev.Source()
	if !src.Latest(ev.Generation()) {
		c.logf("CLIENT: dropping event from superseded %s connection", src.Name)

		return
	}

	switch ev := ev.(type) {
	case transport.Received:
		switch src {
		case c.tour:
			c.onTournament(c.tournament.Handle(ev.Msg))
		case c.queue, c.tmatch:
			if c.match == nil || c.matchSession() != src {
				c.logf("CLIENT: no match for %s on %s", ev.Msg.Type(), src.Name)

				return
			}
			c.onMatch(src, c.match.Handle(ev.Msg))
		}
	case transport.Closed:
		c.onClosed(ev)
	}
}

func (c *Client) onMatch(src *transport.Session, tr match.Transition) {
	switch tr := tr.(type) {
	case match.Waiting:
		c.notify(Notice{Kind: NoticeWaiting, Channel: src.Name})
	case match.Assigned:
		c.sampler.Reset()
		c.notify(Notice{Kind: NoticeMatchStarted, Channel: src.Name, Message: "playing against " + tr.Opponent.ID.String()})
	case match.PointScored:
		c.notify(Notice{Kind: NoticePointScored, Channel: src.Name})
	case match.GameOver:
		if tr.Stats != nil {
			if err := src.Send(*tr.Stats); err != nil {
				logging.Errorf("CLIENT: sending stats: %v", err)
			}
		}

		c.endMatch()
		if c.match.Channel() == match.ChannelTournament {
			c.tournament.StageOver(c.stage)
		}

		c.notify(Notice{Kind: NoticeMatchOver, Channel: src.Name, Message: tr.Message})
	case match.Failed:
		var serr match.ServerError
		if errors.As(tr.Err, &serr) {
			c.notify(Notice{Kind: NoticeServerError, Channel: src.Name, Message: serr.Message, Err: tr.Err})

			return
		}
		c.notify(Notice{Kind: NoticeError, Channel: src.Name, Err: tr.Err})
	}
}

func (c *Client) onTournament(ev tournament.Event) {
	switch ev := ev.(type) {
	case tournament.RosterUpdated:
		c.notify(Notice{Kind: NoticeTournamentUpdated, Channel: c.tour.Name, Message: ev.State.Token})
	case tournament.MatchAssigned:
		c.startTournamentMatch(c.ctx, ev)
	case tournament.CountdownTick:
		c.notify(Notice{Kind: NoticeCountdown, Channel: c.tour.Name, Message: ev.FinalMatchID})

		if ev.StartIn > 0 {
			finalID := ev.FinalMatchID
			c.after(scopeTournament, ev.StartIn, func() {
				if a, ok := c.tournament.BeginFinal(finalID); ok {
					c.startTournamentMatch(c.ctx, a)
				}
			})
		}
	case tournament.Finished:
		c.teardownMatch()
		c.stopTimers(scopeTournament)

		msg := "tournament over"
		if ev.Won {
			msg = "you won the tournament"
		}
		c.notify(Notice{Kind: NoticeTournamentFinished, Channel: c.tour.Name, Message: msg})
	case tournament.Failed:
		c.notify(Notice{Kind: NoticeServerError, Channel: c.tour.Name, Err: ev.Err})
	}
}

func (c *Client) onClosed(ev transport.Closed) {
	src := ev.From

	if ev.Clean {
		c.logf("CLIENT: %s closed", src.Name)

		return
	}

	if src == c.tmatch && c.match != nil && !c.match.Finished() {
		if delay, ok := src.Retry(); ok {
			c.logf("CLIENT: %s lost, retrying in %s", src.Name, delay)
			c.after(scopeMatch, delay, c.reconnectMatch)

			return
		}
	}

	if src != c.tour && (c.match == nil || c.match.Finished()) {
		c.logf("CLIENT: %s lost after match end", src.Name)

		return
	}

	if src == c.tour && c.tournament.Finished() {
		return
	}

	logging.Errorf("CLIENT: %s connection lost: %v", src.Name, ev.Err)
	c.notify(Notice{Kind: NoticeConnectionLost, Channel: src.Name, Err: ev.Err})
}

func (c *Client) reconnectMatch() {
	if c.match == nil || c.match.Finished() || c.tmatch.Open() {
		return
	}

	c.dialMatch(c.ctx, c.tmatch.Reconnect, func(err error) {
		if err != nil {
			logging.Errorf("CLIENT: %v", err)
			c.notify(Notice{Kind: NoticeConnectionLost, Channel: c.tmatch.Name, Err: err})

			return
		}

		if err := c.tmatch.Send(protocol.NewJoinMatch()); err != nil {
			logging.Errorf("CLIENT: %v", err)
		}
	})
}
