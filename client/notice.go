/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package client

import "fmt"

type NoticeKind string

const (
	NoticeWaiting            NoticeKind = "waiting"
	NoticeMatchStarted       NoticeKind = "match_started"
	NoticePointScored        NoticeKind = "point_scored"
	NoticeMatchOver          NoticeKind = "match_over"
	NoticeTournamentUpdated  NoticeKind = "tournament_updated"
	NoticeCountdown          NoticeKind = "countdown"
	NoticeTournamentFinished NoticeKind = "tournament_finished"
	NoticeServerError        NoticeKind = "server_error"
	NoticeConnectionLost     NoticeKind = "connection_lost"
	NoticeError              NoticeKind = "error"
)

// Notice is a user-facing event.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Channel string     `json:"channel,omitempty"`
	Message string     `json:"message,omitempty"`
	Err     error      `json:"-"`
}

func (n Notice) String() string {
	switch {
	case n.Err != nil:
		return fmt.Sprintf("%s: %v", n.Kind, n.Err)
	case n.Message != "":
		return fmt.Sprintf("%s: %s", n.Kind, n.Message)
	}

	return string(n.Kind)
}

// notify never blocks the loop. Notices are dropped when nobody reads them.
func (c *Client) notify(n Notice) {
	select {
	case c.notices <- n:
	default:
		c.logf("CLIENT: notice queue full, dropped %s", n)
	}
}
