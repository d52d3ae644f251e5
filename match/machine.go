/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package match tracks the lifecycle of one Pong match and translates the
// server's player-1 point of view into the local player's.
package match

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Seednode/netpong/input"
	"github.com/Seednode/netpong/logging"
	"github.com/Seednode/netpong/protocol"
	"github.com/Seednode/netpong/reconcile"
)

type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseWaiting     Phase = "waiting_for_opponent"
	PhaseAssigned    Phase = "assigned"
	PhasePlaying     Phase = "playing"
	PhasePointScored Phase = "point_scored"
	PhaseGameOver    Phase = "game_over"
)

// Channel is the socket a match is played over. The two differ in command
// shapes and in whether stats are reported at the end.
type Channel int

const (
	ChannelQueue Channel = iota
	ChannelTournament
)

func (c Channel) String() string {
	if c == ChannelTournament {
		return "tournament-match"
	}

	return "queue"
}

var (
	ErrRoleAmbiguous = errors.New("local player is neither player1 nor player2")
	ErrAlreadyJoined = errors.New("match already joined")
)

// ServerError is an error message pushed by the server. It does not end the
// match.
type ServerError struct {
	Message string
}

func (e ServerError) Error() string {
	return "server: " + e.Message
}

type Score struct {
	Player1 int `json:"player1"`
	Player2 int `json:"player2"`
}

func (s Score) less(o Score) bool {
	return s.Player1 < o.Player1 || s.Player2 < o.Player2
}

// Context is everything known about the current match.
type Context struct {
	ID             uuid.UUID   `json:"id"`
	Channel        string      `json:"channel"`
	MatchID        string      `json:"match_id,omitempty"`
	MyPlayerNumber int         `json:"my_player_number"`
	MyID           protocol.ID `json:"my_id"`
	OpponentID     protocol.ID `json:"opponent_id,omitempty"`
	Phase          Phase       `json:"phase"`
	Score          Score       `json:"score"`
	Winner         protocol.ID `json:"winner,omitempty"`
	Won            bool        `json:"won"`
	Result         string      `json:"result,omitempty"`
}

type Machine struct {
	channel Channel
	rec     *reconcile.Reconciler
	logf    logging.Func

	ctx         Context
	snapPending bool
	statsSent   bool
}

func New(channel Channel, matchID string, myID protocol.ID, rec *reconcile.Reconciler, logf logging.Func) *Machine {
	if rec == nil {
		rec = reconcile.New()
	}

	m := &Machine{
		channel: channel,
		rec:     rec,
		logf:    logging.OrDiscard(logf),
	}
	m.ctx = Context{
		ID:      uuid.New(),
		Channel: channel.String(),
		MatchID: matchID,
		MyID:    myID,
		Phase:   PhaseIdle,
	}

	return m
}

func (m *Machine) Context() Context { return m.ctx }

func (m *Machine) Channel() Channel { return m.channel }

func (m *Machine) Reconciler() *reconcile.Reconciler { return m.rec }

// Playing reports whether local input should move the paddle.
func (m *Machine) Playing() bool {
	switch m.ctx.Phase {
	case PhaseAssigned, PhasePlaying, PhasePointScored:
		return true
	}

	return false
}

func (m *Machine) Finished() bool { return m.ctx.Phase == PhaseGameOver }

func (m *Machine) MyScore() int {
	if m.ctx.MyPlayerNumber == 2 {
		return m.ctx.Score.Player2
	}

	return m.ctx.Score.Player1
}

func (m *Machine) OpponentScore() int {
	if m.ctx.MyPlayerNumber == 2 {
		return m.ctx.Score.Player1
	}

	return m.ctx.Score.Player2
}

// JoinQueue moves to waiting and returns the queue join command.
func (m *Machine) JoinQueue(roomID string) (protocol.JoinQueue, error) {
	if err := m.enterWaiting(); err != nil {
		return protocol.JoinQueue{}, err
	}
	if roomID != "" {
		m.ctx.MatchID = roomID
	}

	return protocol.NewJoinQueue(roomID, m.ctx.MyID), nil
}

// Join moves to waiting and returns the tournament-match join command.
func (m *Machine) Join() (protocol.JoinMatch, error) {
	if err := m.enterWaiting(); err != nil {
		return protocol.JoinMatch{}, err
	}

	return protocol.NewJoinMatch(), nil
}

func (m *Machine) enterWaiting() error {
	switch m.ctx.Phase {
	case PhaseIdle, PhaseWaiting:
		m.ctx.Phase = PhaseWaiting

		return nil
	}

	return fmt.Errorf("join from phase %s: %w", m.ctx.Phase, ErrAlreadyJoined)
}

// Settle ends the transient point_scored phase. It is called once per frame.
func (m *Machine) Settle() {
	if m.ctx.Phase == PhasePointScored {
		m.ctx.Phase = PhasePlaying
	}
}

// Reset returns the machine to idle with every position centred and the
// score cleared.
func (m *Machine) Reset() {
	m.rec.Reset()
	m.ctx.Phase = PhaseIdle
	m.ctx.Score = Score{}
	m.ctx.MyPlayerNumber = 0
	m.ctx.OpponentID = ""
	m.ctx.Winner = ""
	m.ctx.Won = false
	m.ctx.Result = ""
	m.snapPending = false
	m.statsSent = false
}

// Input applies one input sample. It returns the command to send, if any.
// Nothing moves unless the match is being played.
func (m *Machine) Input(s input.Sample) (any, bool) {
	if !m.Playing() {
		return nil, false
	}

	if s.Moved() {
		m.rec.Nudge(s.Delta)
	}
	if !s.Send {
		return nil, false
	}

	switch m.channel {
	case ChannelTournament:
		if s.Direction == "" {
			return nil, false
		}

		return protocol.NewMove(s.Direction), true
	default:
		return protocol.NewMovePaddle(m.ctx.MatchID, protocol.Side(m.ctx.MyPlayerNumber), m.rec.Own), true
	}
}

// Handle applies one inbound message.
func (m *Machine) Handle(msg protocol.Message) Transition {
	if m.ctx.Phase == PhaseGameOver {
		m.logf("MATCH: %s ignoring %s after game over", m.ctx.ID, msg.Type())

		return Ignored{Reason: "game over"}
	}

	switch msg := msg.(type) {
	case protocol.Waiting:
		return m.waiting()
	case protocol.GameStart:
		return m.gameStart(msg)
	case protocol.UpdatePaddle:
		return m.updatePaddle(msg)
	case protocol.UpdateBall:
		return m.updateBall(msg)
	case protocol.UpdateScore:
		return m.updateScore(msg)
	case protocol.GameOver:
		return m.gameOver(msg)
	case protocol.Error:
		m.logf("MATCH: %s server error: %s", m.ctx.ID, msg.Message)

		return Failed{Err: ServerError{Message: msg.Message}}
	}

	return Ignored{Reason: "not a match message: " + msg.Type()}
}

func (m *Machine) waiting() Transition {
	m.rec.Reset()
	m.ctx.Phase = PhaseWaiting
	m.ctx.MyPlayerNumber = 0
	m.ctx.OpponentID = ""
	m.snapPending = false

	m.logf("MATCH: %s waiting for opponent", m.ctx.ID)

	return Waiting{}
}

func (m *Machine) gameStart(msg protocol.GameStart) Transition {
	me := m.ctx.MyID.String()
	p1, p2 := msg.Player1.ID.String(), msg.Player2.ID.String()

	var number int
	var opponent protocol.PlayerRef
	switch {
	case me != "" && me == p1 && me != p2:
		number, opponent = 1, msg.Player2
	case me != "" && me == p2 && me != p1:
		number, opponent = 2, msg.Player1
	default:
		err := fmt.Errorf("%w: me=%q player1=%q player2=%q", ErrRoleAmbiguous, me, p1, p2)
		logging.Errorf("MATCH: %s %v", m.ctx.ID, err)

		return Failed{Err: err}
	}

	m.ctx.ID = uuid.New()
	if msg.RoomID != "" {
		m.ctx.MatchID = msg.RoomID
	}
	m.ctx.MyPlayerNumber = number
	m.ctx.OpponentID = opponent.ID
	m.ctx.Phase = PhaseAssigned
	m.ctx.Score = Score{}
	m.ctx.Winner = ""
	m.ctx.Won = false
	m.ctx.Result = ""
	m.snapPending = false
	m.rec.Reset()

	m.logf("MATCH: %s assigned as player %d against %s", m.ctx.ID, number, opponent.ID)

	return Assigned{PlayerNumber: number, Opponent: opponent}
}

// update gates position and score messages on an assigned role and promotes
// assigned to playing.
func (m *Machine) update(kind string) (Transition, bool) {
	if m.ctx.MyPlayerNumber == 0 {
		m.logf("MATCH: %s ignoring %s before assignment", m.ctx.ID, kind)

		return Ignored{Reason: kind + " before assignment"}, false
	}

	if m.ctx.Phase == PhaseAssigned {
		m.ctx.Phase = PhasePlaying
	}

	return nil, true
}

func (m *Machine) updatePaddle(msg protocol.UpdatePaddle) Transition {
	if t, ok := m.update(msg.Type()); !ok {
		return t
	}

	var own, opp *float64
	if msg.PaddlePosition != nil {
		if msg.Player == protocol.Side(m.ctx.MyPlayerNumber) {
			own = msg.PaddlePosition
		} else {
			opp = msg.PaddlePosition
		}
	}
	if msg.LeftPaddle != nil || msg.RightPaddle != nil {
		own, opp = msg.LeftPaddle, msg.RightPaddle
		if m.ctx.MyPlayerNumber == 2 {
			own, opp = opp, own
		}
	}

	if opp != nil {
		m.rec.SetOpponentTarget(*opp)
	}
	if own != nil {
		before := m.rec.Own
		if m.rec.Correct(*own) {
			m.logf("MATCH: %s corrected own paddle %.3f -> %.3f", m.ctx.ID, before, m.rec.Own)

			return Corrected{From: before, To: m.rec.Own}
		}
	}

	return Updated{}
}

func (m *Machine) updateBall(msg protocol.UpdateBall) Transition {
	if t, ok := m.update(msg.Type()); !ok {
		return t
	}

	x := msg.X
	if m.ctx.MyPlayerNumber == 2 {
		x = 1 - x
	}
	m.rec.SetBallTarget(x, msg.Y)

	if m.snapPending {
		if m.rec.Ball.AtCenterTarget() {
			m.rec.SnapBallToCenter()
		}
		m.snapPending = false
	}

	return Updated{}
}

func (m *Machine) updateScore(msg protocol.UpdateScore) Transition {
	if t, ok := m.update(msg.Type()); !ok {
		return t
	}

	next := Score{Player1: max(0, msg.Player1Score), Player2: max(0, msg.Player2Score)}
	if next.less(m.ctx.Score) {
		m.logf("MATCH: %s ignoring stale score %d-%d (have %d-%d)",
			m.ctx.ID, next.Player1, next.Player2, m.ctx.Score.Player1, m.ctx.Score.Player2)

		return Ignored{Reason: "stale score"}
	}
	if next == m.ctx.Score {
		return Updated{}
	}

	m.ctx.Score = next
	m.ctx.Phase = PhasePointScored

	if m.rec.Ball.AtCenterTarget() {
		m.rec.SnapBallToCenter()
		m.snapPending = false
	} else {
		m.snapPending = true
	}

	m.logf("MATCH: %s score %d-%d", m.ctx.ID, next.Player1, next.Player2)

	return PointScored{Score: next}
}

func (m *Machine) gameOver(msg protocol.GameOver) Transition {
	if msg.Player1Score != nil && msg.Player2Score != nil {
		final := Score{Player1: *msg.Player1Score, Player2: *msg.Player2Score}
		if !final.less(m.ctx.Score) {
			m.ctx.Score = final
		}
	}

	winner := msg.WinnerID()
	if winner.IsZero() && m.ctx.MyPlayerNumber != 0 && m.MyScore() != m.OpponentScore() {
		winner = m.ctx.OpponentID
		if m.MyScore() > m.OpponentScore() {
			winner = m.ctx.MyID
		}
	}

	m.ctx.Phase = PhaseGameOver
	m.ctx.Winner = winner
	m.ctx.Won = !winner.IsZero() && winner.String() == m.ctx.MyID.String()
	m.ctx.Result = m.result(msg.Message)

	out := GameOver{
		Winner:  winner,
		Won:     m.ctx.Won,
		Score:   m.ctx.Score,
		Message: m.ctx.Result,
	}

	if m.channel == ChannelQueue && !m.statsSent {
		stats := protocol.NewGameOverStats(m.ctx.MyID, m.MyScore(), m.ctx.Won)
		out.Stats = &stats
		m.statsSent = true
	}

	m.logf("MATCH: %s game over: %s", m.ctx.ID, m.ctx.Result)

	return out
}

func (m *Machine) result(serverMessage string) string {
	text := "Opponent won"
	if m.ctx.Won {
		text = "You won"
	}
	if m.ctx.MyPlayerNumber != 0 {
		text = fmt.Sprintf("%s %d - %d", text, m.MyScore(), m.OpponentScore())
	}
	if serverMessage != "" {
		text += " (" + serverMessage + ")"
	}

	return text
}
