/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package protocol

// Client→server discriminators. The queue channel's join uses "type"; every
// other command uses "action".
const (
	ActionJoinQueue        = "join_queue"
	ActionMovePaddle       = "move_paddle"
	ActionGameOver         = "game_over"
	ActionCreateTournament = "create_tournament"
	ActionJoinTournament   = "join_tournament"
	ActionStartTournament  = "start_tournament"
	ActionJoin             = "join"
	ActionMove             = "move"
)

// Side names used by move_paddle and update_paddle on the queue channel.
const (
	SidePlayer1 = "player1"
	SidePlayer2 = "player2"
)

// Side returns the wire name for a player number, or "" when unknown.
func Side(playerNumber int) string {
	switch playerNumber {
	case 1:
		return SidePlayer1
	case 2:
		return SidePlayer2
	}

	return ""
}

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

type JoinQueue struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id,omitempty"`
	UserID ID     `json:"user_id"`
}

type MovePaddle struct {
	Action         string  `json:"action"`
	RoomID         string  `json:"room_id,omitempty"`
	Player         string  `json:"player"`
	PaddlePosition float64 `json:"paddle_position"`
}

// GameOverStats is the one-shot stats report the queue channel expects when a
// match ends.
type GameOverStats struct {
	Action       string `json:"action"`
	PlayerID     ID     `json:"player_id"`
	PointsScored int    `json:"points_scored"`
	HasWon       bool   `json:"has_won"`
}

type CreateTournament struct {
	Action string `json:"action"`
}

type JoinTournament struct {
	Action string `json:"action"`
	Token  string `json:"token"`
}

type StartTournamentCommand struct {
	Action string `json:"action"`
	Token  string `json:"token"`
}

type JoinMatch struct {
	Action string `json:"action"`
}

type Move struct {
	Action    string    `json:"action"`
	Direction Direction `json:"direction"`
}

func NewJoinQueue(roomID string, userID ID) JoinQueue {
	return JoinQueue{Type: ActionJoinQueue, RoomID: roomID, UserID: userID}
}

func NewMovePaddle(roomID, player string, position float64) MovePaddle {
	return MovePaddle{Action: ActionMovePaddle, RoomID: roomID, Player: player, PaddlePosition: position}
}

func NewGameOverStats(playerID ID, points int, won bool) GameOverStats {
	return GameOverStats{Action: ActionGameOver, PlayerID: playerID, PointsScored: points, HasWon: won}
}

func NewCreateTournament() CreateTournament {
	return CreateTournament{Action: ActionCreateTournament}
}

func NewJoinTournament(token string) JoinTournament {
	return JoinTournament{Action: ActionJoinTournament, Token: token}
}

func NewStartTournament(token string) StartTournamentCommand {
	return StartTournamentCommand{Action: ActionStartTournament, Token: token}
}

func NewJoinMatch() JoinMatch {
	return JoinMatch{Action: ActionJoin}
}

func NewMove(d Direction) Move {
	return Move{Action: ActionMove, Direction: d}
}
