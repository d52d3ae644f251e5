/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package protocol

// Server→client message types.
const (
	TypeWaiting           = "waiting"
	TypeGameStart         = "game_start"
	TypeUpdatePaddle      = "update_paddle"
	TypeUpdateBall        = "update_ball"
	TypeUpdateScore       = "update_score"
	TypeGameOver          = "game_over"
	TypeError             = "error"
	TypeTournamentInfo    = "tournament_info"
	TypeStartTournament   = "start_tournament"
	TypeCountdownToFinal  = "countdown_to_final"
	TypeTournamentResults = "tournament_results"
)

// Message is one decoded server→client envelope. The set of implementations
// is closed; switch on the concrete type.
type Message interface {
	Type() string
	isMessage()
}

type Waiting struct {
	Message string `json:"message,omitempty"`
}

type GameStart struct {
	RoomID  string    `json:"room_id,omitempty"`
	Player1 PlayerRef `json:"player1"`
	Player2 PlayerRef `json:"player2"`
}

// UpdatePaddle carries either the queue form (Player + PaddlePosition) or the
// tournament-match form (LeftPaddle and RightPaddle).
type UpdatePaddle struct {
	Player         string   `json:"player,omitempty"`
	PaddlePosition *float64 `json:"paddle_position,omitempty"`
	LeftPaddle     *float64 `json:"left_paddle,omitempty"`
	RightPaddle    *float64 `json:"right_paddle,omitempty"`
}

// UpdateBall is always expressed from player 1's frame of reference.
type UpdateBall struct {
	X float64 `json:"ball_position_x"`
	Y float64 `json:"ball_position_y"`
}

type UpdateScore struct {
	Player1Score int `json:"player1_score"`
	Player2Score int `json:"player2_score"`
}

type GameOver struct {
	Winner       ID     `json:"winner"`
	Player1ID    ID     `json:"player1_id"`
	Player2ID    ID     `json:"player2_id"`
	Player1Score *int   `json:"player1_score,omitempty"`
	Player2Score *int   `json:"player2_score,omitempty"`
	Message      string `json:"message,omitempty"`
}

// WinnerID resolves the winner field, which the server sends either as a
// side name ("player1", "player2") or as the winning user's id.
func (g GameOver) WinnerID() ID {
	switch g.Winner {
	case SidePlayer1, "1":
		return g.Player1ID
	case SidePlayer2, "2":
		return g.Player2ID
	}

	return g.Winner
}

type Error struct {
	Message string `json:"message"`
}

type Participant struct {
	ID        ID     `json:"id"`
	Login     string `json:"intra_login"`
	Picture   string `json:"intra_picture,omitempty"`
	IsCreator bool   `json:"is_creator,omitempty"`
}

type TournamentInfo struct {
	Token           string        `json:"token"`
	Participants    []Participant `json:"participants"`
	Creator         ID            `json:"creator"`
	ShowStartButton bool          `json:"show_start_button"`
}

type StartTournament struct {
	MatchID    string `json:"match_id"`
	OpponentID ID     `json:"opponent_id"`
	UserID     ID     `json:"user_id"`
}

type CountdownToFinal struct {
	Seconds      int    `json:"seconds"`
	FinalMatchID string `json:"final_match_id"`
}

type StageResult struct {
	Players []ID `json:"players"`
	Winner  ID   `json:"winner"`
}

type Results struct {
	Match1 StageResult `json:"match1"`
	Match2 StageResult `json:"match2"`
	Final  StageResult `json:"final"`
}

type TournamentResults struct {
	Results Results `json:"results"`
}

func (Waiting) Type() string           { return TypeWaiting }
func (GameStart) Type() string         { return TypeGameStart }
func (UpdatePaddle) Type() string      { return TypeUpdatePaddle }
func (UpdateBall) Type() string        { return TypeUpdateBall }
func (UpdateScore) Type() string       { return TypeUpdateScore }
func (GameOver) Type() string          { return TypeGameOver }
func (Error) Type() string             { return TypeError }
func (TournamentInfo) Type() string    { return TypeTournamentInfo }
func (StartTournament) Type() string   { return TypeStartTournament }
func (CountdownToFinal) Type() string  { return TypeCountdownToFinal }
func (TournamentResults) Type() string { return TypeTournamentResults }

func (Waiting) isMessage()           {}
func (GameStart) isMessage()         {}
func (UpdatePaddle) isMessage()      {}
func (UpdateBall) isMessage()        {}
func (UpdateScore) isMessage()       {}
func (GameOver) isMessage()          {}
func (Error) isMessage()             {}
func (TournamentInfo) isMessage()    {}
func (StartTournament) isMessage()   {}
func (CountdownToFinal) isMessage()  {}
func (TournamentResults) isMessage() {}
