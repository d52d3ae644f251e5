/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package tournament follows a four-player single-elimination bracket as the
// server reports it and decides which local actions are valid at each point.
package tournament

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Seednode/netpong/logging"
	"github.com/Seednode/netpong/protocol"
)

const (
	TokenLength = 8
	BracketSize = 4

	// FinalDelay is how long after the last countdown tick the final starts.
	FinalDelay = time.Second
)

var (
	ErrInvalidToken      = errors.New("token must be 8 characters")
	ErrFinished          = errors.New("tournament finished")
	ErrNoTournament      = errors.New("no tournament joined")
	ErrBracketIncomplete = errors.New("bracket needs four players")
	ErrAlreadyStarted    = errors.New("tournament already started")
	ErrRejected          = errors.New("tournament server error")
)

type Phase string

const (
	PhaseLobby            Phase = "lobby"
	PhaseMatchRunning     Phase = "match_running"
	PhaseCountdownToFinal Phase = "countdown_to_final"
	PhaseFinalRunning     Phase = "final_running"
	PhaseResults          Phase = "results"
	PhaseFinished         Phase = "finished"
)

// Stage is a bracket match. Slots 0 and 1 play Match1, slots 2 and 3 Match2.
type Stage int

const (
	StageNone Stage = iota
	StageMatch1
	StageMatch2
	StageFinal
)

func (s Stage) String() string {
	switch s {
	case StageMatch1:
		return "match1"
	case StageMatch2:
		return "match2"
	case StageFinal:
		return "final"
	}

	return "none"
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(text []byte) error {
	for _, st := range []Stage{StageNone, StageMatch1, StageMatch2, StageFinal} {
		if st.String() == string(text) {
			*s = st

			return nil
		}
	}

	return fmt.Errorf("unknown stage %q", text)
}

type Participant struct {
	ID          protocol.ID `json:"id"`
	DisplayName string      `json:"display_name"`
	AvatarURL   string      `json:"avatar_url"`
	IsCreator   bool        `json:"is_creator"`
}

type State struct {
	Token           string            `json:"token,omitempty"`
	Participants    []Participant     `json:"participants"`
	Creator         protocol.ID       `json:"creator,omitempty"`
	ShowStartButton bool              `json:"show_start_button"`
	Phase           Phase             `json:"phase"`
	Stage           Stage             `json:"stage"`
	MatchID         string            `json:"match_id,omitempty"`
	OpponentID      protocol.ID       `json:"opponent_id,omitempty"`
	FinalMatchID    string            `json:"final_match_id,omitempty"`
	Countdown       int               `json:"countdown,omitempty"`
	Results         *protocol.Results `json:"results,omitempty"`
	Finished        bool              `json:"finished"`
}

// Full reports whether all four bracket slots are taken.
func (s State) Full() bool {
	return len(s.Participants) >= BracketSize
}

type Orchestrator struct {
	me      protocol.ID
	avatars AvatarResolver
	logf    logging.Func

	state          State
	startRequested bool
	finalScheduled bool
	finalStarted   bool
	started        map[string]bool
}

func New(me protocol.ID, avatars AvatarResolver, logf logging.Func) *Orchestrator {
	if avatars == nil {
		avatars = DefaultAvatars("")
	}

	o := &Orchestrator{
		me:      me,
		avatars: avatars,
		logf:    logging.OrDiscard(logf),
	}
	o.reset()

	return o
}

func (o *Orchestrator) reset() {
	o.state = State{Phase: PhaseLobby}
	o.startRequested = false
	o.finalScheduled = false
	o.finalStarted = false
	o.started = make(map[string]bool)
}

// State returns a copy of the current tournament state.
func (o *Orchestrator) State() State {
	s := o.state
	s.Participants = slices.Clone(o.state.Participants)

	return s
}

func (o *Orchestrator) Phase() Phase { return o.state.Phase }

func (o *Orchestrator) Finished() bool { return o.state.Finished }

// Active reports whether a tournament has been created or joined and has
// not finished.
func (o *Orchestrator) Active() bool {
	return o.state.Token != "" && !o.state.Finished
}

// Create starts over, clearing any previous tournament including a finished
// one.
func (o *Orchestrator) Create() protocol.CreateTournament {
	o.reset()
	o.logf("TOURNAMENT: creating new tournament")

	return protocol.NewCreateTournament()
}

func (o *Orchestrator) Join(token string) (protocol.JoinTournament, error) {
	if o.state.Finished {
		return protocol.JoinTournament{}, ErrFinished
	}

	token = strings.TrimSpace(token)
	if len(token) != TokenLength {
		return protocol.JoinTournament{}, fmt.Errorf("%w: got %q", ErrInvalidToken, token)
	}

	o.logf("TOURNAMENT: joining %s", token)

	return protocol.NewJoinTournament(token), nil
}

// Start is valid once per tournament, from the lobby, with a full bracket.
func (o *Orchestrator) Start() (protocol.StartTournamentCommand, error) {
	switch {
	case o.state.Finished:
		return protocol.StartTournamentCommand{}, ErrFinished
	case o.state.Token == "":
		return protocol.StartTournamentCommand{}, ErrNoTournament
	case o.startRequested || o.state.Phase != PhaseLobby:
		return protocol.StartTournamentCommand{}, ErrAlreadyStarted
	case !o.state.Full():
		return protocol.StartTournamentCommand{}, fmt.Errorf("%w: have %d", ErrBracketIncomplete, len(o.state.Participants))
	}

	o.startRequested = true
	o.logf("TOURNAMENT: starting %s", o.state.Token)

	return protocol.NewStartTournament(o.state.Token), nil
}

// Leave discards the tournament entirely.
func (o *Orchestrator) Leave() {
	if o.state.Token != "" {
		o.logf("TOURNAMENT: leaving %s", o.state.Token)
	}

	o.reset()
}

func (o *Orchestrator) Handle(msg protocol.Message) Event {
	if o.state.Finished {
		o.logf("TOURNAMENT: ignoring %s after results", msg.Type())

		return Ignored{Reason: "tournament finished"}
	}

	switch msg := msg.(type) {
	case protocol.TournamentInfo:
		return o.info(msg)
	case protocol.StartTournament:
		return o.matchStart(msg)
	case protocol.CountdownToFinal:
		return o.countdown(msg)
	case protocol.TournamentResults:
		return o.results(msg)
	case protocol.Error:
		o.startRequested = false
		o.logf("TOURNAMENT: server error: %s", msg.Message)

		return Failed{Err: fmt.Errorf("%w: %s", ErrRejected, msg.Message)}
	}

	return Ignored{Reason: "not a tournament message: " + msg.Type()}
}

func (o *Orchestrator) info(msg protocol.TournamentInfo) Event {
	o.state.Token = msg.Token
	o.state.Creator = msg.Creator
	o.state.ShowStartButton = msg.ShowStartButton
	o.state.Participants = make([]Participant, 0, len(msg.Participants))

	for _, p := range msg.Participants {
		o.state.Participants = append(o.state.Participants, Participant{
			ID:          p.ID,
			DisplayName: displayName(p),
			AvatarURL:   o.avatars.Avatar(p),
			IsCreator:   p.IsCreator || (!msg.Creator.IsZero() && p.ID.String() == msg.Creator.String()),
		})
	}

	o.logf("TOURNAMENT: %s roster now %d/%d", msg.Token, len(o.state.Participants), BracketSize)

	return RosterUpdated{State: o.State()}
}

func displayName(p protocol.Participant) string {
	if p.Login != "" {
		return p.Login
	}

	return p.ID.String()
}

func (o *Orchestrator) matchStart(msg protocol.StartTournament) Event {
	if o.started[msg.MatchID] {
		o.logf("TOURNAMENT: duplicate start for match %s", msg.MatchID)

		return Ignored{Reason: "duplicate match start"}
	}

	pending := o.state.FinalMatchID
	if o.state.Phase == PhaseCountdownToFinal && pending != "" && msg.MatchID != pending {
		o.logf("TOURNAMENT: ignoring start of %s while final %s is pending", msg.MatchID, pending)

		return Ignored{Reason: "match start is not the pending final"}
	}

	var stage Stage
	switch o.state.Phase {
	case PhaseLobby:
		stage = o.StageOf(o.me)
		o.state.Phase = PhaseMatchRunning
	case PhaseMatchRunning, PhaseCountdownToFinal:
		if o.finalStarted {
			return Ignored{Reason: "final already running"}
		}
		stage = StageFinal
		o.state.Phase = PhaseFinalRunning
		o.finalStarted = true
	default:
		o.logf("TOURNAMENT: ignoring match start in phase %s", o.state.Phase)

		return Ignored{Reason: "match start in phase " + string(o.state.Phase)}
	}

	o.startRequested = false
	o.started[msg.MatchID] = true
	o.state.Stage = stage
	o.state.MatchID = msg.MatchID
	o.state.OpponentID = msg.OpponentID

	o.logf("TOURNAMENT: %s assigned as match %s against %s", stage, msg.MatchID, msg.OpponentID)

	return MatchAssigned{MatchID: msg.MatchID, OpponentID: msg.OpponentID, Stage: stage}
}

func (o *Orchestrator) countdown(msg protocol.CountdownToFinal) Event {
	switch o.state.Phase {
	case PhaseLobby, PhaseMatchRunning, PhaseCountdownToFinal:
	default:
		return Ignored{Reason: "countdown in phase " + string(o.state.Phase)}
	}
	if o.finalStarted {
		return Ignored{Reason: "final already running"}
	}

	o.state.Phase = PhaseCountdownToFinal
	o.state.Countdown = msg.Seconds
	o.state.FinalMatchID = msg.FinalMatchID

	ev := CountdownTick{Seconds: msg.Seconds, FinalMatchID: msg.FinalMatchID}
	if msg.Seconds <= 1 && !o.finalScheduled {
		o.finalScheduled = true
		ev.StartIn = FinalDelay
	}

	o.logf("TOURNAMENT: final %s in %ds", msg.FinalMatchID, msg.Seconds)

	return ev
}

// BeginFinal hands off to the final once the countdown timer fires. Only the
// first call has any effect.
func (o *Orchestrator) BeginFinal(matchID string) (MatchAssigned, bool) {
	if o.state.Finished || o.finalStarted || o.state.Phase != PhaseCountdownToFinal {
		return MatchAssigned{}, false
	}
	if matchID == "" {
		matchID = o.state.FinalMatchID
	}
	if o.started[matchID] {
		return MatchAssigned{}, false
	}

	o.finalStarted = true
	o.started[matchID] = true
	o.state.Phase = PhaseFinalRunning
	o.state.Stage = StageFinal
	o.state.MatchID = matchID
	o.state.OpponentID = ""

	o.logf("TOURNAMENT: final %s starting", matchID)

	return MatchAssigned{MatchID: matchID, Stage: StageFinal}, true
}

// StageOver records that the local player's match for stage has ended. After
// the final the bracket outcome is awaited.
func (o *Orchestrator) StageOver(stage Stage) bool {
	if stage != StageFinal || o.state.Phase != PhaseFinalRunning {
		return false
	}

	o.state.Phase = PhaseResults

	return true
}

func (o *Orchestrator) results(msg protocol.TournamentResults) Event {
	results := msg.Results
	o.state.Results = &results
	o.state.Phase = PhaseFinished
	o.state.Finished = true
	o.state.ShowStartButton = false

	o.logf("TOURNAMENT: %s won by %s", o.state.Token, results.Final.Winner)

	return Finished{Results: results, Won: !o.me.IsZero() && results.Final.Winner.String() == o.me.String()}
}

// Slots returns the bracket in slot order, with zero values for open slots.
func (o *Orchestrator) Slots() [BracketSize]Participant {
	var out [BracketSize]Participant
	copy(out[:], o.state.Participants)

	return out
}

// StageOf returns the first-round stage of id, or StageNone when id is not
// in the bracket.
func (o *Orchestrator) StageOf(id protocol.ID) Stage {
	for i, p := range o.state.Participants {
		if i >= BracketSize {
			break
		}
		if p.ID.String() == id.String() {
			if i < 2 {
				return StageMatch1
			}

			return StageMatch2
		}
	}

	return StageNone
}
