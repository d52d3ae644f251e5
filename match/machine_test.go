package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/netpong/input"
	"github.com/Seednode/netpong/protocol"
	"github.com/Seednode/netpong/reconcile"
)

func f(v float64) *float64 { return &v }
func n(v int) *int         { return &v }

func start(p1, p2 protocol.ID) protocol.GameStart {
	return protocol.GameStart{
		RoomID:  "room-1",
		Player1: protocol.PlayerRef{ID: p1},
		Player2: protocol.PlayerRef{ID: p2},
	}
}

func assigned(t *testing.T, channel Channel, me protocol.ID) *Machine {
	t.Helper()

	m := New(channel, "", me, nil, nil)
	tr := m.Handle(start("A", "B"))
	require.IsType(t, Assigned{}, tr)

	return m
}

func TestRoleResolution(t *testing.T) {
	a := assigned(t, ChannelQueue, "A")
	b := assigned(t, ChannelQueue, "B")

	assert.Equal(t, 1, a.Context().MyPlayerNumber)
	assert.Equal(t, protocol.ID("B"), a.Context().OpponentID)
	assert.Equal(t, 2, b.Context().MyPlayerNumber)
	assert.Equal(t, protocol.ID("A"), b.Context().OpponentID)
	assert.Equal(t, "room-1", a.Context().MatchID)
	assert.True(t, a.Playing())
}

func TestRoleResolutionComparesAsStrings(t *testing.T) {
	m := New(ChannelTournament, "m1", "42", nil, nil)

	msg, err := protocol.Decode([]byte(`{"type":"game_start","player1":{"id":7},"player2":{"id":42}}`))
	require.NoError(t, err)

	tr := m.Handle(msg)
	require.IsType(t, Assigned{}, tr)
	assert.Equal(t, 2, m.Context().MyPlayerNumber)
}

func TestRoleAmbiguousIsRejected(t *testing.T) {
	m := New(ChannelQueue, "", "C", nil, nil)
	_, err := m.JoinQueue("")
	require.NoError(t, err)

	tr := m.Handle(start("A", "B"))
	failed, ok := tr.(Failed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, ErrRoleAmbiguous)
	assert.Equal(t, PhaseWaiting, m.Context().Phase)
	assert.Zero(t, m.Context().MyPlayerNumber)

	tr = m.Handle(protocol.UpdateBall{X: 0.2, Y: 0.2})
	assert.IsType(t, Ignored{}, tr, "updates before assignment are dropped")
}

func TestBallMirroredForPlayerTwoOnly(t *testing.T) {
	a := assigned(t, ChannelQueue, "A")
	b := assigned(t, ChannelQueue, "B")

	a.Handle(protocol.UpdateBall{X: 0.3, Y: 0.4})
	b.Handle(protocol.UpdateBall{X: 0.3, Y: 0.4})

	assert.InDelta(t, 0.3, a.Reconciler().Ball.TargetX, 1e-9)
	assert.InDelta(t, 0.7, b.Reconciler().Ball.TargetX, 1e-9)
	assert.InDelta(t, 0.4, b.Reconciler().Ball.TargetY, 1e-9)
}

func TestFirstUpdatePromotesToPlaying(t *testing.T) {
	m := assigned(t, ChannelQueue, "A")
	assert.Equal(t, PhaseAssigned, m.Context().Phase)

	m.Handle(protocol.UpdateBall{X: 0.5, Y: 0.5})
	assert.Equal(t, PhasePlaying, m.Context().Phase)
}

func TestQueuePaddleCorrection(t *testing.T) {
	m := assigned(t, ChannelQueue, "A")

	tr := m.Handle(protocol.UpdatePaddle{Player: protocol.SidePlayer1, PaddlePosition: f(0.55)})
	assert.IsType(t, Updated{}, tr, "within threshold")
	assert.InDelta(t, 0.5, m.Reconciler().Own, 1e-9)

	tr = m.Handle(protocol.UpdatePaddle{Player: protocol.SidePlayer1, PaddlePosition: f(0.8)})
	corrected, ok := tr.(Corrected)
	require.True(t, ok)
	assert.InDelta(t, 0.5, corrected.From, 1e-9)
	assert.InDelta(t, 0.8, m.Reconciler().Own, 1e-9)

	tr = m.Handle(protocol.UpdatePaddle{Player: protocol.SidePlayer2, PaddlePosition: f(0.1)})
	assert.IsType(t, Updated{}, tr)
	assert.InDelta(t, 0.1, m.Reconciler().Opponent.Target, 1e-9)
	assert.InDelta(t, 0.8, m.Reconciler().Own, 1e-9)
}

func TestTournamentPaddlesBySide(t *testing.T) {
	m := assigned(t, ChannelTournament, "B")

	tr := m.Handle(protocol.UpdatePaddle{LeftPaddle: f(0.2), RightPaddle: f(0.9)})
	assert.IsType(t, Corrected{}, tr)
	assert.InDelta(t, 0.9, m.Reconciler().Own, 1e-9)
	assert.InDelta(t, 0.2, m.Reconciler().Opponent.Target, 1e-9)
}

func TestScoreResetSnapsBallWhenTargetAlreadyCentred(t *testing.T) {
	m := assigned(t, ChannelQueue, "A")
	rec := m.Reconciler()

	m.Handle(protocol.UpdateBall{X: 0.9, Y: 0.1})
	rec.Advance(16 * time.Millisecond)
	m.Handle(protocol.UpdateBall{X: 0.5, Y: 0.5})
	require.NotEqual(t, reconcile.Center, rec.Ball.X)

	tr := m.Handle(protocol.UpdateScore{Player1Score: 1})
	assert.IsType(t, PointScored{}, tr)
	assert.Equal(t, PhasePointScored, m.Context().Phase)
	assert.Equal(t, reconcile.Center, rec.Ball.X)
	assert.Equal(t, reconcile.Center, rec.Ball.Y)

	m.Settle()
	assert.Equal(t, PhasePlaying, m.Context().Phase)
}

func TestScoreResetSnapsOnNextCentredBall(t *testing.T) {
	m := assigned(t, ChannelQueue, "B")
	rec := m.Reconciler()

	m.Handle(protocol.UpdateBall{X: 0.95, Y: 0.2})
	rec.Advance(16 * time.Millisecond)

	m.Handle(protocol.UpdateScore{Player2Score: 1})
	assert.NotEqual(t, reconcile.Center, rec.Ball.Y, "target not centred yet")

	m.Handle(protocol.UpdateBall{X: 0.5, Y: 0.5})
	assert.Equal(t, reconcile.Center, rec.Ball.X)
	assert.Equal(t, reconcile.Center, rec.Ball.Y)

	m.Handle(protocol.UpdateBall{X: 0.6, Y: 0.5})
	rec.Advance(16 * time.Millisecond)
	moved := rec.Ball.X
	require.Less(t, moved, reconcile.Center, "mirrored toward 0.4")

	m.Handle(protocol.UpdateBall{X: 0.5, Y: 0.5})
	assert.Equal(t, moved, rec.Ball.X, "later centred updates interpolate instead of snapping")
}

func TestScoreSnapOnlyConsidersFirstBallUpdate(t *testing.T) {
	m := assigned(t, ChannelQueue, "A")
	rec := m.Reconciler()

	m.Handle(protocol.UpdateBall{X: 0.9, Y: 0.2})
	rec.Advance(16 * time.Millisecond)

	m.Handle(protocol.UpdateScore{Player1Score: 1})
	m.Handle(protocol.UpdateBall{X: 0.7, Y: 0.4})
	rec.Advance(16 * time.Millisecond)
	x, y := rec.Ball.X, rec.Ball.Y
	require.NotEqual(t, reconcile.Center, x)

	m.Handle(protocol.UpdateBall{X: 0.5, Y: 0.5})
	assert.Equal(t, x, rec.Ball.X, "a centred update mid-rally does not snap")
	assert.Equal(t, y, rec.Ball.Y)
}

func TestScoreIsMonotonic(t *testing.T) {
	m := assigned(t, ChannelQueue, "A")

	m.Handle(protocol.UpdateScore{Player1Score: 2, Player2Score: 1})
	tr := m.Handle(protocol.UpdateScore{Player1Score: 1, Player2Score: 1})

	assert.IsType(t, Ignored{}, tr)
	assert.Equal(t, Score{Player1: 2, Player2: 1}, m.Context().Score)
	assert.Equal(t, 2, m.MyScore())
	assert.Equal(t, 1, m.OpponentScore())
}

func TestQueueGameOverSendsStatsOnce(t *testing.T) {
	m := assigned(t, ChannelQueue, "B")
	m.Handle(protocol.UpdateScore{Player1Score: 3, Player2Score: 5})

	tr := m.Handle(protocol.GameOver{Winner: "player2", Player1ID: "A", Player2ID: "B"})
	over, ok := tr.(GameOver)
	require.True(t, ok)
	require.NotNil(t, over.Stats)
	assert.True(t, over.Won)
	assert.Equal(t, protocol.NewGameOverStats("B", 5, true), *over.Stats)
	assert.Equal(t, "You won 5 - 3", over.Message)
	assert.True(t, m.Finished())
	assert.False(t, m.Playing())

	for _, stale := range []protocol.Message{
		protocol.GameOver{Winner: "player2", Player1ID: "A", Player2ID: "B"},
		protocol.UpdateBall{X: 0.1, Y: 0.1},
		protocol.UpdateScore{Player1Score: 9},
		protocol.Waiting{},
	} {
		assert.IsType(t, Ignored{}, m.Handle(stale))
	}
	assert.Equal(t, Score{Player1: 3, Player2: 5}, m.Context().Score)
}

func TestTournamentGameOverCarriesScoresWithoutStats(t *testing.T) {
	m := assigned(t, ChannelTournament, "A")

	tr := m.Handle(protocol.GameOver{Winner: "B", Player1ID: "A", Player2ID: "B", Player1Score: n(2), Player2Score: n(5)})
	over, ok := tr.(GameOver)
	require.True(t, ok)
	assert.Nil(t, over.Stats)
	assert.False(t, over.Won)
	assert.Equal(t, protocol.ID("B"), over.Winner)
	assert.Equal(t, Score{Player1: 2, Player2: 5}, over.Score)
	assert.Equal(t, "Opponent won 2 - 5", over.Message)
}

func TestWaitingRequeueResetsPositions(t *testing.T) {
	m := assigned(t, ChannelQueue, "A")
	m.Handle(protocol.UpdatePaddle{Player: protocol.SidePlayer1, PaddlePosition: f(0.9)})
	m.Handle(protocol.UpdatePaddle{Player: protocol.SidePlayer2, PaddlePosition: f(0.9)})

	tr := m.Handle(protocol.Waiting{})
	assert.IsType(t, Waiting{}, tr)
	assert.Equal(t, PhaseWaiting, m.Context().Phase)
	assert.Equal(t, reconcile.Center, m.Reconciler().Own)
	assert.Equal(t, reconcile.Center, m.Reconciler().Opponent.Target)
	assert.False(t, m.Playing())
}

func TestServerErrorIsNotTerminal(t *testing.T) {
	m := assigned(t, ChannelQueue, "A")

	tr := m.Handle(protocol.Error{Message: "room full"})
	failed, ok := tr.(Failed)
	require.True(t, ok)

	var serr ServerError
	require.ErrorAs(t, failed.Err, &serr)
	assert.Equal(t, "room full", serr.Message)
	assert.True(t, m.Playing())
}

func TestJoinCommands(t *testing.T) {
	q := New(ChannelQueue, "", "A", nil, nil)
	join, err := q.JoinQueue("r9")
	require.NoError(t, err)
	assert.Equal(t, protocol.NewJoinQueue("r9", "A"), join)

	_, err = q.JoinQueue("r9")
	assert.NoError(t, err, "re-entrant while waiting")

	q.Handle(start("A", "B"))
	_, err = q.JoinQueue("")
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	tm := New(ChannelTournament, "m1", "A", nil, nil)
	cmd, err := tm.Join()
	require.NoError(t, err)
	assert.Equal(t, protocol.ActionJoin, cmd.Action)
}

func TestInputGatedOnPlaying(t *testing.T) {
	m := New(ChannelQueue, "", "A", nil, nil)
	sample := input.Sample{Delta: -input.DefaultStep, Direction: protocol.DirectionUp, Send: true}

	_, ok := m.Input(sample)
	assert.False(t, ok)
	assert.Equal(t, reconcile.Center, m.Reconciler().Own)

	m.Handle(start("A", "B"))
	cmd, ok := m.Input(sample)
	require.True(t, ok)
	move, isMove := cmd.(protocol.MovePaddle)
	require.True(t, isMove)
	assert.Equal(t, protocol.SidePlayer1, move.Player)
	assert.Equal(t, "room-1", move.RoomID)
	assert.InDelta(t, 0.475, move.PaddlePosition, 1e-9)

	tm := assigned(t, ChannelTournament, "B")
	cmd, ok = tm.Input(input.Sample{Delta: input.DefaultStep, Direction: protocol.DirectionDown, Send: true})
	require.True(t, ok)
	assert.Equal(t, protocol.NewMove(protocol.DirectionDown), cmd)
}

func TestResetCentresEverything(t *testing.T) {
	m := assigned(t, ChannelTournament, "A")
	m.Handle(protocol.UpdateScore{Player1Score: 1, Player2Score: 2})
	m.Handle(protocol.UpdateBall{X: 0.1, Y: 0.9})

	m.Reset()

	assert.Equal(t, PhaseIdle, m.Context().Phase)
	assert.Equal(t, Score{}, m.Context().Score)
	assert.Equal(t, reconcile.Snapshot{Own: 0.5, Opponent: 0.5, BallX: 0.5, BallY: 0.5}, m.Reconciler().Snapshot())
}
