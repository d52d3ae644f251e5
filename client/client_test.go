package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/netpong/input"
	"github.com/Seednode/netpong/match"
	"github.com/Seednode/netpong/protocol"
	"github.com/Seednode/netpong/tick"
	"github.com/Seednode/netpong/tournament"
)

const (
	frameEvery = 16 * time.Millisecond
	inputEvery = 20 * time.Millisecond
	wait       = 2 * time.Second
	poll       = 5 * time.Millisecond
)

// peer is one server-side connection of the fake server.
type peer struct {
	conn *websocket.Conn
	in   chan map[string]any
	out  chan string
}

func (p *peer) send(t *testing.T, frame string) {
	t.Helper()

	select {
	case p.out <- frame:
	case <-time.After(wait):
		t.Fatalf("peer did not accept %s", frame)
	}
}

func (p *peer) expect(t *testing.T) map[string]any {
	t.Helper()

	select {
	case m := <-p.in:
		return m
	case <-time.After(wait):
		t.Fatal("peer received nothing")
		return nil
	}
}

func (p *peer) kill() {
	_ = p.conn.UnderlyingConn().Close()
}

type fakeServer struct {
	url string

	mu    sync.Mutex
	peers map[string]chan *peer
	gates map[string]*gate
}

// gate stalls the websocket handshake on one path until released.
type gate struct {
	arrived chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gate) open() {
	g.once.Do(func() { close(g.release) })
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	fs := &fakeServer{peers: make(map[string]chan *peer), gates: make(map[string]*gate)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g := fs.gate(r.URL.Path); g != nil {
			select {
			case g.arrived <- struct{}{}:
			default:
			}
			<-g.release
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		p := &peer{conn: conn, in: make(chan map[string]any, 16), out: make(chan string)}
		fs.accepted(r.URL.Path) <- p

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				var m map[string]any
				if err := conn.ReadJSON(&m); err != nil {
					return
				}
				p.in <- m
			}
		}()

		for {
			select {
			case frame := <-p.out:
				if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	fs.url = "ws" + strings.TrimPrefix(srv.URL, "http")

	return fs
}

func (fs *fakeServer) accepted(path string) chan *peer {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ch, ok := fs.peers[path]
	if !ok {
		ch = make(chan *peer, 4)
		fs.peers[path] = ch
	}

	return ch
}

func (fs *fakeServer) gate(path string) *gate {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.gates[path]
}

// hold stalls handshakes on path until release is called or the test ends.
func (fs *fakeServer) hold(t *testing.T, path string) (arrived <-chan struct{}, release func()) {
	t.Helper()

	g := &gate{arrived: make(chan struct{}, 1), release: make(chan struct{})}

	fs.mu.Lock()
	fs.gates[path] = g
	fs.mu.Unlock()

	t.Cleanup(g.open)

	return g.arrived, g.open
}

func (fs *fakeServer) next(t *testing.T, path string) *peer {
	t.Helper()

	select {
	case p := <-fs.accepted(path):
		return p
	case <-time.After(wait):
		t.Fatalf("no connection on %s", path)
		return nil
	}
}

// manualTicks hands out tick.Manual sources and remembers the latest one per
// interval.
type manualTicks struct {
	mu     sync.Mutex
	latest map[time.Duration]*tick.Manual
}

func (m *manualTicks) source(d time.Duration) tick.Source {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := tick.NewManual()
	m.latest[d] = src

	return src
}

func (m *manualTicks) get(d time.Duration) *tick.Manual {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.latest[d]
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (ft *fakeTimers) After(d time.Duration, f func()) func() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	t := &fakeTimer{d: d, f: f}
	ft.timers = append(ft.timers, t)

	return func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()

		was := !t.stopped
		t.stopped = true

		return was
	}
}

// fire runs the first live timer scheduled for d.
func (ft *fakeTimers) fire(t *testing.T, d time.Duration) {
	t.Helper()

	var target *fakeTimer
	require.Eventually(t, func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()

		for _, tm := range ft.timers {
			if tm.d == d && !tm.stopped {
				tm.stopped = true
				target = tm
				return true
			}
		}

		return false
	}, wait, poll)

	target.f()
}

type harness struct {
	client *Client
	server *fakeServer
	ticks  *manualTicks
	timers *fakeTimers
	cancel context.CancelFunc
	done   chan error
}

func newHarness(t *testing.T, me protocol.ID) *harness {
	t.Helper()

	h := &harness{
		server: newFakeServer(t),
		ticks:  &manualTicks{latest: make(map[time.Duration]*tick.Manual)},
		timers: &fakeTimers{},
		done:   make(chan error, 1),
	}

	c, err := New(Config{
		Server:        h.server.url,
		Identity:      Identity{UserID: me},
		FrameInterval: frameEvery,
		InputInterval: inputEvery,
		Ticks:         h.ticks.source,
		Timers:        h.timers,
	})
	require.NoError(t, err)
	h.client = c

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- c.Run(ctx) }()

	require.Eventually(t, c.running.Load, wait, poll)

	t.Cleanup(h.stop)

	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
}

func (h *harness) eventually(t *testing.T, cond func(s Snapshot) bool) {
	t.Helper()

	require.Eventually(t, func() bool { return cond(h.client.Snapshot()) }, wait, poll)
}

func drainUntil(t *testing.T, c *Client, kind NoticeKind) Notice {
	t.Helper()

	deadline := time.After(wait)
	for {
		select {
		case n := <-c.Notices():
			if n.Kind == kind {
				return n
			}
		case <-deadline:
			t.Fatalf("no %s notice", kind)
			return Notice{}
		}
	}
}

func TestNewRequiresIdentity(t *testing.T) {
	_, err := New(Config{Server: "ws://localhost:8000"})
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestCleanupIsIdempotent(t *testing.T) {
	c, err := New(Config{Server: "ws://localhost:8000", Identity: Identity{UserID: "A"}})
	require.NoError(t, err)

	ctx := context.Background()
	assert.NoError(t, c.Cleanup(ctx), "before Run")

	h := newHarness(t, "A")
	assert.NoError(t, h.client.Cleanup(ctx))
	assert.NoError(t, h.client.Cleanup(ctx))

	h.cancel()
	assert.ErrorIs(t, <-h.done, context.Canceled)
	h.done <- nil

	assert.NoError(t, h.client.Cleanup(ctx), "after Run")
	assert.ErrorIs(t, h.client.PlayOnline(ctx, ""), ErrStopped)
}

func TestQueueMatch(t *testing.T) {
	h := newHarness(t, "B")
	ctx := context.Background()

	require.NoError(t, h.client.PlayOnline(ctx, ""))

	srv := h.server.next(t, PathQueue)
	join := srv.expect(t)
	assert.Equal(t, protocol.ActionJoinQueue, join["type"])
	assert.Equal(t, "B", join["user_id"])

	srv.send(t, `{"type":"waiting"}`)
	drainUntil(t, h.client, NoticeWaiting)

	srv.send(t, `{"type":"game_start","room_id":"r1","player1":{"id":"A"},"player2":{"id":"B"}}`)
	h.eventually(t, func(s Snapshot) bool { return s.Match != nil && s.Match.MyPlayerNumber == 2 })

	srv.send(t, `{"type":"update_ball","ball_position_x":0.3,"ball_position_y":0.5}`)
	h.eventually(t, func(s Snapshot) bool { return s.Match.Phase == match.PhasePlaying })

	frames := h.ticks.get(frameEvery)
	require.NotNil(t, frames)
	t0 := time.Now()
	require.True(t, frames.Fire(t0))
	require.True(t, frames.Fire(t0.Add(16*time.Millisecond)))
	h.eventually(t, func(s Snapshot) bool { return s.Positions.BallX > 0.5 })

	h.client.Keys().Press(input.KeyUp)
	require.True(t, h.ticks.get(inputEvery).Fire(t0))

	move := srv.expect(t)
	assert.Equal(t, protocol.ActionMovePaddle, move["action"])
	assert.Equal(t, protocol.SidePlayer2, move["player"])
	assert.Equal(t, "r1", move["room_id"])
	assert.InDelta(t, 0.475, move["paddle_position"], 1e-9)
	h.client.Keys().Clear()

	srv.send(t, `{"type":"update_score","player1_score":0,"player2_score":1}`)
	srv.send(t, `{"type":"game_over","winner":"player2","player1_id":"A","player2_id":"B"}`)

	stats := srv.expect(t)
	assert.Equal(t, protocol.ActionGameOver, stats["action"])
	assert.Equal(t, "B", stats["player_id"])
	assert.EqualValues(t, 1, stats["points_scored"])
	assert.Equal(t, true, stats["has_won"])

	over := drainUntil(t, h.client, NoticeMatchOver)
	assert.Equal(t, "You won 1 - 0", over.Message)
	h.eventually(t, func(s Snapshot) bool { return s.Match != nil && s.Match.Phase == match.PhaseGameOver })
}

func TestTournamentFlow(t *testing.T) {
	h := newHarness(t, "C")
	ctx := context.Background()

	require.NoError(t, h.client.CreateTournament(ctx))
	lobby := h.server.next(t, PathTournament)
	assert.Equal(t, protocol.ActionCreateTournament, lobby.expect(t)["action"])

	lobby.send(t, `{"type":"tournament_info","token":"ABCD1234","creator":"C","show_start_button":true,
		"participants":[{"id":"A","intra_login":"a"},{"id":"B","intra_login":"b"},{"id":"C","intra_login":"c"},{"id":"D","intra_login":"d"}]}`)
	h.eventually(t, func(s Snapshot) bool { return len(s.Tournament.Participants) == 4 })

	require.NoError(t, h.client.StartTournament(ctx))
	start := lobby.expect(t)
	assert.Equal(t, protocol.ActionStartTournament, start["action"])
	assert.Equal(t, "ABCD1234", start["token"])

	assert.ErrorIs(t, h.client.StartTournament(ctx), tournament.ErrAlreadyStarted)

	lobby.send(t, `{"type":"start_tournament","match_id":"m2","opponent_id":"D","user_id":"C"}`)
	semi := h.server.next(t, PathTournamentMatch+"m2/")
	assert.Equal(t, protocol.ActionJoin, semi.expect(t)["action"])

	semi.send(t, `{"type":"game_start","player1":{"id":"C"},"player2":{"id":"D"}}`)
	h.eventually(t, func(s Snapshot) bool { return s.Match != nil && s.Match.MyPlayerNumber == 1 })

	h.client.Keys().Press(input.KeyDown)
	require.True(t, h.ticks.get(inputEvery).Fire(time.Now()))
	move := semi.expect(t)
	assert.Equal(t, protocol.ActionMove, move["action"])
	assert.Equal(t, string(protocol.DirectionDown), move["direction"])
	h.client.Keys().Clear()

	semi.send(t, `{"type":"game_over","winner":"C","player1_id":"C","player2_id":"D","player1_score":5,"player2_score":2}`)
	drainUntil(t, h.client, NoticeMatchOver)

	lobby.send(t, `{"type":"countdown_to_final","seconds":2,"final_match_id":"f1"}`)
	lobby.send(t, `{"type":"countdown_to_final","seconds":1,"final_match_id":"f1"}`)
	h.eventually(t, func(s Snapshot) bool { return s.Tournament.Countdown == 1 })

	h.timers.fire(t, tournament.FinalDelay)
	final := h.server.next(t, PathTournamentMatch+"f1/")
	assert.Equal(t, protocol.ActionJoin, final.expect(t)["action"])
	h.eventually(t, func(s Snapshot) bool {
		return s.Tournament.Phase == tournament.PhaseFinalRunning && s.Match != nil && s.Match.MatchID == "f1"
	})

	lobby.send(t, `{"type":"tournament_results","results":{
		"match1":{"players":["A","B"],"winner":"A"},
		"match2":{"players":["C","D"],"winner":"C"},
		"final":{"players":["A","C"],"winner":"C"}}}`)
	finished := drainUntil(t, h.client, NoticeTournamentFinished)
	assert.Equal(t, "you won the tournament", finished.Message)
	h.eventually(t, func(s Snapshot) bool { return s.Tournament.Finished && s.Match == nil })

	lobby.send(t, `{"type":"tournament_info","token":"ZZZZ9999","creator":"X","participants":[]}`)
	lobby.send(t, `{"type":"start_tournament","match_id":"m9","opponent_id":"X","user_id":"C"}`)
	time.Sleep(50 * time.Millisecond)
	s := h.client.Snapshot()
	assert.Equal(t, "ABCD1234", s.Tournament.Token, "events after results are stale")
	assert.Nil(t, s.Match)
}

func TestTournamentMatchRetriesOnce(t *testing.T) {
	h := newHarness(t, "A")
	ctx := context.Background()

	require.NoError(t, h.client.JoinTournament(ctx, "ABCD1234"))
	lobby := h.server.next(t, PathTournament)
	assert.Equal(t, "ABCD1234", lobby.expect(t)["token"])

	lobby.send(t, `{"type":"tournament_info","token":"ABCD1234","creator":"B",
		"participants":[{"id":"A"},{"id":"B"},{"id":"C"},{"id":"D"}]}`)
	lobby.send(t, `{"type":"start_tournament","match_id":"m1","opponent_id":"B","user_id":"A"}`)

	first := h.server.next(t, PathTournamentMatch+"m1/")
	first.expect(t)
	first.kill()

	h.timers.fire(t, DefaultReconnectDelay)

	second := h.server.next(t, PathTournamentMatch+"m1/")
	assert.Equal(t, protocol.ActionJoin, second.expect(t)["action"])

	second.kill()
	lost := drainUntil(t, h.client, NoticeConnectionLost)
	assert.Equal(t, "tournament-match", lost.Channel)
}

func TestSlowMatchHandshakeDoesNotStallTicks(t *testing.T) {
	h := newHarness(t, "A")
	ctx := context.Background()
	arrived, release := h.server.hold(t, PathTournamentMatch+"m1/")

	require.NoError(t, h.client.JoinTournament(ctx, "ABCD1234"))
	lobby := h.server.next(t, PathTournament)
	lobby.expect(t)

	lobby.send(t, `{"type":"tournament_info","token":"ABCD1234","creator":"B",
		"participants":[{"id":"A"},{"id":"B"},{"id":"C"},{"id":"D"}]}`)
	lobby.send(t, `{"type":"start_tournament","match_id":"m1","opponent_id":"B","user_id":"A"}`)

	select {
	case <-arrived:
	case <-time.After(wait):
		t.Fatal("match socket never dialled")
	}

	frames := h.ticks.get(frameEvery)
	require.NotNil(t, frames)

	fired := make(chan bool, 2)
	go func() {
		t0 := time.Now()
		fired <- frames.Fire(t0)
		fired <- frames.Fire(t0.Add(frameEvery))
	}()
	for i := 0; i < 2; i++ {
		select {
		case ok := <-fired:
			require.True(t, ok)
		case <-time.After(wait):
			t.Fatal("frame tick blocked behind the handshake")
		}
	}
	h.eventually(t, func(s Snapshot) bool { return s.Match != nil && s.Match.MatchID == "m1" })

	release()

	semi := h.server.next(t, PathTournamentMatch+"m1/")
	assert.Equal(t, protocol.ActionJoin, semi.expect(t)["action"])
	started := drainUntil(t, h.client, NoticeMatchStarted)
	assert.Equal(t, "tournament-match", started.Channel)
}

func TestInvalidTokenIsRejectedBeforeConnecting(t *testing.T) {
	h := newHarness(t, "A")

	err := h.client.JoinTournament(context.Background(), "nope")
	assert.ErrorIs(t, err, tournament.ErrInvalidToken)

	select {
	case <-h.server.accepted(PathTournament):
		t.Fatal("connected despite invalid token")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSnapshotIsJSON(t *testing.T) {
	h := newHarness(t, "A")

	data, err := json.Marshal(h.client.Snapshot())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"phase":"lobby"`)
}
