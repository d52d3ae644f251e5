/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package client runs the netpong event loop. One goroutine owns every match
// and tournament object; sockets, tickers, timers and control calls all feed
// it through channels.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Seednode/netpong/input"
	"github.com/Seednode/netpong/logging"
	"github.com/Seednode/netpong/match"
	"github.com/Seednode/netpong/protocol"
	"github.com/Seednode/netpong/reconcile"
	"github.com/Seednode/netpong/tick"
	"github.com/Seednode/netpong/tournament"
	"github.com/Seednode/netpong/transport"
)

const (
	PathQueue           = "/ws/pong/"
	PathTournament      = "/ws/tournament/"
	PathTournamentMatch = "/ws/tournament-match/"

	DefaultFrameInterval  = time.Second / 60
	DefaultReconnectDelay = 2 * time.Second

	eventBuffer  = 64
	noticeBuffer = 32
)

var (
	ErrNoIdentity = errors.New("no local user id")
	ErrStopped    = errors.New("client stopped")
)

// Identity is the stable local user.
type Identity struct {
	UserID protocol.ID
	Login  string
}

// Timers schedules one-shot callbacks. The returned function cancels the
// callback if it has not fired.
type Timers interface {
	After(d time.Duration, f func()) (stop func() bool)
}

type realTimers struct{}

func (realTimers) After(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type Config struct {
	// Server is the websocket base, e.g. ws://localhost:8000.
	Server   string
	Identity Identity
	// Header is sent on every handshake; it usually carries the session
	// cookie.
	Header http.Header

	FrameInterval  time.Duration
	InputInterval  time.Duration
	SendInterval   time.Duration
	ReconnectDelay time.Duration

	Avatars tournament.AvatarResolver
	Logf    logging.Func

	// Ticks creates the periodic sources; defaults to tick.Every.
	Ticks  func(d time.Duration) tick.Source
	Timers Timers
}

type call struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

type timerScope int

const (
	scopeMatch timerScope = iota
	scopeTournament
)

type timer struct {
	scope timerScope
	stop  func() bool
}

type Client struct {
	cfg  Config
	logf logging.Func
	keys *input.KeyState

	events  chan transport.Event
	timers  chan func()
	calls   chan call
	notices chan Notice

	running atomic.Bool
	started chan struct{}
	stopped chan struct{}

	snapshot atomic.Pointer[Snapshot]

	// Loop-owned state below.
	ctx        context.Context
	queue      *transport.Session
	tour       *transport.Session
	tmatch     *transport.Session
	tournament *tournament.Orchestrator
	match      *match.Machine
	stage      tournament.Stage
	sampler    *input.Sampler
	frame      tick.Frame
	frameSrc   tick.Source
	inputSrc   tick.Source
	pending    map[int]timer
	nextTimer  int
}

func New(cfg Config) (*Client, error) {
	if cfg.Identity.UserID.IsZero() {
		return nil, ErrNoIdentity
	}
	if _, err := url.Parse(cfg.Server); err != nil || cfg.Server == "" {
		return nil, fmt.Errorf("invalid server url %q", cfg.Server)
	}

	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = DefaultFrameInterval
	}
	if cfg.InputInterval <= 0 {
		cfg.InputInterval = input.DefaultInterval
	}
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = input.DefaultSendInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.Ticks == nil {
		cfg.Ticks = tick.Every
	}
	if cfg.Timers == nil {
		cfg.Timers = realTimers{}
	}

	logf := logging.OrDiscard(cfg.Logf)

	c := &Client{
		cfg:     cfg,
		logf:    logf,
		keys:    &input.KeyState{},
		events:  make(chan transport.Event, eventBuffer),
		timers:  make(chan func()),
		calls:   make(chan call),
		notices: make(chan Notice, noticeBuffer),
		started: make(chan struct{}),
		stopped: make(chan struct{}),
		ctx:     context.Background(),
		pending: make(map[int]timer),
		frame:   tick.Frame{Max: reconcile.MaxDelta},
	}

	opts := transport.Options{Header: cfg.Header, Logf: logf}
	c.queue = transport.New("pong", c.events, opts)
	c.tour = transport.New("tournament", c.events, opts)

	opts.Retry = transport.RetryPolicy{Attempts: 1, Delay: cfg.ReconnectDelay}
	c.tmatch = transport.New("tournament-match", c.events, opts)

	c.tournament = tournament.New(cfg.Identity.UserID, cfg.Avatars, logf)
	c.publish()

	return c, nil
}

// Keys is the held-key state read by the input sampler. It may be written
// from any goroutine.
func (c *Client) Keys() *input.KeyState { return c.keys }

func (c *Client) Notices() <-chan Notice { return c.notices }

// Run owns all session state until ctx ends. It cleans up before returning.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("client already running")
	}
	c.ctx = ctx
	close(c.started)

	c.logf("CLIENT: running as %s against %s", c.cfg.Identity.UserID, c.cfg.Server)

	defer func() {
		c.cleanup()
		close(c.stopped)
	}()

	for {
		var frameC, inputC <-chan time.Time
		if c.frameSrc != nil {
			frameC = c.frameSrc.C()
		}
		if c.inputSrc != nil {
			inputC = c.inputSrc.C()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-frameC:
			c.onFrame(now)
		case now := <-inputC:
			c.onInput(now)
		case ev := <-c.events:
			c.dispatch(ev)
		case fn := <-c.timers:
			fn()
		case cl := <-c.calls:
			cl.done <- cl.fn(cl.ctx)
		}

		c.publish()
	}
}

// do runs fn on the loop and waits for its result. Calls made before Run
// wait for it to start.
func (c *Client) do(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case <-c.started:
	case <-ctx.Done():
		return ctx.Err()
	}

	cl := call{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case c.calls <- cl:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cl.done:
		return err
	case <-c.stopped:
		return ErrStopped
	}
}

// after schedules f to run on the loop. Timers in a scope are cancelled
// when that scope is torn down.
func (c *Client) after(scope timerScope, d time.Duration, f func()) {
	c.nextTimer++
	id := c.nextTimer

	stop := c.cfg.Timers.After(d, func() {
		select {
		case c.timers <- func() {
			if _, ok := c.pending[id]; !ok {
				return
			}
			delete(c.pending, id)
			f()
		}:
		case <-c.stopped:
		}
	})
	c.pending[id] = timer{scope: scope, stop: stop}
}

func (c *Client) stopTimers(scope timerScope) {
	for id, t := range c.pending {
		if t.scope != scope {
			continue
		}
		t.stop()
		delete(c.pending, id)
	}
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.Server, "/") + path
}

// PlayOnline joins the public queue, optionally for a specific room. Any
// running match is abandoned first.
func (c *Client) PlayOnline(ctx context.Context, roomID string) error {
	return c.do(ctx, func(ctx context.Context) error {
		c.teardownMatch()

		if err := c.queue.Connect(ctx, c.endpoint(PathQueue)); err != nil {
			return err
		}

		c.beginMatch(match.ChannelQueue, roomID)

		cmd, err := c.match.JoinQueue(roomID)
		if err != nil {
			return err
		}

		return c.queue.Send(cmd)
	})
}

func (c *Client) CreateTournament(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		c.teardownMatch()

		if err := c.ensureTournament(ctx); err != nil {
			return err
		}

		return c.tour.Send(c.tournament.Create())
	})
}

func (c *Client) JoinTournament(ctx context.Context, token string) error {
	return c.do(ctx, func(ctx context.Context) error {
		cmd, err := c.tournament.Join(token)
		if err != nil {
			return err
		}

		if err := c.ensureTournament(ctx); err != nil {
			return err
		}

		return c.tour.Send(cmd)
	})
}

func (c *Client) StartTournament(ctx context.Context) error {
	return c.do(ctx, func(ctx context.Context) error {
		cmd, err := c.tournament.Start()
		if err != nil {
			return err
		}

		if err := c.ensureTournament(ctx); err != nil {
			return err
		}

		return c.tour.Send(cmd)
	})
}

// Leave abandons any match and tournament.
func (c *Client) Leave(ctx context.Context) error {
	return c.do(ctx, func(context.Context) error {
		c.cleanup()

		return nil
	})
}

// Cleanup tears everything down. It is idempotent and safe to call before
// Run or after it has returned.
func (c *Client) Cleanup(ctx context.Context) error {
	if !c.running.Load() {
		return nil
	}

	err := c.do(ctx, func(context.Context) error {
		c.cleanup()

		return nil
	})
	if errors.Is(err, ErrStopped) {
		return nil
	}

	return err
}

func (c *Client) ensureTournament(ctx context.Context) error {
	if c.tour.Open() {
		return nil
	}

	return c.tour.Connect(ctx, c.endpoint(PathTournament))
}

// beginMatch replaces the current match object and starts the tick sources.
func (c *Client) beginMatch(channel match.Channel, matchID string) {
	mode := input.ModePosition
	if channel == match.ChannelTournament {
		mode = input.ModeDirection
	}

	c.match = match.New(channel, matchID, c.cfg.Identity.UserID, reconcile.New(), c.logf)
	c.sampler = input.NewSampler(c.keys, mode, c.cfg.SendInterval)
	c.startTicks()
}

// startTournamentMatch dials the match socket off the loop so a slow handshake
// does not stall ticks. The join is sent once the dial lands.
func (c *Client) startTournamentMatch(ctx context.Context, a tournament.MatchAssigned) {
	c.teardownMatch()

	c.stage = a.Stage
	c.tmatch.ResetRetries()
	c.beginMatch(match.ChannelTournament, a.MatchID)

	target := c.endpoint(PathTournamentMatch + url.PathEscape(a.MatchID) + "/")
	dial := func(ctx context.Context) error { return c.tmatch.Connect(ctx, target) }

	c.dialMatch(ctx, dial, func(err error) {
		if err != nil {
			logging.Errorf("CLIENT: %v", err)
			c.teardownMatch()
			c.notify(Notice{Kind: NoticeConnectionLost, Channel: c.tmatch.Name, Err: err})

			return
		}

		cmd, err := c.match.Join()
		if err != nil {
			c.notify(Notice{Kind: NoticeError, Err: err})

			return
		}

		if err := c.tmatch.Send(cmd); err != nil {
			logging.Errorf("CLIENT: %v", err)
		}

		c.notify(Notice{Kind: NoticeMatchStarted, Channel: c.tmatch.Name, Message: a.Stage.String()})
	})
}

// dialMatch runs dial on its own goroutine and hands the result to done on
// the loop. The result is dropped if the match was replaced in the meantime.
func (c *Client) dialMatch(ctx context.Context, dial func(context.Context) error, done func(error)) {
	m := c.match

	go func() {
		err := dial(ctx)

		select {
		case c.timers <- func() {
			if c.match != m || errors.Is(err, transport.ErrDialAborted) {
				c.logf("CLIENT: dropping stale dial result: %v", err)

				return
			}
			done(err)
		}:
		case <-c.stopped:
		}
	}()
}

func (c *Client) startTicks() {
	c.stopTicks()

	c.frame.Reset()
	c.frameSrc = c.cfg.Ticks(c.cfg.FrameInterval)
	c.inputSrc = c.cfg.Ticks(c.cfg.InputInterval)
}

func (c *Client) stopTicks() {
	if c.frameSrc != nil {
		c.frameSrc.Stop()
		c.frameSrc = nil
	}
	if c.inputSrc != nil {
		c.inputSrc.Stop()
		c.inputSrc = nil
	}
}

// endMatch stops input and closes the match sockets but keeps the finished
// match visible.
func (c *Client) endMatch() {
	c.stopTicks()
	c.stopTimers(scopeMatch)
	c.keys.Clear()

	_ = c.queue.Close()
	_ = c.tmatch.Close()
}

// teardownMatch destroys the match. The tournament socket stays open.
func (c *Client) teardownMatch() {
	c.endMatch()

	if c.match != nil {
		c.match.Reset()
	}
	c.match = nil
	c.sampler = nil
	c.stage = tournament.StageNone
}

// cleanup is idempotent: every step is a no-op on torn-down state.
func (c *Client) cleanup() {
	c.teardownMatch()
	c.stopTimers(scopeTournament)
	c.tournament.Leave()
	_ = c.tour.Close()

	c.logf("CLIENT: cleaned up")
}

func (c *Client) onFrame(now time.Time) {
	dt := c.frame.Delta(now)
	if c.match == nil {
		return
	}

	c.match.Reconciler().Advance(dt)
	c.match.Settle()
}

func (c *Client) onInput(now time.Time) {
	if c.match == nil || c.sampler == nil || !c.match.Playing() {
		return
	}

	cmd, ok := c.match.Input(c.sampler.Sample(now))
	if !ok {
		return
	}

	if err := c.matchSession().Send(cmd); err != nil {
		logging.Errorf("CLIENT: %v", err)
	}
}

func (c *Client) matchSession() *transport.Session {
	if c.match != nil && c.match.Channel() == match.ChannelTournament {
		return c.tmatch
	}

	return c.queue
}
