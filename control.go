/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/netpong/client"
	"github.com/Seednode/netpong/input"
	"github.com/Seednode/netpong/match"
	"github.com/Seednode/netpong/tournament"
)

var errUnknownKey = errors.New("unknown key")

func statusFor(err error) int {
	switch {
	case errors.Is(err, tournament.ErrInvalidToken),
		errors.Is(err, errUnknownKey):
		return http.StatusBadRequest
	case errors.Is(err, tournament.ErrFinished),
		errors.Is(err, tournament.ErrNoTournament),
		errors.Is(err, tournament.ErrBracketIncomplete),
		errors.Is(err, tournament.ErrAlreadyStarted),
		errors.Is(err, match.ErrAlreadyJoined):
		return http.StatusConflict
	case errors.Is(err, client.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	return http.StatusBadGateway
}

func serveJSON(cfg *Config, errs chan<- error, name string, value func() any) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		data, err := json.Marshal(value())
		if err != nil {
			writeError(cfg, w, http.StatusInternalServerError, err)

			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		written, err := w.Write(data)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: %s (%s) to %s in %s",
			name,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// serveAction runs a client call and answers with the resulting state.
func serveAction(cfg *Config, c *client.Client, errs chan<- error, name string, action func(ctx context.Context, p httprouter.Params) error) httprouter.Handle {
	state := serveJSON(cfg, errs, name, func() any { return c.Snapshot() })

	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := action(ctx, p); err != nil {
			logf(cfg, "SERVE: %s from %s failed: %v", name, realIP(r), err)
			writeError(cfg, w, statusFor(err), err)

			return
		}

		state(w, r, p)
	}
}

func pressKey(c *client.Client, name, state string) error {
	key, ok := input.ParseKey(name)
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownKey, name)
	}

	switch state {
	case "press", "down":
		c.Keys().Press(key)
	case "release", "up":
		c.Keys().Release(key)
	default:
		return fmt.Errorf("%w: state %q", errUnknownKey, state)
	}

	return nil
}

func registerControl(cfg *Config, c *client.Client, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+"/state", serveJSON(cfg, errs, "State", func() any {
		return c.Snapshot()
	}))

	mux.GET(cfg.prefix+"/tournament", serveJSON(cfg, errs, "Tournament", func() any {
		return c.Snapshot().Tournament
	}))

	mux.GET(cfg.prefix+"/tournament/qr", serveInviteQR(cfg, c))

	mux.POST(cfg.prefix+"/play", serveAction(cfg, c, errs, "Play", func(ctx context.Context, _ httprouter.Params) error {
		return c.PlayOnline(ctx, "")
	}))

	mux.POST(cfg.prefix+"/play/:room", serveAction(cfg, c, errs, "Play", func(ctx context.Context, p httprouter.Params) error {
		return c.PlayOnline(ctx, p.ByName("room"))
	}))

	mux.POST(cfg.prefix+"/tournament/create", serveAction(cfg, c, errs, "Create", func(ctx context.Context, _ httprouter.Params) error {
		return c.CreateTournament(ctx)
	}))

	mux.POST(cfg.prefix+"/tournament/join/:token", serveAction(cfg, c, errs, "Join", func(ctx context.Context, p httprouter.Params) error {
		return c.JoinTournament(ctx, p.ByName("token"))
	}))

	mux.POST(cfg.prefix+"/tournament/start", serveAction(cfg, c, errs, "Start", func(ctx context.Context, _ httprouter.Params) error {
		return c.StartTournament(ctx)
	}))

	mux.POST(cfg.prefix+"/leave", serveAction(cfg, c, errs, "Leave", func(ctx context.Context, _ httprouter.Params) error {
		return c.Leave(ctx)
	}))

	mux.POST(cfg.prefix+"/keys/:key/:state", serveAction(cfg, c, errs, "Key", func(_ context.Context, p httprouter.Params) error {
		return pressKey(c, p.ByName("key"), p.ByName("state"))
	}))
}
