/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/sync/errgroup"

	"github.com/Seednode/netpong/client"
	"github.com/Seednode/netpong/input"
	"github.com/Seednode/netpong/logging"
	"github.com/Seednode/netpong/protocol"
	"github.com/Seednode/netpong/tick"
	"github.com/Seednode/netpong/tournament"
)

const (
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("netpong v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Version page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func newClient(cfg *Config) (*client.Client, error) {
	header := http.Header{}
	if cfg.cookie != "" {
		header.Set("Cookie", cfg.cookie)
	}

	return client.New(client.Config{
		Server:         cfg.server,
		Identity:       client.Identity{UserID: protocol.ID(cfg.userID)},
		Header:         header,
		FrameInterval:  tick.Hz(cfg.frameRate, client.DefaultFrameInterval),
		InputInterval:  tick.Hz(cfg.inputRate, input.DefaultInterval),
		SendInterval:   cfg.sendInterval,
		ReconnectDelay: cfg.reconnectDelay,
		Avatars:        tournament.DefaultAvatars(cfg.siteURL()),
		Logf:           cfg.log,
	})
}

// Run drives the client loop and the status server until interrupted.
func Run(ctx context.Context, cfg *Config) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logf(cfg, "START: netpong v%s", releaseVersion)

	c, err := newClient(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := c.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	})

	g.Go(func() error {
		return serveStatus(gctx, cfg, c)
	})

	g.Go(func() error {
		return watchNotices(gctx, cfg, c)
	})

	g.Go(func() error {
		return startup(gctx, cfg, c)
	})

	return g.Wait()
}

// startup performs the action requested on the command line.
func startup(ctx context.Context, cfg *Config, c *client.Client) error {
	switch {
	case cfg.queue:
		logf(cfg, "START: joining queue as %s", cfg.userID)

		return c.PlayOnline(ctx, cfg.room)
	case cfg.create:
		logf(cfg, "START: creating tournament as %s", cfg.userID)

		return c.CreateTournament(ctx)
	case cfg.join != "":
		logf(cfg, "START: joining tournament %s as %s", cfg.join, cfg.userID)

		return c.JoinTournament(ctx, cfg.join)
	}

	return nil
}

func watchNotices(ctx context.Context, cfg *Config, c *client.Client) error {
	var shown string

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-c.Notices():
			switch n.Kind {
			case client.NoticeServerError, client.NoticeConnectionLost, client.NoticeError:
				logging.Errorf("%s", n)
			default:
				logf(cfg, "NOTICE: %s", n)
			}

			if n.Kind == client.NoticeTournamentUpdated && cfg.qr && n.Message != "" && n.Message != shown {
				shown = n.Message
				if err := printInviteQR(cfg, os.Stdout, n.Message); err != nil {
					logging.Errorf("QR: %v", err)
				}
			}
		}
	}
}

func newRouter(cfg *Config, c *client.Client, errs chan<- error) *httprouter.Router {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	mux.NotFound = serveNotFound(cfg)

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	registerControl(cfg, c, mux, errs)

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	return mux
}

func serveStatus(ctx context.Context, cfg *Config, c *client.Client) error {
	errs := make(chan error, 64)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           newRouter(cfg, c, errs),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	failed := make(chan error, 1)

	go func() {
		var err error
		logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	for {
		select {
		case err := <-errs:
			logging.Errorf("SERVE: %v", err)
		case err := <-failed:
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			return srv.Shutdown(shutdownCtx)
		}
	}
}
