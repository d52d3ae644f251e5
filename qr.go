/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/netpong/client"
)

const qrSize = 320

// inviteURL points other players at the tournament page with the token
// filled in.
func inviteURL(cfg *Config, token string) string {
	return cfg.siteURL() + "/tournament/?token=" + url.QueryEscape(token)
}

func serveInviteQR(cfg *Config, c *client.Client) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		token := c.Snapshot().Tournament.Token
		if token == "" {
			http.Error(w, "no tournament", http.StatusNotFound)
			return
		}

		png, err := qrcode.Encode(inviteURL(cfg, token), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)

		logf(cfg, "SERVE: Invite QR for %s (%s) to %s", token, humanReadableSize(int64(len(png))), realIP(r))
	}
}

func printInviteQR(cfg *Config, w io.Writer, token string) error {
	q, err := qrcode.New(inviteURL(cfg, token), qrcode.Medium)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "Tournament %s\n%s\n", token, q.ToSmallString(false))

	return err
}
