/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Seednode/netpong/input"
	"github.com/Seednode/netpong/logging"
	"github.com/Seednode/netpong/tournament"
)

type Config struct {
	bind           string
	cookie         string
	create         bool
	envFile        string
	frameRate      int
	inputRate      int
	join           string
	port           int
	prefix         string
	profile        bool
	qr             bool
	queue          bool
	reconnectDelay time.Duration
	room           string
	sendInterval   time.Duration
	server         string
	tlsCert        string
	tlsKey         string
	userID         string
	verbose        bool
	version        bool

	log logging.Func
}

func (c *Config) validate() error {
	if c.server == "" {
		return errors.New("--server is required")
	}
	u, err := url.Parse(c.server)
	if err != nil {
		return fmt.Errorf("invalid --server: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("--server must use ws:// or wss://, got %q", u.Scheme)
	}
	if strings.TrimSpace(c.userID) == "" {
		return errors.New("--user-id is required")
	}
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.frameRate < 1 || c.inputRate < 1 {
		return fmt.Errorf("frame and input rates must be positive: %d, %d", c.frameRate, c.inputRate)
	}
	if c.sendInterval <= 0 || c.reconnectDelay <= 0 {
		return errors.New("--send-interval and --reconnect-delay must be positive")
	}

	actions := 0
	for _, set := range []bool{c.queue, c.create, c.join != ""} {
		if set {
			actions++
		}
	}
	if actions > 1 {
		return errors.New("only one of --queue, --create and --join may be given")
	}
	if c.room != "" && !c.queue {
		return errors.New("--room requires --queue")
	}
	if c.join != "" && len(c.join) != tournament.TokenLength {
		return fmt.Errorf("--join token must be %d characters: %q", tournament.TokenLength, c.join)
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// siteURL is the http(s) origin of the game server.
func (c *Config) siteURL() string {
	u, err := url.Parse(c.server)
	if err != nil {
		return ""
	}

	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path, u.RawQuery, u.Fragment = "", "", ""

	return u.String()
}

// bindEnv fills every flag not set on the command line from its environment
// variable.
func bindEnv(fs *pflag.FlagSet, v *viper.Viper) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("NETPONG")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

// loadEnvFile reads --env-file, then fills flags still at their defaults.
func loadEnvFile(cmd *cobra.Command, cfg *Config) error {
	if cfg.envFile == "" {
		return nil
	}

	if err := godotenv.Load(cfg.envFile); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	bindEnv(cmd.Flags(), newViper())

	return nil
}

func newCmd(cfg *Config) *cobra.Command {
	v := newViper()

	cmd := &cobra.Command{
		Use:           "netpong",
		Short:         "A networked Pong client with live reconciliation and tournament support.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(cmd, cfg); err != nil {
				return err
			}

			if err := cfg.validate(); err != nil {
				return err
			}

			cfg.log = logging.New(cfg.verbose)

			return Run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "127.0.0.1", "address to bind the status server to (env: NETPONG_BIND)")
	fs.StringVar(&cfg.cookie, "cookie", "", "cookie header sent with every websocket handshake (env: NETPONG_COOKIE)")
	fs.BoolVar(&cfg.create, "create", false, "create a tournament on startup (env: NETPONG_CREATE)")
	fs.StringVar(&cfg.envFile, "env-file", "", "load environment variables from this dotenv file (env: NETPONG_ENV_FILE)")
	fs.IntVar(&cfg.frameRate, "frame-rate", 60, "render frames per second (env: NETPONG_FRAME_RATE)")
	fs.IntVar(&cfg.inputRate, "input-rate", int(time.Second/input.DefaultInterval), "input samples per second (env: NETPONG_INPUT_RATE)")
	fs.StringVar(&cfg.join, "join", "", "join the tournament with this token on startup (env: NETPONG_JOIN)")
	fs.IntVarP(&cfg.port, "port", "p", 8081, "port for the status server (env: NETPONG_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all status URLs, for use behind reverse proxy (env: NETPONG_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: NETPONG_PROFILE)")
	fs.BoolVar(&cfg.qr, "qr", false, "print a QR code of the tournament invite to the terminal (env: NETPONG_QR)")
	fs.BoolVar(&cfg.queue, "queue", false, "join the match queue on startup (env: NETPONG_QUEUE)")
	fs.DurationVar(&cfg.reconnectDelay, "reconnect-delay", 2*time.Second, "delay before the tournament match reconnect (env: NETPONG_RECONNECT_DELAY)")
	fs.StringVar(&cfg.room, "room", "", "room to request when joining the queue (env: NETPONG_ROOM)")
	fs.DurationVar(&cfg.sendInterval, "send-interval", input.DefaultSendInterval, "minimum time between paddle commands (env: NETPONG_SEND_INTERVAL)")
	fs.StringVarP(&cfg.server, "server", "s", "ws://localhost:8000", "websocket base url of the game server (env: NETPONG_SERVER)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: NETPONG_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: NETPONG_TLS_KEY)")
	fs.StringVarP(&cfg.userID, "user-id", "u", "", "local user id, as the server knows it (env: NETPONG_USER_ID)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: NETPONG_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: NETPONG_VERSION)")

	bindEnv(fs, v)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("netpong v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
