package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "HANDSUP"

type Config struct {
	bind           string
	guestTimeout   time.Duration
	logFormat      string
	metrics        bool
	port           int
	prefix         string
	presets        string
	profile        bool
	secret         string
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	tokenTTL       time.Duration
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format (must be text or json): %q", c.logFormat)
	}
	if c.sessionTimeout < 0 || c.guestTimeout < 0 || c.tokenTTL < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// loadEnvFile reads KEY=value pairs into the environment before flags are
// bound, so that a .env file behaves exactly like exported variables.
// Variables already set in the environment win.
func loadEnvFile() error {
	path := os.Getenv(envPrefix + "_ENV_FILE")
	if path == "" {
		path = ".env"
	}

	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "handsup",
		Short:         "Live hand-raising queues for moderated sessions.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: HANDSUP_BIND)")
	fs.DurationVar(&cfg.guestTimeout, "guest-timeout", 0, "lower disconnected guests from all queues after this long (0 keeps them raised) (env: HANDSUP_GUEST_TIMEOUT)")
	fs.StringVar(&cfg.logFormat, "log-format", "text", "log output format: text or json (env: HANDSUP_LOG_FORMAT)")
	fs.BoolVar(&cfg.metrics, "metrics", false, "serve prometheus metrics on /metrics (env: HANDSUP_METRICS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: HANDSUP_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: HANDSUP_PREFIX)")
	fs.StringVar(&cfg.presets, "presets", "", "yaml file of sessions to create on startup (env: HANDSUP_PRESETS)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: HANDSUP_PROFILE)")
	fs.StringVar(&cfg.secret, "secret", "", "key used to sign guest identity cookies, random if unset (env: HANDSUP_SECRET)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 0, "time before idle sessions are closed (0 keeps them until shutdown) (env: HANDSUP_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: HANDSUP_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: HANDSUP_TLS_KEY)")
	fs.DurationVar(&cfg.tokenTTL, "token-ttl", 24*time.Hour, "lifetime of guest identity cookies (env: HANDSUP_TOKEN_TTL)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: HANDSUP_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: HANDSUP_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("handsup v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
