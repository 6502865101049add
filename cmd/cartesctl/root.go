package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	goCartes "github.com/MrEthical07/goCartes"
	"github.com/MrEthical07/goCartes/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type options struct {
	configFile  string
	envFile     string
	baseURL     string
	sessionFile string
	redisAddr   string
	debug       bool
	timeout     time.Duration
}

// app is built once per invocation by the root command's PersistentPreRunE.
type app struct {
	opts   options
	logger zerolog.Logger
	client *goCartes.Client
	redis  *redis.Client
	out    *os.File
}

func newRootCmd() *cobra.Command {
	a := &app{out: os.Stdout}

	root := &cobra.Command{
		Use:           "cartesctl",
		Short:         "Command-line client for the cartes inventory",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.opts.configFile, "config", "c", "", "YAML configuration file")
	flags.StringVar(&a.opts.envFile, "env-file", "", "dotenv file loaded before reading CARTES_* variables")
	flags.StringVar(&a.opts.baseURL, "url", "", "backend base URL (overrides CARTES_API_URL)")
	flags.StringVar(&a.opts.sessionFile, "session-file", defaultSessionFile(), "where the session is kept between invocations")
	flags.StringVar(&a.opts.redisAddr, "redis-addr", "", "keep the session in Redis instead of the session file")
	flags.BoolVar(&a.opts.debug, "debug", false, "log every request")
	flags.DurationVarP(&a.opts.timeout, "timeout", "t", 2*time.Minute, "timeout for the whole command")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newStatsCmd(a),
		newCartesCmd(a),
		newImportCmd(a),
		newTemplateCmd(a),
		newWatchCmd(a),
	)
	return root
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".cartes", "session.json")
	}
	return filepath.Join(home, ".cartes", "session.json")
}

func (a *app) init(ctx context.Context) error {
	level := zerolog.InfoLevel
	if a.opts.debug {
		level = zerolog.DebugLevel
	}
	a.logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	b := goCartes.New().WithConfig(cfg).WithLogger(a.logger)
	if a.opts.redisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: a.opts.redisAddr})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis %s: %w", a.opts.redisAddr, err)
		}
		b = b.WithRedis(a.redis)
	} else {
		b = b.WithStorage(session.NewFileStorage(a.opts.sessionFile))
	}

	client, err := b.Build()
	if err != nil {
		return fmt.Errorf("build client: %w", err)
	}
	a.client = client
	return nil
}

func (a *app) loadConfig() (goCartes.Config, error) {
	var (
		cfg goCartes.Config
		err error
	)
	if a.opts.configFile != "" {
		cfg, err = goCartes.LoadConfigFile(a.opts.configFile)
	} else {
		cfg, err = goCartes.ConfigFromEnv(a.opts.envFile)
	}
	if err != nil {
		return cfg, err
	}
	if a.opts.baseURL != "" {
		cfg.API.BaseURL = a.opts.baseURL
	}
	if a.opts.debug {
		cfg.API.Debug = true
	}
	// Commands exit right after their call; notifications are logged inline.
	cfg.Events.Async = false
	return cfg, cfg.Validate()
}

func (a *app) close() error {
	var errs []error
	if a.client != nil {
		errs = append(errs, a.client.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}

// restore loads the stored session, failing when there is none.
func (a *app) restore(ctx context.Context) (*goCartes.User, error) {
	user, err := a.client.Initialize(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.New("not logged in; run cartesctl login")
	}
	return user, nil
}

func (a *app) withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.opts.timeout)
}

// fail prints the operator message of err and returns err for cobra's exit code.
func (a *app) fail(err error) error {
	if err == nil {
		return nil
	}
	if kind := goCartes.KindOf(err); kind != "" {
		a.logger.Error().Str("kind", string(kind)).Msg(goCartes.UserMessage(err))
	} else {
		a.logger.Error().Err(err).Msg("command failed")
	}
	return err
}
