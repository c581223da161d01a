package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dylanconnolly/segon-client/client"
	"github.com/dylanconnolly/segon-client/config"
	"github.com/dylanconnolly/segon-client/logger"
	"github.com/dylanconnolly/segon-client/notify"
	"github.com/dylanconnolly/segon-client/player"
	"github.com/dylanconnolly/segon-client/redis"
	"github.com/dylanconnolly/segon-client/status"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: error loading .env file: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand(config.FromEnv()).Run(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("segon exited with error")
		os.Exit(1)
	}
}

func newCommand(def config.Config) *cli.Command {
	return &cli.Command{
		Name:  "segon",
		Usage: "play the segon trivia game from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: def.ServerURL, Usage: "game server base URL"},
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Value: def.Username, Usage: "participant name; numbered when running several sessions"},
			&cli.StringFlag{Name: "password", Value: def.Password, Usage: "participant password"},
			&cli.IntFlag{Name: "sessions", Aliases: []string{"n"}, Value: def.Sessions, Usage: "number of concurrent participants"},
			&cli.StringFlag{Name: "strategy", Value: def.Strategy, Usage: "answer strategy: fixed, random, match or prompt"},
			&cli.IntFlag{Name: "answer", Value: def.AnswerIndex, Usage: "option picked by the fixed strategy"},
			&cli.StringFlag{Name: "match", Value: def.MatchText, Usage: "text searched for by the match strategy"},
			&cli.BoolFlag{Name: "prime", Value: def.Prime, Usage: "send Answer One as soon as the connection opens"},
			&cli.BoolFlag{Name: "close-on-send-error", Value: def.CloseOnSendError, Usage: "end a session when a reply cannot be sent"},
			&cli.IntFlag{Name: "register-attempts", Value: def.RegisterAttempts, Usage: "attempts per token request on transport errors"},
			&cli.DurationFlag{Name: "http-timeout", Value: def.HTTPTimeout, Usage: "timeout of registration requests"},
			&cli.StringFlag{Name: "status-addr", Value: def.StatusAddr, Usage: "serve session status on this address"},
			&cli.StringSliceFlag{Name: "cors-origin", Value: def.CORSOrigins, Usage: "origins allowed to read the status endpoint"},
			&cli.StringFlag{Name: "redis-addr", Value: def.RedisAddr, Usage: "store results in this redis server"},
			&cli.StringFlag{Name: "redis-password", Value: def.RedisPassword},
			&cli.IntFlag{Name: "redis-db", Value: def.RedisDB},
			&cli.StringFlag{Name: "nats-url", Value: def.NatsURL, Usage: "publish phase changes to this NATS server"},
			&cli.StringFlag{Name: "log-level", Value: def.Log.Level},
			&cli.BoolFlag{Name: "log-json", Value: def.Log.JSON},
			&cli.StringFlag{Name: "log-file", Value: def.Log.File},
			&cli.StringFlag{Name: "logger-config", Value: def.LoggerConfigFile, Usage: "JSON logger configuration file"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := setup(cmd, def)
			if err != nil {
				return err
			}
			return play(ctx, cfg)
		},
		Commands: []*cli.Command{
			{
				Name:  "register",
				Usage: "obtain a session token and print it",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := setup(cmd, def)
					if err != nil {
						return err
					}
					token, err := newRegistrar(cfg).Authenticate(ctx, client.Credentials{Username: cfg.Username, Password: cfg.Password})
					if err != nil {
						return err
					}
					fmt.Println(token)
					return nil
				},
			},
			{
				Name:  "results",
				Usage: "print stored sessions and the leaderboard",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := setup(cmd, def)
					if err != nil {
						return err
					}
					return results(ctx, cfg)
				},
			},
		},
	}
}

// setup overlays flags on the environment defaults and initializes logging.
func setup(cmd *cli.Command, cfg config.Config) (config.Config, error) {
	cfg.ServerURL = cmd.String("server")
	cfg.Username = cmd.String("username")
	cfg.Password = cmd.String("password")
	cfg.Sessions = cmd.Int("sessions")
	cfg.Strategy = cmd.String("strategy")
	cfg.AnswerIndex = cmd.Int("answer")
	cfg.MatchText = cmd.String("match")
	cfg.Prime = cmd.Bool("prime")
	cfg.CloseOnSendError = cmd.Bool("close-on-send-error")
	cfg.RegisterAttempts = cmd.Int("register-attempts")
	cfg.HTTPTimeout = cmd.Duration("http-timeout")
	cfg.StatusAddr = cmd.String("status-addr")
	cfg.CORSOrigins = cmd.StringSlice("cors-origin")
	cfg.RedisAddr = cmd.String("redis-addr")
	cfg.RedisPassword = cmd.String("redis-password")
	cfg.RedisDB = cmd.Int("redis-db")
	cfg.NatsURL = cmd.String("nats-url")
	cfg.LoggerConfigFile = cmd.String("logger-config")

	logCfg, err := config.LoadLoggerConfig(cfg.LoggerConfigFile, cfg.Log)
	if err != nil {
		return cfg, err
	}
	if cmd.IsSet("log-level") {
		logCfg.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-json") {
		logCfg.JSON = cmd.Bool("log-json")
	}
	if cmd.IsSet("log-file") {
		logCfg.File = cmd.String("log-file")
	}
	cfg.Log = logCfg

	if err := logger.Init(cfg.Log); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func newRegistrar(cfg config.Config) *client.Registrar {
	return client.NewRegistrar(client.RegistrarConfig{
		ServerURL: cfg.ServerURL,
		Attempts:  cfg.RegisterAttempts,
		Timeout:   cfg.HTTPTimeout,
	}, logger.New("registrar"))
}

func play(ctx context.Context, cfg config.Config) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	hub := client.NewHub()
	go hub.Run(hubCtx)

	observers := []client.Observer{hub}
	var statusOpts []status.Option

	if cfg.NatsURL != "" {
		pub := notify.Connect(cfg.NatsURL, logger.New("notify"))
		defer pub.Close()
		observers = append(observers, pub)
		statusOpts = append(statusOpts, status.WithCheck("nats", func(context.Context) error {
			if !pub.Connected() {
				return errors.New("disconnected")
			}
			return nil
		}))
	}

	if cfg.RedisAddr != "" {
		store := redis.NewResultStore(redis.NewClient(redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}), logger.New("redis"))
		if err := store.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("running without redis, results will not be stored")
			store.Close()
		} else {
			defer store.Close()
			observers = append(observers, store)
			statusOpts = append(statusOpts, status.WithLeaderboard(store), status.WithCheck("redis", store.Ping))
		}
	}

	if cfg.StatusAddr != "" {
		srv := status.NewHTTPServer(cfg.StatusAddr, status.NewStatusServer(hub, logger.New("status"), statusOpts...), cfg.CORSOrigins)
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("status endpoint listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("status endpoint failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	fleetCfg := client.FleetConfig{
		Sessions: cfg.Sessions,
		Creds:    client.Credentials{Username: cfg.Username, Password: cfg.Password},
		Session: client.SessionConfig{
			Conn:             client.ConnConfig{ServerURL: cfg.ServerURL},
			Prime:            cfg.Prime,
			CloseOnSendError: cfg.CloseOnSendError,
		},
	}
	// finished sessions only need to stay in the hub while someone can read them
	if cfg.StatusAddr == "" {
		fleetCfg.Forget = hub.Remove
	}

	fleet := client.NewFleet(fleetCfg, newRegistrar(cfg), func(int) (player.Strategy, error) {
		return player.ParseStrategy(cfg.Strategy, cfg.AnswerIndex, cfg.MatchText, os.Stdin, os.Stdout)
	}, logger.New("fleet"), observers...)

	outcomes, err := fleet.Run(ctx)
	for _, out := range outcomes {
		fmt.Printf("%-20s %-20s score=%g\n", out.Username, out.State.Phase, out.State.Score)
	}

	return err
}

func results(ctx context.Context, cfg config.Config) error {
	if cfg.RedisAddr == "" {
		return errors.New("--redis-addr is required")
	}

	store := redis.NewResultStore(redis.NewClient(redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}), logger.New("redis"))
	defer store.Close()

	sessions, err := store.GetAllSessions(ctx)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		fmt.Printf("%s %-20s %-20s score=%g updated=%s\n", s.ID, s.Username, s.Phase, s.Score, s.UpdatedAt.Format(time.RFC3339))
	}

	standings, err := store.Leaderboard(ctx, 10)
	if err != nil {
		return err
	}
	fmt.Println("\nleaderboard")
	for i, s := range standings {
		fmt.Printf("%2d. %-20s %g\n", i+1, s.Username, s.Score)
	}

	return nil
}
