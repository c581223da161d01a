package client

import (
	"context"
	"fmt"

	"github.com/dylanconnolly/segon-client/player"
	"github.com/dylanconnolly/segon-client/trivia"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Authenticator obtains a session token. *Registrar implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (string, error)
}

type FleetConfig struct {
	Sessions int
	Creds    Credentials
	Session  SessionConfig
	// Forget, if set, is called with the ID of every session once it has
	// finished and its final state was published.
	Forget func(id uuid.UUID)
}

// Outcome is what one participant ended with.
type Outcome struct {
	ID       uuid.UUID
	Username string
	State    trivia.State
	Err      error
}

// Fleet runs a number of independent sessions against the same server.
type Fleet struct {
	cfg       FleetConfig
	auth      Authenticator
	strategy  func(i int) (player.Strategy, error)
	observers []Observer
	log       zerolog.Logger
}

// NewFleet returns a Fleet; strategy is called once per participant so that
// stateful strategies are never shared.
func NewFleet(cfg FleetConfig, auth Authenticator, strategy func(i int) (player.Strategy, error), log zerolog.Logger, observers ...Observer) *Fleet {
	if cfg.Sessions < 1 {
		cfg.Sessions = 1
	}
	return &Fleet{
		cfg:       cfg,
		auth:      auth,
		strategy:  strategy,
		observers: observers,
		log:       log,
	}
}

// Username returns the name used by participant i.
func (f *Fleet) Username(i int) string {
	if f.cfg.Sessions == 1 {
		return f.cfg.Creds.Username
	}
	return fmt.Sprintf("%s-%d", f.cfg.Creds.Username, i+1)
}

// Run plays every session to completion. Failures of individual sessions do
// not stop the others; they are combined into the returned error.
func (f *Fleet) Run(ctx context.Context) ([]Outcome, error) {
	outcomes := make([]Outcome, f.cfg.Sessions)

	var g errgroup.Group
	for i := range f.cfg.Sessions {
		g.Go(func() error {
			outcomes[i] = f.play(ctx, i)
			return outcomes[i].Err
		})
	}
	if g.Wait() == nil {
		return outcomes, nil
	}

	var errs error
	for _, out := range outcomes {
		if out.Err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", out.Username, out.Err))
		}
	}
	return outcomes, errs
}

func (f *Fleet) play(ctx context.Context, i int) Outcome {
	username := f.Username(i)
	out := Outcome{Username: username}
	log := f.log.With().Str("username", username).Logger()

	strategy, err := f.strategy(i)
	if err != nil {
		out.Err = err
		return out
	}

	creds := Credentials{Username: username, Password: f.cfg.Creds.Password}
	token, err := f.auth.Authenticate(ctx, creds)
	if err != nil {
		log.Error().Err(err).Msg("could not obtain session token")
		out.Err = err
		return out
	}

	cfg := f.cfg.Session
	cfg.Username = username
	s := NewSession(cfg, strategy, log, f.observers...)
	out.ID = s.ID

	out.Err = s.Run(ctx, token)
	out.State = s.Result()
	if f.cfg.Forget != nil {
		f.cfg.Forget(s.ID)
	}
	log.Info().
		Str("phase", string(out.State.Phase)).
		Float64("score", out.State.Score).
		Msg("session finished")

	return out
}
