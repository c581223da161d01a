package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
)

const (
	registerPath = "/register"
	loginPath    = "/login"
)

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResp struct {
	Status  string `json:"status"`
	Token   string `json:"token"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type RegistrarConfig struct {
	ServerURL  string
	Attempts   int
	Timeout    time.Duration
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Registrar obtains session tokens from the game server.
type Registrar struct {
	baseURL  string
	client   *http.Client
	attempts int
	min, max time.Duration
	log      zerolog.Logger
}

func NewRegistrar(cfg RegistrarConfig, log zerolog.Logger) *Registrar {
	r := &Registrar{
		baseURL:  strings.TrimSuffix(cfg.ServerURL, "/"),
		client:   &http.Client{Timeout: cfg.Timeout},
		attempts: cfg.Attempts,
		min:      cfg.MinBackoff,
		max:      cfg.MaxBackoff,
		log:      log,
	}
	if r.attempts < 1 {
		r.attempts = 1
	}
	if r.min == 0 {
		r.min = 200 * time.Millisecond
	}
	if r.max == 0 {
		r.max = 5 * time.Second
	}

	return r
}

// Register creates the user and returns its session token.
func (r *Registrar) Register(ctx context.Context, creds Credentials) (string, error) {
	return r.token(ctx, registerPath, http.StatusCreated, creds)
}

// Login returns a session token for an existing user.
func (r *Registrar) Login(ctx context.Context, creds Credentials) (string, error) {
	return r.token(ctx, loginPath, http.StatusOK, creds)
}

// Authenticate registers creds and logs in instead when the username is
// already taken.
func (r *Registrar) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	token, err := r.Register(ctx, creds)
	if errors.Is(err, ErrUsernameTaken) {
		r.log.Info().Str("username", creds.Username).Msg("username taken, logging in")
		return r.Login(ctx, creds)
	}
	return token, err
}

func (r *Registrar) token(ctx context.Context, path string, want int, creds Credentials) (string, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}

	b := &backoff.Backoff{Min: r.min, Max: r.max, Factor: 2, Jitter: true}
	for {
		token, err := r.post(ctx, path, want, body)
		if err == nil {
			return token, nil
		}

		var regErr *RegistrationError
		if errors.As(err, &regErr) || ctx.Err() != nil || int(b.Attempt())+1 >= r.attempts {
			return "", err
		}

		wait := b.Duration()
		r.log.Warn().Err(err).Str("path", path).Dur("retry_in", wait).Msg("token request failed")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (r *Registrar) post(ctx context.Context, path string, want int, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s response: %w", path, err)
	}

	var tr tokenResp
	if err := json.Unmarshal(raw, &tr); err != nil && resp.StatusCode == want {
		return "", fmt.Errorf("decode %s response: %w", path, err)
	}

	if resp.StatusCode != want {
		msg := tr.Message
		if msg == "" {
			msg = tr.Error
		}
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", &RegistrationError{StatusCode: resp.StatusCode, Status: tr.Status, Message: msg}
	}
	if tr.Token == "" {
		return "", &RegistrationError{StatusCode: resp.StatusCode, Status: tr.Status, Message: "response carried no token"}
	}

	return tr.Token, nil
}
