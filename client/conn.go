package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dylanconnolly/segon-client/trivia"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the server.
	writeWait = 10 * time.Second

	// Maximum message size accepted from the server.
	maxMessageSize = 64 * 1024

	gamePath = "/game/"
)

type connState int

const (
	stateIdle connState = iota
	stateDialing
	stateOpen
	stateClosing
	stateClosed
)

// Events receives the lifecycle of a connection. OnMessage is called from the
// goroutine running Listen, once per frame and in arrival order. Exactly one
// of OnClose or OnError is called, at most once.
type Events interface {
	OnOpen(c *Conn)
	OnMessage(c *Conn, payload []byte)
	OnClose(c *Conn)
	OnError(c *Conn, err error)
}

type ConnConfig struct {
	ServerURL        string
	HandshakeTimeout time.Duration
	Header           http.Header
}

// Conn is one duplex game connection for one session token.
type Conn struct {
	cfg    ConnConfig
	events Events
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu        sync.Mutex
	state     connState
	listening bool
	ws        *websocket.Conn
	url       string
	ended     sync.Once
}

func NewConn(cfg ConnConfig, events Events, log zerolog.Logger) *Conn {
	timeout := cfg.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Conn{
		cfg:    cfg,
		events: events,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
		log: log,
	}
}

// Target builds the game connection URL for token under serverURL. http and
// https server URLs are mapped to ws and wss.
func Target(serverURL, token string) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}

	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.RawQuery = ""
	u.Fragment = ""

	return strings.TrimSuffix(u.String(), "/") + gamePath + url.PathEscape(token), nil
}

// URL returns the connection target once Open has been called.
func (c *Conn) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// Open dials the game server for token and fires OnOpen on success. A Conn
// can be opened once.
func (c *Conn) Open(ctx context.Context, token string) error {
	target, err := Target(c.cfg.ServerURL, token)
	if err != nil {
		return &ConnectionError{URL: c.cfg.ServerURL, Err: err}
	}

	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.state = stateDialing
	c.url = target
	c.mu.Unlock()

	ws, resp, err := c.dialer.DialContext(ctx, target, c.cfg.Header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %s)", err, resp.Status)
		}
		c.mu.Lock()
		c.state = stateIdle
		c.mu.Unlock()
		return &ConnectionError{URL: target, Err: err}
	}
	ws.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	if c.state == stateClosed {
		// closed while dialing
		c.mu.Unlock()
		ws.Close()
		return &ConnectionError{URL: target, Err: ErrNotConnected}
	}
	c.ws = ws
	c.state = stateOpen
	c.mu.Unlock()

	c.log.Info().Str("url", redact(target)).Msg("connected to game server")
	c.events.OnOpen(c)

	return nil
}

// Listen reads frames until the connection ends and hands each one to
// OnMessage. Cancelling ctx closes the connection. It returns nil on a
// graceful close and a *ConnectionError otherwise.
func (c *Conn) Listen(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateOpen || c.listening {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.listening = true
	ws := c.ws
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			return c.finish(ws, err)
		}
		c.events.OnMessage(c, payload)
	}
}

func (c *Conn) finish(ws *websocket.Conn, err error) error {
	c.mu.Lock()
	local := c.state == stateClosing || c.state == stateClosed
	c.state = stateClosed
	c.mu.Unlock()
	ws.Close()

	// Any close frame from the server ends the session cleanly, including
	// one without a status code. 1006 is synthesized locally when the
	// connection drops without a close frame.
	var closeErr *websocket.CloseError
	peerClosed := errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure

	if local || peerClosed {
		if peerClosed && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			c.log.Warn().Int("code", closeErr.Code).Str("reason", closeErr.Text).Msg("server closed with error status")
		}
		c.log.Info().Msg("connection closed")
		c.end(nil)
		return nil
	}

	c.log.Error().Err(err).Msg("connection lost")
	connErr := &ConnectionError{URL: redact(c.URL()), Err: err}
	c.end(connErr)
	return connErr
}

func (c *Conn) end(err error) {
	c.ended.Do(func() {
		if err != nil {
			c.events.OnError(c, err)
			return
		}
		c.events.OnClose(c)
	})
}

// Send writes cmd as a single text frame. It fails with ErrNotConnected
// before Open and after the connection ended, and with *SendError when the
// transport rejects the frame.
func (c *Conn) Send(ctx context.Context, cmd trivia.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateOpen {
		return ErrNotConnected
	}

	b, err := json.Marshal(cmd)
	if err != nil {
		return &SendError{Err: err}
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.ws.SetWriteDeadline(deadline)

	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		c.log.Error().Err(err).Str("message", string(b)).Msg("error writing message to websocket")
		return &SendError{Err: err}
	}

	return nil
}

// Close ends the connection gracefully. When Listen is running it reports
// OnClose, otherwise Close does.
func (c *Conn) Close() error {
	c.mu.Lock()
	switch c.state {
	case stateIdle, stateDialing:
		c.state = stateClosed
		c.mu.Unlock()
		return nil
	case stateClosing, stateClosed:
		c.mu.Unlock()
		return nil
	}

	c.state = stateClosing
	ws := c.ws
	listening := c.listening
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.mu.Unlock()

	if cerr := ws.Close(); err == nil {
		err = cerr
	}

	if !listening {
		c.mu.Lock()
		c.state = stateClosed
		c.mu.Unlock()
		c.end(nil)
	}

	return err
}

// redact hides the session token in logged URLs.
func redact(target string) string {
	if i := strings.LastIndex(target, gamePath); i >= 0 {
		return target[:i+len(gamePath)] + "***"
	}
	return target
}
