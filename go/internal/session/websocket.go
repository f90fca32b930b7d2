package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebsocketConfig holds configuration for session websocket connections.
type WebsocketConfig struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	ReadBufferSize   int
	WriteBufferSize  int
	SendBufferSize   int
	// Header is sent with the handshake, e.g. the session cookie.
	Header http.Header
}

// DefaultWebsocketConfig returns default websocket configuration.
func DefaultWebsocketConfig() WebsocketConfig {
	return WebsocketConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   64 * 1024, // setup and gameOver carry word lists
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		SendBufferSize:   64,
	}
}

// WebsocketDialer opens session channels over gorilla websockets.
type WebsocketDialer struct {
	dialer *websocket.Dialer
	config WebsocketConfig
}

// NewWebsocketDialer creates a dialer with the given configuration.
func NewWebsocketDialer(config WebsocketConfig) *WebsocketDialer {
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
		},
		config: config,
	}
}

// Dial performs the websocket handshake and starts the read and write pumps.
// A refused handshake is returned as an *OpenError carrying the server's message.
func (d *WebsocketDialer) Dial(ctx context.Context, url string, h Handler) (Channel, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.config.Header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			return nil, &OpenError{
				StatusCode: resp.StatusCode,
				Message:    strings.TrimSpace(string(body)),
				Err:        err,
			}
		}
		return nil, &OpenError{Err: fmt.Errorf("dial %s: %w", url, err)}
	}

	c := &wsChannel{
		id:      uuid.New().String(),
		conn:    conn,
		config:  d.config,
		handler: h,
		send:    make(chan []byte, d.config.SendBufferSize),
		closeCh: make(chan struct{}),
	}

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("conn_id", c.id).
		Str("url", url).
		Msg("session channel established")

	return c, nil
}

type wsChannel struct {
	id      string
	conn    *websocket.Conn
	config  WebsocketConfig
	handler Handler

	send      chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

func (c *wsChannel) ID() string {
	return c.id
}

func (c *wsChannel) Send(word string) error {
	select {
	case <-c.closeCh:
		return ErrChannelClosed
	default:
	}

	select {
	case c.send <- []byte(word):
		return nil
	case <-c.closeCh:
		return ErrChannelClosed
	default:
		log.Warn().Str("conn_id", c.id).Msg("send buffer full, dropping guess")
		return fmt.Errorf("send buffer full")
	}
}

func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closeCh)
	})
	return nil
}

func (c *wsChannel) closed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

// writePump handles sending guesses and pings to the server.
func (c *wsChannel) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("conn_id", c.id).
					Msg("failed to write guess to websocket")
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("conn_id", c.id).
					Msg("failed to send ping")
				c.Close()
				return
			}

		case <-c.closeCh:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.config.WriteTimeout))
			return
		}
	}
}

// readPump delivers server frames to the handler in arrival order.
func (c *wsChannel) readPump() {
	var readErr error
	defer func() {
		c.Close()
		if c.handler.OnClose != nil {
			c.handler.OnClose(readErr)
		}
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case c.closed():
				// Closed locally; nothing to report.
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				log.Debug().Str("conn_id", c.id).Msg("server closed session channel")
			default:
				var closeErr *websocket.CloseError
				if !errors.As(err, &closeErr) {
					log.Error().
						Err(err).
						Str("conn_id", c.id).
						Msg("unexpected websocket read error")
				}
				readErr = err
			}
			return
		}

		if c.handler.OnMessage != nil {
			c.handler.OnMessage(message)
		}
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}
}
