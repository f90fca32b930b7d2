package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordtwist/go/internal/board"
	"github.com/mcdev12/wordtwist/go/internal/countdown"
)

// ScoreSubmitter posts the final score of a finished game.
type ScoreSubmitter interface {
	SubmitScore(ctx context.Context, gameID string, score, seconds int) error
}

// ResultsPublisher fans finished-game results out to other systems.
type ResultsPublisher interface {
	PublishResults(ctx context.Context, results Results) error
}

// Notifier shows a short-lived message to the player.
type Notifier interface {
	Show(message string)
}

// Config wires a Client to its collaborators. Only Endpoints is required.
type Config struct {
	Endpoints Endpoints
	Dialer    Dialer
	Clock     clockwork.Clock

	// Username is the logged-in player, empty when anonymous. Scores are only
	// submitted for logged-in players.
	Username string

	Scores    ScoreSubmitter
	Publisher ResultsPublisher
	Notices   Notifier

	// GracePeriod enables a client-side fallback: if no gameOver arrives
	// within the time budget plus this period the session fails. Zero
	// leaves termination entirely to the server.
	GracePeriod time.Duration
	// SideEffectTimeout bounds score submission and results publishing.
	SideEffectTimeout time.Duration

	// OnChange is called with a fresh snapshot after every state change.
	// Calls come from the channel's and the countdown's goroutines but never
	// overlap, and a snapshot older than one already delivered is dropped.
	// OnChange must not call back into Reset or StartSession.
	OnChange func(Session)
}

// Client owns one session at a time: its channel, countdown and state.
type Client struct {
	endpoints   Endpoints
	dialer      Dialer
	clock       clockwork.Clock
	username    string
	scores      ScoreSubmitter
	publisher   ResultsPublisher
	notices     Notifier
	gracePeriod time.Duration
	fxTimeout   time.Duration
	onChange    func(Session)
	spawn       func(func())

	mu      sync.Mutex
	gen     uint64
	seq     uint64
	state   Session
	found   *wordSet
	request Request
	conn    *channelHandle
	timer   *countdown.Timer
	grace   clockwork.Timer

	notifyMu  sync.Mutex
	delivered uint64
}

// snapshot is a copy of the session numbered in the order it was taken.
type snapshot struct {
	seq     uint64
	session Session
}

// channelHandle is the session's claim on its channel. It exists from the
// moment a dial starts; ch is nil until the dial succeeds.
type channelHandle struct {
	gen uint64
	ch  Channel
}

// effects are collected under the lock and run after it is released.
type effects struct {
	closeCh  Channel
	results  *Results
	snapshot *snapshot
}

// NewClient creates a client in PreGame.
func NewClient(cfg Config) *Client {
	if cfg.Dialer == nil {
		cfg.Dialer = NewWebsocketDialer(DefaultWebsocketConfig())
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = 10 * time.Second
	}

	return &Client{
		endpoints:   cfg.Endpoints,
		dialer:      cfg.Dialer,
		clock:       cfg.Clock,
		username:    cfg.Username,
		scores:      cfg.Scores,
		publisher:   cfg.Publisher,
		notices:     cfg.Notices,
		gracePeriod: cfg.GracePeriod,
		fxTimeout:   cfg.SideEffectTimeout,
		onChange:    cfg.OnChange,
		spawn:       func(f func()) { go f() },
		state:       Session{Phase: PreGame},
		found:       newWordSet(),
	}
}

// Session returns a snapshot of the current session.
func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// StartSession begins opening a channel for req and returns without waiting
// for it. ctx bounds the handshake only. Starting while a channel is open or
// opening returns ErrChannelOpen; call Reset first.
func (c *Client) StartSession(ctx context.Context, req Request) error {
	url, err := c.endpoints.SessionURL(req)
	if err != nil {
		return err
	}

	c.mu.Lock()
	switch {
	case c.conn != nil:
		c.mu.Unlock()
		return ErrChannelOpen
	case c.state.Err != nil:
		c.mu.Unlock()
		return ErrSessionFailed
	case c.state.Phase != PreGame:
		c.mu.Unlock()
		return fmt.Errorf("%w: phase %s", ErrNotPreGame, c.state.Phase)
	}
	gen := c.gen
	c.conn = &channelHandle{gen: gen}
	c.request = req
	c.mu.Unlock()

	log.Info().
		Str("kind", req.Kind.String()).
		Str("url", url).
		Msg("opening session")

	c.spawn(func() { c.open(ctx, gen, url) })
	return nil
}

// SubmitGuess sends word to the server as-is. The server alone decides
// whether it is valid; the answer arrives as a guessResponse.
func (c *Client) SubmitGuess(word string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Err != nil {
		return ErrSessionFailed
	}
	if c.state.Phase != Active {
		return fmt.Errorf("%w: phase %s", ErrNotActive, c.state.Phase)
	}
	if c.conn == nil || c.conn.ch == nil {
		return ErrChannelNotOpen
	}
	if word == "" {
		return nil
	}

	log.Debug().
		Str("game_id", c.state.ID).
		Str("word", word).
		Msg("submitting guess")

	if err := c.conn.ch.Send(word); err != nil {
		return fmt.Errorf("send guess: %w", err)
	}
	return nil
}

// Reset discards the channel, countdown and all session state and returns
// to an empty PreGame. It is safe to call at any time, any number of times.
func (c *Client) Reset() {
	c.mu.Lock()
	c.gen++
	c.stopTimersLocked()
	ch := c.detachLocked()
	c.state = Session{Phase: PreGame}
	c.found = newWordSet()
	c.request = Request{}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	log.Debug().Msg("session reset")
	c.notify(snap)
}

// HandleMessage processes one server frame against the current session.
// Channels opened by StartSession deliver their frames here automatically.
func (c *Client) HandleMessage(data []byte) error {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	return c.handle(gen, data)
}

func (c *Client) open(ctx context.Context, gen uint64, url string) {
	ch, err := c.dialer.Dial(ctx, url, Handler{
		OnMessage: func(data []byte) { c.handle(gen, data) },
		OnClose:   func(err error) { c.channelClosed(gen, err) },
	})

	c.mu.Lock()
	stale := gen != c.gen || c.conn == nil
	if err != nil {
		if !stale {
			c.conn = nil
		}
		snap := c.snapshotLocked()
		c.mu.Unlock()
		if stale {
			return
		}

		msg := "Unable to reach the game server"
		var openErr *OpenError
		if errors.As(err, &openErr) {
			msg = openErr.UserMessage()
		}
		log.Warn().Err(err).Str("url", url).Msg("failed to open session")
		if c.notices != nil {
			c.notices.Show(msg)
		}
		c.notify(snap)
		return
	}

	if stale {
		c.mu.Unlock()
		log.Debug().Str("conn_id", ch.ID()).Msg("closing channel for a discarded session")
		ch.Close()
		return
	}

	c.conn.ch = ch
	c.state.ChannelOpen = true
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
}

func (c *Client) handle(gen uint64, data []byte) error {
	msg, err := DecodeMessage(data)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		log.Debug().Msg("dropping message for a discarded session")
		return nil
	}
	if c.state.Err != nil {
		c.mu.Unlock()
		return ErrSessionFailed
	}
	if c.state.Phase == PostGame {
		id := c.state.ID
		c.mu.Unlock()
		log.Warn().Str("game_id", id).Msg("dropping message received after gameOver")
		return nil
	}

	var fx effects
	if err == nil {
		switch m := msg.(type) {
		case *SetupMessage:
			err = c.handleSetupLocked(gen, m)
		case *GuessResponseMessage:
			err = c.handleGuessResponseLocked(m)
		case *GameOverMessage:
			fx, err = c.handleGameOverLocked(m)
		}
	}
	if err != nil {
		fx = c.failLocked(err)
	}
	snap := c.snapshotLocked()
	fx.snapshot = &snap
	c.mu.Unlock()

	c.apply(fx)
	return err
}

func (c *Client) handleSetupLocked(gen uint64, m *SetupMessage) error {
	if c.state.Phase != PreGame {
		return fmt.Errorf("%w: setup received in %s", ErrProtocolViolation, c.state.Phase)
	}
	if c.conn == nil {
		return fmt.Errorf("%w: setup received without a channel", ErrProtocolViolation)
	}
	grid, err := board.NewGrid(m.Game.Data.Grid)
	if err != nil {
		return fmt.Errorf("%w: setup grid: %v", ErrMalformedMessage, err)
	}
	if m.Game.ID == "" {
		return fmt.Errorf("%w: setup without game id", ErrMalformedMessage)
	}

	budget := m.Time
	if budget <= 0 {
		budget = c.request.Time
	}

	c.state.ID = m.Game.ID
	c.state.Grid = grid
	c.state.TimeBudgetSeconds = budget
	c.state.RemainingSeconds = budget
	c.state.Phase = Active

	c.timer = countdown.New(c.clock, budget,
		func(remaining int) { c.tick(gen, remaining) },
		func() {
			log.Info().Str("game_id", m.Game.ID).Msg("countdown finished, waiting for results")
		})
	c.timer.Start()

	if c.gracePeriod > 0 {
		deadline := time.Duration(budget)*time.Second + c.gracePeriod
		c.grace = c.clock.AfterFunc(deadline, func() { c.graceExpired(gen) })
	}

	log.Info().
		Str("game_id", m.Game.ID).
		Int("size", grid.Size()).
		Int("time", budget).
		Msg("game started")
	return nil
}

func (c *Client) handleGuessResponseLocked(m *GuessResponseMessage) error {
	if c.state.Phase != Active {
		return fmt.Errorf("%w: guessResponse received in %s", ErrProtocolViolation, c.state.Phase)
	}
	if !m.Valid {
		log.Debug().Str("word", m.Word).Msg("guess rejected")
		return nil
	}
	if !c.found.add(m.Word) {
		log.Debug().Str("word", m.Word).Msg("word already found")
		return nil
	}

	c.state.FoundWords = c.found.list()
	c.state.Score += WordScore(m.Word)

	log.Debug().
		Str("word", m.Word).
		Int("score", c.state.Score).
		Msg("word found")
	return nil
}

func (c *Client) handleGameOverLocked(m *GameOverMessage) (effects, error) {
	if c.state.Phase != Active {
		return effects{}, fmt.Errorf("%w: gameOver received in %s", ErrProtocolViolation, c.state.Phase)
	}

	c.stopTimersLocked()
	c.found = newWordSet(m.Results.FoundWords...)
	c.state.FoundWords = c.found.list()
	c.state.MissedWords = newWordSet(m.Results.MissedWords...).list()
	c.state.Score = m.Results.Score
	c.state.Phase = PostGame

	results := Results{
		GameID:            c.state.ID,
		Username:          c.username,
		Score:             c.state.Score,
		TimeBudgetSeconds: c.state.TimeBudgetSeconds,
		FoundWords:        c.state.FoundWords,
		MissedWords:       c.state.MissedWords,
	}

	log.Info().
		Str("game_id", c.state.ID).
		Int("score", c.state.Score).
		Int("found", len(c.state.FoundWords)).
		Int("missed", len(c.state.MissedWords)).
		Msg("game over")

	return effects{closeCh: c.detachLocked(), results: &results}, nil
}

func (c *Client) channelClosed(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || c.conn == nil || c.state.Phase == PostGame || c.state.Err != nil {
		c.mu.Unlock()
		return
	}

	cause := ErrChannelClosed
	if err != nil {
		cause = fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	fx := c.failLocked(cause)
	snap := c.snapshotLocked()
	fx.snapshot = &snap
	c.mu.Unlock()

	c.apply(fx)
}

func (c *Client) tick(gen uint64, remaining int) {
	c.mu.Lock()
	if gen != c.gen || c.state.Phase != Active || c.state.Err != nil {
		c.mu.Unlock()
		return
	}
	c.state.RemainingSeconds = remaining
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

func (c *Client) graceExpired(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state.Phase != Active || c.state.Err != nil {
		c.mu.Unlock()
		return
	}
	fx := c.failLocked(ErrServerTimeout)
	snap := c.snapshotLocked()
	fx.snapshot = &snap
	c.mu.Unlock()

	c.apply(fx)
}

// failLocked records a fatal error and tears the session down.
func (c *Client) failLocked(err error) effects {
	c.state.Err = err
	c.stopTimersLocked()

	log.Error().
		Err(err).
		Str("game_id", c.state.ID).
		Str("phase", c.state.Phase.String()).
		Msg("session failed")

	return effects{closeCh: c.detachLocked()}
}

func (c *Client) stopTimersLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.grace != nil {
		c.grace.Stop()
		c.grace = nil
	}
}

// detachLocked releases the channel handle and returns the channel, if one
// was attached, for closing outside the lock.
func (c *Client) detachLocked() Channel {
	if c.conn == nil {
		return nil
	}
	ch := c.conn.ch
	c.conn = nil
	c.state.ChannelOpen = false
	return ch
}

func (c *Client) apply(fx effects) {
	if fx.closeCh != nil {
		fx.closeCh.Close()
	}
	if fx.results != nil {
		results := *fx.results
		c.spawn(func() { c.finish(results) })
	}
	if fx.snapshot != nil {
		c.notify(*fx.snapshot)
	}
}

// finish runs the one-shot side effects of a finished game. Failures are
// logged and not retried.
func (c *Client) finish(results Results) {
	ctx, cancel := context.WithTimeout(context.Background(), c.fxTimeout)
	defer cancel()

	if c.scores != nil && c.username != "" {
		if err := c.scores.SubmitScore(ctx, results.GameID, results.Score, results.TimeBudgetSeconds); err != nil {
			log.Error().Err(err).Str("game_id", results.GameID).Msg("failed to submit score")
		} else {
			log.Info().Str("game_id", results.GameID).Int("score", results.Score).Msg("score submitted")
		}
	}

	if c.publisher != nil {
		if err := c.publisher.PublishResults(ctx, results); err != nil {
			log.Error().Err(err).Str("game_id", results.GameID).Msg("failed to publish results")
		}
	}
}

func (c *Client) snapshotLocked() snapshot {
	c.seq++
	return snapshot{seq: c.seq, session: c.state.clone()}
}

// notify hands snap to OnChange unless a newer snapshot got there first.
func (c *Client) notify(snap snapshot) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	if snap.seq <= c.delivered {
		return
	}
	c.delivered = snap.seq
	if c.onChange != nil {
		c.onChange(snap.session)
	}
}
