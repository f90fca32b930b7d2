package results

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/wordtwist/go/internal/session"
)

const eventTypeGameFinished = "game_finished"

// JetStreamConfig describes the results stream and how to reach it.
type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	// Retention of finished games.
	MaxAge   time.Duration
	Replicas int
	// Window within which a player's results for a game are stored once.
	DuplicateWindow time.Duration
	ReconnectWait   time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "WORDTWIST_RESULTS",
		SubjectPrefix:   "wordtwist.results",
		MaxAge:          30 * 24 * time.Hour,
		Replicas:        1,
		DuplicateWindow: 24 * time.Hour,
		ReconnectWait:   2 * time.Second,
	}
}

// Envelope is the JSON body of a published results message.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	GameID    string          `json:"gameId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   session.Results `json:"payload"`
}

// JetStreamPublisher publishes finished games to a JetStream stream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamPublisher(ctx context.Context, cfg JetStreamConfig) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("wordtwist-results"),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("results connection lost")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("results connection restored")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{nc: nc, js: js, config: cfg}

	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return p, nil
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	sc := p.config.streamConfig()

	stream, err := p.js.Stream(ctx, p.config.StreamName)
	if err != nil {
		if _, err = p.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", p.config.StreamName).
			Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = p.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().
			Str("stream", p.config.StreamName).
			Msg("updated JetStream stream")
	}
	return nil
}

// PublishResults sends one finished game. Daily and shared games are played
// by many people under one game id, so a player's results are deduplicated
// per game and username.
func (p *JetStreamPublisher) PublishResults(ctx context.Context, r session.Results) error {
	eventID := uuid.New()
	msg, err := buildMessage(p.config.SubjectPrefix, r, eventID, time.Now().UTC())
	if err != nil {
		return err
	}

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(messageID(r, eventID)),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Info().
		Str("subject", msg.Subject).
		Str("game_id", r.GameID).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published game results")

	return nil
}

func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

func (c JetStreamConfig) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        c.StreamName,
		Description: "Finished wordtwist games",
		Subjects:    []string{c.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      c.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    c.Replicas,
		Duplicates:  c.DuplicateWindow,
	}
}

func buildMessage(prefix string, r session.Results, eventID uuid.UUID, now time.Time) (*nats.Msg, error) {
	if r.GameID == "" {
		return nil, fmt.Errorf("results without game id")
	}

	data, err := json.Marshal(Envelope{
		EventID:   eventID.String(),
		EventType: eventTypeGameFinished,
		GameID:    r.GameID,
		Timestamp: now,
		Payload:   r,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal results: %w", err)
	}

	return &nats.Msg{
		Subject: subjectFor(prefix, r.GameID),
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{eventTypeGameFinished},
			"Game-ID":    []string{r.GameID},
			"Event-ID":   []string{eventID.String()},
		},
	}, nil
}

// messageID is the JetStream dedup key. Anonymous results cannot be told
// apart, so each of them is kept.
func messageID(r session.Results, eventID uuid.UUID) string {
	if r.Username == "" {
		return eventID.String()
	}
	return r.GameID + ":" + r.Username
}

// subjectFor maps a game id onto a single subject token.
func subjectFor(prefix, gameID string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, gameID)
	return prefix + "." + token
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
