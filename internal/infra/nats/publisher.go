package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"quizduel-service/internal/domain"
)

const eventCompleted = "completed"

type Config struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // how long finished duels stay in the stream
	DuplicateWindow time.Duration // JetStream dedup window keyed by room id
}

func DefaultConfig() Config {
	return Config{
		URL:             natsgo.DefaultURL,
		StreamName:      "DUEL_EVENTS",
		SubjectPrefix:   "duel.events",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		MaxAge:          7 * 24 * time.Hour,
		DuplicateWindow: 2 * time.Hour,
	}
}

// ResultPublisher forwards finished duels to JetStream. The message id is the
// room id, so a duel republished inside the duplicate window is stored once.
type ResultPublisher struct {
	nc     *natsgo.Conn
	js     jetstream.JetStream
	config Config
}

func NewResultPublisher(ctx context.Context, cfg Config) (*ResultPublisher, error) {
	opts := []natsgo.Option{
		natsgo.Name("quizduel-service"),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := natsgo.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &ResultPublisher{nc: nc, js: js, config: cfg}
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

func (p *ResultPublisher) ensureStream(ctx context.Context) error {
	_, err := p.js.CreateOrUpdateStream(ctx, streamConfig(p.config))
	if err != nil {
		return err
	}
	log.Info().Str("stream", p.config.StreamName).Msg("JetStream stream ready")
	return nil
}

func streamConfig(cfg Config) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Finished quiz duels",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		MaxMsgs:     -1,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Duplicates:  cfg.DuplicateWindow,
	}
}

func (p *ResultPublisher) PublishResult(ctx context.Context, result domain.DuelResult) error {
	msg, err := resultMessage(p.config.SubjectPrefix, result)
	if err != nil {
		return err
	}
	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(result.RoomID),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("room_id", result.RoomID).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published duel result")
	return nil
}

func (p *ResultPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
	}
}

type envelope struct {
	EventType string            `json:"eventType"`
	RoomID    string            `json:"roomId"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   domain.DuelResult `json:"payload"`
}

func resultMessage(subjectPrefix string, result domain.DuelResult) (*natsgo.Msg, error) {
	data, err := json.Marshal(envelope{
		EventType: eventCompleted,
		RoomID:    result.RoomID,
		Timestamp: result.FinishedAt.UTC(),
		Payload:   result,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal result event: %w", err)
	}
	return &natsgo.Msg{
		Subject: subjectPrefix + "." + eventCompleted,
		Data:    data,
		Header: natsgo.Header{
			"Event-Type": []string{eventCompleted},
			"Room-ID":    []string{result.RoomID},
			"Status":     []string{string(result.Status)},
		},
	}, nil
}
