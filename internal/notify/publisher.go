// Package notify publishes pass summaries to NATS so other processes can
// react to newly learned patterns.
//
// Each successful pass is published as a JSON Message on one subject
// (default patternd.pass.completed). The pass kind and id are also set as
// headers so subscribers can filter without decoding the body.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/config"
	"github.com/fyrsmithlabs/patternd/internal/engine"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "patternd.pass.completed"

// Header names set on every message.
const (
	HeaderPassKind = "Patternd-Pass-Kind"
	HeaderPassID   = "Patternd-Pass-Id"
)

// Message is the published payload.
type Message struct {
	Pass        *engine.PassResult `json:"pass"`
	PublishedAt time.Time          `json:"publishedAt"`
}

// Publisher sends pass summaries over a NATS connection.
type Publisher struct {
	conn    *nats.Conn
	subject string
	owned   bool
	logger  *zap.Logger
}

// New wraps an existing connection. The caller keeps ownership of nc.
func New(nc *nats.Conn, subject string, logger *zap.Logger) (*Publisher, error) {
	if nc == nil {
		return nil, errors.New("nats connection cannot be nil")
	}
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: nc, subject: subject, logger: logger}, nil
}

// Connect dials the configured server. Close releases the connection.
func Connect(cfg config.NotifyConfig, logger *zap.Logger) (*Publisher, error) {
	if cfg.NATSURL == "" {
		return nil, errors.New("nats url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []nats.Option{
		nats.Name("patternd"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.Token.IsSet() {
		opts = append(opts, nats.Token(cfg.Token.Value()))
	}

	nc, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	p, err := New(nc, cfg.Subject, logger)
	if err != nil {
		nc.Close()
		return nil, err
	}
	p.owned = true
	return p, nil
}

// Subject returns the subject passes are published on.
func (p *Publisher) Subject() string { return p.subject }

// Publish implements engine.Publisher.
func (p *Publisher) Publish(ctx context.Context, res *engine.PassResult) error {
	if res == nil {
		return errors.New("pass result is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(Message{Pass: res, PublishedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal pass summary: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Header.Set(HeaderPassKind, string(res.Kind))
	msg.Header.Set(HeaderPassID, res.ID)
	msg.Data = data
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish pass summary: %w", err)
	}
	p.logger.Debug("published pass summary",
		zap.String("subject", p.subject),
		zap.String("pass_id", res.ID))
	return nil
}

// Close drains and closes the connection if this Publisher opened it.
func (p *Publisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.conn.Drain()
}
