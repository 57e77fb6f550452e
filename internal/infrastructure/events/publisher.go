// Package events announces committed proposal status changes on NATS so that
// downstream senders (PDF rendering, customer email) can react.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fastygo/proposals/domain"
)

const defaultSubjectPrefix = "proposal.status"

type publishConn interface {
	Publish(subject string, data []byte) error
}

// Publisher sends domain.StatusChange messages to <prefix>.<status>.
type Publisher struct {
	conn   publishConn
	prefix string
	logger *zap.Logger
}

// Connect dials NATS with reconnects enabled. The returned connection is
// owned by the caller.
func Connect(url, name string, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to nats", zap.String("url", conn.ConnectedUrl()))
	return conn, nil
}

func NewPublisher(conn *nats.Conn, prefix string, logger *zap.Logger) *Publisher {
	return newPublisher(conn, prefix, logger)
}

func newPublisher(conn publishConn, prefix string, logger *zap.Logger) *Publisher {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the subject a change to status is published on.
func (p *Publisher) Subject(status domain.Status) string {
	return fmt.Sprintf("%s.%s", p.prefix, status)
}

// PublishStatusChange implements the proposal use case's StatusPublisher.
func (p *Publisher) PublishStatusChange(ctx context.Context, change domain.StatusChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(change)
	if err != nil {
		return err
	}
	subject := p.Subject(change.To)
	if err := p.conn.Publish(subject, data); err != nil {
		return domain.WrapError(domain.ErrCodeUnavailable, "publish status change", err)
	}
	p.logger.Debug("status change published",
		zap.String("subject", subject),
		zap.String("proposal_id", change.ProposalID))
	return nil
}

// Nop discards status changes. It is used when no broker is configured.
type Nop struct{}

func (Nop) PublishStatusChange(context.Context, domain.StatusChange) error { return nil }
