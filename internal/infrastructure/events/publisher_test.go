package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/proposals/domain"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	sent []message
	err  error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, message{subject: subject, data: data})
	return nil
}

func TestPublisher_PublishesOnStatusSubject(t *testing.T) {
	conn := &fakeConn{}
	p := newPublisher(conn, "proposals.status.", nil)

	change := domain.StatusChange{
		ProposalID:     "p-1",
		ProposalNumber: "PRP-001001",
		From:           domain.StatusDraftComplete,
		To:             domain.StatusSent,
		At:             time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishStatusChange(context.Background(), change))

	require.Len(t, conn.sent, 1)
	assert.Equal(t, "proposals.status.sent", conn.sent[0].subject)

	var decoded domain.StatusChange
	require.NoError(t, json.Unmarshal(conn.sent[0].data, &decoded))
	assert.Equal(t, change.ProposalNumber, decoded.ProposalNumber)
	assert.Equal(t, domain.StatusSent, decoded.To)
}

func TestPublisher_DefaultPrefix(t *testing.T) {
	p := newPublisher(&fakeConn{}, "", nil)
	assert.Equal(t, "proposal.status.signed", p.Subject(domain.StatusSigned))
}

func TestPublisher_WrapsBrokerErrors(t *testing.T) {
	p := newPublisher(&fakeConn{err: errors.New("no responders")}, "", nil)

	err := p.PublishStatusChange(context.Background(), domain.StatusChange{To: domain.StatusSent})

	assert.True(t, domain.IsDomainError(err, domain.ErrCodeUnavailable))
}

func TestPublisher_HonoursCancelledContext(t *testing.T) {
	conn := &fakeConn{}
	p := newPublisher(conn, "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.PublishStatusChange(ctx, domain.StatusChange{To: domain.StatusSent}), context.Canceled)
	assert.Empty(t, conn.sent)
}
