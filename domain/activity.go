package domain

import (
	"encoding/json"
	"time"
)

const (
	ActivityCreated       = "proposal_created"
	ActivityStatusChanged = "status_changed"
)

// ActivityEntry is an audit row describing a change applied to a proposal.
type ActivityEntry struct {
	ID         string          `json:"id"`
	ProposalID string          `json:"proposal_id"`
	ActorID    string          `json:"actor_id,omitempty"`
	Action     string          `json:"action"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// StatusChange is published after a status transition commits.
type StatusChange struct {
	ProposalID     string    `json:"proposal_id"`
	ProposalNumber string    `json:"proposal_number"`
	ActorID        string    `json:"actor_id,omitempty"`
	From           Status    `json:"from"`
	To             Status    `json:"to"`
	At             time.Time `json:"at"`
}
