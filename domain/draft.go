package domain

import (
	"strings"
	"time"
)

// DraftKey correlates an editing session with a server-side draft.
type DraftKey struct {
	Email   string
	ActorID string
}

// Normalize returns the key with a canonical email.
func (k DraftKey) Normalize() DraftKey {
	return DraftKey{Email: NormalizeEmail(k.Email), ActorID: strings.TrimSpace(k.ActorID)}
}

// Valid reports whether both halves of the key are present.
func (k DraftKey) Valid() bool {
	return k.Email != "" && k.ActorID != ""
}

// DraftBinding is what the stored row says about a proposal's draft
// correlation: the owner, the joined customer email and the status.
type DraftBinding struct {
	Key    DraftKey
	Status Status
}

// Resumable reports whether a draft lookup for key may return this proposal.
func (b DraftBinding) Resumable(key DraftKey) bool {
	return b.Status.IsDraft() && b.Key.Normalize() == key.Normalize()
}

// DraftRef points at a still-editable proposal.
type DraftRef struct {
	ID             string    `json:"id"`
	ProposalNumber string    `json:"proposalNumber"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
