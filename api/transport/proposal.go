package transport

import "github.com/fastygo/proposals/domain"

type DraftLookupResponse struct {
	Found bool             `json:"found"`
	Draft *domain.DraftRef `json:"draft,omitempty"`
}

type SaveResponse struct {
	Success        bool   `json:"success"`
	ProposalID     string `json:"proposalId,omitempty"`
	ProposalNumber string `json:"proposalNumber,omitempty"`
	IsDuplicate    bool   `json:"isDuplicate"`
	Error          string `json:"error,omitempty"`
}

type StatusResponse struct {
	Success bool `json:"success"`
}

type OffersResponse struct {
	SpecialOffers []domain.SpecialOffer `json:"specialOffers"`
	Bundles       []domain.BundleRule   `json:"bundles"`
}
