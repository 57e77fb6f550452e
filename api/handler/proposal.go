package handler

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/proposals/api/transport"
	"github.com/fastygo/proposals/domain"
	"github.com/fastygo/proposals/pkg/httpcontext"
	"github.com/fastygo/proposals/usecase/offer"
	"github.com/fastygo/proposals/usecase/pricing"
	"github.com/fastygo/proposals/usecase/proposal"
)

type ProposalHandler struct {
	baseHandler
	useCase *proposal.UseCase
}

func NewProposalHandler(uc *proposal.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *ProposalHandler {
	return &ProposalHandler{
		baseHandler: newBaseHandler(adapter, logger),
		useCase:     uc,
	}
}

// @Summary Find a resumable draft for a customer email
// @Tags proposals
// @Router /api/v1/proposals/draft [get]
func (h *ProposalHandler) FindDraft(ctx *fasthttp.RequestCtx) {
	actorID := h.actorID(ctx)
	if actorID == "" {
		return
	}
	email := string(ctx.QueryArgs().Peek("email"))
	if domain.NormalizeEmail(email) == "" {
		h.respondInvalid(ctx, "email is required")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	ref := h.useCase.FindDraft(stdCtx, domain.DraftKey{Email: email, ActorID: actorID}.Normalize())
	h.respondSuccess(ctx, http.StatusOK, transport.DraftLookupResponse{Found: ref != nil, Draft: ref})
}

// @Summary Create or update a proposal
// @Tags proposals
// @Router /api/v1/proposals [post]
func (h *ProposalHandler) Save(ctx *fasthttp.RequestCtx) {
	actorID := h.actorID(ctx)
	if actorID == "" {
		return
	}
	var req transport.ProposalRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondSaveFailure(ctx, domain.ErrInvalidPayload)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.useCase.Save(stdCtx, toInput(req, actorID))
	if err != nil {
		h.logFailure(stdCtx, "save proposal failed", err)
		h.respondSaveFailure(ctx, err)
		return
	}

	status := http.StatusOK
	if req.ID == "" && !res.IsDuplicate {
		status = http.StatusCreated
	}
	h.respondSuccess(ctx, status, transport.SaveResponse{
		Success:        true,
		ProposalID:     res.ProposalID,
		ProposalNumber: res.ProposalNumber,
		IsDuplicate:    res.IsDuplicate,
	})
}

// @Summary Move a proposal to a new status
// @Tags proposals
// @Router /api/v1/proposals/{id}/status [patch]
func (h *ProposalHandler) UpdateStatus(ctx *fasthttp.RequestCtx) {
	actorID := h.actorID(ctx)
	if actorID == "" {
		return
	}
	id, _ := ctx.UserValue("id").(string)

	var req transport.StatusRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondError(ctx, domain.ErrInvalidPayload)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.useCase.UpdateStatus(stdCtx, id, domain.Status(req.Status), actorID); err != nil {
		h.logFailure(stdCtx, "update proposal status failed", err)
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.StatusResponse{Success: true})
}

func (h *ProposalHandler) respondSaveFailure(ctx *fasthttp.RequestCtx, err error) {
	status, code := mapError(err)
	message := publicMessage(err, status)
	h.respondJSON(ctx, status, transport.NewFailure(code, message, transport.SaveResponse{Success: false, Error: message}))
}

func toInput(req transport.ProposalRequest, actorID string) proposal.Input {
	in := proposal.Input{
		ProposalID: req.ID,
		ActorID:    actorID,
		Customer: domain.Customer{
			Name:    req.Customer.Name,
			Email:   req.Customer.Email,
			Phone:   req.Customer.Phone,
			Address: req.Customer.Address,
		},
		Services: req.Services,
		Status:   domain.Status(req.Status),
	}

	if len(req.Products) > 0 {
		in.Products = make(map[string]domain.ProductDetail, len(req.Products))
		for serviceID, p := range req.Products {
			in.Products[serviceID] = domain.ProductDetail{
				ServiceID:     serviceID,
				Configuration: p.Configuration,
				ScopeNotes:    p.ScopeNotes,
			}
		}
	}

	in.Pricing = pricing.Input{Subtotal: req.Pricing.Subtotal}
	for _, d := range req.Pricing.Discounts {
		in.Pricing.Discounts = append(in.Pricing.Discounts, pricing.DiscountLine{Type: d.Type, Label: d.Label, Amount: d.Amount})
	}
	if f := req.Pricing.Financing; f != nil {
		in.Pricing.Financing = domain.FinancingTerms{PlanID: f.PlanID, TermMonths: f.TermMonths, APR: f.APR}
	}

	for _, a := range req.CustomAdders {
		in.Adders = append(in.Adders, domain.CustomPricingAdder{
			Category:    a.Category,
			Description: a.Description,
			Cost:        a.Cost,
		})
	}

	in.Offers = selections(req.SelectedOffers, req.CustomizedOffers)
	return in
}

// selections merges plain selections with customized ones. A request that
// names no offers at all yields nil so applied offers are left untouched.
func selections(selected []string, customized map[string]domain.OfferCustomization) []offer.Selection {
	if selected == nil && len(customized) == 0 {
		return nil
	}
	out := make([]offer.Selection, 0, len(selected)+len(customized))
	seen := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		sel := offer.Selection{OfferID: id}
		if c, ok := customized[id]; ok {
			c := c
			sel.Customization = &c
		}
		out = append(out, sel)
	}

	extra := make([]string, 0, len(customized))
	for id := range customized {
		if _, ok := seen[id]; !ok && id != "" {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		c := customized[id]
		out = append(out, offer.Selection{OfferID: id, Customization: &c})
	}
	return out
}
