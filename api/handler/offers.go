package handler

import (
	"net/http"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/proposals/api/transport"
	"github.com/fastygo/proposals/pkg/httpcontext"
	"github.com/fastygo/proposals/usecase/offer"
)

type OffersHandler struct {
	baseHandler
	catalog *offer.CatalogService
}

func NewOffersHandler(catalog *offer.CatalogService, adapter *httpcontext.Adapter, logger *zap.Logger) *OffersHandler {
	return &OffersHandler{
		baseHandler: newBaseHandler(adapter, logger),
		catalog:     catalog,
	}
}

// @Summary List offers eligible for a service selection
// @Tags offers
// @Router /api/v1/offers [get]
func (h *OffersHandler) List(ctx *fasthttp.RequestCtx) {
	var services []string
	for _, raw := range ctx.QueryArgs().PeekMulti("services") {
		for _, id := range strings.Split(string(raw), ",") {
			if id = strings.TrimSpace(id); id != "" {
				services = append(services, id)
			}
		}
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	eligible, err := h.catalog.EligibleFor(stdCtx, services)
	if err != nil {
		h.logFailure(stdCtx, "list offers failed", err)
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.OffersResponse{
		SpecialOffers: eligible.SpecialOffers,
		Bundles:       eligible.Bundles,
	})
}
