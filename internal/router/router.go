package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/proposals/api/handler"
)

type Handlers struct {
	Proposal *apiHandler.ProposalHandler
	Offers   *apiHandler.OffersHandler
	Health   *apiHandler.HealthHandler
	// Metrics is mounted at /metrics when set.
	Metrics fasthttp.RequestHandler
}

func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)
	if handlers.Metrics != nil {
		r.GET("/metrics", handlers.Metrics)
	}

	// Proposal routes
	r.GET("/api/v1/proposals/draft", authMiddleware(handlers.Proposal.FindDraft))
	r.POST("/api/v1/proposals", authMiddleware(handlers.Proposal.Save))
	r.PATCH("/api/v1/proposals/{id}/status", authMiddleware(handlers.Proposal.UpdateStatus))

	r.GET("/api/v1/offers", authMiddleware(handlers.Offers.List))

	return r
}
