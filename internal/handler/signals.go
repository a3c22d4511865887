package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"alphapilot/internal/repository"
)

// SignalHandler exposes recent signal events and their resolved outcomes.
type SignalHandler struct {
	Repo repository.Repository
}

func (h *SignalHandler) Register(r *gin.Engine) {
	s := r.Group("/api/v1/signals")
	s.GET("", h.list)
	s.GET("/outcomes", h.outcomes)
}

func (h *SignalHandler) list(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	items, err := h.Repo.ListRecentSignalEvents(c.Request.Context(), limit)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *SignalHandler) outcomes(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	items, err := h.Repo.ListSignalOutcomes(c.Request.Context(), limit)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}
