package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"alphapilot/internal/ledger"
	"alphapilot/internal/repository"
)

// PortfolioHandler exposes the ledger read surface: current equity, open
// positions, the order log and equity history.
type PortfolioHandler struct {
	Engine *ledger.Engine
	Repo   repository.Repository
}

func (h *PortfolioHandler) Register(r *gin.Engine) {
	p := r.Group("/api/v1/portfolio")
	p.GET("/equity", h.equity)
	p.GET("/positions", h.positions)
	p.GET("/orders", h.orders)
	p.GET("/equity/history", h.history)
}

func (h *PortfolioHandler) equity(c *gin.Context) {
	val, err := h.Engine.MarkToMarket(nil)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, val, nil)
}

func (h *PortfolioHandler) positions(c *gin.Context) {
	snap, err := h.Engine.Store.Snapshot()
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, snap.OpenPositions(), nil)
}

func (h *PortfolioHandler) orders(c *gin.Context) {
	snap, err := h.Engine.Store.Snapshot()
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	orders := snap.Orders
	if len(orders) > limit {
		orders = orders[len(orders)-limit:]
	}
	Ok(c, orders, map[string]any{"total": len(snap.Orders)})
}

func (h *PortfolioHandler) history(c *gin.Context) {
	limit := intQuery(c, "limit", 200)
	items, err := h.Repo.ListEquitySnapshots(c.Request.Context(), limit)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}
