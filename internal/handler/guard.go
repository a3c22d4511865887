package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"alphapilot/internal/guard"
)

// GuardHandler is the trade-guard control surface: read and set the
// process-wide mode.
type GuardHandler struct {
	Guard *guard.Store
}

func (h *GuardHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/guard")
	g.GET("", h.get)
	g.PUT("", h.set)
}

func (h *GuardHandler) get(c *gin.Context) {
	Ok(c, gin.H{"mode": h.Guard.Mode()}, nil)
}

type guardRequest struct {
	Mode string `json:"mode"`
}

func (h *GuardHandler) set(c *gin.Context) {
	var req guardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	mode, ok := guard.ParseMode(req.Mode)
	if !ok {
		Error(c, http.StatusBadRequest, "mode must be live, close_only or locked", map[string]any{
			"got": strings.TrimSpace(req.Mode),
		})
		return
	}
	if err := h.Guard.Set(mode); err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"mode": mode}, nil)
}
