package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"alphapilot/internal/policy"
)

// PolicyHandler reads and replaces the hot-reloadable risk policy document.
type PolicyHandler struct {
	Loader *policy.Loader
}

func (h *PolicyHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/policy")
	g.GET("", h.get)
	g.PUT("", h.set)
}

func (h *PolicyHandler) get(c *gin.Context) {
	pol, err := h.Loader.Load()
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, pol, nil)
}

func (h *PolicyHandler) set(c *gin.Context) {
	// Bind over defaults so a partial document stays a valid policy.
	pol := policy.Default()
	if err := c.ShouldBindJSON(&pol); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.Loader.Save(pol); err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, pol, nil)
}
