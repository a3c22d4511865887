package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"alphapilot/internal/backtest"
	"alphapilot/internal/config"
	"alphapilot/internal/dataset"
	"alphapilot/internal/promotion"
	"alphapilot/internal/repository"
	"alphapilot/internal/service"
)

// ResearchHandler drives walk-forward runs, model training and the
// promotion protocol over HTTP.
type ResearchHandler struct {
	Service   *service.ResearchService
	Promotion config.PromotionConfig
	Repo      repository.Repository
}

func (h *ResearchHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/research")
	g.POST("/walkforward", h.runWalkForward)
	g.GET("/walkforward", h.listWalkForward)
	g.POST("/train", h.train)
	g.POST("/promotion", h.evaluatePromotion)
}

type walkForwardRequest struct {
	WindowTrain   int       `json:"window_train"`
	WindowTest    int       `json:"window_test"`
	Step          int       `json:"step"`
	ThresholdGrid []float64 `json:"threshold_grid"`
}

func (h *ResearchHandler) runWalkForward(c *gin.Context) {
	var req walkForwardRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}
	res, err := h.Service.RunWalkForward(c.Request.Context(), backtest.Config{
		WindowTrain:   req.WindowTrain,
		WindowTest:    req.WindowTest,
		Step:          req.Step,
		ThresholdGrid: req.ThresholdGrid,
	})
	if err != nil {
		if errors.Is(err, dataset.ErrUnavailable) {
			Error(c, http.StatusConflict, err.Error(), nil)
			return
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, res, map[string]any{"empty": res.Empty})
}

func (h *ResearchHandler) listWalkForward(c *gin.Context) {
	limit := intQuery(c, "limit", 20)
	items, err := h.Repo.ListWalkForwardRuns(c.Request.Context(), limit)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *ResearchHandler) train(c *gin.Context) {
	run, err := h.Service.TrainAndRegister(c.Request.Context())
	if err != nil {
		if errors.Is(err, dataset.ErrUnavailable) {
			Error(c, http.StatusConflict, err.Error(), nil)
			return
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, run, nil)
}

type promotionRequest struct {
	MinAUCGain         *float64 `json:"min_auc_gain"`
	AUCTolerance       *float64 `json:"auc_tolerance"`
	TailSize           *int     `json:"tail_size"`
	PreferRiskAdjusted *bool    `json:"prefer_risk_adjusted"`
	DryRun             *bool    `json:"dry_run"`
}

func (h *ResearchHandler) evaluatePromotion(c *gin.Context) {
	params := promotion.Params{
		MinAUCGain:         h.Promotion.MinAUCGain,
		AUCTolerance:       h.Promotion.AUCTolerance,
		TailSize:           h.Promotion.TailSize,
		PreferRiskAdjusted: h.Promotion.PreferRiskAdjusted,
		DryRun:             h.Promotion.DryRun,
	}
	var req promotionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}
	if req.MinAUCGain != nil {
		params.MinAUCGain = *req.MinAUCGain
	}
	if req.AUCTolerance != nil {
		params.AUCTolerance = *req.AUCTolerance
	}
	if req.TailSize != nil {
		params.TailSize = *req.TailSize
	}
	if req.PreferRiskAdjusted != nil {
		params.PreferRiskAdjusted = *req.PreferRiskAdjusted
	}
	if req.DryRun != nil {
		params.DryRun = *req.DryRun
	}
	dec, err := h.Service.EvaluatePromotion(c.Request.Context(), params)
	if err != nil {
		if errors.Is(err, promotion.ErrNoChallenger) {
			Error(c, http.StatusConflict, err.Error(), nil)
			return
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, dec, nil)
}
