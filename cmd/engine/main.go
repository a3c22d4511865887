package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"alphapilot/internal/admission"
	"alphapilot/internal/backtest"
	"alphapilot/internal/config"
	cronrunner "alphapilot/internal/cron"
	"alphapilot/internal/dataset"
	"alphapilot/internal/db"
	"alphapilot/internal/guard"
	"alphapilot/internal/handler"
	"alphapilot/internal/ledger"
	"alphapilot/internal/logger"
	"alphapilot/internal/mlmodel"
	"alphapilot/internal/notifier"
	"alphapilot/internal/policy"
	"alphapilot/internal/promotion"
	"alphapilot/internal/repository"
	gormrepository "alphapilot/internal/repository/gorm"
	"alphapilot/internal/risk"
	"alphapilot/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("AP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := false
	if raw := os.Getenv("AP_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}
	store := gormrepository.New(dbConn.Gorm)

	policyLoader := policy.NewLoader(cfg.State.Dir)
	guardStore, err := guard.NewStore(cfg.State.Dir)
	if err != nil {
		logger.Fatal("trade guard init failed", zap.Error(err))
	}
	logger.Info("trade guard ready", zap.String("mode", string(guardStore.Mode())))

	trailing, err := risk.NewTrailingStore(cfg.State.Dir)
	if err != nil {
		logger.Fatal("trailing store init failed", zap.Error(err))
	}

	ledgerStore, err := ledger.NewStore(cfg.Ledger.Path, decimal.NewFromFloat(cfg.Ledger.InitialCash))
	if err != nil {
		logger.Fatal("ledger init failed", zap.Error(err))
	}
	engine := &ledger.Engine{
		Store:   ledgerStore,
		Sizer:   service.PolicySizer{Loader: policyLoader},
		FeeRate: decimal.NewFromFloat(cfg.Ledger.FeeRate),
		Logger:  logger,
	}

	var sink notifier.Sink = notifier.Nop{}
	if cfg.Notifier.Enabled && cfg.Notifier.WebhookURL != "" {
		sink = notifier.NewWebhook(cfg.Notifier.WebhookURL, cfg.Notifier.Timeout)
	}

	provider := &dataset.CSVProvider{Path: cfg.Dataset.CSVPath}
	key := repository.ModelKey{
		Exchange:    cfg.Market.Exchange,
		Instrument:  cfg.Market.Instrument,
		Timeframe:   cfg.Market.Timeframe,
		HorizonBars: cfg.Market.HorizonBars,
	}

	pipeline := &admission.Pipeline{Repo: store, Key: key, Logger: logger}
	riskMgr := &risk.Manager{
		Engine:   engine,
		Policy:   policyLoader,
		Trailing: trailing,
		Guard:    guardStore,
		Notifier: sink,
		Logger:   logger,
	}

	decisionSvc := &service.DecisionService{
		Market:   cfg.Market,
		Repo:     store,
		Provider: provider,
		Pipeline: pipeline,
		Engine:   engine,
		Policy:   policyLoader,
		Guard:    guardStore,
		Notifier: sink,
		Logger:   logger,
	}
	sweepSvc := &service.SweepService{
		Market:   cfg.Market,
		Provider: provider,
		Risk:     riskMgr,
		Logger:   logger,
	}
	outcomeSvc := &service.OutcomeService{
		Market:   cfg.Market,
		Repo:     store,
		Provider: provider,
		Logger:   logger,
	}
	snapshotSvc := &service.SnapshotService{
		Market:   cfg.Market,
		Repo:     store,
		Provider: provider,
		Engine:   engine,
		Logger:   logger,
	}
	researchSvc := &service.ResearchService{
		Market:      cfg.Market,
		Backtest:    cfg.Backtest,
		ArtifactDir: cfg.Promotion.ArtifactDir,
		Repo:        store,
		Provider:    provider,
		Trainer:     mlmodel.NewLogisticTrainer(),
		Engine:      &backtest.Engine{Trainer: mlmodel.NewLogisticTrainer(), Logger: logger},
		Promotion:   &promotion.Protocol{Repo: store, Key: key, Notifier: sink, Logger: logger},
		Logger:      logger,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	(&handler.HealthHandler{DB: dbConn.Gorm}).Register(router)
	(&handler.PortfolioHandler{Engine: engine, Repo: store}).Register(router)
	(&handler.SignalHandler{Repo: store}).Register(router)
	(&handler.ResearchHandler{Service: researchSvc, Promotion: cfg.Promotion, Repo: store}).Register(router)
	(&handler.GuardHandler{Guard: guardStore}).Register(router)
	(&handler.PolicyHandler{Loader: policyLoader}).Register(router)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Cron.Enabled {
		runner := cronrunner.New(logger, ctx)
		register := func(spec, name string, job func(context.Context) error) {
			if _, err := runner.Add(spec, name, job); err != nil {
				logger.Warn("cron register failed", zap.String("job", name), zap.Error(err))
			}
		}
		register(cfg.Cron.DecisionCycle, "decision_cycle", decisionSvc.RunCycle)
		register(cfg.Cron.RiskSweep, "risk_sweep", sweepSvc.RunSweep)
		register(cfg.Cron.OutcomeResolve, "outcome_resolve", outcomeSvc.ResolveOnce)
		register(cfg.Cron.EquitySnapshot, "equity_snapshot", snapshotSvc.RunOnce)
		runner.Start()
		defer runner.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
