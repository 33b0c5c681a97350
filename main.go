package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	apirest "github.com/kasuganosora/ashenguild/api/rest"
	"github.com/kasuganosora/ashenguild/api/soap"
	"github.com/kasuganosora/ashenguild/api/sse"
	"github.com/kasuganosora/ashenguild/audit"
	"github.com/kasuganosora/ashenguild/character"
	"github.com/kasuganosora/ashenguild/config"
	dbadapter "github.com/kasuganosora/ashenguild/db"
	"github.com/kasuganosora/ashenguild/guild"
	"github.com/kasuganosora/ashenguild/metrics"
	mw "github.com/kasuganosora/ashenguild/middleware"
	"github.com/kasuganosora/ashenguild/model"
	"github.com/kasuganosora/ashenguild/pubsub"
	"github.com/kasuganosora/ashenguild/scheduler"
	"github.com/kasuganosora/ashenguild/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	consistencyTask = "guild_consistency"
	auditPurgeTask  = "audit_purge"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("db open", zap.Error(err))
	}
	if err := model.AutoMigrate(db); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}
	if cfg.Database.SeedSample {
		seeded, err := model.SeedSample(db)
		if err != nil {
			logger.Fatal("db seed", zap.Error(err))
		}
		if seeded {
			logger.Info("sample guilds seeded")
		}
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	gw := store.New(db, store.Options{
		Timeout:   cfg.Database.OpTimeout,
		Isolation: store.IsolationFor(db.Dialector.Name()),
	}, logger)

	// ---- Events ----
	ps, err := pubsub.New(pubsub.Config{
		RedisAddr:     cfg.Events.RedisAddr,
		RedisPassword: cfg.Events.RedisPassword,
		RedisDB:       cfg.Events.RedisDB,
		LocalBuf:      cfg.Events.LocalBuf,
	})
	if err != nil {
		logger.Fatal("pubsub", zap.Error(err))
	}
	defer ps.Close()

	// ---- Guild core ----
	svc := guild.NewService(guild.NewRepository(gw), guild.NewPublisher(ps, logger), logger)
	charSvc := character.NewService(character.NewRepository(gw), logger)

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()
	if spec := cfg.Maintenance.ConsistencyCheck; spec != "" {
		err := sched.AddCron(consistencyTask, spec, func() {
			if _, err := svc.CheckConsistency(context.Background()); err != nil {
				logger.Warn("consistency check failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Fatal("scheduler", zap.Error(err))
		}
	}
	if spec, keep := cfg.Maintenance.AuditPurge, cfg.Maintenance.AuditRetention; spec != "" && keep > 0 {
		err := sched.AddCron(auditPurgeTask, spec, func() {
			n, err := auditSvc.Purge(context.Background(), time.Now().Add(-keep))
			if err != nil {
				logger.Warn("audit purge failed", zap.Error(err))
				return
			}
			logger.Info("audit purge", zap.Int64("deleted", n), zap.Duration("retention", keep))
		})
		if err != nil {
			logger.Fatal("scheduler", zap.Error(err))
		}
	}

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger), metrics.Middleware())
	r.Use(mw.RateLimit(ctx, rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	opsH := apirest.NewOpsHandler(gw, svc, sched, auditSvc, logger)
	r.GET("/health", opsH.Health)
	opsH.RegisterRoutes(r.Group("/ops", mw.IPWhitelist(cfg.Security.OpsAllowedIPs, logger)))

	// ---- REST ----
	guildsG := r.Group("/api/guilds", mw.Audit(auditSvc, audit.TransportREST))
	guildsG.GET("/events", sse.NewHandler(ps, logger).ServeSSE)
	apirest.NewGuildHandler(svc).RegisterRoutes(guildsG)

	apiG := r.Group("/api", mw.Audit(auditSvc, audit.TransportREST))
	apirest.NewCharacterHandler(charSvc).RegisterRoutes(apiG)
	apiG.GET("/dashboard", apirest.NewDashboardHandler(svc, charSvc, logger).Dashboard)

	// ---- SOAP ----
	soapG := r.Group("", mw.RecoveryWith(logger, soap.PanicFault), mw.Audit(auditSvc, audit.TransportSOAP))
	soap.NewHandler(svc, cfg.Server.SOAPLocation, logger).RegisterRoutes(soapG)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Long-lived SSE streams end when the process is signalled.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}
