package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tom2984/aac-sub001/internal/api"
	"github.com/tom2984/aac-sub001/internal/app"
	"github.com/tom2984/aac-sub001/internal/app/maintenance"
	iauth "github.com/tom2984/aac-sub001/internal/auth"
	"github.com/tom2984/aac-sub001/internal/cache"
	"github.com/tom2984/aac-sub001/internal/database"
	"github.com/tom2984/aac-sub001/internal/middleware"
	"github.com/tom2984/aac-sub001/internal/monitoring"
	"github.com/tom2984/aac-sub001/internal/monitoring/checks"
	"github.com/tom2984/aac-sub001/internal/security"
	"github.com/tom2984/aac-sub001/internal/store"
	"github.com/tom2984/aac-sub001/pkg/logger"
	"github.com/tom2984/aac-sub001/pkg/mail"
)

const rateStoreSweep = time.Minute

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Store   *store.Store
	Cleaner *maintenance.Cleaner
	Router  *gin.Engine

	stopRateStore context.CancelFunc
}

// bootstrapRuntime initialises the database, mail transport, background jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Store, err = store.New(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise store: %w", err)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	mailer, err := mail.New(ctx, cfg.Email.MailSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mail transport: %w", err)
	}
	if strings.TrimSpace(cfg.Email.Driver) == "" {
		log.Warn("email driver not configured; invites, confirmations and notification emails will fail")
	} else {
		log.Info("email transport ready", zap.String("driver", cfg.Email.Driver))
	}

	rateCtx, cancel := context.WithCancel(context.Background())
	stack.stopRateStore = cancel

	var (
		rateStore middleware.RateStore
		counters  *cache.DatabaseCounter
	)
	switch kind := strings.ToLower(strings.TrimSpace(cfg.Server.RateLimit.Store)); kind {
	case "", "memory":
		rateStore = middleware.NewMemoryRateStore(rateCtx, rateStoreSweep)
	case "database":
		counters, err = cache.NewDatabaseCounter(stack.DB)
		if err != nil {
			return nil, fmt.Errorf("initialise rate counters: %w", err)
		}
		rateStore = counters
	default:
		return nil, fmt.Errorf("unsupported rate limit store %q", kind)
	}

	if cfg.Maintenance.Enabled {
		opts := []maintenance.Option{
			maintenance.WithExpirySchedule(cfg.Maintenance.ExpirySchedule),
			maintenance.WithPurgeSchedule(cfg.Maintenance.PurgeSchedule),
			maintenance.WithTokenRetention(cfg.Maintenance.TokenRetention),
		}
		if counters != nil {
			opts = append(opts, maintenance.WithRateCounters(counters))
		}
		stack.Cleaner, err = maintenance.NewCleaner(stack.Store.Invites, stack.Store.Confirmations, opts...)
		if err != nil {
			return nil, fmt.Errorf("initialise maintenance jobs: %w", err)
		}
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	health := monitoring.NewHealthManager()
	health.RegisterReadiness(checks.Database(stack.Store, 0))
	health.RegisterReadiness(checks.Mail(cfg.Email.Driver))
	if stack.Cleaner != nil {
		health.RegisterLiveness(checks.Maintenance(stack.Cleaner, 0))
	} else {
		health.RegisterLiveness(checks.Maintenance(nil, 0))
	}

	stack.Router, err = api.NewRouter(cfg, api.Dependencies{
		Store:     stack.Store,
		JWT:       jwtSvc,
		Mailer:    mailer,
		RateStore: rateStore,
		Health:    health,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	logSecurityAudit(ctx, security.NewAuditService(stack.DB, cfg), log)

	success = true
	return stack, nil
}

func logSecurityAudit(ctx context.Context, audit *security.AuditService, log *zap.Logger) {
	result := audit.Run(ctx)
	for _, check := range result.Checks {
		switch check.Status {
		case security.StatusFail:
			log.Error("security audit check failed", zap.String("check", check.ID), zap.String("message", check.Message), zap.String("remediation", check.Remediation))
		case security.StatusWarn:
			log.Warn("security audit warning", zap.String("check", check.ID), zap.String("message", check.Message))
		}
	}
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
		s.Cleaner = nil
	}

	if s.stopRateStore != nil {
		s.stopRateStore()
		s.stopRateStore = nil
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
		s.DB = nil
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndPing(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	src := cfg.Database
	dbCfg := database.Config{
		Driver:          strings.ToLower(strings.TrimSpace(src.Driver)),
		Path:            strings.TrimSpace(src.Path),
		DSN:             strings.TrimSpace(src.DSN),
		Host:            strings.TrimSpace(src.Host),
		Port:            src.Port,
		Name:            strings.TrimSpace(src.Name),
		User:            strings.TrimSpace(src.User),
		Password:        src.Password,
		Options:         src.Options,
		MaxOpenConns:    src.MaxOpenConns,
		MaxIdleConns:    src.MaxIdleConns,
		ConnMaxLifetime: src.ConnMaxLifetime,
	}

	switch dbCfg.Driver {
	case "", "sqlite", "sqlite3":
		dbCfg.Driver = "sqlite"
	case "postgresql":
		dbCfg.Driver = "postgres"
	case "mariadb":
		dbCfg.Driver = "mysql"
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
