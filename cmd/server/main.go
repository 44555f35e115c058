package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/agencykit/proposta"
	"github.com/agencykit/proposta/provider/local"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-router"
	mflash "github.com/goliatone/go-router/middleware/flash"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type config struct {
	DSN             string
	HTTPAddr        string
	SigningKey      string
	TokenTTL        int // hours
	ExtendedTTL     int // hours, remember-me
	PhoneRegion     string
	SeedAdminEmail  string
	SeedAdminPass   string
	SeedAdminName   string
	ViewsDir        string
}

func loadConfig() config {
	// .env is optional, real deployments use the environment directly
	_ = godotenv.Load()

	return config{
		DSN:            getEnv("PROPOSTA_DSN", "file:proposta.db?_pragma=foreign_keys(1)"),
		HTTPAddr:       getEnv("PROPOSTA_HTTP_ADDR", ":8572"),
		SigningKey:     getEnv("PROPOSTA_SIGNING_KEY", ""),
		TokenTTL:       getEnvInt("PROPOSTA_TOKEN_TTL_HOURS", 24),
		ExtendedTTL:    getEnvInt("PROPOSTA_EXTENDED_TTL_HOURS", 24*30),
		PhoneRegion:    getEnv("PROPOSTA_PHONE_REGION", "BR"),
		SeedAdminEmail: getEnv("PROPOSTA_SEED_ADMIN_EMAIL", ""),
		SeedAdminPass:  getEnv("PROPOSTA_SEED_ADMIN_PASSWORD", ""),
		SeedAdminName:  getEnv("PROPOSTA_SEED_ADMIN_NAME", "Administrator"),
		ViewsDir:       getEnv("PROPOSTA_VIEWS_DIR", "views"),
	}
}

func getEnv(key, defVal string) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defVal
	}
	return val
}

func getEnvInt(key string, defVal int) int {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defVal
	}
	return n
}

// initLogger sets up the Zap logger to log to the console in a human
// readable format
func initLogger() *zap.Logger {
	prodConfig := zap.NewProductionConfig()
	prodConfig.Encoding = "console"
	prodConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	prodConfig.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	logger, _ := prodConfig.Build()
	return logger
}

// zapAdapter exposes a zap sugared logger through the app Logger interface
type zapAdapter struct {
	sugar *zap.SugaredLogger
}

func (z zapAdapter) Debug(format string, args ...any) { z.sugar.Debugf(format, args...) }
func (z zapAdapter) Info(format string, args ...any)  { z.sugar.Infof(format, args...) }
func (z zapAdapter) Warn(format string, args ...any)  { z.sugar.Warnf(format, args...) }
func (z zapAdapter) Error(format string, args ...any) { z.sugar.Errorf(format, args...) }

func main() {
	cfg := loadConfig()

	zlog := initLogger()
	defer zlog.Sync()
	logger := zapAdapter{sugar: zlog.Sugar()}

	if cfg.SigningKey == "" {
		logger.Error("PROPOSTA_SIGNING_KEY is required")
		os.Exit(1)
	}

	ctx := context.Background()

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
	if err != nil {
		logger.Error("failed to open database: %v", err)
		os.Exit(1)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()

	if err := proposta.RunMigrations(ctx, db, logger); err != nil {
		logger.Error("failed to run migrations: %v", err)
		os.Exit(1)
	}

	repo := proposta.NewRepositoryManager(db)
	repo.MustValidate()

	tokens := local.NewTokenService([]byte(cfg.SigningKey), cfg.TokenTTL, "proposta", nil, logger)
	provider := local.New(db, tokens).
		WithLogger(logger).
		WithMailer(local.NewLogMailer(logger))

	activity := proposta.ActivitySinkFunc(func(_ context.Context, event proposta.ActivityEvent) error {
		logger.Info("activity type=%s user=%s", event.EventType, event.UserID)
		return nil
	})

	proposta.DefaultPhoneRegion = cfg.PhoneRegion

	orchestrator := proposta.NewOrchestrator(provider, repo).
		WithLogger(logger).
		WithActivitySink(activity)
	defer orchestrator.Close()

	if cfg.SeedAdminEmail != "" && cfg.SeedAdminPass != "" {
		seed := proposta.NewSeedAdminHandler(repo, provider).WithLogger(logger)
		if err := seed.Execute(ctx, proposta.SeedAdminMessage{
			Email:    cfg.SeedAdminEmail,
			Password: cfg.SeedAdminPass,
			Name:     cfg.SeedAdminName,
		}); err != nil {
			logger.Error("failed to seed admin: %v", err)
			os.Exit(1)
		}
	}

	if err := orchestrator.RestoreSession(ctx); err != nil {
		logger.Warn("session restore failed: %v", err)
	}

	auther, err := proposta.NewHTTPAuthenticator(orchestrator, provider, proposta.HTTPConfig{
		TokenExpiration:  cfg.TokenTTL,
		ExtendedTokenTTL: cfg.ExtendedTTL,
	})
	if err != nil {
		logger.Error("failed to build http authenticator: %v", err)
		os.Exit(1)
	}
	auther.Logger = logger

	engine := django.New(cfg.ViewsDir, ".html")

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			StrictRouting:     false,
			PassLocalsToViews: true,
			Views:             engine,
		}))
	})

	srv.Router().Use(mflash.New(mflash.ConfigDefault))

	proposta.RegisterAuthRoutes(srv.Router(),
		proposta.WithControllerOrchestrator(orchestrator),
		proposta.WithControllerProvider(provider),
		proposta.WithControllerAuther(auther),
		proposta.WithControllerLogger(logger),
	)

	protected := auther.ProtectedRoute(auther.MakeClientRouteAuthErrorHandler(false))
	adminOnly := auther.ProtectedRoute(
		auther.MakeClientRouteAuthErrorHandler(false),
		auther.AdminGate(),
	)

	api := proposta.NewAPIController(repo, orchestrator,
		proposta.WithAPILogger(logger),
		proposta.WithAPIActivitySink(activity),
		proposta.WithAPIPhoneRegion(cfg.PhoneRegion),
	)
	proposta.RegisterAPIRoutes(srv.Router(), api, protected, adminOnly)

	srv.Router().Get("/", func(ctx router.Context) error {
		metrics, err := proposta.BuildDashboard(ctx.Context(), repo)
		if err != nil {
			logger.Error("dashboard error: %v", err)
			return ctx.Render("errors/500", router.ViewContext{"message": "failed to load dashboard"})
		}
		return ctx.Render("dashboard", router.ViewContext{
			"metrics": metrics,
		})
	}, protected)

	logger.Info("listening on %s", cfg.HTTPAddr)

	srv.Serve(cfg.HTTPAddr)

	waitExitSignal()
}

func waitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
