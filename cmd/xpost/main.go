package main

// @title           xpost API
// @version         1.0
// @description     Authorize an X account with OAuth 2.0 PKCE and publish posts on its behalf.

// @contact.name   xpost maintainers
// @contact.url    https://github.com/custodia-labs/xpost/issues

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:5000
// @BasePath  /api/v1
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Operator JWT. Format: "Bearer {token}"

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/custodia-labs/xpost/docs"
	"github.com/custodia-labs/xpost/internal/adapters/driven/auth"
	"github.com/custodia-labs/xpost/internal/adapters/driven/connectors/x"
	"github.com/custodia-labs/xpost/internal/adapters/driven/file"
	"github.com/custodia-labs/xpost/internal/adapters/driven/memory"
	"github.com/custodia-labs/xpost/internal/adapters/driven/postgres"
	redisadapter "github.com/custodia-labs/xpost/internal/adapters/driven/redis"
	"github.com/custodia-labs/xpost/internal/adapters/driven/sqlite"
	"github.com/custodia-labs/xpost/internal/adapters/driving/http"
	"github.com/custodia-labs/xpost/internal/config"
	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/custodia-labs/xpost/internal/core/ports/driven"
	"github.com/custodia-labs/xpost/internal/core/services"
	"github.com/custodia-labs/xpost/internal/logging"
	"github.com/custodia-labs/xpost/internal/metrics"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

const defaultOperatorTokenTTL = 24 * time.Hour

func main() {
	mode := "serve"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err = run(ctx, mode, cfg, logger)
	stop()
	_ = logCloser.Close()
	if err != nil {
		logger.Error("xpost failed", "mode", mode, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, mode string, cfg *config.Config, logger *slog.Logger) error {
	switch mode {
	case "token":
		return runToken(cfg)
	case "serve", "status", "logout":
	default:
		return fmt.Errorf("unknown mode %q (use: serve, token, status, or logout)", mode)
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	switch mode {
	case "status":
		return runStatus(ctx, st.tokens)
	case "logout":
		if err := st.tokens.Clear(ctx); err != nil {
			return fmt.Errorf("clear token: %w", err)
		}
		fmt.Println("Signed out.")
		return nil
	default:
		return runServe(ctx, cfg, st, logger)
	}
}

func runServe(ctx context.Context, cfg *config.Config, st *stores, logger *slog.Logger) error {
	logger.Info("xpost starting", "version", version, "token_store", cfg.TokenStore, "flow_store", cfg.FlowStore)

	if err := os.MkdirAll(cfg.UploadDir, 0o700); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	xcfg := x.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
		APIBaseURL:   cfg.APIBaseURL,
		UploadURL:    cfg.UploadURL,
		Timeout:      cfg.HTTPTimeout,
	}
	m := metrics.New()

	publisher := services.NewPublisher(services.PublisherConfig{
		Client:    x.NewClient(xcfg),
		Logger:    logger,
		UploadDir: cfg.UploadDir,
	})
	// Media staged by an earlier run outlived every flow that could use it.
	if _, err := publisher.PruneStaged(ctx, cfg.FlowTTL); err != nil {
		logger.Warn("failed to prune staged media", "error", err)
	}
	orchestrator := services.NewOrchestrator(services.OrchestratorConfig{
		Session: x.NewSession(xcfg),
		Flows:   st.flows,
		Tokens:  st.tokens,
		Runner:  publisher,
		Lock:    st.lock,
		FlowTTL: cfg.FlowTTL,
		Logger:  logger,
		Metrics: m,
	})

	sweeper := services.NewSweeper(services.SweeperConfig{
		Flows:   st.flows,
		Runner:  publisher,
		Uploads: publisher,
		MaxAge:  cfg.FlowTTL,
		Lock:    st.lock,
		Logger:  logger,
	})
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// A typed nil would not compare equal to nil in the middleware.
	var operatorAuth driven.AuthAdapter
	if cfg.OperatorAuthEnabled() {
		operatorAuth = auth.NewAdapter(cfg.OperatorJWTSecret)
		logger.Info("operator authentication enabled for the JSON API")
	}

	server := http.NewServer(http.Config{
		Host:      cfg.Host,
		Port:      cfg.Port,
		Version:   version,
		UploadDir: cfg.UploadDir,
		Logger:    logger,
		Metrics:   m,
	}, orchestrator, operatorAuth, st.checks)

	err := server.Start(ctx)

	// Pending flows held in memory die with the process, and so does every
	// file they staged.
	if cfg.FlowStore == config.StoreMemory {
		if _, pruneErr := publisher.PruneStaged(context.Background(), 0); pruneErr != nil {
			logger.Warn("failed to prune staged media", "error", pruneErr)
		}
	}
	return err
}

func runToken(cfg *config.Config) error {
	if !cfg.OperatorAuthEnabled() {
		return errors.New("OPERATOR_JWT_SECRET is not set")
	}

	ttl := defaultOperatorTokenTTL
	if len(os.Args) > 2 {
		d, err := time.ParseDuration(os.Args[2])
		if err != nil {
			return fmt.Errorf("parse ttl: %w", err)
		}
		ttl = d
	}

	token, err := auth.NewAdapter(cfg.OperatorJWTSecret).GenerateToken(domain.OperatorSubject, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runStatus(ctx context.Context, tokens driven.TokenStore) error {
	token, err := tokens.Load(ctx)
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	out, err := json.MarshalIndent(token.ToSummary(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// stores holds the configured persistence backends and what must be
// closed on shutdown.
type stores struct {
	tokens  driven.TokenStore
	flows   driven.FlowStore
	lock    driven.DistributedLock
	checks  map[string]driven.Pinger
	closers []io.Closer
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	st := &stores{checks: make(map[string]driven.Pinger)}
	opened := false
	defer func() {
		if !opened {
			st.Close()
		}
	}()

	// ===== PostgreSQL (only when a store uses it) =====
	var db *postgres.DB
	if cfg.TokenStore == config.StorePostgres || cfg.FlowStore == config.StorePostgres {
		var err error
		db, err = postgres.Connect(ctx, postgres.DefaultConfig(cfg.DatabaseURL))
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		st.closers = append(st.closers, db)
		if err := db.InitSchema(ctx); err != nil {
			return nil, fmt.Errorf("init postgres schema: %w", err)
		}
		st.checks["postgres"] = db
		logger.Info("postgres connected")
	}

	// ===== Redis (only when a store uses it) =====
	var redisClient *redis.Client
	if cfg.TokenStore == config.StoreRedis || cfg.FlowStore == config.StoreRedis {
		var err error
		redisClient, err = redisadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		st.closers = append(st.closers, redisClient)
		logger.Info("redis connected")
	}

	// ===== Token store =====
	switch cfg.TokenStore {
	case config.StoreFile:
		st.tokens = file.NewTokenStore(cfg.TokenFile, logger)
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath, cfg.TokenKey, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite token store: %w", err)
		}
		st.closers = append(st.closers, store)
		st.tokens = store
	case config.StorePostgres:
		st.tokens = postgres.NewTokenStore(db, cfg.TokenKey, logger)
	case config.StoreRedis:
		st.tokens = redisadapter.NewTokenStore(redisClient, cfg.TokenKey, logger)
	}
	if p, ok := st.tokens.(driven.Pinger); ok {
		st.checks["token_store"] = p
	}

	// ===== Pending-flow store =====
	switch cfg.FlowStore {
	case config.StoreRedis:
		st.flows = redisadapter.NewFlowStore(redisClient, cfg.FlowTTL)
	case config.StorePostgres:
		st.flows = postgres.NewFlowStore(db, cfg.FlowTTL)
	default:
		st.flows = memory.NewFlowStore(cfg.FlowTTL)
	}
	if p, ok := st.flows.(driven.Pinger); ok {
		st.checks["flow_store"] = p
	}

	// ===== Distributed lock (Redis if available, otherwise PostgreSQL advisory locks) =====
	switch {
	case redisClient != nil:
		st.lock = redisadapter.NewLock(redisClient)
		logger.Info("using redis distributed lock")
	case db != nil:
		st.lock = postgres.NewAdvisoryLock(db)
		logger.Info("using postgres advisory lock")
	}

	logger.Info("stores ready", "token_store", cfg.TokenStore, "flow_store", cfg.FlowStore)
	opened = true
	return st, nil
}
