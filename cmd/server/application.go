package main

import (
	"fmt"
	"time"

	"github.com/contextd/contextd/internal/config"
	"github.com/contextd/contextd/internal/domain/conversation"
	"github.com/contextd/contextd/internal/domain/session"
	"github.com/contextd/contextd/internal/infrastructure/cachestore"
	"github.com/contextd/contextd/internal/infrastructure/crontab"
	"github.com/contextd/contextd/internal/infrastructure/database"
	"github.com/contextd/contextd/internal/infrastructure/database/gormstore"
	"github.com/contextd/contextd/internal/infrastructure/database/transaction"
	"github.com/contextd/contextd/internal/infrastructure/kvstore"
	"github.com/contextd/contextd/internal/infrastructure/storeretry"
	"github.com/contextd/contextd/internal/infrastructure/summarizer"
	"github.com/contextd/contextd/internal/interfaces/httpserver"
	"github.com/contextd/contextd/internal/interfaces/httpserver/handlers/conversationhandler"
	"github.com/contextd/contextd/internal/interfaces/httpserver/handlers/usagehandler"
	v1 "github.com/contextd/contextd/internal/interfaces/httpserver/routes/v1"
	conversationroute "github.com/contextd/contextd/internal/interfaces/httpserver/routes/v1/conversation"
	usageroute "github.com/contextd/contextd/internal/interfaces/httpserver/routes/v1/usage"

	// dbschema registers its models for auto migration.
	_ "github.com/contextd/contextd/internal/infrastructure/database/dbschema"
)

// Application wires the storage backend, the engine and the HTTP surface.
type Application struct {
	httpServer *httpserver.HTTPServer
	crontab    *crontab.Crontab
	cfg        *config.Config
}

func newApplication(cfg *config.Config) (*Application, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	// Decorator order: retries sit closest to the backend, the cache on top
	// so cached hits skip the retry layer entirely.
	store = storeretry.New(store, cfg.StorageBackend, 2*time.Second)
	if cfg.CacheEnabled {
		cached, err := cachestore.New(store, cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create read cache: %w", err)
		}
		store = cached
	}

	policy := conversation.TrimPolicy{
		MaxTurns:    cfg.MaxTurns,
		TrimOnWrite: cfg.TrimOnWrite,
		TrimOnRead:  cfg.TrimOnRead,
		Summarize:   cfg.TrimMode == config.TrimModeSummarize,
	}

	var summ conversation.Summarizer
	if policy.Summarize {
		summ = summarizer.NewClient(summarizer.Options{
			BaseURL: cfg.SummarizerURL,
			APIKey:  cfg.SummarizerAPIKey,
			Model:   cfg.SummarizerModel,
			Timeout: cfg.SummarizerTimeout,
		})
	}

	engine := session.NewEngine(store, policy, summ)

	conversationHandler := conversationhandler.NewConversationHandler(engine)
	branchHandler := conversationhandler.NewBranchHandler(engine)
	usageHandler := usagehandler.NewUsageHandler(engine)

	v1Route := v1.NewV1Route(
		conversationroute.NewConversationRoute(conversationHandler),
		conversationroute.NewBranchRoute(branchHandler),
		usageroute.NewUsageRoute(usageHandler),
	)

	return &Application{
		httpServer: httpserver.NewHttpServer(v1Route, store, cfg),
		crontab:    crontab.NewCrontab(engine, cfg),
		cfg:        cfg,
	}, nil
}

func newStore(cfg *config.Config) (conversation.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres, config.BackendSQLite:
		driver := database.DriverPostgres
		writeDSN := cfg.DBPostgresqlWriteDSN
		readDSN := cfg.DBPostgresqlRead1DSN
		if cfg.StorageBackend == config.BackendSQLite {
			driver = database.DriverSQLite
			writeDSN = cfg.SQLitePath
			readDSN = ""
		}

		db, err := database.NewDB(driver, writeDSN, readDSN)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if cfg.AutoMigrate {
			if err := database.Migration(db); err != nil {
				return nil, fmt.Errorf("migrate database: %w", err)
			}
		}
		return gormstore.NewGormStore(transaction.NewDatabase(db)), nil

	case config.BackendRedis:
		store, err := kvstore.NewRedisStore(kvstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
