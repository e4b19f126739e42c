package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "citydistance/internal/adapters/http_server"
	"citydistance/internal/adapters/observability"
	"citydistance/internal/adapters/rediscache"
	"citydistance/internal/adapters/search"
	"citydistance/internal/adapters/wikidata"
	"citydistance/internal/app"
	"citydistance/internal/shared"
	mysqlrepo "citydistance/internal/storage/mysql"
)

const version = "1.0.0"

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	index := search.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := index.Bootstrap(ctx); err != nil {
		log.Fatal().Err(err).Msg("search index bootstrap failed")
	}
	cache := rediscache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	catalog, err := wikidata.New(cfg.SparqlURL, 1)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize catalog client")
	}

	svc := app.NewCityService(repo, index, cache, cfg.CacheTTL)
	syncer := app.NewSyncer(catalog, repo, index, cfg.Languages, cfg.PrimaryLang, cfg.LangDelay)

	// background sync, independent of the request path
	go app.NewScheduler(syncer, cfg.SyncEvery).Start(ctx)

	// http
	srv := server.New()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Svc:      svc,
		Syncer:   syncer,
		DB:       db,
		Version:  version,
		AuthUser: cfg.AuthUser,
		AuthPass: cfg.AuthPass,
	})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("shutdown complete")
}
