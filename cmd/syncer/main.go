package main

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"citydistance/internal/adapters/observability"
	"citydistance/internal/adapters/search"
	"citydistance/internal/adapters/wikidata"
	"citydistance/internal/app"
	"citydistance/internal/shared"
	mysqlrepo "citydistance/internal/storage/mysql"
)

// One-shot sync run, for backfills and operator-driven refreshes. The API
// host runs the same cycle on a schedule.
func main() {
	ctx := context.Background()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Str("endpoint", cfg.SparqlURL).
		Strs("languages", cfg.Languages).
		Str("primary", cfg.PrimaryLang).
		Msg("syncer starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	index := search.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := index.Bootstrap(ctx); err != nil {
		log.Fatal().Err(err).Msg("search index bootstrap failed")
	}
	catalog, err := wikidata.New(cfg.SparqlURL, 1)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize catalog client")
	}

	syncer := app.NewSyncer(catalog, repo, index, cfg.Languages, cfg.PrimaryLang, cfg.LangDelay)
	n, err := syncer.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("sync run failed")
	}
	log.Info().Int("inserted", n).Msg("sync completed")
}
