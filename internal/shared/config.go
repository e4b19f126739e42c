package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	SparqlURL   string
	Languages   []string
	PrimaryLang string
	SyncEvery   time.Duration
	LangDelay   time.Duration
	CacheTTL    time.Duration
	AuthUser    string
	AuthPass    string
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/cities?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),
		SparqlURL:   env("SPARQL_URL", "https://query.wikidata.org/sparql"),
		Languages:   splitLangs(env("SYNC_LANGUAGES", "en,de,fr,es,it")),
		PrimaryLang: env("SYNC_PRIMARY_LANGUAGE", "en"),
		SyncEvery:   time.Duration(atoi("SYNC_INTERVAL_MINUTES", 720)) * time.Minute,
		LangDelay:   time.Duration(atoi("SYNC_LANGUAGE_DELAY_SECONDS", 30)) * time.Second,
		CacheTTL:    time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
		AuthUser:    env("AUTH_USERNAME", ""),
		AuthPass:    env("AUTH_PASSWORD", ""),
	}
	if c.AuthUser == "" || c.AuthPass == "" {
		log.Warn().Msg("AUTH_USERNAME/AUTH_PASSWORD empty; city CRUD routes disabled")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitLangs(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
