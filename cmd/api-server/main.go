package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/surgiplan/surgery-scheduling/internal/api"
	"github.com/surgiplan/surgery-scheduling/internal/blobstore"
	"github.com/surgiplan/surgery-scheduling/internal/config"
	"github.com/surgiplan/surgery-scheduling/internal/db"
	"github.com/surgiplan/surgery-scheduling/internal/mirror"
	redisclient "github.com/surgiplan/surgery-scheduling/internal/redis"
	"github.com/surgiplan/surgery-scheduling/internal/surgery"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	setupLogging(cfg.Env)
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisPoolSize)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	blobs, err := blobstore.NewFSStore(cfg.AttachmentDir)
	if err != nil {
		log.Fatal().Err(err).Msg("attachment store error")
	}

	repo := surgery.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSurgeryLocker(rdb, cfg.LockTTL)
	feed := redisclient.NewFeed(rdb, cfg.FeedChannel)
	svc := surgery.NewService(repo, locker, feed)

	// Subscribe to the change feed before the initial load so deltas
	// arriving during the read are not lost, then fold them on top.
	m := mirror.New()
	payloads, err := feed.Subscribe(rootCtx)
	if err != nil {
		log.Fatal().Err(err).Msg("feed subscribe error")
	}

	loadCtx, cancelLoad := context.WithTimeout(rootCtx, 30*time.Second)
	full, err := repo.ListSurgeries(loadCtx)
	cancelLoad()
	if err != nil {
		log.Fatal().Err(err).Msg("initial surgery load error")
	}
	m.Load(full)
	log.Info().Int("surgeries", m.Len()).Msg("mirror loaded")

	go m.Follow(rootCtx, payloads)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		Repo:    repo,
		Mirror:  m,
		Blobs:   blobs,
		PgPool:  pgPool,
		Redis:   rdb,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown error")
	}
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
