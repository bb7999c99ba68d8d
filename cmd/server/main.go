package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"go.pilab.hu/grantd"
	echoapi "go.pilab.hu/grantd/api/echo"
	"go.pilab.hu/grantd/cache"
	redisstore "go.pilab.hu/grantd/cache/redis"
	"go.pilab.hu/grantd/config"
	"go.pilab.hu/grantd/internal/authn"
	icrypto "go.pilab.hu/grantd/internal/crypto"
	"go.pilab.hu/grantd/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	log.Info().
		Str("http_port", cfg.HTTPPort).
		Str("issuer", cfg.Issuer).
		Str("mount", cfg.MountPath).
		Msg("starting grantd")

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("tracer provider shutdown failed")
		}
	}()

	signingKey := loadSigningKey(cfg.SigningKeyFile)
	signer := grantd.NewTokenSigner(signingKey)

	codes := grantd.NewCodeStore(time.Duration(cfg.CodeTTLMin) * time.Minute)
	defer codes.Close()

	clients := grantd.NewInMemoryClientStore()
	if cfg.ClientsFile != "" {
		if err := clients.LoadClientsFile(cfg.ClientsFile); err != nil {
			log.Fatal().Err(err).Str("path", cfg.ClientsFile).Msg("failed to load clients")
		}
	}

	tokens := newTokenStore(cfg)
	defer tokens.Close()

	manager := authn.NewManager(
		time.Duration(cfg.SessionTTLHour)*time.Hour,
		cfg.MountPath+"/login",
	)
	defer manager.Shutdown()
	if cfg.UsersFile != "" {
		if err := manager.LoadUsersFile(cfg.UsersFile); err != nil {
			log.Fatal().Err(err).Str("path", cfg.UsersFile).Msg("failed to load users")
		}
	}

	flow := grantd.NewFlowService(codes, clients, tokens, signer, cfg.Issuer).
		WithTTLs(
			time.Duration(cfg.AccessTokenTTLMin)*time.Minute,
			time.Duration(cfg.IDTokenTTLHour)*time.Hour,
		).
		WithCollaboratorTimeout(time.Duration(cfg.CollaboratorTimeoutSec) * time.Second)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware(cfg.OtelServiceName))

	api := echoapi.NewOAuth2API(flow, manager, signer, cfg.Issuer, cfg.MountPath, nil)
	api.RegisterRoutes(e)

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}

func loadSigningKey(path string) *rsa.PrivateKey {
	if path != "" {
		key, err := icrypto.LoadRSAKey(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("failed to load signing key")
		}
		return key
	}

	// Ephemeral key: issued id_tokens stop verifying across restarts, which
	// is fine for development but a configured key belongs in production.
	log.Warn().Msg("no SIGNING_KEY_FILE configured, generating an ephemeral RSA key")
	key, err := icrypto.GenerateRSAKey()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to generate signing key")
	}
	return key
}

func newTokenStore(cfg *config.ServerConfig) grantd.TokenStore {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryTokenStore()
	}

	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	log.Info().Str("addr", cfg.RedisAddr).Msg("using redis token store")
	return redisstore.NewTokenStore(client, cfg.RedisPrefix)
}
