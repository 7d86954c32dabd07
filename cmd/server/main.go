// Package main initializes and starts the SMS glue server, setting up
// configuration, logging, the encrypted store, the carrier provider,
// services, handlers, and optional TLS.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/smsglue/internal/account"
	"github.com/atinyakov/smsglue/internal/codec"
	"github.com/atinyakov/smsglue/internal/config"
	"github.com/atinyakov/smsglue/internal/db"
	"github.com/atinyakov/smsglue/internal/devices"
	"github.com/atinyakov/smsglue/internal/logger"
	"github.com/atinyakov/smsglue/internal/notify"
	"github.com/atinyakov/smsglue/internal/provider"
	"github.com/atinyakov/smsglue/internal/provision"
	"github.com/atinyakov/smsglue/internal/repository"
	"github.com/atinyakov/smsglue/internal/server/handler/http"
	"github.com/atinyakov/smsglue/internal/service"
	"github.com/atinyakov/smsglue/internal/store"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

// cacheStore is a store backend with key bootstrap and sweeping.
type cacheStore interface {
	store.Store
	store.Sweeper
	Initialize(ctx context.Context) (string, error)
}

func main() {
	options := config.Parse()

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Pick the store backend: PostgreSQL when a DSN is given, files otherwise.
	var cache cacheStore
	if options.DatabaseDSN != "" {
		postgresDB, err := db.InitPostgres(options.DatabaseDSN)
		if err != nil {
			zapLogger.Fatal("cannot init database", zap.Error(err))
		}
		defer postgresDB.Close()
		cache = repository.NewPostgresCacheRepository(postgresDB)
	} else {
		cache = store.NewFileStore(options.CacheDir)
	}

	key, err := cache.Initialize(ctx)
	if err != nil {
		zapLogger.Fatal("cannot initialize store", zap.Error(err))
	}

	// Drop message lists nobody fetched for a while.
	db.StartStaleCacheCleaner(ctx, cache, store.CategoryMessages,
		time.Hour,
		options.CacheRetention,
		zapLogger,
	)

	c, err := codec.New(key)
	if err != nil {
		zapLogger.Fatal("cannot init codec", zap.Error(err))
	}

	factory, err := provider.NewFactory(options.Provider, &nethttp.Client{Timeout: 30 * time.Second})
	if err != nil {
		zapLogger.Fatal("unknown provider", zap.String("provider", options.Provider), zap.Error(err))
	}

	glue := service.NewGlueService(service.Deps{
		Store:  cache,
		Codec:  c,
		Tokens: account.NewTokens(c),
		Handshake: provision.NewHandshake(cache, c,
			provision.WithTTL(options.ProvisionTTL),
			provision.WithLogger(zapLogger),
		),
		Devices:   devices.NewRegistry(cache, c),
		Providers: factory,
		Sink:      notify.NewPNM(notify.DefaultEndpoint),
		ChunkSize: options.ChunkSize,
		Log:       zapLogger,
	})

	router := http.NewRouter(
		&http.GlueHandler{Service: glue, Log: zapLogger},
		&http.IndexHandler{Snippet: options.BeforeClosingBodyTag},
		zapLogger,
	)

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	zapLogger.Info("starting server",
		zap.String("addr", options.Port),
		zap.String("provider", options.Provider),
		zap.Bool("tls", options.TLSCert != "" && options.TLSKey != ""),
	)
	if options.TLSCert != "" && options.TLSKey != "" {
		err = server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("failed to start server", zap.Error(err))
	}
}
