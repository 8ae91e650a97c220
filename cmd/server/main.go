package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lapor-kita/backend/internal/ai"
	"github.com/lapor-kita/backend/internal/cluster"
	"github.com/lapor-kita/backend/internal/config"
	"github.com/lapor-kita/backend/internal/db"
	"github.com/lapor-kita/backend/internal/geocode"
	httpapi "github.com/lapor-kita/backend/internal/http"
	"github.com/lapor-kita/backend/internal/regions"
	"github.com/lapor-kita/backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "lapor-kita-backend").Logger()

	ctx := context.Background()
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	var extractor ai.Extractor
	if cfg.LLMBaseURL == "" {
		extractor = ai.MockExtractor{}
		logger.Info().Msg("using mock extractor")
	} else {
		extractor = &ai.ReportExtractor{Client: &ai.InferenceClient{
			BaseURL:   cfg.LLMBaseURL,
			Model:     cfg.LLMModel,
			APIKey:    cfg.LLMAPIKey,
			MaxTokens: cfg.LLMMaxTokens,
		}}
	}

	geocoder := &geocode.NominatimGeocoder{
		BaseURL:      cfg.NominatimBaseURL,
		UserAgent:    cfg.NominatimUserAgent,
		MinInterval:  cfg.NominatimMinInterval,
		CountryCodes: cfg.NominatimCountry,
	}

	processor := &service.Processor{
		Jobs:          store,
		Reports:       store,
		Conversations: store,
		Extractor:     extractor,
		Geocoder:      geocoder,
		Regions:       &regions.Resolver{Catalog: store, Logger: logger},
		Clusters:      &cluster.Index{Store: store, DefaultRadius: cfg.ClusterRadiusMeters, Logger: logger},
		Kind:          &service.ReportKind{Reports: store},
		Logger:        logger,
		Interval:      cfg.ProcessInterval,
		BatchSize:     cfg.ProcessBatchSize,
		MaxRetries:    cfg.MaxRetries,
		MinConfidence: cfg.MinConfidence,
		CallTimeout:   cfg.RequestTimeout,
		LeaseTimeout:  cfg.JobLease,
	}

	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		processor.Run(workerCtx)
	}()

	router := httpapi.Router(cfg, store, processor, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Stop claiming new jobs first; in-flight external calls finish or hit
	// their own timeouts before the HTTP server goes down.
	stopWorker()
	select {
	case <-workerDone:
	case <-time.After(cfg.RequestTimeout):
		logger.Warn().Msg("worker did not stop in time")
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}
