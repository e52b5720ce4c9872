package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"alfredoptarigan/applicant-screener/internal/config"
	"alfredoptarigan/applicant-screener/internal/repositories"
	"alfredoptarigan/applicant-screener/internal/services"
)

// application holds the wired components shared by serve, cycle and
// warm-embeddings.
type application struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB

	settings repositories.SettingsRepository
	requests repositories.ScreeningRequestRepository
	matches  repositories.MatchResultRepository
	jobs     repositories.JobRepository

	locker      services.CycleLocker
	jobSync     services.JobSync
	coordinator services.Coordinator

	closers []func() error
}

func newApplication(ctx context.Context, cfg *config.Config, log *zap.Logger) (*application, error) {
	db, err := config.InitDatabase(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := config.Migrate(db, log); err != nil {
		return nil, err
	}

	a := &application{
		cfg:      cfg,
		log:      log,
		db:       db,
		settings: repositories.NewSettingsRepository(db),
		requests: repositories.NewScreeningRequestRepository(db),
		matches:  repositories.NewMatchResultRepository(db),
		jobs:     repositories.NewJobRepository(db),
	}
	if err := a.settings.EnsureSeeded(ctx, cfg.Screening.SeedSettings()); err != nil {
		return nil, err
	}

	genaiClient, err := services.NewGeminiClient(ctx, cfg.Gemini.APIKey)
	if err != nil {
		return nil, err
	}
	llm := services.NewLLMClient(genaiClient.Models, services.GeminiOptions{
		MaxOutputTokens:  cfg.Gemini.MaxOutputTokens,
		RequestTimeout:   cfg.Gemini.RequestTimeout,
		MaxRetries:       cfg.Gemini.MaxRetries,
		RetryInitialWait: cfg.Gemini.RetryInitialWait,
		MaxLogLength:     cfg.Gemini.MaxLogLength,
	}, log)

	var embedder services.Embedder
	switch strings.ToLower(cfg.Embedding.Provider) {
	case "cohere":
		embedder = services.NewCohereEmbedder(cfg.Cohere.APIKey, cfg.Embedding.Model, cfg.Embedding.TokenBudget, cfg.Embedding.CharsPerToken)
	default:
		embedder = services.NewGeminiEmbedder(genaiClient.Models, cfg.Embedding.Model, cfg.Embedding.TokenBudget, cfg.Embedding.CharsPerToken)
	}

	var store services.EmbeddingStore
	switch strings.ToLower(cfg.Embedding.Store) {
	case "qdrant":
		qs, err := services.NewQdrantEmbeddingStore(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection, cfg.Embedding.Dimensions, log)
		if err != nil {
			return nil, err
		}
		if err := qs.InitCollection(ctx); err != nil {
			return nil, err
		}
		store = qs
	default:
		store = repositories.NewJobEmbeddingRepository(db)
	}
	cache := services.NewJobEmbeddingCache(store, embedder, log)

	switch strings.ToLower(cfg.Lock.Backend) {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		a.locker = services.NewRedisCycleLocker(rdb, cfg.Lock.RedisKey, cfg.Lock.StaleAfter)
	default:
		a.locker = repositories.NewCycleLockRepository(db, cfg.Lock.StaleAfter)
	}

	ats := services.NewATSClient(services.ATSConfig{
		BaseURL:    cfg.ATS.BaseURL,
		APIKey:     cfg.ATS.APIKey,
		Timeout:    cfg.ATS.Timeout,
		RetryCount: 2,
	})

	var notifier services.Notifier
	if cfg.Kafka.Enabled {
		notifier, err = services.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			return nil, err
		}
	} else {
		notifier = services.NewLogNotifier(log)
	}
	a.closers = append(a.closers, notifier.Close)

	var alerter services.Alerter
	if cfg.Alert.Enabled {
		alerter, err = services.NewEmailAlerter(services.EmailAlertConfig{
			SMTPHost: cfg.Alert.SMTPHost,
			SMTPPort: cfg.Alert.SMTPPort,
			Username: cfg.Alert.Username,
			Password: cfg.Alert.Password,
			From:     cfg.Alert.From,
			To:       cfg.Alert.To,
		}, log)
		if err != nil {
			return nil, err
		}
	} else {
		alerter = services.NewLogAlerter(log)
	}

	breaker := services.NewQuotaBreaker(services.DefaultQuotaBreakerThreshold)
	scorer := services.NewScorer(llm, log)
	a.jobSync = services.NewJobSync(ats, a.jobs, cache, log)
	a.coordinator = services.NewCoordinator(services.CoordinatorDeps{
		Locker:     a.locker,
		Settings:   a.settings,
		Requests:   a.requests,
		Matches:    a.matches,
		Sweeps:     services.DefaultSweeps(a.requests, log),
		Detector:   services.NewDetector(ats, a.requests, services.NewPDFResumeParser(cfg.ATS.MaxResumeRunes), cfg.ATS.MaxResumeRunes, log),
		JobSync:    a.jobSync,
		Filter:     services.NewSimilarityFilter(embedder, cache, log),
		Dispatcher: services.NewDispatcher(scorer, breaker, cfg.Worker.Concurrency, log),
		Breaker:    breaker,
		Notifier:   notifier,
		Alerter:    alerter,
		ATS:        ats,
		NoteAction: cfg.ATS.NoteAction,
	}, log)

	return a, nil
}

func (a *application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	_ = a.log.Sync()
	return errors.Join(errs...)
}
