package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	api "smartshop-backend/cmd/api"
	"smartshop-backend/internal/assistant"
	authDelivery "smartshop-backend/internal/auth/delivery"
	authdomain "smartshop-backend/internal/auth/domain"
	authRepo "smartshop-backend/internal/auth/repository"
	authUsecase "smartshop-backend/internal/auth/usecase"
	financeDelivery "smartshop-backend/internal/finance/delivery"
	financedomain "smartshop-backend/internal/finance/domain"
	financeRepo "smartshop-backend/internal/finance/repository"
	financeUsecase "smartshop-backend/internal/finance/usecase"
	mailDelivery "smartshop-backend/internal/mail/delivery"
	maildomain "smartshop-backend/internal/mail/domain"
	mailRepo "smartshop-backend/internal/mail/repository"
	mailUsecase "smartshop-backend/internal/mail/usecase"
	"smartshop-backend/internal/notification"
	priceDelivery "smartshop-backend/internal/price/delivery"
	pricedomain "smartshop-backend/internal/price/domain"
	priceRepo "smartshop-backend/internal/price/repository"
	priceUsecase "smartshop-backend/internal/price/usecase"
	"smartshop-backend/internal/scheduler"
	"smartshop-backend/internal/transport/telegram"
	"smartshop-backend/pkg/ai"
	"smartshop-backend/pkg/chroma"
	"smartshop-backend/pkg/config"
	"smartshop-backend/pkg/database"
	"smartshop-backend/pkg/fcm"
	"smartshop-backend/pkg/gmail"
	"smartshop-backend/pkg/logger"
	"smartshop-backend/pkg/platform"

	"gorm.io/gorm"
)

// models lists every table owned by the service.
func models() []any {
	return []any{
		&authdomain.User{},
		&authdomain.FCMToken{},
		&pricedomain.TrackedProduct{},
		&pricedomain.PriceObservation{},
		&financedomain.Expense{},
		&financedomain.Budget{},
		&maildomain.MailConnection{},
		&maildomain.ProcessedMessage{},
		&maildomain.ShoppingRecord{},
		&maildomain.PendingMessage{},
	}
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(models()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// app holds the wired components of one process.
type app struct {
	cfg *config.Config

	authUsecase       authUsecase.AuthUsecase
	priceUsecase      priceUsecase.PriceUsecase
	connectionUsecase mailUsecase.ConnectionUsecase
	syncUsecase       mailUsecase.SyncUsecase

	worker     *mailUsecase.SyncWorkerService
	router     *assistant.Router
	dispatcher *notification.Dispatcher
	telegram   *telegram.Transport
	subscriber *notification.Subscriber
	scheduler  *scheduler.Scheduler
	handler    *api.Handler
}

func buildApp(ctx context.Context, cfg *config.Config, db *gorm.DB) (*app, error) {
	log := logger.Component("main")

	api.InitRuntimeConfig(api.RuntimeConfig{
		RouterThreshold:     cfg.RouterConfidenceThreshold,
		AcceptanceThreshold: cfg.AcceptanceConfidence,
		OllamaBaseURL:       cfg.OllamaBaseURL,
		OllamaModel:         cfg.OllamaModel,
	})

	classifier, err := ai.NewClassifierService(ai.Config{
		Provider:        ai.ProviderType(cfg.AIProvider),
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		OpenAIModel:     cfg.OpenAIModel,
		GeminiAPIKey:    cfg.GeminiApiKey,
		OllamaBaseURLFn: api.GetRuntimeOllamaBaseURL,
		OllamaModelFn:   api.GetRuntimeOllamaModel,
	}, assistant.DefaultIntents())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AI classifier: %w", err)
	}
	log.Info().Str("provider", cfg.AIProvider).Msg("AI classifier initialized")

	// Repositories
	userRepository := authRepo.NewUserRepository(db)
	fcmTokenRepository := authRepo.NewFCMTokenRepository(db)
	trackingRepository := priceRepo.NewGormTrackingRepository(db)
	ledgerRepository := financeRepo.NewGormLedgerRepository(db)
	connectionRepository := mailRepo.NewConnectionRepository(db)
	ingestionRepository := mailRepo.NewIngestionRepository(db)

	// Optional upstreams. Interfaces stay nil, not typed-nil, when disabled.
	var pushSender notification.PushSender
	if cfg.FirebaseCredentials != "" {
		fcmClient, err := fcm.NewClient(ctx, cfg.FirebaseCredentials)
		if err != nil {
			log.Warn().Err(err).Msg("FCM disabled")
		} else {
			pushSender = fcmClient
		}
	} else {
		log.Info().Msg("no Firebase credentials configured, FCM disabled")
	}

	var (
		indexer         priceUsecase.ListingIndexer
		listingSearcher assistant.ListingSearcher
	)
	if cfg.ChromaAPIKey != "" {
		index, err := chroma.NewListingIndex(ctx, cfg)
		if err != nil {
			log.Warn().Err(err).Msg("listing index disabled")
		} else {
			indexer = index
			listingSearcher = index
		}
	} else {
		log.Info().Msg("CHROMA_API_KEY not set, recommendations use advice only")
	}

	dispatcher := notification.NewDispatcher(userRepository, fcmTokenRepository, pushSender)

	// Use cases
	authUc := authUsecase.NewAuthUsecase(userRepository, fcmTokenRepository, cfg)
	priceUc := priceUsecase.NewPriceUsecase(trackingRepository, newSearchers(cfg), dispatcher, indexer, cfg.PlatformTimeout)
	ledgerUc := financeUsecase.NewLedgerUsecase(ledgerRepository, time.Local)

	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)
	connectionUc := mailUsecase.NewConnectionUsecase(connectionRepository, gmailService, mailUsecase.ConnectionConfig{
		JWTSecret:    cfg.JWTSecret,
		OAuthTimeout: cfg.OAuthTimeout,
		WatchTopic:   cfg.PubSubTopicPath(),
	})
	syncUc := mailUsecase.NewSyncUsecase(connectionRepository, ingestionRepository, gmailService, classifier, mailUsecase.SyncConfig{
		Acceptance:        api.GetRuntimeAcceptanceThreshold,
		FetchTimeout:      cfg.MailFetchTimeout,
		ClassifierTimeout: cfg.ClassifierTimeout,
		Lease:             cfg.SyncLease,
		ScanMaxResults:    cfg.ScanMaxResults,
		DefaultScanDays:   cfg.DefaultScanDays,
	})
	worker := mailUsecase.NewSyncWorkerService(syncUc, cfg.SyncWorkers, cfg.SyncQueueSize, cfg.SyncLease)
	syncUc.SetJobQueue(worker)

	// Agents, registration order is the fallback order.
	registry := assistant.NewRegistry()
	registrations := []struct {
		intent string
		agent  assistant.Agent
	}{
		{assistant.IntentGmail, mailDelivery.NewAgent(connectionUc, syncUc)},
		{assistant.IntentFinance, financeDelivery.NewAgent(ledgerUc)},
		{assistant.IntentPriceTracking, priceDelivery.NewAgent(priceUc)},
		{assistant.IntentReview, assistant.NewReviewAgent(classifier, cfg.ClassifierTimeout)},
		{assistant.IntentRecommendation, assistant.NewRecommendationAgent(listingSearcher, trackingRepository, classifier, cfg.ClassifierTimeout)},
	}
	for _, reg := range registrations {
		if err := registry.Register(reg.intent, reg.agent); err != nil {
			return nil, fmt.Errorf("register %s agent: %w", reg.intent, err)
		}
	}
	router := assistant.NewRouter(registry, classifier, api.GetRuntimeRouterThreshold, cfg.ClassifierTimeout)

	a := &app{
		cfg:               cfg,
		authUsecase:       authUc,
		priceUsecase:      priceUc,
		connectionUsecase: connectionUc,
		syncUsecase:       syncUc,
		worker:            worker,
		router:            router,
		dispatcher:        dispatcher,
	}

	if cfg.TelegramBotToken != "" {
		bot, err := telegram.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			log.Warn().Err(err).Msg("telegram transport disabled")
		} else {
			a.telegram = telegram.NewTransport(bot, router, authUc)
			dispatcher.SetChatSender(a.telegram)
		}
	}

	a.handler = api.NewHandler(authUc, api.Handlers{
		Auth:    authDelivery.NewAuthHandler(authUc),
		Chat:    api.NewChatHandler(router, authUc),
		Price:   priceDelivery.NewPriceHandler(priceUc),
		Finance: financeDelivery.NewFinanceHandler(ledgerUc),
		Mail:    mailDelivery.NewMailHandler(connectionUc, syncUc, cfg.GmailPushToken),
	})
	return a, nil
}

// newSearchers builds the platform searchers in tie-break order. Optional
// feeds are skipped when their URL is not configured.
func newSearchers(cfg *config.Config) []platform.Searcher {
	client := &http.Client{Timeout: cfg.PlatformTimeout}
	wrap := func(s platform.Searcher) platform.Searcher {
		return platform.NewCachedSearcher(s, cfg.SearchCacheSize, cfg.SearchCacheTTL)
	}

	searchers := []platform.Searcher{wrap(platform.NewPChomeSearcher(cfg.PChomeBaseURL, client))}
	if cfg.MomoSearchURL != "" {
		searchers = append(searchers, wrap(platform.NewJSONFeedSearcher("momo", "momo購物網", cfg.MomoSearchURL, client)))
	}
	if cfg.ShopeeSearchURL != "" {
		searchers = append(searchers, wrap(platform.NewJSONFeedSearcher("shopee", "蝦皮購物", cfg.ShopeeSearchURL, client)))
	}
	return searchers
}

// startBackground starts the sync workers, Pub/Sub, Telegram and the
// scheduler. Failures of optional parts are logged, not fatal.
func (a *app) startBackground(ctx context.Context) {
	log := logger.Component("main")

	a.worker.Start()

	if a.cfg.GoogleProjectID != "" && a.cfg.PubSubTopicName() != "" {
		sub, err := notification.NewSubscriber(a.cfg.GoogleProjectID, a.cfg.PubSubTopicName(), a.cfg.GoogleCredentials, a.syncUsecase)
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize push subscriber")
		} else {
			a.subscriber = sub
			go func() {
				if err := sub.Start(ctx); err != nil {
					log.Error().Err(err).Msg("push subscriber stopped")
				}
			}()
		}
	} else {
		log.Warn().Msg("GOOGLE_PROJECT_ID or GOOGLE_PUBSUB_TOPIC not configured, push subscriber disabled")
	}

	if a.telegram != nil {
		a.telegram.Start(ctx)
	}

	sched, err := scheduler.NewScheduler(scheduler.Config{
		PriceRefreshSchedule: a.cfg.PriceRefreshSchedule,
		WatchRenewSchedule:   a.cfg.WatchRenewSchedule,
	}, a.priceUsecase, a.connectionUsecase)
	if err != nil {
		log.Error().Err(err).Msg("scheduler disabled")
	} else {
		a.scheduler = sched
		sched.Start()
	}
}

// shutdown stops background work in reverse start order.
func (a *app) shutdown() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.telegram != nil {
		a.telegram.Stop()
	}
	if a.subscriber != nil {
		if err := a.subscriber.Close(); err != nil {
			lg := logger.Component("main")
			lg.Warn().Err(err).Msg("close push subscriber")
		}
	}
	a.worker.Stop()
}
