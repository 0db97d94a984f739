package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"DealRoom/internal/config"
	"DealRoom/internal/database"
	"DealRoom/internal/handlers"
	"DealRoom/internal/middleware"
	"DealRoom/internal/routes"
	"DealRoom/internal/services"
)

const expirySweepInterval = time.Hour

// application holds the long-lived clients and services shared by the
// serve and worker commands.
type application struct {
	cfg   config.Config
	db    *gorm.DB
	redis *redis.Client
	kafka *services.KafkaDeadLetterPublisher
	wg    sync.WaitGroup

	sessions      *services.SessionManager
	provider      services.PaymentProvider
	notify        *services.NotificationService
	emails        *services.EmailQueue
	auth          *services.AuthService
	deals         *services.DealService
	commitments   *services.CommitmentService
	escrow        *services.EscrowService
	disclosure    *services.DisclosureService
	interests     *services.InterestService
	conversations *services.ConversationService
	kyc           *services.KYCService
	analytics     *services.AnalyticsService
	outbox        *services.OutboxWorker
}

func newApplication() (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log.Printf("🔍 Configuration:")
	log.Printf("   APP_ENV: '%s'", cfg.Env)
	log.Printf("   JWT_SECRET: '%s'", config.MaskSecret(cfg.JWTSecret))
	log.Printf("   STRIPE_SECRET_KEY: '%s'", config.MaskSecret(cfg.StripeSecretKey))
	log.Printf("   RESEND_API_KEY: '%s'", config.MaskSecret(cfg.ResendAPIKey))
	log.Printf("   CLOUDINARY_CLOUD_NAME: '%s'", cfg.CloudinaryCloudName)
	log.Printf("   ADMIN_SETUP_KEY: '%s'", config.MaskSecret(cfg.AdminSetupKey))

	db, err := database.Connect(cfg.DatabaseURL, !cfg.IsProduction())
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		database.Close(db)
		return nil, err
	}
	log.Println("✅ Database connected and migrated successfully")

	a := &application{cfg: cfg, db: db}

	var revocations services.RevocationStore
	if cfg.RedisURL != "" {
		client, err := services.ConnectRedis(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		revocations = services.NewRedisRevocationStore(client)
		log.Println("✅ Redis session revocation enabled")
	} else {
		log.Println("⚠️  REDIS_URL not set, logout will not revoke issued sessions")
	}
	a.sessions = services.NewSessionManager(cfg.JWTSecret, cfg.SessionTTL, revocations)

	var deadLetter services.DeadLetterPublisher = services.LoggingDeadLetterPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		pub, err := services.NewKafkaDeadLetterPublisher(cfg.KafkaBrokers, cfg.KafkaDLQTopic)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.kafka = pub
		deadLetter = pub
		log.Printf("✅ Dead-letter tasks publish to Kafka topic %s", cfg.KafkaDLQTopic)
	}

	var store services.DocumentStore
	if cs, err := services.NewCloudinaryStore(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret); err != nil {
		log.Printf("⚠️  Document uploads disabled: %v", err)
	} else {
		store = cs
		log.Println("✅ Cloudinary service initialized successfully")
	}

	templates, err := services.NewEmailTemplates(cfg.AppName, cfg.AppURL)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.provider = services.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	a.notify = services.NewNotificationService(db)
	a.emails = services.NewEmailQueue(db, cfg.OutboxMaxAttempts)
	a.auth = services.NewAuthService(db, a.emails)
	a.deals = services.NewDealService(db, a.notify, a.emails)
	a.commitments = services.NewCommitmentService(db, cfg.HighValueThreshold)
	a.escrow = services.NewEscrowService(db, a.provider, a.notify, a.emails, cfg.PaymentCurrency)
	a.disclosure = services.NewDisclosureService(db)
	a.interests = services.NewInterestService(db, a.notify, a.emails)
	a.conversations = services.NewConversationService(db, a.notify)
	a.kyc = services.NewKYCService(db, store, a.notify, a.emails)
	a.analytics = services.NewAnalyticsService(db)
	a.outbox = services.NewOutboxWorker(db, services.NewResendMailer(cfg.ResendAPIKey, cfg.FromEmail), templates, deadLetter, cfg.OutboxInterval, cfg.OutboxBatchSize)
	return a, nil
}

func (a *application) routeDeps() *routes.Deps {
	return &routes.Deps{
		Auth:           middleware.NewAuth(a.sessions, a.auth, a.cfg.SessionCookieName),
		InternalSecret: a.cfg.InternalAPISecret,

		Users:         handlers.NewAuthHandler(a.auth, a.sessions, a.cfg.SessionCookieName, a.cfg.IsProduction(), a.cfg.AdminSetupKey),
		Profiles:      handlers.NewProfileHandler(a.auth, a.disclosure),
		Deals:         handlers.NewDealHandler(a.deals),
		Investments:   handlers.NewInvestmentHandler(a.commitments),
		Escrow:        handlers.NewEscrowHandler(a.escrow, a.provider),
		Admin:         handlers.NewAdminHandler(a.escrow, a.kyc),
		Verifications: handlers.NewVerificationHandler(a.kyc),
		Interests:     handlers.NewInterestHandler(a.interests, a.conversations),
		Notifications: handlers.NewNotificationHandler(a.notify),
		Analytics:     handlers.NewAnalyticsHandler(a.analytics),
	}
}

// runBackground starts the outbox worker and the review expiry sweep. Both
// stop when ctx is cancelled.
func (a *application) runBackground(ctx context.Context) {
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.outbox.Run(ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.sweepExpired(ctx)
	}()
}

func (a *application) sweepExpired(ctx context.Context) {
	ticker := time.NewTicker(expirySweepInterval)
	defer ticker.Stop()
	for {
		if n, err := a.kyc.ExpireStale(ctx); err != nil && ctx.Err() == nil {
			log.Printf("❌ Review expiry sweep failed: %v", err)
		} else if n > 0 {
			log.Printf("✅ Expired %d reviews", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *application) wait() {
	a.wg.Wait()
}

func (a *application) Close() {
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			log.Printf("⚠️  Failed to close Kafka writer: %v", err)
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if err := database.Close(a.db); err != nil {
		log.Printf("⚠️  Failed to close database: %v", err)
	}
}
