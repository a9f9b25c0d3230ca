package main

import (
	"context"
	"crypto/rsa"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payauth-service/internal/config"
	"payauth-service/internal/domain"
	"payauth-service/internal/events"
	"payauth-service/internal/handler"
	"payauth-service/internal/repository"
	"payauth-service/internal/router"
	"payauth-service/internal/server"
	"payauth-service/internal/settlement"
	"payauth-service/internal/usecase"
	"payauth-service/internal/verifier"
	"payauth-service/internal/worker"
	"payauth-service/pkg/cache"
	"payauth-service/pkg/id"
	"payauth-service/pkg/jwtutil"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := config.ConnectDB(ctx, cfg.DB)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer db.Close()

	redisCache := cache.NewCache(cfg.Redis.Addrs, cfg.Redis.Password, cfg.Redis.UseCluster)

	var privKey *rsa.PrivateKey
	if cfg.JWT.PrivateKeyPath != "" {
		privKey, err = jwtutil.LoadRSAPrivateKeyFromPEM(cfg.JWT.PrivateKeyPath)
		if err != nil {
			logger.Fatal("load signing key", zap.Error(err))
		}
	} else {
		logger.Warn("no signing key configured, using ephemeral key")
		privKey, err = jwtutil.GenerateEphemeralKey()
		if err != nil {
			logger.Fatal("generate signing key", zap.Error(err))
		}
	}
	tokenGen := jwtutil.NewGenerator(privKey, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.KeyID, cfg.JWT.TTL)
	tokenVer := jwtutil.NewVerifier(&privKey.PublicKey, cfg.JWT.Issuer, cfg.JWT.Audience)

	sf, err := id.NewSnowflake(1)
	if err != nil {
		logger.Fatal("init id generator", zap.Error(err))
	}

	// Repositories.
	accountRepo := repository.NewAccountRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db, sf)

	// Verifier set.
	challenges := verifier.NewRedisChallengeStore(redisCache)
	verifiers := verifier.NewRegistry(
		verifier.NewPINVerifier(accountRepo),
		verifier.NewDeviceKeyVerifier(credentialRepo, challenges),
		verifier.NewFaceVerifier(credentialRepo),
		verifier.NewOpaqueVerifier(credentialRepo, domain.CredentialVoice),
		verifier.NewOpaqueVerifier(credentialRepo, domain.CredentialLegacyFingerprint),
		verifier.NewTOTPVerifier(credentialRepo),
	)

	// Event stream and settlement rail.
	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	}
	defer publisher.Close()

	var provider settlement.Provider = settlement.MockProvider{}
	if cfg.Gateway.BaseURL != "" {
		provider = settlement.NewHTTPProvider(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)
	}
	settlements := worker.NewSettlementWorker(ledgerRepo, provider, logger)
	go settlements.Run(ctx)

	// Usecases.
	freshness := usecase.NewRedisFreshnessStore(redisCache)
	accountUC := usecase.NewAccountUsecase(accountRepo, credentialRepo, sessionRepo, freshness, logger)
	sessionUC := usecase.NewSessionUsecase(sessionRepo, tokenGen, tokenVer, logger)
	credentialUC := usecase.NewCredentialUsecase(credentialRepo, freshness, logger)
	authorizeUC := usecase.NewAuthorizeUsecase(credentialRepo, accountRepo, verifiers, challenges, logger)
	transactionUC := usecase.NewTransactionUsecase(ledgerRepo, authorizeUC, settlements, publisher, logger)
	go authorizeUC.StartSweeper(ctx, 30*time.Second)

	mux := router.New(router.Deps{
		Auth:        handler.NewAuthHandler(accountUC, sessionUC),
		Credentials: handler.NewCredentialHandler(credentialUC),
		Payments:    handler.NewPaymentHandler(authorizeUC, transactionUC),
		Health:      handler.NewHealthHandler(db),
		Sessions:    sessionUC,
		Cache:       redisCache,
		Logger:      logger,
	})

	srv := server.New(cfg.HTTPPort, mux, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("http server", zap.Error(err))
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
