package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/vitalpolicy-relay/internal/audit"
	"github.com/xela07ax/vitalpolicy-relay/internal/connectors"
	"github.com/xela07ax/vitalpolicy-relay/internal/engine"
	"github.com/xela07ax/vitalpolicy-relay/internal/infra"
	"github.com/xela07ax/vitalpolicy-relay/internal/infra/auth"
	"github.com/xela07ax/vitalpolicy-relay/internal/media"
	"github.com/xela07ax/vitalpolicy-relay/internal/relay/handler"
	"github.com/xela07ax/vitalpolicy-relay/internal/relay/server"
	"github.com/xela07ax/vitalpolicy-relay/internal/relay/service"
	"github.com/xela07ax/vitalpolicy-relay/internal/repository/postgres"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Redis: распределенная защита от дублей и публикация баллов.
	// Без Redis релей работает, но блокировки только в памяти процесса.
	var (
		rdb   *redis.Client
		guard engine.InflightGuard = engine.NewLocalInflight()
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pingCtx, pingCancel := context.WithTimeout(appCtx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			logger.Warn("redis unreachable, using in-process inflight guard", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			client.Close()
		} else {
			rdb = client
			defer rdb.Close()
			guard = engine.NewRedisInflight(rdb, cfg.Engine.InflightTTL)
		}
	}

	// 3. Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	// 4. Журнал вызовов: Postgres, если задан, иначе структурированный лог
	var storage audit.StorageInterface = audit.NewLogSink(logger)
	if cfg.Database.URL != "" {
		db, err := postgres.Open(appCtx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			logger.Fatal("database unreachable", zap.Error(err))
		}
		defer db.Close()
		repo := postgres.NewJournalRepo(db)
		if err := repo.EnsureSchema(appCtx); err != nil {
			logger.Fatal("journal schema", zap.Error(err))
		}
		storage = repo
	}
	journal := audit.NewJournal(storage, audit.Options{
		Buffer:        cfg.Engine.JournalBuffer,
		Batch:         cfg.Engine.JournalBatch,
		FlushInterval: cfg.Engine.JournalFlushIn,
		OnFill:        func(n int) { metrics.JournalBufferFill.Set(float64(n)) },
	}, logger)
	journal.Start()

	// 5. Исходящие вызовы: адаптер -> Reliability (Rate Limit, Circuit Breaker, Retry)
	scoreDoer := engine.NewReliabilityWrapper(connectors.UpstreamScore,
		connectors.NewHTTPAdapter(connectors.UpstreamScore, cfg.Upstream.ScoreURL, cfg.Upstream.Timeout),
		cfg.Engine, cfg.Upstream.Timeout, metrics, logger)
	ledgerDoer := engine.NewReliabilityWrapper(connectors.UpstreamLedger,
		connectors.NewHTTPAdapter(connectors.UpstreamLedger, cfg.Upstream.LedgerURL, cfg.Upstream.Timeout),
		cfg.Engine, cfg.Upstream.Timeout, metrics, logger)

	scoreSvc := service.NewScoreService(connectors.NewScoreClient(scoreDoer), rdb, journal, logger)
	policySvc := service.NewPolicyService(connectors.NewLedgerClient(ledgerDoer), guard, journal, logger)

	// 6. Опциональные слои: загрузка фото и проверка токенов
	var mediaH *handler.MediaHandler
	if cfg.Media.Bucket != "" {
		presigner, err := media.NewS3Presigner(appCtx, cfg.Media)
		if err != nil {
			logger.Fatal("object storage", zap.Error(err))
		}
		mediaH = handler.NewMediaHandler(media.NewUploads(presigner, cfg.Media), logger)
	}

	var validator auth.TokenValidator
	if cfg.Auth.Enabled {
		pubKey, err := auth.PublicKeyFromPEM(cfg.Auth.PublicKey)
		if err != nil {
			logger.Fatal("auth public key", zap.Error(err))
		}
		validator = auth.NewClientValidator(pubKey, cfg.Auth.Issuer)
	}

	relay := server.NewRelayServer(logger, metrics, validator,
		handler.NewScoreHandler(scoreSvc, metrics, logger),
		handler.NewPolicyHandler(policySvc, logger),
		mediaH,
	)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      relay,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Метрики на отдельном листенере
	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("relay server started",
			zap.String("addr", srv.Addr),
			zap.String("score_url", cfg.Upstream.ScoreURL),
			zap.String("ledger_url", cfg.Upstream.LedgerURL),
			zap.Bool("auth", validator != nil),
			zap.Bool("media", mediaH != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("relay server stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	// Журнал останавливаем после HTTP: новых событий больше не будет
	journal.Stop()
	logger.Info("relay server exited properly")
}
