package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
	"github.com/xela07ax/vitalpolicy-relay/internal/infra"
	"github.com/xela07ax/vitalpolicy-relay/internal/twin"
)

// Локальные двойники Remote Score, Remote Ledger и объектного хранилища для разработки:
// upstream.score_url = http://localhost:8090/score, upstream.ledger_url = http://localhost:8090/ledger,
// media.endpoint = http://localhost:8090/storage
func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ledger := twin.NewLedger()
	score := twin.NewScore(domain.HealthScores{ActivityScore: 64, DietScore: 71, HealthScore: 72, SleepScore: 80})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Route("/storage", twin.NewObjects().Routes)
	r.Mount("/", twin.NewServer(ledger, score))

	srv := &http.Server{Addr: cfg.Twin.Addr, Handler: r, ReadTimeout: 5 * time.Second}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("twin started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("twin shutdown failed", zap.Error(err))
	}
}
