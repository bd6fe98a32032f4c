package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/vitalpolicy-relay/internal/engine"
	"github.com/xela07ax/vitalpolicy-relay/internal/infra/auth"
	"github.com/xela07ax/vitalpolicy-relay/internal/relay/handler"
)

type RelayServer struct {
	router  *chi.Mux
	logger  *zap.Logger
	metrics *engine.Metrics

	// nil — маршруты открыты (режим по умолчанию, как у исходного клиента)
	authValidator auth.TokenValidator

	scoreHandler  *handler.ScoreHandler  // /get-scores/, /evaluate-meal/
	policyHandler *handler.PolicyHandler // /createPolicy, /getPolicyDetails, /updateHealthPoints
	mediaHandler  *handler.MediaHandler  // /media/presign, nil — хранилище не настроено
}

// NewRelayServer собирает роутер релея со всеми зависимостями
func NewRelayServer(
	logger *zap.Logger,
	metrics *engine.Metrics,
	validator auth.TokenValidator,
	scoreH *handler.ScoreHandler,
	policyH *handler.PolicyHandler,
	mediaH *handler.MediaHandler,
) *RelayServer {
	s := &RelayServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("relay-api"),
		metrics:       metrics,
		authValidator: validator,
		scoreHandler:  scoreH,
		policyHandler: policyH,
		mediaHandler:  mediaH,
	}

	s.routes()
	return s
}

func (s *RelayServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(engine.TracingMiddleware)
	r.Use(engine.MetricsMiddleware(s.metrics))

	// Неизвестные пути и методы тоже отвечают конвертом
	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	// --- 2. Публичные роуты ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// --- 3. API релея ---
	r.Group(func(r chi.Router) {
		if s.authValidator != nil {
			r.Use(auth.NewMiddleware(s.authValidator, s.logger))
		}

		r.Get("/get-scores/", s.scoreHandler.GetScores)
		r.Post("/evaluate-meal/", s.scoreHandler.EvaluateMeal)

		r.Post("/createPolicy", s.policyHandler.Create)
		r.Get("/getPolicyDetails/{policyId}", s.policyHandler.Details)
		r.Post("/updateHealthPoints", s.policyHandler.UpdateHealthPoints)

		if s.mediaHandler != nil {
			r.Post("/media/presign", s.mediaHandler.Presign)
		}
	})
}

// ServeHTTP позволяет использовать RelayServer как стандартный http.Handler
func (s *RelayServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
