package twin

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
)

// MealCall — один запрос evaluate-meal, принятый двойником.
type MealCall struct {
	SavedFace string
	TestFace  string
	Meal      string
}

// Score эмулирует сервис баллов: фиксированные баллы и настраиваемый вердикт сверки лица.
type Score struct {
	mu       sync.RWMutex
	scores   domain.HealthScores
	verified bool
	fault    int
	raw      []byte
	calls    []MealCall
}

// NewScore создает двойник с заданными баллами, подтверждающий каждое блюдо.
func NewScore(scores domain.HealthScores) *Score {
	return &Score{scores: scores, verified: true}
}

func (s *Score) SetScores(scores domain.HealthScores) {
	s.mu.Lock()
	s.scores = scores
	s.mu.Unlock()
}

func (s *Score) SetVerified(v bool) {
	s.mu.Lock()
	s.verified = v
	s.mu.Unlock()
}

// SetFault заставляет все маршруты сервиса баллов отвечать заданным статусом (0 сбрасывает).
func (s *Score) SetFault(status int) {
	s.mu.Lock()
	s.fault = status
	s.mu.Unlock()
}

// SetRawScores подменяет тело get-scores произвольными байтами (nil возвращает JSON).
func (s *Score) SetRawScores(body []byte) {
	s.mu.Lock()
	s.raw = body
	s.mu.Unlock()
}

// MealCalls возвращает принятые запросы evaluate-meal.
func (s *Score) MealCalls() []MealCall {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]MealCall(nil), s.calls...)
}

// Routes монтирует API сервиса баллов. Пути сохраняют завершающий слеш, как у настоящего сервиса.
func (s *Score) Routes(r chi.Router) {
	r.Get("/get-scores/", s.getScores)
	r.Post("/evaluate-meal/", s.evaluateMeal)
}

func (s *Score) getScores(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	fault, raw, scores := s.fault, s.raw, s.scores
	s.mu.RUnlock()

	if fault != 0 {
		writeJSON(w, fault, map[string]string{"error": "injected fault"})
		return
	}
	if raw != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Write(raw)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func (s *Score) evaluateMeal(w http.ResponseWriter, r *http.Request) {
	var req domain.MealEvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.calls = append(s.calls, MealCall{SavedFace: req.SavedFace, TestFace: req.TestFace, Meal: req.Meal})
	fault, verified := s.fault, s.verified
	s.mu.Unlock()

	if fault != 0 {
		writeJSON(w, fault, map[string]string{"error": "injected fault"})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	distance := 0.31
	if !verified {
		distance = 0.74
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"verified":  verified,
		"distance":  distance,
		"threshold": 0.68,
		"meal":      req.Meal,
	})
}

// NewServer монтирует оба двойника под /ledger и /score.
func NewServer(ledger *Ledger, score *Score) http.Handler {
	r := chi.NewRouter()
	r.Route("/ledger", ledger.Routes)
	r.Route("/score", score.Routes)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}
