// Package twin — in-memory двойники Remote Ledger Service и Remote Score Service
// для локальной разработки и тестов пакетов.
package twin

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
)

type ledgerEntry struct {
	policy  domain.LedgerPolicy
	history []domain.HealthScore
}

// Ledger эмулирует реестр: хранит полисы и сам считает производные финансовые поля.
type Ledger struct {
	mu       sync.RWMutex
	policies map[string]*ledgerEntry
	fault    int
	now      func() time.Time
}

// NewLedger создает пустой двойник реестра.
func NewLedger() *Ledger {
	return &Ledger{
		policies: make(map[string]*ledgerEntry),
		now:      time.Now,
	}
}

// SetFault заставляет все маршруты реестра отвечать заданным статусом (0 сбрасывает).
func (l *Ledger) SetFault(status int) {
	l.mu.Lock()
	l.fault = status
	l.mu.Unlock()
}

// Policy возвращает копию сохраненной записи.
func (l *Ledger) Policy(id string) (domain.LedgerPolicy, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.policies[id]
	if !ok {
		return domain.LedgerPolicy{}, false
	}
	return e.policy, true
}

// Len — число сохраненных полисов.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.policies)
}

// Routes монтирует API реестра.
func (l *Ledger) Routes(r chi.Router) {
	r.Use(l.faultInjection)
	r.Post("/createPolicy", l.createPolicy)
	r.Get("/getPolicyDetails/{policyId}", l.getPolicy)
	r.Post("/updateHealthPoints", l.updateHealthPoints)
}

func (l *Ledger) faultInjection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l.mu.RLock()
		fault := l.fault
		l.mu.RUnlock()
		if fault != 0 {
			writeJSON(w, fault, map[string]string{"error": "injected fault"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *Ledger) createPolicy(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.policies[req.PolicyID]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "policy already exists"})
		return
	}

	created := l.now().UTC()
	e := &ledgerEntry{
		policy: domain.LedgerPolicy{
			PolicyID:           req.PolicyID,
			UserID:             req.UserID,
			UserWalletAddress:  req.UserWalletAddress,
			InitialHealthScore: *req.InitialHealthScore,
			CoverageDuration:   *req.CoverageDuration,
			CreatedAt:          &created,
		},
		history: []domain.HealthScore{*req.InitialHealthScore},
	}
	e.derive()
	l.policies[req.PolicyID] = e

	writeJSON(w, http.StatusCreated, domain.PolicyPayload{Policy: e.policy})
}

func (l *Ledger) getPolicy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "policyId")

	l.mu.RLock()
	e, ok := l.policies[id]
	var p domain.LedgerPolicy
	if ok {
		p = e.policy
	}
	l.mu.RUnlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "policy not found"})
		return
	}
	writeJSON(w, http.StatusOK, domain.PolicyPayload{Policy: p})
}

func (l *Ledger) updateHealthPoints(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateHealthPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.policies[req.PolicyID]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "policy not found"})
		return
	}
	if e.policy.UserWalletAddress != req.UserWalletAddress {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "wallet does not own policy"})
		return
	}

	e.history = append(e.history, *req.NewHealthPoints)
	e.derive()

	writeJSON(w, http.StatusOK, domain.PolicyPayload{Policy: e.policy})
}

// derive пересчитывает финансовые поля по полису и истории баллов.
func (e *ledgerEntry) derive() {
	p := &e.policy
	current := e.history[len(e.history)-1]

	var sum float64
	for _, s := range e.history {
		sum += float64(s)
	}
	avg := sum / float64(len(e.history))

	coverage := float64(p.CoverageDuration) * 1000
	monthly := coverage / float64(p.CoverageDuration) / 10
	premium := monthly * (1 + (100-avg)/200)

	k := 1.0
	if p.InitialHealthScore != 0 {
		k = avg / float64(p.InitialHealthScore)
	}

	active := true
	p.CoverageAmount = quoted(coverage, 0)
	p.PremiumAmount = quoted(premium, 2)
	p.CurrentHealthPoints = &current
	p.RollingAverage = quoted(avg, 2)
	p.KFactor = quoted(k, 4)
	p.IsActive = &active
}

func quoted(v float64, prec int) json.RawMessage {
	pow := math.Pow(10, float64(prec))
	v = math.Round(v*pow) / pow
	b, _ := json.Marshal(strconv.FormatFloat(v, 'f', -1, 64))
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
