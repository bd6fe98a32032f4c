// Package dashboard — клиентская часть: локальный список полисов, кэш балла здоровья
// и сверка кэша с реестром через Relay Server.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
	"github.com/xela07ax/vitalpolicy-relay/internal/engine"
	"github.com/xela07ax/vitalpolicy-relay/internal/infra"
)

type State string

const (
	StateEmpty       State = "Empty"
	StateCreating    State = "Creating"
	StateActive      State = "Active"
	StateReconciling State = "Reconciling"
)

// Виды действий для защиты от двойного нажатия
const (
	actionCreate    = "create"
	actionReconcile = "reconcile"
	actionRefresh   = "refresh"
	guardResource   = "dashboard"
)

// Relay описывает требования к клиенту релея
type Relay interface {
	CreatePolicy(ctx context.Context, req domain.CreatePolicyRequest) (domain.LedgerPolicy, error)
	PolicyDetails(ctx context.Context, policyID string) (domain.LedgerPolicy, error)
	UpdateHealthPoints(ctx context.Context, req domain.UpdateHealthPointsRequest) (domain.LedgerPolicy, error)
	Scores(ctx context.Context) (domain.HealthScores, error)
}

// Drift — расхождение между кэшем и полисом
type Drift struct {
	PolicyID string
	Cached   domain.HealthScore
	Stored   *domain.HealthScore // nil — реестр балл еще не отдавал
}

// ScoreResult — результат обновления баллов. Fallback: реальных данных нет, кэш не тронут.
type ScoreResult struct {
	Scores   domain.HealthScores
	Fallback bool
	Cause    error
}

type Dashboard struct {
	relay  Relay
	store  Store
	guard  engine.InflightGuard
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	mu       sync.Mutex
	state    State
	policies []domain.PolicyRecord
	cached   *domain.HealthScore
}

func New(relay Relay, store Store, logger *zap.Logger) *Dashboard {
	return &Dashboard{
		relay:  relay,
		store:  store,
		guard:  engine.NewLocalInflight(),
		logger: logger.Named("dashboard"),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		state:  StateEmpty,
	}
}

// Load читает список полисов и кэшированный балл из локального хранилища.
func (d *Dashboard) Load(ctx context.Context) error {
	raw, ok, err := d.store.Get(ctx, infra.StoreKeyPolicies)
	if err != nil {
		return fmt.Errorf("load policies: %w", err)
	}
	var policies []domain.PolicyRecord
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &policies); err != nil {
			return fmt.Errorf("decode policies: %w", err)
		}
	}

	cached, err := d.loadCachedScore(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.policies = policies
	d.cached = cached
	d.state = StateEmpty
	if len(policies) > 0 {
		d.state = StateActive
	}
	return nil
}

func (d *Dashboard) loadCachedScore(ctx context.Context) (*domain.HealthScore, error) {
	raw, ok, err := d.store.Get(ctx, infra.StoreKeyHealthScore)
	if err != nil {
		return nil, fmt.Errorf("load health score: %w", err)
	}
	if !ok {
		return nil, nil
	}
	score, err := domain.ParseHealthScore(strings.Trim(raw, `"`))
	if err != nil {
		// Мусор в кэше не ломает экран: считаем, что балла нет
		d.logger.Warn("cached health score ignored", zap.String("value", raw), zap.Error(err))
		return nil, nil
	}
	return &score, nil
}

func (d *Dashboard) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Dashboard) Policies() []domain.PolicyRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.PolicyRecord(nil), d.policies...)
}

func (d *Dashboard) CachedScore() (domain.HealthScore, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached == nil {
		return 0, false
	}
	return *d.cached, true
}

// Create: форма -> createPolicy -> getPolicyDetails -> запись в локальный список.
func (d *Dashboard) Create(ctx context.Context, form domain.PolicyForm) (domain.PolicyRecord, error) {
	req, err := form.Request()
	if err != nil {
		return domain.PolicyRecord{}, err
	}

	release, err := d.guard.Acquire(ctx, actionCreate, guardResource)
	if err != nil {
		return domain.PolicyRecord{}, err
	}
	defer release()

	d.mu.Lock()
	if len(d.policies) > 0 {
		d.mu.Unlock()
		return domain.PolicyRecord{}, domain.ErrPolicyLimit
	}
	d.state = StateCreating
	d.mu.Unlock()

	created, err := d.relay.CreatePolicy(ctx, req)
	if err != nil {
		d.setState(StateEmpty)
		return domain.PolicyRecord{}, fmt.Errorf("create policy: %w", err)
	}

	fields := created.LedgerFields
	details, err := d.relay.PolicyDetails(ctx, req.PolicyID)
	if err != nil {
		// Полис в реестре уже есть: сохраняем то, что вернуло создание
		d.logger.Warn("policy details unavailable after create",
			zap.String("policy_id", req.PolicyID), zap.Error(err))
	} else {
		fields.Merge(details.LedgerFields)
	}

	record := domain.PolicyRecord{
		ID:                     d.newID(),
		PolicyID:               req.PolicyID,
		UserID:                 req.UserID,
		UserWalletAddress:      req.UserWalletAddress,
		InitialHealthScore:     *req.InitialHealthScore,
		CoverageDurationMonths: *req.CoverageDuration,
		CreatedAt:              d.now().UTC(),
		Status:                 domain.PolicyActive,
		LedgerFields:           fields,
	}

	d.mu.Lock()
	d.policies = append(d.policies, record)
	d.state = StateActive
	snapshot := append([]domain.PolicyRecord(nil), d.policies...)
	d.mu.Unlock()

	// Память не расходится с хранилищем: не сохранили — записи нет.
	// Полис в реестре остается, повторное создание получит отказ реестра.
	if err := d.persist(ctx, snapshot); err != nil {
		d.mu.Lock()
		d.removeLocked(record.ID)
		d.mu.Unlock()
		d.logger.Error("policy created in ledger but not saved locally",
			zap.String("policy_id", record.PolicyID), zap.Error(err))
		return domain.PolicyRecord{}, err
	}
	d.logger.Info("policy created", zap.String("policy_id", record.PolicyID), zap.String("id", record.ID))
	return record, nil
}

// Drift сравнивает кэш и currentHealthPoints точным числовым равенством.
func (d *Dashboard) Drift() (Drift, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.driftLocked()
}

func (d *Dashboard) driftLocked() (Drift, bool) {
	if len(d.policies) == 0 || d.cached == nil {
		return Drift{}, false
	}
	p := d.policies[0]
	drift := Drift{PolicyID: p.PolicyID, Cached: *d.cached, Stored: p.CurrentHealthPoints}
	if p.CurrentHealthPoints == nil {
		return drift, true
	}
	return drift, !p.CurrentHealthPoints.Equal(*d.cached)
}

// Reconcile отправляет кэшированный балл в реестр и перезаписывает производные поля.
// Проверочного чтения после обновления нет.
func (d *Dashboard) Reconcile(ctx context.Context) (domain.PolicyRecord, error) {
	release, err := d.guard.Acquire(ctx, actionReconcile, guardResource)
	if err != nil {
		return domain.PolicyRecord{}, err
	}
	defer release()

	d.mu.Lock()
	if len(d.policies) == 0 {
		d.mu.Unlock()
		return domain.PolicyRecord{}, domain.ErrNoPolicy
	}
	drift, ok := d.driftLocked()
	if !ok {
		d.mu.Unlock()
		return domain.PolicyRecord{}, domain.ErrNoDrift
	}
	target := d.policies[0]
	d.state = StateReconciling
	d.mu.Unlock()

	score := drift.Cached
	updated, err := d.relay.UpdateHealthPoints(ctx, domain.UpdateHealthPointsRequest{
		PolicyID:          target.PolicyID,
		NewHealthPoints:   &score,
		UserWalletAddress: target.UserWalletAddress,
	})
	if err != nil {
		d.setState(StateActive)
		return domain.PolicyRecord{}, fmt.Errorf("update health points: %w", err)
	}

	d.mu.Lock()
	idx := -1
	for i := range d.policies {
		if d.policies[i].ID == target.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Список очистили, пока шел запрос
		d.state = StateEmpty
		d.mu.Unlock()
		return domain.PolicyRecord{}, domain.ErrNoPolicy
	}
	rec := &d.policies[idx]
	prev := *rec
	rec.LedgerFields.Merge(updated.LedgerFields)
	if updated.CurrentHealthPoints == nil {
		rec.CurrentHealthPoints = &score
	}
	record := *rec
	d.state = StateActive
	snapshot := append([]domain.PolicyRecord(nil), d.policies...)
	d.mu.Unlock()

	if err := d.persist(ctx, snapshot); err != nil {
		d.mu.Lock()
		d.replaceLocked(prev)
		d.mu.Unlock()
		return domain.PolicyRecord{}, err
	}
	d.logger.Info("health points reconciled",
		zap.String("policy_id", record.PolicyID), zap.Stringer("score", score))
	return record, nil
}

// Clear удаляет локальный список. В реестре полис остается.
func (d *Dashboard) Clear(ctx context.Context) error {
	if err := d.store.Delete(ctx, infra.StoreKeyPolicies); err != nil {
		return fmt.Errorf("clear policies: %w", err)
	}
	d.mu.Lock()
	d.policies = nil
	d.state = StateEmpty
	d.mu.Unlock()
	return nil
}

// RefreshScores запрашивает баллы через релей. Кэш пишется только при реальном ответе.
func (d *Dashboard) RefreshScores(ctx context.Context) (ScoreResult, error) {
	release, err := d.guard.Acquire(ctx, actionRefresh, guardResource)
	if err != nil {
		return ScoreResult{}, err
	}
	defer release()

	scores, err := d.relay.Scores(ctx)
	if err != nil {
		d.logger.Warn("scores unavailable, showing zeros", zap.Error(err))
		return ScoreResult{Fallback: true, Cause: err}, nil
	}
	if err := d.SetCachedScore(ctx, scores.Health()); err != nil {
		return ScoreResult{Scores: scores}, err
	}
	return ScoreResult{Scores: scores}, nil
}

func (d *Dashboard) SetCachedScore(ctx context.Context, score domain.HealthScore) error {
	if err := d.store.Set(ctx, infra.StoreKeyHealthScore, score.String()); err != nil {
		return fmt.Errorf("cache health score: %w", err)
	}
	d.mu.Lock()
	d.cached = &score
	d.mu.Unlock()
	return nil
}

func (d *Dashboard) ProfilePicture(ctx context.Context) (string, bool, error) {
	return d.store.Get(ctx, infra.StoreKeyProfilePic)
}

func (d *Dashboard) SetProfilePicture(ctx context.Context, rawURL string) error {
	u, err := url.ParseRequestURI(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: profile picture must be an absolute URL", domain.ErrInvalidInput)
	}
	return d.store.Set(ctx, infra.StoreKeyProfilePic, u.String())
}

// removeLocked убирает запись по локальному id и пересчитывает состояние
func (d *Dashboard) removeLocked(id string) {
	kept := d.policies[:0]
	for _, p := range d.policies {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	d.policies = kept
	if len(d.policies) == 0 {
		d.state = StateEmpty
	}
}

// replaceLocked возвращает прежнюю версию записи, если она еще в списке
func (d *Dashboard) replaceLocked(rec domain.PolicyRecord) {
	for i := range d.policies {
		if d.policies[i].ID == rec.ID {
			d.policies[i] = rec
			return
		}
	}
}

func (d *Dashboard) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *Dashboard) persist(ctx context.Context, policies []domain.PolicyRecord) error {
	raw, err := json.Marshal(policies)
	if err != nil {
		return fmt.Errorf("encode policies: %w", err)
	}
	if err := d.store.Set(ctx, infra.StoreKeyPolicies, string(raw)); err != nil {
		return fmt.Errorf("persist policies: %w", err)
	}
	return nil
}
