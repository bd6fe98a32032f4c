package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
	"github.com/xela07ax/vitalpolicy-relay/internal/engine"
	"github.com/xela07ax/vitalpolicy-relay/internal/infra"
	"github.com/xela07ax/vitalpolicy-relay/internal/media"
)

const actionMeal = "meal"

// MealRelay — вызовы релея, нужные журналу питания
type MealRelay interface {
	Presign(ctx context.Context, req media.PresignRequest) (media.PresignedUpload, error)
	EvaluateMeal(ctx context.Context, req domain.MealEvaluationRequest) (domain.MealVerdict, error)
}

// MealCapture — одно блюдо: готовая ссылка MealURL или фото Photo для загрузки.
type MealCapture struct {
	Title       string
	MealURL     string
	Photo       io.Reader
	Filename    string
	ContentType string
	SelfieURL   string // test_face
}

// MealLog — журнал питания: загрузка фото, сверка через релей, запись в food_entries.
type MealLog struct {
	relay  MealRelay
	store  Store
	guard  engine.InflightGuard
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
	newID  func() string

	mu sync.Mutex // чтение-изменение-запись food_entries
}

func NewMealLog(relay MealRelay, store Store, timeout time.Duration, logger *zap.Logger) *MealLog {
	return &MealLog{
		relay:  relay,
		store:  store,
		guard:  engine.NewLocalInflight(),
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("meals"),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Upload загружает фото по presigned URL релея и возвращает ссылку на объект.
func (m *MealLog) Upload(ctx context.Context, kind media.Kind, filename, contentType string, body io.Reader) (string, error) {
	upload, err := m.relay.Presign(ctx, media.PresignRequest{
		Kind:        string(kind),
		Filename:    filename,
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("presign upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, upload.URL, body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	for k, v := range upload.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", upload.ContentType)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", upload.Key, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("upload %s: storage returned status %d", upload.Key, resp.StatusCode)
	}
	m.logger.Debug("photo uploaded", zap.String("key", upload.Key), zap.String("kind", string(kind)))
	return upload.ObjectURL, nil
}

// Capture: фото -> хранилище -> evaluate-meal -> запись с вердиктом.
// verified=false тоже записывается; при ошибке релея записи нет.
func (m *MealLog) Capture(ctx context.Context, c MealCapture) (domain.FoodEntry, error) {
	title := strings.TrimSpace(c.Title)
	selfie := strings.TrimSpace(c.SelfieURL)
	mealURL := strings.TrimSpace(c.MealURL)
	switch {
	case title == "":
		return domain.FoodEntry{}, fmt.Errorf("%w: meal title is required", domain.ErrInvalidInput)
	case selfie == "":
		return domain.FoodEntry{}, fmt.Errorf("%w: selfie url is required", domain.ErrInvalidInput)
	case mealURL == "" && c.Photo == nil:
		return domain.FoodEntry{}, fmt.Errorf("%w: meal photo or url is required", domain.ErrInvalidInput)
	}

	savedFace, ok, err := m.store.Get(ctx, infra.StoreKeyProfilePic)
	if err != nil {
		return domain.FoodEntry{}, fmt.Errorf("load profile picture: %w", err)
	}
	if !ok || savedFace == "" {
		return domain.FoodEntry{}, fmt.Errorf("%w: profile picture is not set", domain.ErrInvalidInput)
	}

	release, err := m.guard.Acquire(ctx, actionMeal, guardResource)
	if err != nil {
		return domain.FoodEntry{}, err
	}
	defer release()

	if c.Photo != nil {
		filename := c.Filename
		if filename == "" {
			filename = strings.ReplaceAll(title, " ", "_") + ".jpg"
		}
		if mealURL, err = m.Upload(ctx, media.KindMeal, filename, c.ContentType, c.Photo); err != nil {
			return domain.FoodEntry{}, err
		}
	}

	verdict, err := m.relay.EvaluateMeal(ctx, domain.MealEvaluationRequest{
		SavedFace: savedFace,
		TestFace:  selfie,
		Meal:      mealURL,
	})
	if err != nil {
		return domain.FoodEntry{}, fmt.Errorf("evaluate meal: %w", err)
	}

	entry := domain.FoodEntry{
		ID:        m.newID(),
		Title:     title,
		ImageURI:  mealURL,
		Timestamp: m.now().UTC(),
		Verified:  verdict.Verified,
	}
	if err := m.append(ctx, entry); err != nil {
		return domain.FoodEntry{}, err
	}
	if !entry.Verified {
		m.logger.Warn("meal not verified: selfie does not match profile picture", zap.String("id", entry.ID))
	}
	return entry, nil
}

// Entries возвращает журнал питания в порядке записи
func (m *MealLog) Entries(ctx context.Context) ([]domain.FoodEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(ctx)
}

func (m *MealLog) loadLocked(ctx context.Context) ([]domain.FoodEntry, error) {
	raw, ok, err := m.store.Get(ctx, infra.StoreKeyFoodEntries)
	if err != nil {
		return nil, fmt.Errorf("load food entries: %w", err)
	}
	var entries []domain.FoodEntry
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return nil, fmt.Errorf("decode food entries: %w", err)
		}
	}
	return entries, nil
}

func (m *MealLog) append(ctx context.Context, entry domain.FoodEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := m.loadLocked(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(append(entries, entry))
	if err != nil {
		return fmt.Errorf("encode food entries: %w", err)
	}
	if err := m.store.Set(ctx, infra.StoreKeyFoodEntries, string(raw)); err != nil {
		return fmt.Errorf("persist food entries: %w", err)
	}
	return nil
}
