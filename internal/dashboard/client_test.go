package dashboard

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/vitalpolicy-relay/internal/audit"
	"github.com/xela07ax/vitalpolicy-relay/internal/connectors"
	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
	"github.com/xela07ax/vitalpolicy-relay/internal/engine"
	"github.com/xela07ax/vitalpolicy-relay/internal/infra"
	"github.com/xela07ax/vitalpolicy-relay/internal/media"
	"github.com/xela07ax/vitalpolicy-relay/internal/relay/handler"
	"github.com/xela07ax/vitalpolicy-relay/internal/relay/server"
	"github.com/xela07ax/vitalpolicy-relay/internal/relay/service"
	"github.com/xela07ax/vitalpolicy-relay/internal/twin"
)

// startRelay поднимает двойники внешних сервисов и настоящий релей поверх них
func startRelay(t *testing.T) (*RelayClient, *twin.Ledger, *twin.Score) {
	t.Helper()
	return launchRelay(t, nil)
}

// twinPresigner подписывает URL на двойник хранилища вместо S3
type twinPresigner struct{ endpoint string }

func (p twinPresigner) PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{
		URL:    p.endpoint + "/" + aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key) + "?X-Amz-Signature=test",
		Method: http.MethodPut,
	}, nil
}

// startRelayWithMedia — то же плюс /media/presign поверх двойника хранилища
func startRelayWithMedia(t *testing.T) (*RelayClient, *twin.Score, *twin.Objects) {
	t.Helper()
	objects := newObjectsServer(t)
	cfg := infra.MediaConfig{
		Bucket:     "meals",
		Region:     "us-east-1",
		Endpoint:   objects.url,
		KeyPrefix:  "food_uploads/",
		PresignTTL: time.Minute,
	}
	uploads := media.NewUploads(twinPresigner{endpoint: objects.url}, cfg)
	client, _, score := launchRelay(t, handler.NewMediaHandler(uploads, zap.NewNop()))
	return client, score, objects.Objects
}

type objectsServer struct {
	*twin.Objects
	url string
}

func newObjectsServer(t *testing.T) objectsServer {
	t.Helper()
	objects := twin.NewObjects()
	r := chi.NewRouter()
	r.Route("/storage", objects.Routes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return objectsServer{Objects: objects, url: srv.URL + "/storage"}
}

func launchRelay(t *testing.T, mediaH *handler.MediaHandler) (*RelayClient, *twin.Ledger, *twin.Score) {
	t.Helper()
	ledger := twin.NewLedger()
	score := twin.NewScore(domain.HealthScores{ActivityScore: 60, DietScore: 70, HealthScore: 70, SleepScore: 80})
	upstream := httptest.NewServer(twin.NewServer(ledger, score))
	t.Cleanup(upstream.Close)

	logger := zap.NewNop()
	metrics := engine.NewMetrics(prometheus.NewRegistry())
	cfg := infra.EngineConfig{CBMaxRequests: 1, CBInterval: time.Minute, CBTimeout: time.Minute, CBMaxFailures: 10, RetryAttempts: 1}

	scoreDoer := engine.NewReliabilityWrapper(connectors.UpstreamScore,
		connectors.NewHTTPAdapter(connectors.UpstreamScore, upstream.URL+"/score", time.Second), cfg, time.Second, metrics, logger)
	ledgerDoer := engine.NewReliabilityWrapper(connectors.UpstreamLedger,
		connectors.NewHTTPAdapter(connectors.UpstreamLedger, upstream.URL+"/ledger", time.Second), cfg, time.Second, metrics, logger)

	srv := server.NewRelayServer(logger, metrics, nil,
		handler.NewScoreHandler(service.NewScoreService(connectors.NewScoreClient(scoreDoer), nil, audit.Nop{}, logger), metrics, logger),
		handler.NewPolicyHandler(service.NewPolicyService(connectors.NewLedgerClient(ledgerDoer), engine.NewLocalInflight(), audit.Nop{}, logger), logger),
		mediaH,
	)
	relay := httptest.NewServer(srv)
	t.Cleanup(relay.Close)

	client := NewRelayClient(connectors.NewHTTPAdapter(upstreamRelay, relay.URL, 2*time.Second))
	return client, ledger, score
}

func TestEndToEndPolicyLifecycle(t *testing.T) {
	ctx := context.Background()
	client, ledger, _ := startRelay(t)
	store := NewMemoryStore()
	d := New(client, store, zap.NewNop())
	require.NoError(t, d.Load(ctx))

	rec, err := d.Create(ctx, form)
	require.NoError(t, err)
	assert.Equal(t, "P1", rec.PolicyID)
	assert.Equal(t, "U1", rec.UserID)
	assert.Equal(t, "0xABC", rec.UserWalletAddress)
	assert.Equal(t, "80", rec.InitialHealthScore.String())
	assert.Equal(t, domain.Months(12), rec.CoverageDurationMonths)
	assert.Equal(t, domain.PolicyActive, rec.Status)
	assert.JSONEq(t, `"12000"`, string(rec.CoverageAmount))
	require.Equal(t, 1, ledger.Len())

	// Баллы через релей: кэш 70, в полисе 80 — расхождение
	res, err := d.RefreshScores(ctx)
	require.NoError(t, err)
	require.False(t, res.Fallback)
	drift, ok := d.Drift()
	require.True(t, ok)
	assert.Equal(t, domain.HealthScore(70), drift.Cached)

	updated, err := d.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, updated.ID)
	assert.Equal(t, domain.HealthScore(70), *updated.CurrentHealthPoints)
	remote, _ := ledger.Policy("P1")
	assert.Equal(t, domain.HealthScore(70), *remote.CurrentHealthPoints)

	_, ok = d.Drift()
	assert.False(t, ok)

	require.NoError(t, d.Clear(ctx))
	assert.Empty(t, d.Policies())
	assert.Equal(t, 1, ledger.Len(), "clear never deletes remotely")
}

func TestRelayClientErrors(t *testing.T) {
	ctx := context.Background()
	client, _, score := startRelay(t)

	_, err := client.PolicyDetails(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrPolicyNotFound)
	var rErr *RelayError
	require.ErrorAs(t, err, &rErr)
	assert.Equal(t, http.StatusNotFound, rErr.Status)
	assert.Equal(t, "Failed to fetch policy details", rErr.Message)
	assert.JSONEq(t, `{"error":"policy not found"}`, string(rErr.Detail))

	score.SetFault(http.StatusServiceUnavailable)
	_, err = client.Scores(ctx)
	require.ErrorAs(t, err, &rErr)
	assert.Equal(t, http.StatusInternalServerError, rErr.Status)
}

func TestEndToEndMealCapture(t *testing.T) {
	ctx := context.Background()
	client, score, objects := startRelayWithMedia(t)
	store := NewMemoryStore()
	d := New(client, store, zap.NewNop())
	require.NoError(t, d.SetProfilePicture(ctx, "https://cdn.example/profile.jpg"))

	meals := NewMealLog(client, store, time.Second, zap.NewNop())
	meals.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	entry, err := meals.Capture(ctx, MealCapture{
		Title:     "Greek salad",
		Photo:     bytes.NewReader([]byte("jpeg-bytes")),
		Filename:  "salad.jpg",
		SelfieURL: "https://cdn.example/selfie.jpg",
	})
	require.NoError(t, err)
	assert.True(t, entry.Verified)
	assert.Equal(t, "Greek salad", entry.Title)
	assert.True(t, strings.HasSuffix(entry.ImageURI, "-salad.jpg"), entry.ImageURI)
	assert.Contains(t, entry.ImageURI, "/meals/food_uploads/meal/")

	// фото лежит в хранилище с метаданными из presign
	key := strings.SplitN(entry.ImageURI, "/meals/", 2)[1]
	obj, ok := objects.Get("meals", key)
	require.True(t, ok)
	assert.Equal(t, []byte("jpeg-bytes"), obj.Body)
	assert.Equal(t, "image/jpeg", obj.ContentType)
	assert.Equal(t, "meal", obj.Meta["kind"])

	// сервис баллов получил обе ссылки на лицо и ссылку на блюдо
	calls := score.MealCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "https://cdn.example/profile.jpg", calls[0].SavedFace)
	assert.Equal(t, "https://cdn.example/selfie.jpg", calls[0].TestFace)
	assert.Equal(t, entry.ImageURI, calls[0].Meal)

	// несовпадение лица тоже попадает в журнал
	score.SetVerified(false)
	second, err := meals.Capture(ctx, MealCapture{
		Title:     "Oatmeal",
		MealURL:   "https://cdn.example/oatmeal.jpg",
		SelfieURL: "https://cdn.example/selfie.jpg",
	})
	require.NoError(t, err)
	assert.False(t, second.Verified)
	assert.Equal(t, 1, objects.Len())

	entries, err := meals.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Verified)
	assert.False(t, entries[1].Verified)

	// ошибка сервиса баллов: записи нет, статус зеркалится
	score.SetFault(http.StatusBadGateway)
	_, err = meals.Capture(ctx, MealCapture{
		Title:     "Soup",
		MealURL:   "https://cdn.example/soup.jpg",
		SelfieURL: "https://cdn.example/selfie.jpg",
	})
	var relayErr *RelayError
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, http.StatusBadGateway, relayErr.Status)
	entries, err = meals.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRelayClientPresignAndEvaluate(t *testing.T) {
	ctx := context.Background()
	client, _, _ := startRelayWithMedia(t)

	upload, err := client.Presign(ctx, media.PresignRequest{Kind: "face", Filename: "me.png", ContentType: "image/png"})
	require.NoError(t, err)
	assert.Contains(t, upload.Key, "food_uploads/face/")
	assert.Equal(t, "image/png", upload.ContentType)
	assert.Equal(t, "face", upload.Headers["x-amz-meta-kind"])

	_, err = client.Presign(ctx, media.PresignRequest{Kind: "video"})
	var relayErr *RelayError
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, http.StatusBadRequest, relayErr.Status)

	_, err = client.EvaluateMeal(ctx, domain.MealEvaluationRequest{Meal: "https://cdn.example/m.jpg"})
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, http.StatusBadRequest, relayErr.Status)

	// без хранилища маршрута нет
	plain, _, _ := startRelay(t)
	_, err = plain.Presign(ctx, media.PresignRequest{Filename: "x.jpg"})
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, http.StatusNotFound, relayErr.Status)
	assert.Equal(t, "Route not found", relayErr.Message)
}
