package twin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
)

func do(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func setup(t *testing.T) (*httptest.Server, *Ledger, *Score) {
	t.Helper()
	ledger := NewLedger()
	score := NewScore(domain.HealthScores{ActivityScore: 60, DietScore: 70, HealthScore: 72, SleepScore: 80})
	srv := httptest.NewServer(NewServer(ledger, score))
	t.Cleanup(srv.Close)
	return srv, ledger, score
}

func TestLedgerLifecycle(t *testing.T) {
	srv, ledger, _ := setup(t)

	resp, body := do(t, srv, http.MethodPost, "/ledger/createPolicy", map[string]any{
		"policyId": "P1", "userId": "U1", "userWalletAddress": "0xABC",
		"initialHealthScore": "80", "coverageDuration": "12",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created domain.PolicyPayload
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "P1", created.Policy.PolicyID)
	assert.JSONEq(t, `"12000"`, string(created.Policy.CoverageAmount))
	require.NotNil(t, created.Policy.CurrentHealthPoints)
	assert.Equal(t, domain.HealthScore(80), *created.Policy.CurrentHealthPoints)
	assert.Equal(t, 1, ledger.Len())

	resp, _ = do(t, srv, http.MethodPost, "/ledger/createPolicy", map[string]any{
		"policyId": "P1", "userId": "U1", "userWalletAddress": "0xABC",
		"initialHealthScore": 80, "coverageDuration": 12,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = do(t, srv, http.MethodPost, "/ledger/updateHealthPoints", map[string]any{
		"policyId": "P1", "newHealthPoints": 70, "userWalletAddress": "0xABC",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var updated domain.PolicyPayload
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, domain.HealthScore(70), *updated.Policy.CurrentHealthPoints)
	assert.JSONEq(t, `"75"`, string(updated.Policy.RollingAverage))

	resp, _ = do(t, srv, http.MethodPost, "/ledger/updateHealthPoints", map[string]any{
		"policyId": "P1", "newHealthPoints": 70, "userWalletAddress": "0xOTHER",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/ledger/getPolicyDetails/P404", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLedgerFault(t *testing.T) {
	srv, ledger, _ := setup(t)
	ledger.SetFault(http.StatusServiceUnavailable)

	resp, _ := do(t, srv, http.MethodGet, "/ledger/getPolicyDetails/P1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	ledger.SetFault(0)
	resp, _ = do(t, srv, http.MethodGet, "/ledger/getPolicyDetails/P1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScoreTwin(t *testing.T) {
	srv, _, score := setup(t)

	resp, body := do(t, srv, http.MethodGet, "/score/get-scores/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"activityScore":60,"dietScore":70,"healthScore":72,"sleepScore":80}`, string(body))

	score.SetVerified(false)
	resp, body = do(t, srv, http.MethodPost, "/score/evaluate-meal/", map[string]string{
		"saved_face": "s3://a", "test_face": "s3://b", "meal": "s3://c",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var verdict domain.MealVerdict
	require.NoError(t, json.Unmarshal(body, &verdict))
	assert.False(t, verdict.Verified)
	require.Len(t, score.MealCalls(), 1)
	assert.Equal(t, "s3://c", score.MealCalls()[0].Meal)
}

func TestObjectsPutGet(t *testing.T) {
	objects := NewObjects()
	r := chi.NewRouter()
	r.Route("/storage", objects.Routes)
	srv := httptest.NewServer(r)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/storage/meals/food_uploads/meal/1-lunch.jpg?X-Amz-Signature=abc", bytes.NewReader([]byte("jpeg")))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("x-amz-meta-kind", "meal")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	obj, ok := objects.Get("meals", "food_uploads/meal/1-lunch.jpg")
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", obj.ContentType)
	assert.Equal(t, "meal", obj.Meta["kind"])
	assert.Equal(t, []byte("jpeg"), obj.Body)

	resp, body := do(t, srv, http.MethodGet, "/storage/meals/food_uploads/meal/1-lunch.jpg", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "jpeg", string(body))

	resp, _ = do(t, srv, http.MethodGet, "/storage/meals/missing.jpg", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	objects.SetFault(http.StatusForbidden)
	resp, _ = do(t, srv, http.MethodPut, "/storage/meals/x.jpg", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 1, objects.Len())
}
