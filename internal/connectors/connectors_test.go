package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
	"github.com/xela07ax/vitalpolicy-relay/internal/infra"
)

func TestHTTPAdapter_HeadersAndBody(t *testing.T) {
	var got *http.Request
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		body, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	a := NewHTTPAdapter("relay", srv.URL+"/", time.Second).WithHeader("Authorization", "Bearer t")
	ctx := infra.WithTraceID(context.Background(), "trace-1")

	data, err := a.Do(ctx, Request{Method: http.MethodPost, Path: "/updateHealthPoints", Body: map[string]int{"x": 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))

	assert.Equal(t, "/updateHealthPoints", got.URL.Path)
	assert.Equal(t, "Bearer t", got.Header.Get("Authorization"))
	assert.Equal(t, "trace-1", got.Header.Get(infra.TraceHeader))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"x":1}`, string(body))
}

func TestHTTPAdapter_Throttle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPAdapter("score", srv.URL, time.Second).Do(context.Background(), Request{Method: http.MethodGet, Path: "get-scores/"})

	var te *ThrottleError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 7*time.Second, te.RetryAfter)

	// 429 зеркалируется как RemoteError
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusTooManyRequests, re.Status)
}

func TestHTTPAdapter_RemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "policy not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPAdapter("ledger", srv.URL, time.Second).Do(context.Background(), Request{Method: http.MethodGet, Path: "getPolicyDetails/X"})

	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusNotFound, re.Status)
	assert.False(t, re.Retryable())
	assert.Equal(t, "policy not found\n", re.Detail())
}

func TestRemoteError_Detail(t *testing.T) {
	assert.Nil(t, (&RemoteError{}).Detail())
	assert.Equal(t, json.RawMessage(`{"a":1}`), (&RemoteError{Body: []byte(`{"a":1}`)}).Detail())
	assert.True(t, (&RemoteError{Status: 503}).Retryable())
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("0"))
	assert.Equal(t, time.Second, parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
	assert.Equal(t, time.Second, parseRetryAfter(""))
}

func TestDecodePolicy_Shapes(t *testing.T) {
	for name, raw := range map[string]string{
		"wrapped": `{"policy":{"policyId":"P1","initialHealthScore":80,"coverageDuration":12}}`,
		"data":    `{"data":{"policy":{"policyId":"P1","initialHealthScore":"80","coverageDuration":"12"}}}`,
		"bare":    `{"policyId":"P1","initialHealthScore":80,"coverageDuration":12}`,
	} {
		t.Run(name, func(t *testing.T) {
			p, err := decodePolicy([]byte(raw))
			require.NoError(t, err)
			assert.Equal(t, "P1", p.PolicyID)
			assert.Equal(t, domain.HealthScore(80), p.InitialHealthScore)
			assert.Equal(t, domain.Months(12), p.CoverageDuration)
		})
	}

	_, err := decodePolicy([]byte(`{"foo":"bar"}`))
	var de *DecodeError
	require.ErrorAs(t, err, &de)

	_, err = decodePolicy([]byte(`not json`))
	require.ErrorAs(t, err, &de)
}

type stubDoer struct {
	last Request
	resp []byte
	err  error
}

func (s *stubDoer) Do(_ context.Context, req Request) ([]byte, error) {
	s.last = req
	return s.resp, s.err
}

func TestLedgerClient_Requests(t *testing.T) {
	d := &stubDoer{resp: []byte(`{"policy":{"policyId":"P 1","initialHealthScore":80,"coverageDuration":12}}`)}
	c := NewLedgerClient(d)

	_, err := c.GetPolicy(context.Background(), "P 1")
	require.NoError(t, err)
	assert.Equal(t, "getPolicyDetails/P%201", d.last.Path)
	assert.True(t, d.last.Idempotent)

	_, err = c.UpdateHealthPoints(context.Background(), domain.UpdateHealthPointsRequest{PolicyID: "P 1"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, d.last.Method)
	assert.False(t, d.last.Idempotent)
}

func TestScoreClient(t *testing.T) {
	d := &stubDoer{resp: []byte(`{"activityScore":1,"dietScore":2,"healthScore":73.5,"sleepScore":4}`)}
	c := NewScoreClient(d)

	s, err := c.FetchScores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthScore(73.5), s.Health())

	d.resp = []byte(`<html>`)
	_, err = c.FetchScores(context.Background())
	var de *DecodeError
	require.ErrorAs(t, err, &de)

	_, err = c.EvaluateMeal(context.Background(), domain.MealEvaluationRequest{})
	require.ErrorAs(t, err, &de)

	d.err = errors.New("boom")
	_, err = c.EvaluateMeal(context.Background(), domain.MealEvaluationRequest{})
	assert.EqualError(t, err, "boom")
}
