package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyFormRequest(t *testing.T) {
	form := PolicyForm{
		PolicyID:           "P1",
		UserID:             "U1",
		UserWalletAddress:  "0xABC",
		InitialHealthScore: "80",
		CoverageDuration:   "12",
	}

	req, err := form.Request()
	require.NoError(t, err)
	assert.Equal(t, "P1", req.PolicyID)
	assert.Equal(t, HealthScore(80), *req.InitialHealthScore)
	assert.Equal(t, Months(12), *req.CoverageDuration)
	assert.NoError(t, req.Validate())
}

func TestPolicyFormRejectsMissingFields(t *testing.T) {
	base := PolicyForm{
		PolicyID:           "P1",
		UserID:             "U1",
		UserWalletAddress:  "0xABC",
		InitialHealthScore: "80",
		CoverageDuration:   "12",
	}

	blank := []func(*PolicyForm){
		func(f *PolicyForm) { f.PolicyID = "" },
		func(f *PolicyForm) { f.UserID = " " },
		func(f *PolicyForm) { f.UserWalletAddress = "" },
		func(f *PolicyForm) { f.InitialHealthScore = "" },
		func(f *PolicyForm) { f.CoverageDuration = "" },
	}
	for i, mutate := range blank {
		f := base
		mutate(&f)
		_, err := f.Request()
		assert.ErrorIs(t, err, ErrInvalidInput, "case %d", i)
	}
}

func TestCreatePolicyRequestDecodeAndValidate(t *testing.T) {
	var req CreatePolicyRequest
	body := `{"policyId":"P1","userId":"U1","userWalletAddress":"0xABC","initialHealthScore":"80","coverageDuration":"12"}`
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	require.NoError(t, req.Validate())
	assert.Equal(t, HealthScore(80), *req.InitialHealthScore)

	var partial CreatePolicyRequest
	require.NoError(t, json.Unmarshal([]byte(`{"policyId":"P1"}`), &partial))
	err := partial.Validate()
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "userId")
	assert.Contains(t, err.Error(), "coverageDuration")
}

func TestUpdateHealthPointsRequestValidate(t *testing.T) {
	score := HealthScore(70)
	ok := UpdateHealthPointsRequest{PolicyID: "P1", NewHealthPoints: &score, UserWalletAddress: "0xABC"}
	assert.NoError(t, ok.Validate())

	missing := UpdateHealthPointsRequest{PolicyID: "P1"}
	assert.ErrorIs(t, missing.Validate(), ErrInvalidInput)
}

func TestLedgerFieldsMergeKeepsAbsentFields(t *testing.T) {
	cur := HealthScore(80)
	active := true
	fields := LedgerFields{
		CoverageAmount:      json.RawMessage(`"1000"`),
		CurrentHealthPoints: &cur,
		IsActive:            &active,
	}

	next := HealthScore(70)
	fields.Merge(LedgerFields{
		CurrentHealthPoints: &next,
		RollingAverage:      json.RawMessage(`75`),
	})

	assert.JSONEq(t, `"1000"`, string(fields.CoverageAmount))
	assert.JSONEq(t, `75`, string(fields.RollingAverage))
	require.NotNil(t, fields.CurrentHealthPoints)
	assert.Equal(t, HealthScore(70), *fields.CurrentHealthPoints)
	assert.True(t, *fields.IsActive)
}

func TestPolicyRecordJSONShape(t *testing.T) {
	cur := HealthScore(80)
	rec := PolicyRecord{
		ID:                     "local-1",
		PolicyID:               "P1",
		UserID:                 "U1",
		UserWalletAddress:      "0xABC",
		InitialHealthScore:     80,
		CoverageDurationMonths: 12,
		Status:                 PolicyActive,
		LedgerFields: LedgerFields{
			CurrentHealthPoints: &cur,
			KFactor:             json.RawMessage(`"0.5"`),
		},
	}

	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "P1", m["policyId"])
	assert.Equal(t, "Active", m["status"])
	assert.Equal(t, float64(80), m["currentHealthPoints"])
	assert.Equal(t, "0.5", m["k"])
	assert.NotContains(t, m, "coverageAmount")
}
