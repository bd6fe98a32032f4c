package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthScoreUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    HealthScore
		wantErr bool
	}{
		{"number", `70`, 70, false},
		{"string", `"70"`, 70, false},
		{"fraction string", `"72.5"`, 72.5, false},
		{"padded string", `" 81 "`, 81, false},
		{"empty string", `""`, 0, true},
		{"word", `"seventy"`, 0, true},
		{"bool", `true`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got HealthScore
			err := json.Unmarshal([]byte(tt.in), &got)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHealthScoreStringAndMarshal(t *testing.T) {
	assert.Equal(t, "80", HealthScore(80).String())
	assert.Equal(t, "72.5", HealthScore(72.5).String())

	b, err := json.Marshal(struct {
		Score HealthScore `json:"score"`
	}{Score: 80})
	require.NoError(t, err)
	assert.JSONEq(t, `{"score":80}`, string(b))
}

func TestStringAndNumberScoresCompareEqual(t *testing.T) {
	var fromString, fromNumber HealthScore
	require.NoError(t, json.Unmarshal([]byte(`"70"`), &fromString))
	require.NoError(t, json.Unmarshal([]byte(`70`), &fromNumber))

	assert.True(t, fromString.Equal(fromNumber))
	assert.False(t, HealthScore(70).Equal(70.0001))
}

func TestMonthsUnmarshal(t *testing.T) {
	var m Months
	require.NoError(t, json.Unmarshal([]byte(`"12"`), &m))
	assert.Equal(t, Months(12), m)

	require.NoError(t, json.Unmarshal([]byte(`6`), &m))
	assert.Equal(t, Months(6), m)

	assert.Error(t, json.Unmarshal([]byte(`"twelve"`), &m))
	assert.Error(t, json.Unmarshal([]byte(`"0"`), &m))
}

func TestGrade(t *testing.T) {
	cases := map[HealthScore]string{
		100: "A+", 90: "A+", 89.9: "A", 85: "A", 80: "A-",
		75: "B+", 70: "B", 65: "B-", 60: "C+", 55: "C",
		50: "C-", 45: "D+", 40: "D", 39.5: "F", 0: "F",
	}
	for score, want := range cases {
		assert.Equal(t, want, Grade(score), "score %s", score)
	}
}
