package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// HealthScore — единое числовое представление балла здоровья.
// Разбирается один раз на границе (JSON-число или строка "70") и дальше
// по конвейеру ходит только как число.
type HealthScore float64

// ParseHealthScore разбирает строковое значение из формы или кэша.
func ParseHealthScore(s string) (HealthScore, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty health score", ErrInvalidInput)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: health score %q is not a number", ErrInvalidInput, s)
	}
	return HealthScore(v), nil
}

// String отдает кратчайшую запись: 80, 72.5
func (h HealthScore) String() string {
	return strconv.FormatFloat(float64(h), 'f', -1, 64)
}

func (h HealthScore) MarshalJSON() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalJSON принимает и число, и строку с числом (клиенты шлют оба варианта).
func (h *HealthScore) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := ParseHealthScore(s)
		if err != nil {
			return err
		}
		*h = v
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("%w: health score must be numeric", ErrInvalidInput)
	}
	*h = HealthScore(f)
	return nil
}

// Equal — строгое сравнение без допуска (epsilon не используется).
func (h HealthScore) Equal(other HealthScore) bool {
	return h == other
}

// Months — длительность покрытия в месяцах, та же логика разбора, что у HealthScore.
type Months int

func ParseMonths(s string) (Months, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: coverage duration %q is not an integer", ErrInvalidInput, s)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%w: coverage duration must be positive", ErrInvalidInput)
	}
	return Months(v), nil
}

func (m *Months) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := ParseMonths(s)
		if err != nil {
			return err
		}
		*m = v
		return nil
	}

	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: coverage duration must be an integer", ErrInvalidInput)
	}
	*m = Months(n)
	return nil
}

// HealthScores — ответ Remote Score Service.
type HealthScores struct {
	ActivityScore float64 `json:"activityScore"`
	DietScore     float64 `json:"dietScore"`
	HealthScore   float64 `json:"healthScore"`
	SleepScore    float64 `json:"sleepScore"`
}

// Health возвращает общий балл в типе, пригодном для сравнения с полисом.
func (s HealthScores) Health() HealthScore {
	return HealthScore(s.HealthScore)
}

// gradeTable — пороги буквенной оценки экрана баллов (сверху вниз).
var gradeTable = []struct {
	min   HealthScore
	grade string
}{
	{90, "A+"}, {85, "A"}, {80, "A-"},
	{75, "B+"}, {70, "B"}, {65, "B-"},
	{60, "C+"}, {55, "C"}, {50, "C-"},
	{45, "D+"}, {40, "D"},
}

// Grade переводит балл здоровья в буквенную оценку.
func Grade(score HealthScore) string {
	for _, g := range gradeTable {
		if score >= g.min {
			return g.grade
		}
	}
	return "F"
}
