package media

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
)

// Kind — что загружает клиент
type Kind string

const (
	KindMeal    Kind = "meal"    // фото блюда для evaluate-meal
	KindFace    Kind = "face"    // селфи (saved_face / test_face)
	KindProfile Kind = "profile" // аватар
)

const (
	DefaultContentType = "image/jpeg"
	defaultFilename    = "image.jpg"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindMeal, KindFace, KindProfile:
		return k, nil
	case "":
		return KindMeal, nil
	default:
		return "", fmt.Errorf("%w: unknown media kind %q", domain.ErrInvalidInput, s)
	}
}

// BuildKey: <prefix><kind>/<unix millis>-<basename>, например food_uploads/meal/1700000000000-lunch.jpg
func BuildKey(prefix string, kind Kind, filename string, now time.Time) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = defaultFilename
	}
	name = strings.ReplaceAll(name, " ", "_")

	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return fmt.Sprintf("%s%s/%d-%s", prefix, kind, now.UnixMilli(), name)
}

// ObjectURL — адрес объекта после загрузки; его клиент передает в evaluate-meal.
func ObjectURL(bucket, region, endpoint, key string) string {
	if endpoint != "" {
		// path-style для S3-совместимых хранилищ (localstack, minio)
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(endpoint, "/"), bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
}
