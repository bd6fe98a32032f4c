// Package media выдает presigned URL для прямой загрузки фото в объектное хранилище.
package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
	"github.com/xela07ax/vitalpolicy-relay/internal/infra"
)

// Presigner — часть s3.PresignClient, которая нам нужна
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// NewS3Presigner собирает клиент S3; кастомный endpoint (localstack) включает path-style.
func NewS3Presigner(ctx context.Context, cfg infra.MediaConfig) (*s3.PresignClient, error) {
	awsConf, err := awsCfg.LoadDefaultConfig(ctx, awsCfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return s3.NewPresignClient(client), nil
}

type PresignRequest struct {
	Kind        string `json:"kind"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

type PresignedUpload struct {
	Key         string            `json:"key"`
	URL         string            `json:"url"`       // PUT сюда
	ObjectURL   string            `json:"objectUrl"` // ссылка на объект после загрузки
	ExpiresIn   int64             `json:"expiresIn"` // секунды
	ContentType string            `json:"contentType"`
	Headers     map[string]string `json:"headers"` // заголовки, которые клиент обязан отправить
}

type Uploads struct {
	presigner Presigner
	cfg       infra.MediaConfig
	now       func() time.Time
}

func NewUploads(p Presigner, cfg infra.MediaConfig) *Uploads {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 5 * time.Minute
	}
	return &Uploads{presigner: p, cfg: cfg, now: time.Now}
}

func (u *Uploads) Presign(ctx context.Context, req PresignRequest) (*PresignedUpload, error) {
	kind, err := ParseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = DefaultContentType
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: contentType must be an image, got %q", domain.ErrInvalidInput, contentType)
	}

	key := BuildKey(u.cfg.KeyPrefix, kind, req.Filename, u.now())
	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"kind": string(kind)},
	}

	signed, err := u.presigner.PresignPutObject(ctx, input, func(o *s3.PresignOptions) { o.Expires = u.cfg.PresignTTL })
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}

	return &PresignedUpload{
		Key:         key,
		URL:         signed.URL,
		ObjectURL:   ObjectURL(u.cfg.Bucket, u.cfg.Region, u.cfg.Endpoint, key),
		ExpiresIn:   int64(u.cfg.PresignTTL / time.Second),
		ContentType: contentType,
		Headers: map[string]string{
			"Content-Type":    contentType,
			"x-amz-meta-kind": string(kind),
		},
	}, nil
}
