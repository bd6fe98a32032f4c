package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/vitalpolicy-relay/internal/media"
)

type Presigner interface {
	Presign(ctx context.Context, req media.PresignRequest) (*media.PresignedUpload, error)
}

type MediaHandler struct {
	uploads Presigner
	logger  *zap.Logger
}

func NewMediaHandler(u Presigner, logger *zap.Logger) *MediaHandler {
	return &MediaHandler{uploads: u, logger: logger.Named("media-handler")}
}

// Presign — POST /media/presign: URL для прямого PUT фото в бакет
func (h *MediaHandler) Presign(w http.ResponseWriter, r *http.Request) {
	var req media.PresignRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, "Invalid presign request", err)
		return
	}

	upload, err := h.uploads.Presign(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, "Failed to presign upload", err)
		return
	}
	writeData(w, http.StatusOK, upload)
}
