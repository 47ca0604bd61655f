package handler

import (
	"image/png"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/forklens/internal/preview"
)

// PreviewHandler serves the shareable summary card.
//
// HTTP: GET /api/og?repo=owner/name&active=12&total=340
//
// The image is a pure function of its three query parameters — no auth, no
// storage. Unparseable counts render as 0 rather than erroring: the card is
// decoration, and a broken share link shouldn't 400.
type PreviewHandler struct {
	logger *slog.Logger
}

// NewPreviewHandler creates a PreviewHandler.
func NewPreviewHandler(logger *slog.Logger) *PreviewHandler {
	return &PreviewHandler{logger: logger}
}

// HandlePreview renders and serves the PNG.
func (h *PreviewHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	repo := r.URL.Query().Get("repo")
	if repo == "" {
		repo = "unknown/repo"
	}

	active, _ := strconv.Atoi(r.URL.Query().Get("active"))
	total, _ := strconv.Atoi(r.URL.Query().Get("total"))

	img := preview.Render(repo, active, total)

	w.Header().Set("Content-Type", "image/png")
	// The card only changes when the counts do; let shares cache it.
	w.Header().Set("Cache-Control", "public, max-age=3600")

	if err := png.Encode(w, img); err != nil {
		h.logger.Error("failed to encode preview image", slog.String("error", err.Error()))
	}
}
