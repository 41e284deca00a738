package snapshots

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/httpx"
)

// PublicHandler serves proposals to anonymous visitors.
type PublicHandler struct {
	logger  *slog.Logger
	service *Service
}

// NewPublicHandler builds the public proposal handler.
func NewPublicHandler(logger *slog.Logger, service *Service) *PublicHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublicHandler{logger: logger, service: service}
}

// MountRoutes registers public proposal routes.
func (h *PublicHandler) MountRoutes(r chi.Router) {
	r.Get("/{publicID}", h.proposal)
}

func (h *PublicHandler) proposal(w http.ResponseWriter, r *http.Request) {
	publicID, err := uuid.Parse(chi.URLParam(r, "publicID"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "proposal not found")
		return
	}
	proposal, err := h.service.PublicProposal(r.Context(), publicID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			h.logger.Error("load proposal failed", slog.String("public_id", publicID.String()), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	httpx.JSON(w, http.StatusOK, proposal)
}
