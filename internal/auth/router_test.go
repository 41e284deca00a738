package auth_test

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-quotes/internal/auth"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

func chiRouter(h *auth.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/auth", h.MountRoutes)
	return r
}

// commitWriter persists the session right before the status line is written.
type commitWriter struct {
	http.ResponseWriter
	ctx      context.Context
	req      *http.Request
	sess     *shared.Session
	sessions *shared.SessionManager
	wrote    bool
}

func (w *commitWriter) WriteHeader(status int) {
	if !w.wrote {
		w.wrote = true
		_ = w.sessions.Commit(w.ctx, w.ResponseWriter, w.req, w.sess)
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
