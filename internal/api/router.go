// Package api serves the cockpit status and control surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cockpit-service/internal/core"
	"cockpit-service/internal/logger"
	"cockpit-service/internal/types"
)

// commandTimeout bounds the wait for the scheduler to run a command.
const commandTimeout = 5 * time.Second

// Cockpit is the part of core.CockpitSystem the API needs.
type Cockpit interface {
	Status() core.Snapshot
	Execute(ctx context.Context, cmd types.Command) error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	cockpit Cockpit
	logger  *logger.Logger
}

// NewRouter creates the chi router. metrics may be nil.
func NewRouter(c Cockpit, metrics http.Handler, l *logger.Logger) http.Handler {
	h := &Handlers{cockpit: c, logger: l}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", h.apiStatus)
	r.Post("/{machine}/{action}", h.apiCommand)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (h *Handlers) apiStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.cockpit.Status())
}

func (h *Handlers) apiCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := types.ParseCommand(chi.URLParam(r, "machine") + ":" + chi.URLParam(r, "action"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	h.logger.Debugf("HTTP command %s", cmd)
	if err := h.cockpit.Execute(ctx, cmd); err != nil {
		status := http.StatusConflict
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, map[string]string{"command": string(cmd), "result": "ok"})
}
