package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/iota-uz/schemagov/pkg/application"
	"github.com/iota-uz/schemagov/pkg/httpapi"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	db pinger
}

func NewHealthController(db pinger) application.Controller {
	return &HealthController{db: db}
}

func (c *HealthController) Key() string {
	return "/health"
}

func (c *HealthController) Register(r *mux.Router) {
	r.HandleFunc("/health", c.check).Methods(http.MethodGet)
}

func (c *HealthController) check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if c.db == nil {
		_ = httpapi.WriteError(w, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "database not configured", nil)
		return
	}
	if err := c.db.Ping(ctx); err != nil {
		_ = httpapi.WriteError(w, http.StatusServiceUnavailable, "DB_UNAVAILABLE", err.Error(), nil)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
