package maintenance

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"taskplanner/internal/observability"
	"taskplanner/internal/task"
)

// CleanupHandler purges completed tasks past their retention window. Meant
// to be hit by a scheduled job; the route plays dead (404) unless a cron
// secret is configured.
type CleanupHandler struct {
	tasks      task.Store
	logger     *observability.Logger
	cronSecret string
	retention  time.Duration
	batchSize  int
}

func NewCleanupHandler(tasks task.Store, logger *observability.Logger, cronSecret string, retention time.Duration, batchSize int) *CleanupHandler {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}

	return &CleanupHandler{
		tasks:      tasks,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		retention:  retention,
		batchSize:  batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
		return
	}

	cutoff := time.Now().UTC().Add(-h.retention)
	deleted, err := h.tasks.PurgeCompleted(r.Context(), cutoff, h.batchSize)
	if err != nil {
		h.logger.Error("task_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "cleanup failed"})
		return
	}

	h.logger.Info("task_cleanup_completed", map[string]any{
		"deleted_tasks": deleted,
		"cutoff":        cutoff.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"deleted_tasks": deleted,
	})
}

func (h *CleanupHandler) authorized(r *http.Request) bool {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return false
	}

	presented := strings.TrimSpace(parts[1])
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.cronSecret)) == 1
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
