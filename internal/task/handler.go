package task

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"taskplanner/internal/auth"
)

const (
	maxJSONBodyBytes  = 1 << 20
	maxTitleLength    = 150
	maxDescriptionLen = 1000
	maxTags           = 10
	maxTagLength      = 50
)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	tasks, err := h.store.ListByUser(r.Context(), userID)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Failed to list tasks")
		return
	}

	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input Input
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	if input.Priority == "" {
		input.Priority = PriorityMedium
	}

	if message, ok := validateInput(input); !ok {
		writeError(w, http.StatusBadRequest, message)
		return
	}

	t, err := h.store.Create(r.Context(), userID, input)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Failed to create task")
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid task id")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var patch Patch
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if message, ok := validatePatch(&patch); !ok {
		writeError(w, http.StatusBadRequest, message)
		return
	}

	t, err := h.store.Update(r.Context(), id, userID, patch)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "Task not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Failed to update task")
		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid task id")
		return
	}

	if err := h.store.Delete(r.Context(), id, userID); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "Task not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "Failed to delete task")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Task deleted successfully"})
}

func validateInput(input Input) (string, bool) {
	if input.Title == "" {
		return "title is required", false
	}
	if !utf8.ValidString(input.Title) || utf8.RuneCountInString(input.Title) > maxTitleLength {
		return "title is invalid", false
	}
	if !utf8.ValidString(input.Description) || utf8.RuneCountInString(input.Description) > maxDescriptionLen {
		return "description is invalid", false
	}
	if !validPriority(input.Priority) {
		return "priority must be Low, Medium or High", false
	}
	if message, ok := validateTags(input.Tags); !ok {
		return message, false
	}
	return "", true
}

func validatePatch(patch *Patch) (string, bool) {
	if patch.Title != nil {
		trimmed := strings.TrimSpace(*patch.Title)
		if trimmed == "" {
			return "title is required", false
		}
		if !utf8.ValidString(trimmed) || utf8.RuneCountInString(trimmed) > maxTitleLength {
			return "title is invalid", false
		}
		*patch.Title = trimmed
	}
	if patch.Description != nil {
		trimmed := strings.TrimSpace(*patch.Description)
		if !utf8.ValidString(trimmed) || utf8.RuneCountInString(trimmed) > maxDescriptionLen {
			return "description is invalid", false
		}
		*patch.Description = trimmed
	}
	if patch.Priority != nil && !validPriority(*patch.Priority) {
		return "priority must be Low, Medium or High", false
	}
	if patch.Tags != nil {
		if message, ok := validateTags(*patch.Tags); !ok {
			return message, false
		}
	}
	return "", true
}

func validateTags(tags []string) (string, bool) {
	if len(tags) > maxTags {
		return "too many tags", false
	}
	for _, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			return "tags must not be empty", false
		}
		if !utf8.ValidString(tag) || utf8.RuneCountInString(tag) > maxTagLength {
			return "tag is invalid", false
		}
	}
	return "", true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
