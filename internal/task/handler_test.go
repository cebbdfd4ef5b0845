package task

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskplanner/internal/auth"
)

type memTaskStore struct {
	mu    sync.Mutex
	tasks map[string]Task
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[string]Task)}
}

func (s *memTaskStore) ListByUser(ctx context.Context, userID string) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, 0)
	for _, t := range s.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memTaskStore) Create(ctx context.Context, userID string, input Input) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	t := Task{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       input.Title,
		Description: input.Description,
		DueDate:     input.DueDate,
		Priority:    input.Priority,
		Tags:        input.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	s.tasks[t.ID] = t
	return t, nil
}

func (s *memTaskStore) Update(ctx context.Context, id, userID string, patch Patch) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.UserID != userID {
		return Task{}, ErrTaskNotFound
	}

	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.DueDate != nil {
		t.DueDate = patch.DueDate
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.Tags != nil {
		t.Tags = *patch.Tags
	}
	if patch.Completed != nil {
		t.Completed = *patch.Completed
	}
	t.UpdatedAt = time.Now().UTC()
	s.tasks[id] = t
	return t, nil
}

func (s *memTaskStore) Delete(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.UserID != userID {
		return ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *memTaskStore) PurgeCompleted(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, t := range s.tasks {
		if t.Completed && t.UpdatedAt.Before(cutoff) {
			delete(s.tasks, id)
			deleted++
		}
	}
	return deleted, nil
}

func newTaskMux(store Store) *http.ServeMux {
	handler := NewHandler(store)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tasks", handler.ListTasks)
	mux.HandleFunc("POST /api/tasks", handler.CreateTask)
	mux.HandleFunc("PUT /api/tasks/{id}", handler.UpdateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", handler.DeleteTask)
	return mux
}

func doTaskRequest(t *testing.T, mux *http.ServeMux, userID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req = req.WithContext(auth.ContextWithSubject(req.Context(), userID))
	}

	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, req)
	return recorder
}

func TestCreateTask(t *testing.T) {
	t.Parallel()

	store := newMemTaskStore()
	mux := newTaskMux(store)

	recorder := doTaskRequest(t, mux, "user-1", http.MethodPost, "/api/tasks", map[string]any{
		"title": "Revise chapter 3",
		"tags":  []string{"study", "math"},
	})
	require.Equal(t, http.StatusCreated, recorder.Code)

	var created Task
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &created))
	assert.Equal(t, "Revise chapter 3", created.Title)
	assert.Equal(t, PriorityMedium, created.Priority, "priority defaults to Medium")
	assert.Equal(t, []string{"study", "math"}, created.Tags)
	assert.False(t, created.Completed)
}

func TestCreateTask_Validation(t *testing.T) {
	t.Parallel()

	mux := newTaskMux(newMemTaskStore())

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing title", map[string]any{"description": "no title"}},
		{"blank title", map[string]any{"title": "   "}},
		{"bad priority", map[string]any{"title": "ok", "priority": "Urgent"}},
		{"empty tag", map[string]any{"title": "ok", "tags": []string{""}}},
		{"unknown field", map[string]any{"title": "ok", "owner": "someone"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := doTaskRequest(t, mux, "user-1", http.MethodPost, "/api/tasks", tc.body)
			assert.Equal(t, http.StatusBadRequest, recorder.Code)
		})
	}
}

func TestListTasks_OwnerScoped(t *testing.T) {
	t.Parallel()

	store := newMemTaskStore()
	mux := newTaskMux(store)

	_, err := store.Create(context.Background(), "user-1", Input{Title: "mine", Priority: PriorityLow})
	require.NoError(t, err)
	_, err = store.Create(context.Background(), "user-2", Input{Title: "theirs", Priority: PriorityLow})
	require.NoError(t, err)

	recorder := doTaskRequest(t, mux, "user-1", http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var tasks []Task
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "mine", tasks[0].Title)
}

func TestUpdateTask_Partial(t *testing.T) {
	t.Parallel()

	store := newMemTaskStore()
	mux := newTaskMux(store)

	created, err := store.Create(context.Background(), "user-1", Input{
		Title:    "Read paper",
		Priority: PriorityHigh,
		Tags:     []string{"reading"},
	})
	require.NoError(t, err)

	recorder := doTaskRequest(t, mux, "user-1", http.MethodPut, "/api/tasks/"+created.ID, map[string]any{
		"completed": true,
	})
	require.Equal(t, http.StatusOK, recorder.Code)

	var updated Task
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &updated))
	assert.True(t, updated.Completed)
	assert.Equal(t, "Read paper", updated.Title, "untouched fields survive a partial update")
	assert.Equal(t, PriorityHigh, updated.Priority)
	assert.Equal(t, []string{"reading"}, updated.Tags)
}

func TestUpdateTask_NotFoundAndOwnership(t *testing.T) {
	t.Parallel()

	store := newMemTaskStore()
	mux := newTaskMux(store)

	created, err := store.Create(context.Background(), "user-1", Input{Title: "mine", Priority: PriorityLow})
	require.NoError(t, err)

	// Unknown id.
	recorder := doTaskRequest(t, mux, "user-1", http.MethodPut, "/api/tasks/"+uuid.NewString(), map[string]any{"completed": true})
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	// Someone else's task looks exactly like a missing one.
	recorder = doTaskRequest(t, mux, "user-2", http.MethodPut, "/api/tasks/"+created.ID, map[string]any{"completed": true})
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	// Malformed id.
	recorder = doTaskRequest(t, mux, "user-1", http.MethodPut, "/api/tasks/not-a-uuid", map[string]any{"completed": true})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestDeleteTask(t *testing.T) {
	t.Parallel()

	store := newMemTaskStore()
	mux := newTaskMux(store)

	created, err := store.Create(context.Background(), "user-1", Input{Title: "done soon", Priority: PriorityLow})
	require.NoError(t, err)

	recorder := doTaskRequest(t, mux, "user-1", http.MethodDelete, "/api/tasks/"+created.ID, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doTaskRequest(t, mux, "user-1", http.MethodDelete, "/api/tasks/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestTaskHandlers_RequireSubject(t *testing.T) {
	t.Parallel()

	mux := newTaskMux(newMemTaskStore())

	recorder := doTaskRequest(t, mux, "", http.MethodGet, "/api/tasks", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}
