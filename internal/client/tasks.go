package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Task mirrors the server's task JSON. Kept separate from internal/task on
// purpose: client and server share the wire protocol, not code.
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Priority    string     `json:"priority"`
	Tags        []string   `json:"tags"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type TaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	var tasks []Task
	if err := c.doJSON(ctx, http.MethodGet, "/api/tasks", nil, http.StatusOK, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) CreateTask(ctx context.Context, input TaskInput) (Task, error) {
	var t Task
	if err := c.doJSON(ctx, http.MethodPost, "/api/tasks", input, http.StatusCreated, &t); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (c *Client) CompleteTask(ctx context.Context, id string) (Task, error) {
	var t Task
	patch := map[string]any{"completed": true}
	if err := c.doJSON(ctx, http.MethodPut, "/api/tasks/"+id, patch, http.StatusOK, &t); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/tasks/"+id, nil, http.StatusOK, nil)
}

// doJSON runs an authenticated request through the refresh protocol and
// decodes the response.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, wantStatus int, out any) error {
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrSessionExpired
	}
	if resp.StatusCode != wantStatus {
		return decodeAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
