package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"taskplanner/internal/client"
)

const usage = `taskctl <command> [flags]

Commands:
  register  -name NAME -email EMAIL        create an account
  login     -email EMAIL [-remember]       sign in (password is prompted)
  logout                                   sign out and clear local tokens
  whoami                                   show the authenticated user id
  list                                     list tasks
  add       -title TITLE [-due RFC3339] [-priority P] [-tags a,b]
  done      TASK_ID                        mark a task completed
  rm        TASK_ID                        delete a task
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	api, err := newClient()
	if err != nil {
		fatal(err)
	}

	ctx := context.Background()
	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "register":
		err = runRegister(ctx, api, args)
	case "login":
		err = runLogin(ctx, api, args)
	case "logout":
		err = api.Logout(ctx)
	case "whoami":
		err = runWhoami(ctx, api)
	case "list":
		err = runList(ctx, api)
	case "add":
		err = runAdd(ctx, api, args)
	case "done":
		err = runDone(ctx, api, args)
	case "rm":
		err = runRemove(ctx, api, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		fatal(err)
	}
}

func newClient() (*client.Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("TASKPLANNER_API_URL"))
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}

	return client.New(client.Config{
		BaseURL: baseURL,
		Durable: client.NewFileStore(filepath.Join(configDir, "taskplanner", "token")),
		OnSessionExpired: func() {
			fmt.Fprintln(os.Stderr, "session expired, run `taskctl login` again")
		},
	})
}

func runRegister(ctx context.Context, api *client.Client, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	_ = fs.Parse(args)

	password, err := promptPassword()
	if err != nil {
		return err
	}

	session, err := api.Register(ctx, *name, *email, password)
	if err != nil {
		return err
	}

	fmt.Printf("registered %s (%s)\n", session.User.Name, session.User.Email)
	return nil
}

func runLogin(ctx context.Context, api *client.Client, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "email address")
	remember := fs.Bool("remember", true, "keep the session across restarts")
	_ = fs.Parse(args)

	password, err := promptPassword()
	if err != nil {
		return err
	}

	session, err := api.Login(ctx, *email, password, *remember)
	if err != nil {
		return err
	}

	fmt.Printf("logged in as %s\n", session.User.Name)
	return nil
}

func runWhoami(ctx context.Context, api *client.Client) error {
	resp, err := api.Do(ctx, "GET", "/api/auth/profile", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return fmt.Errorf("not logged in (status %d)", resp.StatusCode)
	}

	var body struct {
		UserID string `json:"userId"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return err
	}

	fmt.Println(body.UserID)
	return nil
}

func runList(ctx context.Context, api *client.Client) error {
	tasks, err := api.ListTasks(ctx)
	if err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Println("no tasks")
		return nil
	}

	for _, t := range tasks {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		due := ""
		if t.DueDate != nil {
			due = " due " + t.DueDate.Local().Format("2006-01-02 15:04")
		}
		fmt.Printf("[%s] %-8s %s%s  (%s)\n", mark, t.Priority, t.Title, due, t.ID)
	}

	return nil
}

func runAdd(ctx context.Context, api *client.Client, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	title := fs.String("title", "", "task title")
	description := fs.String("description", "", "task description")
	due := fs.String("due", "", "due date, RFC3339")
	priority := fs.String("priority", "", "Low, Medium or High")
	tags := fs.String("tags", "", "comma-separated tags")
	_ = fs.Parse(args)

	input := client.TaskInput{
		Title:       *title,
		Description: *description,
		Priority:    *priority,
	}
	if *due != "" {
		parsed, err := time.Parse(time.RFC3339, *due)
		if err != nil {
			return fmt.Errorf("parse -due: %w", err)
		}
		input.DueDate = &parsed
	}
	if *tags != "" {
		for _, tag := range strings.Split(*tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				input.Tags = append(input.Tags, tag)
			}
		}
	}

	created, err := api.CreateTask(ctx, input)
	if err != nil {
		return err
	}

	fmt.Printf("created %s (%s)\n", created.Title, created.ID)
	return nil
}

func runDone(ctx context.Context, api *client.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: taskctl done TASK_ID")
	}

	updated, err := api.CompleteTask(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("completed %s\n", updated.Title)
	return nil
}

func runRemove(ctx context.Context, api *client.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: taskctl rm TASK_ID")
	}

	if err := api.DeleteTask(ctx, args[0]); err != nil {
		return err
	}

	fmt.Println("deleted")
	return nil
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "password: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	return string(raw), nil
}

func decodeJSON(resp *http.Response, out any) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
