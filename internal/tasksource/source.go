// Package tasksource fetches task snapshots from the todo backend.
//
// The backend is the task collaborator: this client pages through
// GET /api/v1/tasks and maps the rich task records down to the minimal
// snapshot shape the scheduler consumes.
package tasksource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"duebell/internal/task"
	"duebell/pkg/logx"
)

// Config configures the backend client.
type Config struct {
	// BaseURL is the API root, e.g. "https://todo.example.com/api/v1".
	BaseURL string
	// Token is the bearer token identifying the user.
	Token string
	// PageSize per request; the backend caps it at 100.
	PageSize int
	// Timeout bounds one HTTP request.
	Timeout time.Duration
}

// Client pages through the task list endpoint.
type Client struct {
	cfg  Config
	log  logx.Logger
	http *http.Client
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("tasksource: base_url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("tasksource: invalid base_url: %w", err)
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		cfg.PageSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:  cfg,
		log:  log,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// taskRecord is the slice of the backend's task response we care about.
// Unknown fields (priority, recurrence, tags, ...) are ignored.
type taskRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	DueDate     string `json:"due_date"`
	IsCompleted bool   `json:"is_completed"`
}

type taskListResponse struct {
	Items []taskRecord `json:"items"`
	Total int          `json:"total"`
}

// Fetch returns the full current task list as snapshots.
//
// One bad record never blocks the batch: an unparsable due date degrades
// that snapshot to DueAt=nil (it simply won't arm).
func (c *Client) Fetch(ctx context.Context) ([]task.Snapshot, error) {
	var out []task.Snapshot
	for page := 1; ; page++ {
		resp, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		for _, rec := range resp.Items {
			out = append(out, c.toSnapshot(rec))
		}
		if len(out) >= resp.Total || len(resp.Items) == 0 {
			return out, nil
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, page int) (*taskListResponse, error) {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/tasks"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(c.cfg.PageSize))
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tasksource: GET %s: unexpected status %s", req.URL.Path, res.Status)
	}

	var body taskListResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("tasksource: decode page %d: %w", page, err)
	}
	return &body, nil
}

func (c *Client) toSnapshot(rec taskRecord) task.Snapshot {
	s := task.Snapshot{ID: rec.ID, Title: rec.Title, Completed: rec.IsCompleted}
	if rec.DueDate == "" {
		return s
	}
	due, err := parseDue(rec.DueDate)
	if err != nil {
		c.log.Warn("unparsable due date; task will not be armed",
			logx.String("task", rec.ID),
			logx.String("due_date", rec.DueDate))
		return s
	}
	s.DueAt = &due
	return s
}

// parseDue accepts RFC3339 and the backend's naive-UTC datetime form.
func parseDue(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", raw)
}
