package dataforseo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/seometer/internal/config"
)

const (
	StatusOK          = 20000
	StatusTaskCreated = 20100

	maxResponseBytes = 32 << 20
	maxErrorBody     = 2048
	defaultTimeout   = 60 * time.Second
)

// TaskRequest is one element of a vendor request array.
type TaskRequest map[string]any

type Response struct {
	Version       string  `json:"version"`
	StatusCode    int     `json:"status_code"`
	StatusMessage string  `json:"status_message"`
	Time          string  `json:"time"`
	Cost          float64 `json:"cost"`
	TasksCount    int     `json:"tasks_count"`
	TasksError    int     `json:"tasks_error"`
	Tasks         []Task  `json:"tasks"`
}

type Task struct {
	ID            string            `json:"id"`
	StatusCode    int               `json:"status_code"`
	StatusMessage string            `json:"status_message"`
	Time          string            `json:"time"`
	Cost          float64           `json:"cost"`
	ResultCount   int               `json:"result_count"`
	Path          []string          `json:"path"`
	Data          map[string]any    `json:"data"`
	Result        []json.RawMessage `json:"result"`
}

// FirstResult decodes the first result of the first task into v.
func (r *Response) FirstResult(v any) error {
	if r == nil || len(r.Tasks) == 0 || len(r.Tasks[0].Result) == 0 {
		return ErrNoResult
	}
	raw := r.Tasks[0].Result[0]
	if len(raw) == 0 || string(raw) == "null" {
		return ErrNoResult
	}
	return json.Unmarshal(raw, v)
}

// TaskIDs lists the vendor task identifiers in response order.
func (r *Response) TaskIDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.Tasks))
	for _, task := range r.Tasks {
		if task.ID != "" {
			ids = append(ids, task.ID)
		}
	}
	return ids
}

type Client struct {
	baseURL  string
	login    string
	password string
	http     *http.Client
}

func NewClient(cfg config.Config) *Client {
	timeout := cfg.DataForSEO.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return newClient(cfg.DataForSEO.BaseURL, cfg.DataForSEO.Login, cfg.DataForSEO.Password, &http.Client{Timeout: timeout})
}

func newClient(baseURL, login, password string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		login:    strings.TrimSpace(login),
		password: strings.TrimSpace(password),
		http:     httpClient,
	}
}

// Ready reports whether the client has what it needs to reach the vendor.
func (c *Client) Ready() error {
	if c == nil || c.baseURL == "" || c.login == "" || c.password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Do sends tasks to path and validates the vendor status conventions.
func (c *Client) Do(ctx context.Context, method, path string, tasks []TaskRequest) (*Response, error) {
	if err := c.Ready(); err != nil {
		return nil, err
	}
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if method != http.MethodGet {
		payload, err := json.Marshal(tagTasks(tasks))
		if err != nil {
			return nil, fmt.Errorf("encode dataforseo tasks: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.login, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: truncate(string(raw), maxErrorBody)}
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: truncate(string(raw), maxErrorBody), Err: err}
	}
	if out.StatusCode != StatusOK {
		return &out, &VendorError{Code: out.StatusCode, Message: out.StatusMessage}
	}
	for _, task := range out.Tasks {
		if task.StatusCode != StatusOK && task.StatusCode != StatusTaskCreated {
			return &out, &VendorError{Code: task.StatusCode, Message: task.StatusMessage, TaskID: task.ID}
		}
	}
	return &out, nil
}

// tagTasks copies tasks and assigns a correlation tag to each one that lacks it.
func tagTasks(tasks []TaskRequest) []TaskRequest {
	out := make([]TaskRequest, 0, len(tasks))
	for _, task := range tasks {
		copied := make(TaskRequest, len(task)+1)
		for k, v := range task {
			copied[k] = v
		}
		if tag, ok := copied["tag"].(string); !ok || strings.TrimSpace(tag) == "" {
			copied["tag"] = ulid.Make().String()
		}
		out = append(out, copied)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
