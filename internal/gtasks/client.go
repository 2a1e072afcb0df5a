// Package gtasks talks to the Google Tasks v1 API.
package gtasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"todo-planner/internal/apperr"
)

const pageSize = 100

const (
	StatusNeedsAction = "needsAction"
	StatusCompleted   = "completed"
)

// TaskList is a remote list of tasks.
type TaskList struct {
	ID    string
	Title string
}

// Task carries the remote fields the planner reads and writes. Due is RFC3339
// or empty.
type Task struct {
	ID     string
	Title  string
	Notes  string
	Due    string
	Status string
}

// Tokens hands out bearer tokens. Invalidate must force the next
// AccessToken call to fetch a new one.
type Tokens interface {
	AccessToken(ctx context.Context, interactive bool) (string, error)
	Invalidate()
}

// Option customises a Client.
type Option func(*options)

type options struct {
	endpoint string
	base     http.RoundTripper
}

// WithEndpoint points the client at another base URL, used by tests.
func WithEndpoint(url string) Option {
	return func(o *options) { o.endpoint = url }
}

// WithTransport replaces the underlying transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

// Client is a thin wrapper over the generated Tasks service.
type Client struct {
	svc *tasks.Service
	log *zap.Logger
}

func New(ctx context.Context, tokens Tokens, log *zap.Logger, opts ...Option) (*Client, error) {
	o := options{base: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := &http.Client{Transport: &authTransport{base: o.base, tokens: tokens, log: log}}
	svcOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if o.endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(o.endpoint))
	}
	svc, err := tasks.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("create tasks service: %w", err)
	}
	return &Client{svc: svc, log: log}, nil
}

func (c *Client) ListTaskLists(ctx context.Context) ([]TaskList, error) {
	var out []TaskList
	call := c.svc.Tasklists.List().MaxResults(pageSize)
	err := call.Pages(ctx, func(page *tasks.TaskLists) error {
		for _, l := range page.Items {
			out = append(out, TaskList{ID: l.Id, Title: l.Title})
		}
		return nil
	})
	if err != nil {
		return nil, wrap("list task lists", err)
	}
	return out, nil
}

// ListTasks returns every task of listID, completed and hidden ones included.
func (c *Client) ListTasks(ctx context.Context, listID string) ([]Task, error) {
	var out []Task
	call := c.svc.Tasks.List(listID).
		MaxResults(pageSize).
		ShowCompleted(true).
		ShowHidden(true)
	err := call.Pages(ctx, func(page *tasks.Tasks) error {
		for _, t := range page.Items {
			out = append(out, fromRemote(t))
		}
		return nil
	})
	if err != nil {
		return nil, wrap("list tasks", err)
	}
	c.log.Debug("remote tasks listed", zap.String("list", listID), zap.Int("count", len(out)))
	return out, nil
}

// InsertTask creates t in listID and returns the created task.
func (c *Client) InsertTask(ctx context.Context, listID string, t Task) (Task, error) {
	created, err := c.svc.Tasks.Insert(listID, toRemote(t, false)).Context(ctx).Do()
	if err != nil {
		return Task{}, wrap("insert task", err)
	}
	return fromRemote(created), nil
}

// PatchTask overwrites title, notes, due and status of the remote task t.ID.
// An empty Due clears the remote due date.
func (c *Client) PatchTask(ctx context.Context, listID string, t Task) (Task, error) {
	if t.ID == "" {
		return Task{}, errors.New("patch task: empty id")
	}
	updated, err := c.svc.Tasks.Patch(listID, t.ID, toRemote(t, true)).Context(ctx).Do()
	if err != nil {
		return Task{}, wrap("patch task", err)
	}
	return fromRemote(updated), nil
}

func toRemote(t Task, patch bool) *tasks.Task {
	r := &tasks.Task{
		Title:           t.Title,
		Notes:           t.Notes,
		Due:             t.Due,
		Status:          t.Status,
		ForceSendFields: []string{"Title", "Notes", "Status"},
	}
	if patch && t.Due == "" {
		r.NullFields = []string{"Due"}
	}
	return r
}

func fromRemote(t *tasks.Task) Task {
	return Task{
		ID:     t.Id,
		Title:  t.Title,
		Notes:  t.Notes,
		Due:    t.Due,
		Status: t.Status,
	}
}

func wrap(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized {
		return apperr.Wrap(apperr.CodeUnauthorized, op, err)
	}
	return apperr.Remote(op, err)
}

// authTransport adds the bearer token. A 401 invalidates the token and the
// request is retried once with a silently fetched one; a second 401 is
// returned as is.
type authTransport struct {
	base   http.RoundTripper
	tokens Tokens
	log    *zap.Logger
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	token, err := t.tokens.AccessToken(ctx, false)
	if err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(withBearer(req, token))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	t.tokens.Invalidate()
	t.log.Info("remote rejected token, retrying once", zap.String("url", req.URL.Path))

	retry := withBearer(req, "")
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, errors.New("retry: request body cannot be replayed")
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("retry: %w", err)
		}
		retry.Body = body
	}
	token, err = t.tokens.AccessToken(ctx, false)
	if err != nil {
		return nil, err
	}
	retry.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(retry)
}

func withBearer(req *http.Request, token string) *http.Request {
	out := req.Clone(req.Context())
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return out
}
