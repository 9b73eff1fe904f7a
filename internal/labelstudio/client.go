package labelstudio

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/urbancanopy/treedetect-go/internal/errors"
	"github.com/urbancanopy/treedetect-go/internal/logging"
)

const (
	requestTimeout = 10 * time.Second
	maxRetries     = 5
	userAgent      = "treedetect-go"
)

// ErrNotFound is returned when the API answers 404, which the task list uses
// to signal a page past the end.
var ErrNotFound = stderrors.New("not found")

// Client talks to the labeling tool's REST API with token authentication and
// retries transient failures with exponential backoff.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	log     *slog.Logger
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, used by tests.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		c.httpc = httpc
	}
}

// NewClient creates a client for the given base URL and access token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: requestTimeout},
		log:     logging.ForService("labelstudio"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CountTasks returns the total task count for a project, optionally
// restricted to a view. Uses a single-item page as a cheap probe.
func (c *Client) CountTasks(ctx context.Context, project, view string) (int, error) {
	params := url.Values{}
	params.Set("project", project)
	params.Set("page_size", "1")
	if view != "" {
		params.Set("view", view)
	}

	var resp tasksResponse
	if err := c.getJSON(ctx, "/api/tasks", params, &resp); err != nil {
		return 0, err
	}
	return resp.Total, nil
}

// Tasks fetches one page of tasks for a project, optionally restricted to a
// view. Returns an empty slice once the page is past the end.
func (c *Client) Tasks(ctx context.Context, project, view string, page, pageSize int) ([]Task, error) {
	params := url.Values{}
	params.Set("project", project)
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(pageSize))
	if view != "" {
		params.Set("view", view)
	}

	var resp tasksResponse
	if err := c.getJSON(ctx, "/api/tasks", params, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return resp.Tasks, nil
}

// CreatePrediction posts a model prediction for a task.
func (c *Client) CreatePrediction(ctx context.Context, taskID int64, project string, pred Prediction) error {
	body := createPredictionRequest{
		Prediction: pred,
		Task:       taskID,
		Project:    project,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return errors.New(err).
			Component("labelstudio").
			Category(errors.CategoryValidation).
			Build()
	}

	return c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/api/predictions", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, nil)
}

// getJSON performs a GET with retries and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	return c.doWithRetry(ctx, func() (*http.Request, error) {
		u := c.baseURL + path
		if len(params) > 0 {
			u += "?" + params.Encode()
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	}, out)
}

// doWithRetry runs a request with exponential backoff. Network errors and
// 5xx responses are retried up to maxRetries times; 4xx responses fail
// immediately. A fresh request is built per attempt so bodies can be reread.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error), out any) error {
	operation := func() error {
		req, err := build()
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Token "+c.token)
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpc.Do(req)
		if err != nil {
			return errors.New(err).
				Component("labelstudio").
				Category(errors.CategoryNetwork).
				Build()
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrNotFound)
		case resp.StatusCode >= 500:
			// Transient server error, retry.
			return errors.Newf("server returned %d for %s", resp.StatusCode, req.URL.Path).
				Component("labelstudio").
				Category(errors.CategoryHTTP).
				Build()
		case resp.StatusCode >= 400:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(errors.New(fmt.Errorf("request to %s failed with %d: %s",
				req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))).
				Component("labelstudio").
				Category(errors.CategoryHTTP).
				Build())
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(errors.New(err).
					Component("labelstudio").
					Category(errors.CategoryHTTP).
					Build())
			}
		} else {
			_, _ = io.Copy(io.Discard, resp.Body)
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return err
	}
	return nil
}
