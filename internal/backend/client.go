// Package backend talks to the remote /posts and /users collections.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"

	"policy-console/internal/logging"
	"policy-console/internal/model"
)

const DefaultTimeout = 5 * time.Second

// StatusError is returned for any non-2xx reply.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Code)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == fasthttp.StatusNotFound
}

type Client struct {
	baseURL string
	timeout time.Duration
	http    *fasthttp.Client
}

type Option func(*fasthttp.Client)

// WithDial replaces the dialer; tests use it with an in-memory listener.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *fasthttp.Client) { c.Dial = dial }
}

func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := &fasthttp.Client{
		Name:                "policy-console",
		MaxConnsPerHost:     100,
		MaxIdleConnDuration: 90 * time.Second,
		ReadTimeout:         timeout,
		WriteTimeout:        timeout,
		Dial: func(addr string) (net.Conn, error) {
			return fasthttp.DialTimeout(addr, timeout)
		},
	}
	for _, opt := range opts {
		opt(hc)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    hc,
	}
}

func (c *Client) ListPosts(ctx context.Context) ([]model.Post, error) {
	var posts []model.Post
	if err := c.do(ctx, fasthttp.MethodGet, "/posts", nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (c *Client) CreatePost(ctx context.Context, p model.Post) (model.Post, error) {
	var created model.Post
	if err := c.do(ctx, fasthttp.MethodPost, "/posts", p, &created); err != nil {
		return model.Post{}, err
	}
	return created, nil
}

func (c *Client) UpdatePost(ctx context.Context, id int, p model.Post) (model.Post, error) {
	var updated model.Post
	if err := c.do(ctx, fasthttp.MethodPut, "/posts/"+strconv.Itoa(id), p, &updated); err != nil {
		return model.Post{}, err
	}
	return updated, nil
}

func (c *Client) DeletePost(ctx context.Context, id int) error {
	return c.do(ctx, fasthttp.MethodDelete, "/posts/"+strconv.Itoa(id), nil, nil)
}

func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := c.do(ctx, fasthttp.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		req.Header.SetContentType("application/json; charset=UTF-8")
		req.SetBodyRaw(b)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	logging.Ctx(ctx).Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode()).
		Dur("elapsed", time.Since(start)).
		Msg("Backend call")

	if code := resp.StatusCode(); code < 200 || code > 299 {
		return &StatusError{Method: method, Path: path, Code: code}
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
