package handler

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"policy-console/internal/console"
	"policy-console/internal/model"
	"policy-console/internal/overlay"
	"policy-console/internal/policies"
	"policy-console/internal/query"
	"policy-console/internal/retry"
)

type stubBackend struct {
	down bool
}

func (b *stubBackend) ListPosts(context.Context) ([]model.Post, error) {
	if b.down {
		return nil, errors.New("down")
	}
	return []model.Post{{ID: 1, UserID: 1}, {ID: 2, UserID: 1}}, nil
}

func (b *stubBackend) ListUsers(context.Context) ([]model.User, error) {
	if b.down {
		return nil, errors.New("down")
	}
	return []model.User{{ID: 1, Name: "A", Email: "a@x.com"}}, nil
}

func (b *stubBackend) CreatePost(_ context.Context, p model.Post) (model.Post, error) {
	if b.down {
		return model.Post{}, errors.New("down")
	}
	p.ID = 101
	return p, nil
}

func (b *stubBackend) UpdatePost(_ context.Context, _ int, p model.Post) (model.Post, error) {
	return p, nil
}

func (b *stubBackend) DeletePost(context.Context, int) error { return nil }

func newHandler(b *stubBackend) *Handler {
	svc := policies.New(b, overlay.New(), policies.Options{
		Mode:         policies.Strict,
		BackendMaxID: 100,
		Retry:        retry.Options{MaxRetries: 0},
	})
	return New(console.NewSession(svc, query.New(), console.StaleTimes{Policies: time.Minute}))
}

func do(h *Handler, method, uri, body string) *fasthttp.RequestCtx {
	req := fasthttp.AcquireRequest()
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if body != "" {
		req.SetBodyString(body)
	}
	rc := &fasthttp.RequestCtx{}
	rc.Init(req, nil, nil)
	h.Handle(rc)
	return rc
}

func decode(t *testing.T, rc *fasthttp.RequestCtx, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rc.Response.Body(), v))
}

func TestListPolicies(t *testing.T) {
	rc := do(newHandler(&stubBackend{}), "GET", "/policies", "")

	require.Equal(t, fasthttp.StatusOK, rc.Response.StatusCode())
	var got []model.Policy
	decode(t, rc, &got)
	require.Len(t, got, 2)
	assert.Equal(t, "POL-001", got[0].PolicyNumber)
	assert.NotEmpty(t, rc.Response.Header.Peek(correlationHeader))
}

func TestCorrelationIDEchoed(t *testing.T) {
	req := fasthttp.AcquireRequest()
	req.Header.SetMethod("GET")
	req.SetRequestURI("/healthz")
	req.Header.Set(correlationHeader, "abc12345")
	rc := &fasthttp.RequestCtx{}
	rc.Init(req, nil, nil)

	newHandler(&stubBackend{}).Handle(rc)
	assert.Equal(t, "abc12345", string(rc.Response.Header.Peek(correlationHeader)))
}

func TestCreateUpdateDelete(t *testing.T) {
	h := newHandler(&stubBackend{})

	rc := do(h, "POST", "/policies", `{"clientName":"Ivan","insuranceType":"Auto","coverage":"Full","premium":5000}`)
	require.Equal(t, fasthttp.StatusCreated, rc.Response.StatusCode())
	var created model.Policy
	decode(t, rc, &created)
	assert.Equal(t, 101, created.ID)
	assert.Equal(t, "POL-101", created.PolicyNumber)
	assert.True(t, created.IsLocalOnly)

	rc = do(h, "PUT", "/policies/101", `{"clientName":"Ivan P."}`)
	require.Equal(t, fasthttp.StatusOK, rc.Response.StatusCode())
	var updated model.Policy
	decode(t, rc, &updated)
	assert.Equal(t, "Ivan P.", updated.ClientName)
	assert.Equal(t, model.InsuranceAuto, updated.InsuranceType)

	rc = do(h, "GET", "/policies/101", "")
	require.Equal(t, fasthttp.StatusOK, rc.Response.StatusCode())

	rc = do(h, "DELETE", "/policies/101", "")
	require.Equal(t, fasthttp.StatusOK, rc.Response.StatusCode())
	var del model.DeleteResponse
	decode(t, rc, &del)
	assert.Equal(t, 101, del.ID)

	rc = do(h, "GET", "/policies/101", "")
	assert.Equal(t, fasthttp.StatusNotFound, rc.Response.StatusCode())
}

func TestBadInput(t *testing.T) {
	h := newHandler(&stubBackend{})

	cases := []struct {
		method, uri, body string
		status            int
	}{
		{"POST", "/policies", `{`, fasthttp.StatusBadRequest},
		{"POST", "/policies", `{"clientName":"  "}`, fasthttp.StatusBadRequest},
		{"POST", "/policies", `{"clientName":"x","coverage":"Platinum"}`, fasthttp.StatusBadRequest},
		{"PUT", "/policies/abc", `{"clientName":"x"}`, fasthttp.StatusBadRequest},
		{"PATCH", "/policies", ``, fasthttp.StatusMethodNotAllowed},
		{"POST", "/clients", ``, fasthttp.StatusMethodNotAllowed},
		{"GET", "/nowhere", ``, fasthttp.StatusNotFound},
	}
	for _, tc := range cases {
		rc := do(h, tc.method, tc.uri, tc.body)
		assert.Equal(t, tc.status, rc.Response.StatusCode(), "%s %s %s", tc.method, tc.uri, tc.body)

		var er model.ErrorResponse
		decode(t, rc, &er)
		assert.Equal(t, tc.status, er.Status)
		assert.NotEmpty(t, er.Message)
	}
}

func TestBackendFailureIsBadGateway(t *testing.T) {
	h := newHandler(&stubBackend{down: true})

	rc := do(h, "GET", "/policies", "")
	assert.Equal(t, fasthttp.StatusBadGateway, rc.Response.StatusCode())

	rc = do(h, "POST", "/policies", `{"clientName":"Ivan"}`)
	assert.Equal(t, fasthttp.StatusBadGateway, rc.Response.StatusCode())
}

func TestClientsAndProfile(t *testing.T) {
	h := newHandler(&stubBackend{})

	rc := do(h, "GET", "/clients", "")
	require.Equal(t, fasthttp.StatusOK, rc.Response.StatusCode())
	var clients []model.Client
	decode(t, rc, &clients)
	require.Len(t, clients, 1)
	assert.Equal(t, "+7 (999) 101-1001", clients[0].Phone)

	rc = do(h, "GET", "/profile/1", "")
	require.Equal(t, fasthttp.StatusOK, rc.Response.StatusCode())
	var c model.Client
	decode(t, rc, &c)
	assert.Equal(t, "A", c.Name)

	rc = do(h, "GET", "/profile/x", "")
	assert.Equal(t, fasthttp.StatusBadRequest, rc.Response.StatusCode())
}

// hangingBackend blocks creates until the request context is done.
type hangingBackend struct {
	stubBackend
	entered chan struct{}
}

func (b *hangingBackend) CreatePost(ctx context.Context, _ model.Post) (model.Post, error) {
	close(b.entered)
	<-ctx.Done()
	return model.Post{}, ctx.Err()
}

func TestShutdownCancelsInFlightRequest(t *testing.T) {
	b := &hangingBackend{entered: make(chan struct{})}
	svc := policies.New(b, overlay.New(), policies.Options{
		Mode:         policies.Strict,
		BackendMaxID: 100,
		Retry:        retry.Options{MaxRetries: 0},
	})
	h := New(console.NewSession(svc, query.New(), console.StaleTimes{}))

	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h.Handle, CloseOnShutdown: true}
	go srv.Serve(ln) //nolint:errcheck

	go func() {
		<-b.entered
		srv.Shutdown() //nolint:errcheck
	}()

	client := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI("http://policy.test/policies")
	req.SetBodyString(`{"clientName":"Ivan"}`)

	require.NoError(t, client.DoTimeout(req, resp, 5*time.Second))
	assert.Equal(t, fasthttp.StatusBadGateway, resp.StatusCode())

	var e model.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &e))
	assert.Equal(t, fasthttp.StatusBadGateway, e.Status)
}
