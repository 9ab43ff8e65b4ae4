package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"

	"policy-console/internal/console"
	"policy-console/internal/logging"
	"policy-console/internal/model"
	"policy-console/internal/policies"
)

const correlationHeader = "X-Correlation-ID"

type Handler struct {
	session *console.Session
}

func New(s *console.Session) *Handler {
	return &Handler{session: s}
}

// Handle routes:
//
//	GET    /policies         GET /clients
//	POST   /policies         GET /profile/{userId}
//	GET    /policies/{id}    GET /healthz
//	PUT    /policies/{id}
//	DELETE /policies/{id}
func (h *Handler) Handle(rc *fasthttp.RequestCtx) {
	id := string(rc.Request.Header.Peek(correlationHeader))
	if id == "" {
		id = logging.GenerateCorrelationID()
	}
	rc.Response.Header.Set(correlationHeader, id)
	// RequestCtx is done when the server shuts down.
	ctx := logging.ContextWithCorrelationID(rc, id)

	path := strings.TrimSuffix(string(rc.Path()), "/")
	logging.Ctx(ctx).Debug().Str("method", string(rc.Method())).Str("path", path).Msg("Request")

	switch {
	case path == "/healthz":
		writeJSON(rc, fasthttp.StatusOK, map[string]string{"status": "ok"})
	case path == "/policies":
		h.policies(ctx, rc)
	case strings.HasPrefix(path, "/policies/"):
		h.policy(ctx, rc, strings.TrimPrefix(path, "/policies/"))
	case path == "/clients":
		if !rc.IsGet() {
			writeError(rc, fasthttp.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		clients, err := h.session.Clients(ctx)
		if err != nil {
			writeServiceError(ctx, rc, err)
			return
		}
		writeJSON(rc, fasthttp.StatusOK, clients)
	case strings.HasPrefix(path, "/profile/"):
		h.profile(ctx, rc, strings.TrimPrefix(path, "/profile/"))
	default:
		writeError(rc, fasthttp.StatusNotFound, "Not found")
	}
}

func (h *Handler) policies(ctx context.Context, rc *fasthttp.RequestCtx) {
	switch {
	case rc.IsGet():
		list, err := h.session.Policies(ctx)
		if err != nil {
			writeServiceError(ctx, rc, err)
			return
		}
		writeJSON(rc, fasthttp.StatusOK, list)
	case rc.IsPost():
		in, ok := decodeInput(rc)
		if !ok {
			return
		}
		p, err := h.session.CreatePolicy(ctx, in)
		if err != nil {
			writeServiceError(ctx, rc, err)
			return
		}
		writeJSON(rc, fasthttp.StatusCreated, p)
	default:
		writeError(rc, fasthttp.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *Handler) policy(ctx context.Context, rc *fasthttp.RequestCtx, rawID string) {
	id, err := strconv.Atoi(rawID)
	if err != nil || id <= 0 {
		writeError(rc, fasthttp.StatusBadRequest, "Invalid policy id: "+rawID)
		return
	}

	switch {
	case rc.IsGet():
		p, err := h.session.Policy(ctx, id)
		if err != nil {
			writeServiceError(ctx, rc, err)
			return
		}
		writeJSON(rc, fasthttp.StatusOK, p)
	case rc.IsPut():
		in, ok := decodeInput(rc)
		if !ok {
			return
		}
		p, err := h.session.UpdatePolicy(ctx, id, in)
		if err != nil {
			writeServiceError(ctx, rc, err)
			return
		}
		writeJSON(rc, fasthttp.StatusOK, p)
	case rc.IsDelete():
		deleted, err := h.session.DeletePolicy(ctx, id)
		if err != nil {
			writeServiceError(ctx, rc, err)
			return
		}
		writeJSON(rc, fasthttp.StatusOK, model.DeleteResponse{ID: deleted})
	default:
		writeError(rc, fasthttp.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *Handler) profile(ctx context.Context, rc *fasthttp.RequestCtx, rawID string) {
	if !rc.IsGet() {
		writeError(rc, fasthttp.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	userID, err := strconv.Atoi(rawID)
	if err != nil {
		writeError(rc, fasthttp.StatusBadRequest, "Invalid user id: "+rawID)
		return
	}
	c, err := h.session.Profile(ctx, userID)
	if err != nil {
		writeServiceError(ctx, rc, err)
		return
	}
	writeJSON(rc, fasthttp.StatusOK, c)
}

func decodeInput(rc *fasthttp.RequestCtx) (model.PolicyInput, bool) {
	var in model.PolicyInput
	if err := json.Unmarshal(rc.PostBody(), &in); err != nil {
		writeError(rc, fasthttp.StatusBadRequest, "Invalid request body: "+err.Error())
		return in, false
	}
	if err := in.Validate(); err != nil {
		writeError(rc, fasthttp.StatusBadRequest, err.Error())
		return in, false
	}
	return in, true
}

func writeServiceError(ctx context.Context, rc *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, policies.ErrNotFound):
		writeError(rc, fasthttp.StatusNotFound, err.Error())
	case errors.Is(err, policies.ErrFetch), errors.Is(err, policies.ErrWrite):
		logging.Ctx(ctx).Error().Err(err).Msg("Backend failure")
		writeError(rc, fasthttp.StatusBadGateway, err.Error())
	default:
		logging.Ctx(ctx).Error().Err(err).Msg("Request failed")
		writeError(rc, fasthttp.StatusInternalServerError, err.Error())
	}
}

func writeJSON(rc *fasthttp.RequestCtx, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		writeError(rc, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	rc.SetContentType("application/json")
	rc.SetStatusCode(status)
	rc.SetBody(b)
}

func writeError(rc *fasthttp.RequestCtx, status int, message string) {
	b, _ := json.Marshal(model.ErrorResponse{
		Status:  status,
		Message: message,
	})
	rc.SetContentType("application/json")
	rc.SetStatusCode(status)
	rc.SetBody(b)
}
