package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/atinyakov/smsglue/internal/account"
	"github.com/atinyakov/smsglue/internal/middleware"
	"github.com/atinyakov/smsglue/internal/models"
	"github.com/atinyakov/smsglue/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// GlueService defines the operations the handlers need.
type GlueService interface {
	Enable(ctx context.Context, req service.EnableRequest) (*service.EnableResult, error)
	Provision(ctx context.Context, id string) (string, error)
	Report(ctx context.Context, id, deviceToken, appID string) error
	Notify(ctx context.Context, id string) (int, error)
	Resolve(token string) (*account.Account, error)
	Fetch(ctx context.Context, acc *account.Account, lastID string) (*service.FetchResult, error)
	Send(ctx context.Context, acc *account.Account, destination, body string) (*models.OutboundMessage, error)
}

// GlueHandler serves the softphone-facing endpoints.
type GlueHandler struct {
	Service GlueService
	Log     *zap.Logger
}

func (h *GlueHandler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

// Enable handles POST /enable. It accepts JSON or form bodies with user,
// pass, did, scope and origin, and answers with the hook URLs.
func (h *GlueHandler) Enable(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		writeInvalid(w)
		return
	}

	res, err := h.Service.Enable(r.Context(), service.EnableRequest{
		AccountCredential: models.AccountCredential{
			User:  p["user"],
			Pass:  p["pass"],
			DID:   p["did"],
			Scope: p["scope"],
		},
		Origin: p["origin"],
	})
	if err != nil {
		if !errors.Is(err, account.ErrInvalidCredential) {
			h.log().Warn("enable failed", zap.Error(err))
		}
		writeInvalid(w)
		return
	}
	writeSuccess(w, &res.Hooks)
}

// Provision handles GET /provision/{id}. The descriptor is served once;
// afterwards the empty descriptor is returned.
func (h *GlueHandler) Provision(w http.ResponseWriter, r *http.Request) {
	xml, err := h.Service.Provision(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.log().Error("provision failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(xml))
}

// Report handles GET /report/{id}/{device}/{app}.
func (h *GlueHandler) Report(w http.ResponseWriter, r *http.Request) {
	err := h.Service.Report(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "device"), chi.URLParam(r, "app"))
	if err != nil {
		h.log().Warn("report failed", zap.Error(err))
		writeInvalid(w)
		return
	}
	writeSuccess(w, nil)
}

// Notify handles GET and POST /notify/{id}, called by the provider on an
// inbound message.
func (h *GlueHandler) Notify(w http.ResponseWriter, r *http.Request) {
	delivered, err := h.Service.Notify(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.log().Error("notify failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.log().Debug("notified devices", zap.Int("delivered", delivered))
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

// Fetch handles POST /fetch/{token}. Body: last_id.
func (h *GlueHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromContext(r.Context())
	p, err := readParams(r)
	if acc == nil || err != nil {
		writeInvalid(w)
		return
	}

	res, err := h.Service.Fetch(r.Context(), acc, p["last_id"])
	if err != nil {
		h.log().Warn("fetch failed", zap.Error(err))
		writeInvalid(w)
		return
	}
	writeJSON(w, res)
}

// Send handles POST /send/{token}. Body: to, body.
func (h *GlueHandler) Send(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromContext(r.Context())
	p, err := readParams(r)
	if acc == nil || err != nil {
		writeInvalid(w)
		return
	}

	msg, err := h.Service.Send(r.Context(), acc, p["to"], p["body"])
	if err != nil {
		h.log().Warn("send failed", zap.Error(err))
		writeInvalid(w)
		return
	}
	writeJSON(w, msg)
}

// pathParam returns a URL parameter, unescaped when chi routed on the raw path.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

// FetchPath handles GET /fetch/{token} and GET /fetch/{token}/{last_sms},
// the form older softphone configurations use.
func (h *GlueHandler) FetchPath(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromContext(r.Context())
	if acc == nil {
		writeInvalid(w)
		return
	}

	res, err := h.Service.Fetch(r.Context(), acc, pathParam(r, "last_sms"))
	if err != nil {
		h.log().Warn("fetch failed", zap.Error(err))
		writeInvalid(w)
		return
	}
	writeJSON(w, res)
}

// SendPath handles GET /send/{token}/{dst}/{msg} and answers with the
// status envelope only.
func (h *GlueHandler) SendPath(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromContext(r.Context())
	if acc == nil {
		writeInvalid(w)
		return
	}

	if _, err := h.Service.Send(r.Context(), acc, pathParam(r, "dst"), pathParam(r, "msg")); err != nil {
		h.log().Warn("send failed", zap.Error(err))
		writeInvalid(w)
		return
	}
	writeSuccess(w, nil)
}
