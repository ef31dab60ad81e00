package quote

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"jimshazmatremoval.com.au/auburn-web/internal/requestctx"
	"jimshazmatremoval.com.au/auburn-web/internal/site"
)

// DeliveryPartial is the thank-you query value used when the secondary send failed.
const DeliveryPartial = "partial"

// Handler accepts quote form posts.
type Handler struct {
	relay    *Relay
	renderer *Renderer
	pages    site.Pages
	maxBytes int64
}

// NewHandler builds the form endpoint.
func NewHandler(relay *Relay, renderer *Renderer, pages site.Pages, maxBytes int64) *Handler {
	return &Handler{relay: relay, renderer: renderer, pages: pages, maxBytes: maxBytes}
}

// ServeHTTP redirects non-POST requests home, relays POSTs and redirects to the thank-you page.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, pageURL(h.pages.Home), http.StatusFound)
		return
	}
	ctx := r.Context()
	logger := requestctx.Logger(ctx)

	sub, err := ParseRequest(r, h.maxBytes)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		logger.Warn("quote form rejected", zap.Int("status", status), zap.Error(err))
		h.writeError(w, r, status)
		return
	}

	outcome, err := h.relay.Submit(ctx, sub)
	if err != nil {
		logger.Error("quote submission failed", zap.String("submissionID", outcome.ID), zap.Error(err))
		h.writeError(w, r, http.StatusInternalServerError)
		return
	}

	target := pageURL(h.pages.ThankYou)
	if outcome.Partial {
		target += "?" + url.Values{"delivery": {DeliveryPartial}}.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := h.renderer.ErrorPage(w, pageURL(h.pages.Form), middleware.GetReqID(r.Context())); err != nil {
		requestctx.Logger(r.Context()).Error("render error page", zap.Error(err))
	}
}

func pageURL(name string) string {
	return "/" + strings.TrimPrefix(name, "/")
}
