package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/samilyak/stayflow/internal/payment/application"
	"github.com/samilyak/stayflow/internal/payment/domain"
	"github.com/samilyak/stayflow/pkg/tracing"
)

const maxWebhookBody = 1 << 16

// Handler terminates Stripe webhooks and serves payment lookups for the
// other services.
type Handler struct {
	log           *slog.Logger
	service       *application.Service
	webhookSecret string
	creds         map[string]string
	tracer        trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, webhookSecret string, creds map[string]string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		webhookSecret: webhookSecret,
		creds:         creds,
		tracer:        otel.Tracer("payment-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/webhooks/stripe", h.stripeWebhook)
	r.Group(func(r chi.Router) {
		r.Use(h.serviceAuth)
		r.Get("/payments/{bookingId}", h.getPayment)
	})
	return r
}

func (h *Handler) serviceAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Service-Id")
		secret, ok := h.creds[id]
		if !ok || secret == "" || secret != r.Header.Get("X-Service-Secret") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// stripeWebhook converts checkout.session.completed/expired into saga events.
// Non-2xx responses make Stripe retry, so transient failures return 500.
func (h *Handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "StripeWebhook")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}
	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		h.log.Warn("webhook signature rejected", "err", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	headers := map[string]string{"source": "payment-service"}
	traceparent := tracing.Traceparent(ctx)

	switch event.Type {
	case "checkout.session.completed":
		chargeRef := ""
		if session.PaymentIntent != nil {
			chargeRef = session.PaymentIntent.ID
		}
		err = h.service.ConfirmSession(ctx, session.ID, chargeRef, headers, traceparent)
	case "checkout.session.expired":
		err = h.service.ExpireSession(ctx, session.ID, headers, traceparent)
	default:
		w.WriteHeader(http.StatusOK)
		return
	}

	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.log.Warn("webhook for unknown session", "session_ref", session.ID, "type", event.Type)
			w.WriteHeader(http.StatusOK)
			return
		}
		h.log.Error("webhook handling failed", "type", event.Type, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type paymentResp struct {
	ID          string `json:"id"`
	BookingID   int64  `json:"bookingId"`
	UserID      int64  `json:"userId"`
	AmountToPay int64  `json:"amountToPay"`
	Status      string `json:"status"`
	SessionURL  string `json:"sessionUrl,omitempty"`
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	bookingID, err := strconv.ParseInt(chi.URLParam(r, "bookingId"), 10, 64)
	if err != nil {
		http.Error(w, "invalid booking id", http.StatusBadRequest)
		return
	}
	p, err := h.service.GetByBookingID(r.Context(), bookingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error("payment lookup failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(paymentResp{
		ID:          p.ID,
		BookingID:   p.BookingID,
		UserID:      p.UserID,
		AmountToPay: p.AmountToPay,
		Status:      string(p.Status),
		SessionURL:  p.SessionURL,
	})
}
