package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/samilyak/stayflow/internal/booking/application"
	"github.com/samilyak/stayflow/internal/booking/domain"
)

type ctxKey int

const principalKey ctxKey = 0

// Handler is the user-facing booking API.
type Handler struct {
	log      *slog.Logger
	service  *application.Service
	auth     application.AuthClient
	validate *validator.Validate
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, auth application.AuthClient) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		auth:     auth,
		validate: validator.New(),
		tracer:   otel.Tracer("booking-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.bearerAuth)
	r.Post("/bookings", h.create)
	r.Get("/bookings", h.list)
	r.Get("/bookings/{id}", h.get)
	r.Post("/bookings/{id}/cancel", h.cancel)
	return r
}

func (h *Handler) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		p, err := h.auth.Resolve(r.Context(), token)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
	})
}

func principal(r *http.Request) application.Principal {
	p, _ := r.Context().Value(principalKey).(application.Principal)
	return p
}

type createReq struct {
	AccommodationID int64  `json:"accommodationId" validate:"gt=0"`
	CheckIn         string `json:"checkInDate" validate:"required"`
	CheckOut        string `json:"checkOutDate" validate:"required"`
	Phone           string `json:"phoneNumber" validate:"required,e164"`
}

type bookingResp struct {
	ID              int64  `json:"id"`
	UserID          int64  `json:"userId"`
	AccommodationID int64  `json:"accommodationId"`
	CheckIn         string `json:"checkInDate"`
	CheckOut        string `json:"checkOutDate"`
	TotalPrice      int64  `json:"totalPrice"`
	Status          string `json:"status"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateBooking")
	defer span.End()

	var req createReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	checkIn, err1 := time.Parse("2006-01-02", req.CheckIn)
	checkOut, err2 := time.Parse("2006-01-02", req.CheckOut)
	if err1 != nil || err2 != nil {
		http.Error(w, "invalid dates", http.StatusBadRequest)
		return
	}

	b, err := h.service.Create(ctx, principal(r).UserID, req.AccommodationID, checkIn, checkOut, req.Phone)
	if err != nil {
		h.writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toBookingResp(b))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	b, err := h.service.Get(r.Context(), principal(r), id)
	if err != nil {
		h.writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResp(b))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.service.ListByUser(r.Context(), principal(r).UserID)
	if err != nil {
		h.writeServiceErr(w, err)
		return
	}
	out := make([]bookingResp, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingResp(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelBooking")
	defer span.End()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.service.Cancel(ctx, principal(r), id); err != nil {
		h.writeServiceErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) writeServiceErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrIllegalTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, application.ErrInvalidDates), errors.Is(err, application.ErrStayTooLong),
		errors.Is(err, application.ErrDatesUnavailable):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Error("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toBookingResp(b *domain.Booking) bookingResp {
	return bookingResp{
		ID:              b.ID,
		UserID:          b.UserID,
		AccommodationID: b.AccommodationID,
		CheckIn:         b.CheckIn.Format("2006-01-02"),
		CheckOut:        b.CheckOut.Format("2006-01-02"),
		TotalPrice:      b.TotalPrice,
		Status:          string(b.Status()),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
