package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/samilyak/stayflow/internal/accommodation/application"
	"github.com/samilyak/stayflow/internal/accommodation/domain"
)

// Handler exposes the synchronous ledger surface the booking service's
// creation handshake uses, plus unit management.
type Handler struct {
	log      *slog.Logger
	service  *application.Service
	validate *validator.Validate
	// creds maps service id to shared secret for inter-service calls.
	creds  map[string]string
	tracer trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, creds map[string]string) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
		creds:    creds,
		tracer:   otel.Tracer("accommodation-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.serviceAuth)
	r.Post("/accommodations", h.createUnit)
	r.Put("/accommodations/{id}", h.updateUnit)
	r.Get("/accommodations/{id}", h.getUnit)
	r.Get("/accommodations/{id}/availability", h.availability)
	r.Post("/accommodations/{id}/lock", h.lock)
	r.Post("/accommodations/{id}/unlock", h.unlock)
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

type unitReq struct {
	DailyRate     int64 `json:"dailyRate" validate:"gt=0"`
	TotalCapacity int   `json:"totalCapacity" validate:"gt=0"`
}

type unitResp struct {
	ID            int64 `json:"id"`
	Version       int64 `json:"version"`
	DailyRate     int64 `json:"dailyRate"`
	TotalCapacity int   `json:"totalCapacity"`
}

type lockReq struct {
	CheckIn         string `json:"checkInDate" validate:"required"`
	CheckOut        string `json:"checkOutDate" validate:"required"`
	ExpectedVersion *int64 `json:"expectedVersion"`
}

type lockResp struct {
	Success   bool   `json:"success"`
	Reason    string `json:"reason,omitempty"`
	DailyRate int64  `json:"dailyRate,omitempty"`
}

func (h *Handler) createUnit(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateUnit")
	defer span.End()

	var req unitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	unit, err := h.service.CreateUnit(ctx, req.DailyRate, req.TotalCapacity)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, toUnitResp(unit))
}

func (h *Handler) updateUnit(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateUnit")
	defer span.End()

	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req unitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	unit, err := h.service.UpdateUnit(ctx, id, req.DailyRate, req.TotalCapacity)
	if err != nil {
		h.writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitResp(unit))
}

func (h *Handler) getUnit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	unit, err := h.service.GetUnit(r.Context(), id)
	if err != nil {
		h.writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitResp(unit))
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	checkIn, err1 := parseDate(r.URL.Query().Get("checkIn"))
	checkOut, err2 := parseDate(r.URL.Query().Get("checkOut"))
	if err1 != nil || err2 != nil {
		http.Error(w, "invalid dates", http.StatusBadRequest)
		return
	}
	ok, err := h.service.CheckAvailability(r.Context(), id, checkIn, checkOut)
	if err != nil {
		h.writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": ok})
}

func (h *Handler) lock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "LockDates")
	defer span.End()

	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req lockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil || req.ExpectedVersion == nil {
		http.Error(w, "checkInDate, checkOutDate and expectedVersion are required", http.StatusBadRequest)
		return
	}
	checkIn, err1 := parseDate(req.CheckIn)
	checkOut, err2 := parseDate(req.CheckOut)
	if err1 != nil || err2 != nil {
		http.Error(w, "invalid dates", http.StatusBadRequest)
		return
	}
	res, err := h.service.Lock(ctx, id, checkIn, checkOut, *req.ExpectedVersion)
	if err != nil {
		h.writeServiceErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lockResp{Success: res.Success, Reason: res.Reason, DailyRate: res.DailyRate})
}

func (h *Handler) unlock(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UnlockDates")
	defer span.End()

	id, err := pathID(r)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req lockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	checkIn, err1 := parseDate(req.CheckIn)
	checkOut, err2 := parseDate(req.CheckOut)
	if err1 != nil || err2 != nil {
		http.Error(w, "invalid dates", http.StatusBadRequest)
		return
	}
	if err := h.service.Unlock(ctx, id, checkIn, checkOut); err != nil {
		h.writeServiceErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidRange):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Error("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toUnitResp(u domain.Unit) unitResp {
	return unitResp{ID: u.ID, Version: u.Version, DailyRate: u.DailyRate, TotalCapacity: u.TotalCapacity}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
