package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hongminglow/ondata-be/internal/auth"
	"github.com/hongminglow/ondata-be/internal/http/respond"
	"github.com/hongminglow/ondata-be/internal/middleware"
	"github.com/hongminglow/ondata-be/internal/models"
	"github.com/hongminglow/ondata-be/internal/models/dto"
	"github.com/hongminglow/ondata-be/internal/service"
)

// MeasurementHandler owns the /medicoes endpoints.
type MeasurementHandler struct {
	svc    *service.MeasurementService
	authn  middleware.Authenticator
	logger *zap.Logger
}

// NewMeasurementHandler constructs the handler.
func NewMeasurementHandler(svc *service.MeasurementService, authn middleware.Authenticator, logger *zap.Logger) *MeasurementHandler {
	return &MeasurementHandler{svc: svc, authn: authn, logger: logger}
}

// Register attaches measurement routes to the mux. Every route requires a bearer token.
func (h *MeasurementHandler) Register(mux *http.ServeMux) {
	protect := func(fn http.HandlerFunc) http.HandlerFunc { return middleware.RequireAuth(h.authn, fn) }

	mux.HandleFunc("POST "+APIPrefix+"/medicoes", protect(h.handleCreate))
	mux.HandleFunc("GET "+APIPrefix+"/medicoes", protect(h.handleList))
	mux.HandleFunc("GET "+APIPrefix+"/medicoes/summary", protect(h.handleSummary))
	mux.HandleFunc("GET "+APIPrefix+"/medicoes/{id}", protect(h.handleGet))
	mux.HandleFunc("PUT "+APIPrefix+"/medicoes/{id}", protect(h.handleUpdate))
	mux.HandleFunc("DELETE "+APIPrefix+"/medicoes/{id}", protect(h.handleDelete))
}

func (h *MeasurementHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateMeasurementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var owner int64
	if req.UserID != nil {
		owner = *req.UserID
	}
	caller, _ := auth.FromContext(r.Context())
	created, err := h.svc.Create(r.Context(), caller, owner, req.Tower, numberPtr(req.KWh))
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to create measurement")
		return
	}
	respond.JSON(w, http.StatusCreated, dto.MeasurementResponse{Message: "measurement created", Measurement: created})
}

func (h *MeasurementHandler) handleList(w http.ResponseWriter, r *http.Request) {
	all, err := h.svc.List(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to list measurements")
		return
	}
	respond.JSON(w, http.StatusOK, all)
}

func (h *MeasurementHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
	shares, err := h.svc.Summary(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to summarize measurements")
		return
	}
	out := make([]dto.TowerShare, 0, len(shares))
	for _, s := range shares {
		out = append(out, dto.TowerShare{Tower: s.Tower, KWh: s.TotalKWh, Percentage: s.Percentage})
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *MeasurementHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to fetch measurement")
		return
	}
	respond.JSON(w, http.StatusOK, m)
}

func (h *MeasurementHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.UpdateMeasurementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, _ := auth.FromContext(r.Context())
	updated, err := h.svc.Update(r.Context(), caller, id, models.MeasurementUpdate{
		Tower: req.Tower,
		KWh:   numberPtr(req.KWh),
	})
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to update measurement")
		return
	}
	respond.JSON(w, http.StatusOK, dto.MeasurementResponse{Message: "measurement updated", Measurement: updated})
}

func (h *MeasurementHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	caller, _ := auth.FromContext(r.Context())
	if err := h.svc.Delete(r.Context(), caller, id); err != nil {
		respondServiceError(w, h.logger, err, "failed to delete measurement")
		return
	}
	respond.Message(w, http.StatusOK, "measurement deleted")
}

func numberPtr(n *dto.Number) *float64 {
	if n == nil {
		return nil
	}
	v := float64(*n)
	return &v
}
