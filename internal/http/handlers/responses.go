package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hongminglow/ondata-be/internal/http/respond"
	"github.com/hongminglow/ondata-be/internal/service"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON request body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			respond.Error(w, http.StatusBadRequest, "request body is required")
			return false
		}
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respond.Error(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// respondServiceError maps the service error taxonomy onto HTTP status codes.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, err error, internalMsg string) {
	var status int
	switch {
	case errors.Is(err, service.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
	default:
		logger.Error(internalMsg, zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, internalMsg)
		return
	}
	respond.Error(w, status, service.Message(err, http.StatusText(status)))
}
