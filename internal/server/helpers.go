package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Veraticus/tierkeeper/internal/common"
)

var errBadRequest = errors.New("bad request")

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// toHTTPResponse maps an error to a status code and a message safe to show.
func toHTTPResponse(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, common.ErrInvalidConfig):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, common.ErrNoCandidates):
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code, msg := toHTTPResponse(err)
	if code >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	writeJSON(w, logger, code, ErrorResponse{Code: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Debug("failed to write response", "error", err)
	}
}

// decodeBody decodes an optional JSON body into dst. An empty body leaves
// dst untouched.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
