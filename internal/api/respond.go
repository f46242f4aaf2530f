package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/CatPortrait/internal/quiz"
	"github.com/digkill/CatPortrait/internal/service"
)

const (
	maxJSONBody  = 1 << 20
	maxImageBody = 32 << 20
)

var errBadJSON = errors.New("invalid json")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps service errors to statuses. Only input errors echo their
// message; everything else gets a generic text and is logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errBadJSON),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrUnknownPlan),
		errors.Is(err, quiz.ErrInvalidStage):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAuthRequired):
		writeMessage(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, service.ErrInvalidSignature):
		writeMessage(w, http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, service.ErrGuestTrialExhausted):
		writeMessage(w, http.StatusPaymentRequired, "guest trial exhausted")
	case errors.Is(err, service.ErrInsufficientBalance):
		writeMessage(w, http.StatusPaymentRequired, "insufficient points")
	case errors.Is(err, service.ErrPaymentNotFound):
		writeMessage(w, http.StatusNotFound, "payment not found")
	case errors.Is(err, service.ErrImageNotFound):
		writeMessage(w, http.StatusNotFound, "image not found")
	case errors.Is(err, service.ErrPaymentsDisabled), errors.Is(err, service.ErrStorageDisabled):
		writeMessage(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, service.ErrGenerationFailed):
		s.log.ErrorContext(r.Context(), "generation failed", "request_id", middleware.GetReqID(r.Context()), "err", err)
		writeMessage(w, http.StatusInternalServerError, "image generation failed")
	default:
		s.log.ErrorContext(r.Context(), "api handler error", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
