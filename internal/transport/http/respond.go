package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordersvc/internal/domain"
)

const internalErrorMessage = "An unexpected error occurred"

// requestError — ошибка разбора запроса на уровне транспорта, отвечаем 400.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func (e *requestError) Is(target error) bool { return target == domain.ErrInvalidArgument }

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

// statusFor переводит категорию ошибки в HTTP-статус.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// encodeError возвращает статус и тело ответа об ошибке. Детали внутренних
// ошибок пишутся только в лог.
func encodeError(logger *log.Entry, r *http.Request, err error) (int, []byte) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Request failed")
		message = internalErrorMessage
	}

	body, _ := json.Marshal(errorResponse{Error: http.StatusText(status), Message: message})
	return status, body
}

func encodeJSON(logger *log.Entry, status int, payload any) (int, []byte) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.WithError(err).Error("Failed to encode response")
		body, _ = json.Marshal(errorResponse{
			Error:   http.StatusText(http.StatusInternalServerError),
			Message: internalErrorMessage,
		})
		return http.StatusInternalServerError, body
	}
	return status, body
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	code, body := encodeJSON(h.logger, status, payload)
	writeBody(w, code, body)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := encodeError(h.logger, r, err)
	writeBody(w, status, body)
}
