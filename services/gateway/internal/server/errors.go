package server

import (
	"errors"
	"net/http"

	"llmgateway/pkg/extract"
	"llmgateway/services/gateway/internal/app"
)

// statusFor maps application errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		authErr      *app.AuthError
		notFound     *app.NotFoundError
		validation   *app.ValidationError
		emptyContent *app.EmptyContentError
		unsupported  *extract.UnsupportedFormatError
		extraction   *extract.ExtractionError
		upstream     *app.UpstreamError
		maxBytes     *http.MaxBytesError
	)
	switch {
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrAdminExists):
		return http.StatusConflict
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &validation), errors.As(err, &emptyContent),
		errors.As(err, &unsupported), errors.As(err, &extraction):
		return http.StatusBadRequest
	case errors.As(err, &upstream):
		if upstream.Timeout() {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger(r).Error("request failed", "err", err)
		msg = "internal error"
	}
	writeError(w, status, msg)
}
