package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/render"

	"github.com/yourorg/mls-sync/internal/mlserr"
)

// writeError maps the error taxonomy onto HTTP statuses. Untyped errors are
// reported as a bad gateway since they can only come from upstream plumbing.
func writeError(w http.ResponseWriter, req *http.Request, err error) {
	status := http.StatusBadGateway
	code := "upstream_error"

	var typed *mlserr.Error
	if errors.As(err, &typed) {
		code = typed.Code
		switch typed.Type {
		case mlserr.TypeValidation, mlserr.TypeDataFormat:
			status = http.StatusBadRequest
		case mlserr.TypeAuthentication:
			status = http.StatusUnauthorized
		case mlserr.TypeQuotaExceeded:
			status = http.StatusForbidden
		case mlserr.TypeRateLimit:
			status = http.StatusTooManyRequests
		case mlserr.TypeTimeout:
			status = http.StatusGatewayTimeout
		case mlserr.TypeAPI:
			status = http.StatusBadGateway
			if typed.Code == "PROPERTY_NOT_FOUND" {
				status = http.StatusNotFound
			}
		case mlserr.TypeServiceUnavailable, mlserr.TypeNetwork:
			status = http.StatusServiceUnavailable
		}
		if typed.RetryAfter > 0 {
			secs := int(typed.RetryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}

	render.Status(req, status)
	render.JSON(w, req, map[string]any{"error": code, "detail": err.Error()})
}
