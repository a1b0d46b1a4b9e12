package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/labqa/qualitylab/internal/domain"
	"github.com/labqa/qualitylab/internal/service"
	"github.com/labqa/qualitylab/pkg/httputil"
	"github.com/labqa/qualitylab/pkg/middleware"
)

// actorFrom returns the caller stored by the session middleware. Routes that
// use it are always mounted behind the gate; a missing identity is a wiring
// bug and answered with 401.
func actorFrom(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteErrorCode(w, r, http.StatusUnauthorized, "MISSING_CREDENTIAL", "missing access token")
		return service.Actor{}, false
	}
	return service.Actor{Email: id.Email, Role: domain.Role(id.Role)}, true
}

// emailParam reads the {email} path segment, decoding %40 and friends.
func emailParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "email")
	email, err := url.PathUnescape(raw)
	email = strings.TrimSpace(email)
	if err != nil || email == "" {
		httputil.WriteErrorCode(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "bad route: enter an email")
		return "", false
	}
	return email, true
}

type revokedResponse struct {
	Revoked int64 `json:"revoked"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// ContentTypeJSON rejects request bodies that are not JSON.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPut {
			ct := r.Header.Get("Content-Type")
			if !strings.HasPrefix(ct, "application/json") {
				httputil.WriteErrorCode(w, r, http.StatusUnsupportedMediaType,
					"UNSUPPORTED_MEDIA_TYPE", "Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
