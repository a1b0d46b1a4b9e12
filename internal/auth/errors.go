package auth

import (
	"errors"
	"net/http"

	apperrors "github.com/labqa/qualitylab/pkg/errors"
)

// Session error taxonomy. Only ErrExpiredAccessToken is recoverable, through
// rotation; every other kind ends the request.
var (
	ErrMissingCredential                 = errors.New("missing credential")
	ErrMalformedToken                    = errors.New("malformed token")
	ErrBadSignature                      = errors.New("bad token signature")
	ErrExpiredAccessToken                = errors.New("access token expired")
	ErrExpiredOrUnknownRefreshCredential = errors.New("invalid or expired refresh credential")
	ErrAuthorizationDenied               = errors.New("authorization denied")
)

// Response codes written in the error body.
const (
	CodeMissingCredential  = "MISSING_CREDENTIAL"
	CodeMalformedToken     = "MALFORMED_TOKEN"
	CodeBadSignature       = "BAD_SIGNATURE"
	CodeUnknownCredential  = "EXPIRED_OR_UNKNOWN_REFRESH_CREDENTIAL"
	CodeAuthorizationDeny  = "AUTHORIZATION_DENIED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
)

func unauthorized(code, msg string, sentinel error) *apperrors.AppError {
	return apperrors.New(code, msg, http.StatusUnauthorized, errors.Join(sentinel, apperrors.ErrUnauthorized))
}

// MissingAccessToken is returned when a protected request carries no token.
func MissingAccessToken() *apperrors.AppError {
	return unauthorized(CodeMissingCredential, "missing access token", ErrMissingCredential)
}

// MissingRefreshCredential is returned when rotation is needed but no
// refresh credential accompanies the request.
func MissingRefreshCredential() *apperrors.AppError {
	return apperrors.New(CodeMissingCredential, "missing refresh credential", http.StatusBadRequest,
		errors.Join(ErrMissingCredential, apperrors.ErrInvalidInput))
}

func MalformedToken() *apperrors.AppError {
	return unauthorized(CodeMalformedToken, "malformed access token", ErrMalformedToken)
}

func BadSignature() *apperrors.AppError {
	return unauthorized(CodeBadSignature, "invalid access token signature", ErrBadSignature)
}

func UnknownRefreshCredential() *apperrors.AppError {
	return unauthorized(CodeUnknownCredential, "invalid or expired refresh credential", ErrExpiredOrUnknownRefreshCredential)
}

// InvalidCredentials hides whether the email or the password was wrong.
func InvalidCredentials() *apperrors.AppError {
	return apperrors.New(CodeInvalidCredentials, "invalid email or password", http.StatusUnauthorized, apperrors.ErrUnauthorized)
}

// Denied reports a role or ownership mismatch.
func Denied(msg string) *apperrors.AppError {
	return apperrors.New(CodeAuthorizationDeny, msg, http.StatusForbidden,
		errors.Join(ErrAuthorizationDenied, apperrors.ErrForbidden))
}
