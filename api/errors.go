package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed call. Kind implements error so callers can test a class
// with errors.Is(err, api.KindTimeout).
type Kind string

const (
	KindInvalidCredentials Kind = "invalid-credentials"
	KindAccountDisabled    Kind = "account-disabled"
	KindSessionExpired     Kind = "session-expired"
	KindPermissionDenied   Kind = "permission-denied"
	KindNetwork            Kind = "network-unreachable"
	KindTimeout            Kind = "timeout"
	KindNotFound           Kind = "not-found"
	KindValidation         Kind = "validation-error"
	KindServer             Kind = "server-error"
	KindRequest            Kind = "request-error"
	KindCanceled           Kind = "canceled"
)

func (k Kind) Error() string {
	return string(k)
}

// User-facing messages, shown as-is to operators.
const (
	msgInvalidCredentials = "Nom d'utilisateur ou mot de passe incorrect"
	msgAccountDisabled    = "Compte désactivé. Contactez un administrateur."
	msgSessionExpired     = "Session expirée. Veuillez vous reconnecter."
	msgPermissionDenied   = "Vous n'avez pas les droits nécessaires pour cette action"
	msgNetwork            = "Impossible de joindre le serveur. Vérifiez que le backend est démarré."
	msgTimeout            = "Timeout - Le serveur met trop de temps à répondre"
	msgCanceled           = "Requête annulée"
	msgNotJSON            = "Réponse non-JSON reçue du serveur"
)

// Error is the structured failure returned by every call in this package.
type Error struct {
	Kind    Kind
	Message string
	// Status is the HTTP status when a response was received, 0 otherwise.
	Status int
	// Code is the server-provided error code, or the Kind when the server sent none.
	Code  string
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// NewError builds an [*Error] with the code defaulted to the kind.
func NewError(kind Kind, message string, status int, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Status:  status,
		Code:    string(kind),
		Cause:   cause,
	}
}

// ValidationError reports caller input rejected before any network call.
func ValidationError(message string) *Error {
	return NewError(KindValidation, message, 0, nil)
}

// SessionExpiredError is returned by operations that need a session when none exists.
func SessionExpiredError() *Error {
	return NewError(KindSessionExpired, msgSessionExpired, 0, nil)
}

// PermissionDeniedError is returned when a local permission check fails.
func PermissionDeniedError(permission string) *Error {
	e := NewError(KindPermissionDenied, msgPermissionDenied, 0, nil)
	if permission != "" {
		e.Code = string(KindPermissionDenied) + ":" + permission
	}
	return e
}

// CanceledError wraps the context error of an abandoned wait.
func CanceledError(cause error) *Error {
	return NewError(KindCanceled, msgCanceled, 0, cause)
}

// TimeoutError wraps a deadline that expired outside a request.
func TimeoutError(cause error) *Error {
	return NewError(KindTimeout, msgTimeout, 0, cause)
}

// KindOf returns the kind of err, or "" when err is not an [*Error].
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Message returns the user-facing message of err. Errors outside the taxonomy fall
// back to err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

type serverBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// classifyStatus maps a non-2xx, non-404 status to an [*Error].
func classifyStatus(status int, body serverBody, anonymous bool) *Error {
	serverMsg := body.Message
	if serverMsg == "" {
		serverMsg = body.Error
	}

	var e *Error
	switch {
	case status == http.StatusUnauthorized && anonymous:
		e = NewError(KindInvalidCredentials, msgInvalidCredentials, status, nil)
	case status == http.StatusUnauthorized:
		e = NewError(KindSessionExpired, msgSessionExpired, status, nil)
	case status == http.StatusForbidden && anonymous:
		e = NewError(KindAccountDisabled, msgAccountDisabled, status, nil)
	case status == http.StatusForbidden:
		e = NewError(KindPermissionDenied, msgPermissionDenied, status, nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e = NewError(KindTimeout, msgTimeout, status, nil)
	case status >= 500:
		e = NewError(KindServer, fmt.Sprintf("Erreur serveur (%d). Réessayez plus tard.", status), status, nil)
	default:
		msg := serverMsg
		if msg == "" {
			msg = fmt.Sprintf("Erreur %d: %s", status, http.StatusText(status))
		}
		e = NewError(KindRequest, msg, status, nil)
	}
	if serverMsg != "" {
		e.Cause = errors.New(serverMsg)
	}
	if body.Code != "" {
		e.Code = body.Code
	}
	return e
}
