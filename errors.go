package goCartes

import (
	"errors"

	"github.com/MrEthical07/goCartes/api"
)

// Error kinds, usable with errors.Is on any error returned by the Client.
var (
	ErrInvalidCredentials error = api.KindInvalidCredentials
	ErrAccountDisabled    error = api.KindAccountDisabled
	ErrSessionExpired     error = api.KindSessionExpired
	ErrPermissionDenied   error = api.KindPermissionDenied
	ErrNetwork            error = api.KindNetwork
	ErrTimeout            error = api.KindTimeout
	ErrValidation         error = api.KindValidation
	ErrServer             error = api.KindServer
	ErrRequest            error = api.KindRequest
	ErrCanceled           error = api.KindCanceled
)

var (
	ErrClientClosed = errors.New("client closed")
	ErrBuilderUsed  = errors.New("builder already used")
)

// Error is the structured failure returned by every remote call.
type Error = api.Error

// Kind classifies an [Error].
type Kind = api.Kind

// KindOf returns the kind of err, or "" when err did not come from a remote call.
func KindOf(err error) Kind {
	return api.KindOf(err)
}

// UserMessage returns the operator-facing text of err.
func UserMessage(err error) string {
	return api.Message(err)
}
