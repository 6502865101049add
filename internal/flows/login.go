package flows

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goCartes/api"
	"github.com/MrEthical07/goCartes/session"
)

const (
	msgMissingCredentials = "Nom d'utilisateur et mot de passe requis"
	msgServerUnreachable  = "Serveur inaccessible. Vérifiez votre connexion."
	msgLoginFailed        = "Échec de connexion"
	msgInvalidLoginReply  = "Réponse de connexion invalide"
)

// LoginDeps captures login dependencies.
type LoginDeps struct {
	API Caller
	Now func() time.Time
	// ExpiresIn reads a token's remaining lifetime; used when the reply omits it.
	ExpiresIn func(token string, now time.Time) (int, bool)
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"NomUtilisateur"`
	Password string `json:"MotDePasse"`
}

type loginReply struct {
	Success   *bool         `json:"success"`
	Message   string        `json:"message"`
	Token     string        `json:"token"`
	User      *session.User `json:"utilisateur"`
	ExpiresIn int           `json:"expiresIn"`
}

// RunLogin authenticates against the backend and returns the new session. It does
// not store anything.
func RunLogin(ctx context.Context, username, password string, deps LoginDeps) (session.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return session.Session{}, api.ValidationError(msgMissingCredentials)
	}

	var reply loginReply
	resp, err := deps.API.Do(ctx, api.Request{
		Method:    http.MethodPost,
		Path:      PathLogin,
		Body:      LoginRequest{Username: username, Password: password},
		Anonymous: true,
	}, &reply)
	if err != nil {
		return session.Session{}, mapLoginError(err)
	}
	if resp != nil && resp.NotFound {
		return session.Session{}, api.NewError(api.KindServer, msgInvalidLoginReply, http.StatusNotFound, nil)
	}

	if reply.Success != nil && !*reply.Success {
		msg := reply.Message
		if msg == "" {
			msg = msgLoginFailed
		}
		return session.Session{}, api.NewError(api.KindInvalidCredentials, msg, statusOf(resp), nil)
	}
	if reply.Token == "" || reply.User == nil {
		return session.Session{}, api.NewError(api.KindServer, msgInvalidLoginReply, statusOf(resp), errors.New("login reply without token or user"))
	}

	return session.Session{
		Token:     reply.Token,
		User:      reply.User,
		ExpiresIn: expiresIn(reply.ExpiresIn, reply.Token, deps.Now, deps.ExpiresIn),
	}, nil
}

// mapLoginError keeps credential and account errors as-is and rewrites transport
// failures to the login-specific message.
func mapLoginError(err error) error {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.Kind == api.KindNetwork {
		mapped := *apiErr
		mapped.Message = msgServerUnreachable
		return &mapped
	}
	return apiErr
}

func statusOf(resp *api.Response) int {
	if resp == nil {
		return 0
	}
	return resp.Status
}
