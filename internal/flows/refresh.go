package flows

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/goCartes/api"
	"github.com/MrEthical07/goCartes/session"
)

var ErrRefreshRejected = errors.New("refresh rejected")

// RefreshDeps captures refresh dependencies.
type RefreshDeps struct {
	API       Caller
	Now       func() time.Time
	ExpiresIn func(token string, now time.Time) (int, bool)
}

// RefreshResult is a renewed token. User is nil when the backend did not resend it.
type RefreshResult struct {
	Token     string
	User      *session.User
	ExpiresIn int
}

type refreshReply struct {
	Token     string        `json:"token"`
	User      *session.User `json:"utilisateur"`
	ExpiresIn int           `json:"expiresIn"`
}

// RunRefresh exchanges the current bearer token for a new one. The request is
// quiet: a 401 here is reported to the caller instead of running the client hooks.
func RunRefresh(ctx context.Context, deps RefreshDeps) (RefreshResult, error) {
	var reply refreshReply
	resp, err := deps.API.Do(ctx, api.Request{
		Method: http.MethodPost,
		Path:   PathRefresh,
		Quiet:  true,
	}, &reply)
	if err != nil {
		return RefreshResult{}, err
	}
	if resp != nil && resp.NotFound {
		return RefreshResult{}, api.NewError(api.KindSessionExpired, "Session expirée. Veuillez vous reconnecter.", http.StatusNotFound, ErrRefreshRejected)
	}
	if reply.Token == "" {
		return RefreshResult{}, api.NewError(api.KindServer, "Réponse de rafraîchissement invalide", statusOf(resp), ErrRefreshRejected)
	}
	return RefreshResult{
		Token:     reply.Token,
		User:      reply.User,
		ExpiresIn: expiresIn(reply.ExpiresIn, reply.Token, deps.Now, deps.ExpiresIn),
	}, nil
}
