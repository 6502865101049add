package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goCartes/api"
)

// Caller is the slice of [api.Client] the flows need.
type Caller interface {
	Do(ctx context.Context, req api.Request, out any) (*api.Response, error)
}

// Deps groups flow dependency sets. The root client builds this once.
type Deps struct {
	Login   LoginDeps
	Logout  LogoutDeps
	Refresh RefreshDeps
	Restore RestoreDeps
}

// Endpoints of the session routes, relative to the API base.
const (
	PathLogin   = "/auth/login"
	PathLogout  = "/auth/logout"
	PathRefresh = "/auth/refresh"
	PathMe      = "/auth/me"
)

// expiresIn reads the remaining lifetime from the token when the server
// did not send expiresIn.
func expiresIn(sent int, token string, now func() time.Time, fromToken func(string, time.Time) (int, bool)) int {
	if sent > 0 {
		return sent
	}
	if fromToken == nil {
		return 0
	}
	if now == nil {
		now = time.Now
	}
	secs, ok := fromToken(token, now())
	if !ok {
		return 0
	}
	return secs
}
