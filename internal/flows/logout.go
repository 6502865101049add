package flows

import (
	"context"
	"net/http"

	"github.com/MrEthical07/goCartes/api"
)

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	API Caller
}

// RunLogout tells the backend the token is no longer used. Callers treat the
// result as advisory: local state is cleared whatever it returns.
func RunLogout(ctx context.Context, deps LogoutDeps) error {
	_, err := deps.API.Do(ctx, api.Request{
		Method: http.MethodPost,
		Path:   PathLogout,
		Quiet:  true,
	}, nil)
	return err
}
