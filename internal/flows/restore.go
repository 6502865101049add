package flows

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/goCartes/api"
	"github.com/MrEthical07/goCartes/session"
)

var ErrRestoreRejected = errors.New("stored session rejected")

// RestoreDeps captures the dependencies of session validation at startup.
type RestoreDeps struct {
	API       Caller
	Now       func() time.Time
	ExpiresIn func(token string, now time.Time) (int, bool)
}

// RestoreResult is the outcome of validating a persisted session. User is the
// server's current view of the account, or the stored one when the reply has none.
type RestoreResult struct {
	User      *session.User
	ExpiresIn int
}

// RunRestore validates creds with GET /auth/me. The bearer token must already be set
// on the client. Any failure, including a 404, means the stored session is unusable.
func RunRestore(ctx context.Context, creds session.Credentials, deps RestoreDeps) (RestoreResult, error) {
	var raw json.RawMessage
	resp, err := deps.API.Do(ctx, api.Request{
		Method: http.MethodGet,
		Path:   PathMe,
		Quiet:  true,
	}, &raw)
	if err != nil {
		return RestoreResult{}, err
	}
	if resp != nil && resp.NotFound {
		return RestoreResult{}, api.NewError(api.KindSessionExpired, "Session expirée. Veuillez vous reconnecter.", http.StatusNotFound, ErrRestoreRejected)
	}

	user := decodeMe(raw)
	if user == nil {
		user = creds.User.Clone()
	}
	return RestoreResult{
		User:      user,
		ExpiresIn: expiresIn(0, creds.Token, deps.Now, deps.ExpiresIn),
	}, nil
}

// decodeMe accepts {"utilisateur": {...}} or a bare user object.
func decodeMe(raw json.RawMessage) *session.User {
	if len(raw) == 0 {
		return nil
	}
	var envelope struct {
		User *session.User `json:"utilisateur"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.User != nil && envelope.User.ID != 0 {
		return envelope.User
	}
	var bare session.User
	if err := json.Unmarshal(raw, &bare); err == nil && bare.ID != 0 {
		return &bare
	}
	return nil
}
