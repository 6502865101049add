package goCartes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goCartes/api"
	"github.com/MrEthical07/goCartes/internal/events"
	"github.com/MrEthical07/goCartes/internal/flows"
	"github.com/MrEthical07/goCartes/permission"
	"github.com/MrEthical07/goCartes/session"
)

// Login authenticates the operator, persists the credentials and schedules the
// token refresh. A previous session, if any, is replaced.
func (c *Client) Login(ctx context.Context, username, password string) (*User, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}

	s, err := flows.RunLogin(ctx, username, password, c.flows.Login)
	if err != nil {
		c.metrics.Inc(MetricLoginFailure)
		c.logger.Warn().Str("user", strings.TrimSpace(username)).Str("kind", string(KindOf(err))).Msg("login failed")
		return nil, err
	}

	c.mu.Lock()
	if err := c.store.Save(ctx, s.Token, s.User); err != nil {
		c.mu.Unlock()
		c.metrics.Inc(MetricLoginFailure)
		return nil, fmt.Errorf("save credentials: %w", err)
	}
	c.generation++
	c.current = &session.Session{Token: s.Token, User: s.User.Clone(), ExpiresIn: s.ExpiresIn}
	c.armRefreshLocked(s.ExpiresIn)
	user := s.User.Clone()
	c.mu.Unlock()

	// Cached reads belong to whoever was logged in before.
	c.cache.InvalidateAll()
	c.metrics.Inc(MetricLoginSuccess)
	c.logger.Info().Str("user", user.Username).Str("role", string(user.Role)).Int("expires_in", s.ExpiresIn).Msg("logged in")
	c.emit(ctx, Event{Type: EventLogin, User: user.Clone()})
	return user, nil
}

// Logout ends the session. The backend is told on a best-effort basis; its failure
// is logged, never returned. Local credentials are always cleared, the refresh is
// canceled and a logout event is emitted, so calling Logout twice is harmless.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	var user *User
	if c.current != nil {
		user = c.current.User
	}
	c.mu.Unlock()

	if user != nil {
		if err := flows.RunLogout(ctx, c.flows.Logout); err != nil {
			c.logger.Warn().Err(err).Msg("logout request failed; clearing local session anyway")
		}
	}

	c.mu.Lock()
	clearErr := c.endSessionLocked(context.WithoutCancel(ctx))
	c.mu.Unlock()

	c.cache.InvalidateAll()
	c.metrics.Inc(MetricLogout)
	c.emit(ctx, Event{Type: EventLogout, Reason: events.ReasonUserLogout, User: user})
	if clearErr != nil {
		return fmt.Errorf("clear credentials: %w", clearErr)
	}
	return nil
}

// Initialize restores a persisted session. It returns (nil, nil) when nothing is
// stored. With Config.Session.ValidateOnRestore the token is checked against the
// backend first; a rejected token clears the stored credentials and the error is
// returned.
func (c *Client) Initialize(ctx context.Context) (*User, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}

	creds, ok, err := c.store.Load(ctx)
	if errors.Is(err, session.ErrUserCorrupt) {
		c.logger.Warn().Err(err).Msg("stored user record unreadable; clearing credentials")
		return nil, c.store.Clear(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if !ok {
		return nil, nil
	}

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.stopTimerLocked()
	c.current = &session.Session{Token: creds.Token, User: creds.User.Clone()}
	c.mu.Unlock()
	c.api.SetBearerToken(creds.Token)

	var result flows.RestoreResult
	if c.config.Session.ValidateOnRestore {
		result, err = flows.RunRestore(ctx, creds, c.flows.Restore)
	} else {
		result = flows.RestoreResult{User: creds.User.Clone()}
		if secs, ok := c.flows.Restore.ExpiresIn(creds.Token, c.now()); ok {
			result.ExpiresIn = secs
		}
	}

	c.mu.Lock()
	if c.generation != gen {
		// A login or logout ran meanwhile and owns the session now.
		c.mu.Unlock()
		return c.CurrentUser(), nil
	}
	if err != nil {
		user := c.current.User
		clearErr := c.endSessionLocked(context.WithoutCancel(ctx))
		c.mu.Unlock()
		if clearErr != nil {
			c.logger.Error().Err(clearErr).Msg("clear rejected credentials")
		}
		c.metrics.Inc(MetricSessionExpired)
		c.emit(ctx, Event{Type: EventSessionExpired, Reason: events.ReasonRestoreFailed, User: user, Err: err})
		return nil, err
	}

	if !sameUser(result.User, creds.User) {
		if err := c.store.UpdateUser(ctx, result.User); err != nil {
			c.logger.Warn().Err(err).Msg("persist refreshed user record")
		}
	}
	c.current.User = result.User.Clone()
	c.current.ExpiresIn = result.ExpiresIn
	c.armRefreshLocked(result.ExpiresIn)
	user := result.User.Clone()
	c.mu.Unlock()

	c.metrics.Inc(MetricSessionRestored)
	c.logger.Info().Str("user", user.Username).Msg("session restored")
	return user, nil
}

func sameUser(a, b *User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// RefreshSession renews the token now instead of waiting for the schedule. A
// failure ends the session exactly like a failed scheduled refresh.
func (c *Client) RefreshSession(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.current == nil {
		c.mu.Unlock()
		return api.SessionExpiredError()
	}
	gen := c.generation
	c.mu.Unlock()
	return c.refresh(ctx, gen)
}

/*
====================================
REFRESH SCHEDULE
====================================
*/

// refreshDelay fires lead before expiry, never sooner than floor.
func refreshDelay(expiresIn int, lead, floor time.Duration) time.Duration {
	d := time.Duration(expiresIn)*time.Second - lead
	if d < floor {
		d = floor
	}
	return d
}

// armRefreshLocked replaces the pending refresh. Callers hold c.mu.
func (c *Client) armRefreshLocked(expiresIn int) {
	c.stopTimerLocked()
	if expiresIn <= 0 || c.closed {
		return
	}
	delay := refreshDelay(expiresIn, c.config.Session.RefreshLead, c.config.Session.MinRefreshDelay)
	gen := c.generation
	c.refreshAt = c.now().Add(delay)
	c.timer = c.afterFunc(delay, func() {
		if err := c.refresh(c.lifecycle, gen); err != nil && !errors.Is(err, errStaleRefresh) {
			c.logger.Warn().Err(err).Msg("scheduled refresh failed")
		}
	})
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.refreshAt = time.Time{}
}

var errStaleRefresh = errors.New("refresh superseded")

// refresh renews the token of generation gen. Its result is discarded when the
// session changed while the request was in flight.
func (c *Client) refresh(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	if c.closed || c.generation != gen || c.current == nil {
		c.mu.Unlock()
		return errStaleRefresh
	}
	c.mu.Unlock()

	res, err := flows.RunRefresh(ctx, c.flows.Refresh)

	c.mu.Lock()
	if c.generation != gen || c.current == nil {
		c.mu.Unlock()
		return errStaleRefresh
	}
	user := c.current.User
	if err == nil {
		if res.User != nil {
			user = res.User
		}
		err = c.store.Save(ctx, res.Token, user)
	}
	if err != nil {
		clearErr := c.endSessionLocked(context.WithoutCancel(ctx))
		c.mu.Unlock()
		if clearErr != nil {
			c.logger.Error().Err(clearErr).Msg("clear credentials after failed refresh")
		}
		c.cache.InvalidateAll()
		c.metrics.Inc(MetricRefreshFailure)
		c.metrics.Inc(MetricSessionExpired)
		c.emit(ctx, Event{Type: EventSessionExpired, Reason: events.ReasonRefreshFailed, User: user, Err: err})
		return err
	}

	c.current = &session.Session{Token: res.Token, User: user.Clone(), ExpiresIn: res.ExpiresIn}
	c.armRefreshLocked(res.ExpiresIn)
	c.mu.Unlock()

	c.metrics.Inc(MetricRefreshSuccess)
	c.logger.Debug().Int("expires_in", res.ExpiresIn).Msg("token refreshed")
	return nil
}

// endSessionLocked drops the in-memory session and the stored credentials.
// Callers hold c.mu.
func (c *Client) endSessionLocked(ctx context.Context) error {
	c.generation++
	c.stopTimerLocked()
	c.current = nil
	return c.store.Clear(ctx)
}

/*
====================================
SESSION STATE
====================================
*/

// CurrentUser returns a copy of the logged-in operator, or nil.
func (c *Client) CurrentUser() *User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.User.Clone()
}

func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Token returns the current bearer token, or "".
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.Token
}

// RefreshScheduledIn reports how long until the next refresh; ok is false when
// none is pending.
func (c *Client) RefreshScheduledIn() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer == nil || c.refreshAt.IsZero() {
		return 0, false
	}
	return c.refreshAt.Sub(c.now()), true
}

// HasPermission reports whether the current operator's role grants perm. It is
// false without a session.
func (c *Client) HasPermission(perm string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.User == nil {
		return false
	}
	return c.roles.Has(string(c.current.User.Role), perm)
}

// Permissions lists what the current operator may do, in registration order.
func (c *Client) Permissions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.User == nil {
		return nil
	}
	return c.roles.Permissions(string(c.current.User.Role))
}

// require fails with KindSessionExpired without a session and with
// KindPermissionDenied when the role lacks perm.
func (c *Client) require(ctx context.Context, perm string) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	user := c.CurrentUser()
	if user == nil {
		return api.SessionExpiredError()
	}
	if perm == "" || c.roles.Has(string(user.Role), perm) {
		return nil
	}
	err := api.PermissionDeniedError(perm)
	c.metrics.Inc(MetricPermissionDenied)
	c.emit(ctx, Event{Type: EventPermissionDenied, Reason: perm, User: user, Err: err})
	return err
}

/*
====================================
ACCOUNTS
====================================
*/

// Register creates an operator account. Requires users.manage.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if err := c.require(ctx, permission.UsersManage); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return nil, api.ValidationError("Nom d'utilisateur et mot de passe requis")
	}
	if req.Role == "" {
		req.Role = RoleOperator
	}

	var reply struct {
		User *User `json:"utilisateur"`
	}
	resp, err := c.api.Post(ctx, "/auth/register", req, &reply)
	if err != nil {
		return nil, err
	}
	if resp.NotFound || reply.User == nil {
		return nil, api.NewError(api.KindServer, "Réponse de création de compte invalide", resp.Status, nil)
	}
	c.logger.Info().Str("created", reply.User.Username).Str("role", string(reply.User.Role)).Msg("account created")
	return reply.User, nil
}

// ResetPassword asks the backend to reset an operator's password. It needs no
// session.
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if strings.TrimSpace(req.Username) == "" {
		return api.ValidationError("Nom d'utilisateur requis")
	}
	_, err := c.api.Do(ctx, api.Request{
		Method:    http.MethodPost,
		Path:      "/auth/reset-password",
		Body:      req,
		Anonymous: true,
	}, nil)
	return err
}

// UpdateProfile changes the current operator's record and keeps the stored copy in
// step with the backend's reply.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*User, error) {
	if err := c.require(ctx, permission.ProfileUpdate); err != nil {
		return nil, err
	}
	if update.NewPassword != "" && update.CurrentPassword == "" {
		return nil, api.ValidationError("Mot de passe actuel requis")
	}

	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	var reply struct {
		User *User `json:"utilisateur"`
	}
	resp, err := c.api.Put(ctx, "/utilisateurs/profile", update, &reply)
	if err != nil {
		return nil, err
	}
	if resp.NotFound {
		return nil, api.NewError(api.KindServer, "Profil introuvable", resp.Status, nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen || c.current == nil {
		return nil, api.SessionExpiredError()
	}
	user := reply.User
	if user == nil {
		user = applyProfile(c.current.User, update)
	}
	if err := c.store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	c.current.User = user.Clone()
	return user.Clone(), nil
}

func applyProfile(u *User, update ProfileUpdate) *User {
	out := u.Clone()
	if update.FullName != "" {
		out.FullName = update.FullName
	}
	if update.Email != "" {
		out.Email = update.Email
	}
	if update.Agency != "" {
		out.Agency = update.Agency
	}
	return out
}
