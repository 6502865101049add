package session

import (
	"context"
	"errors"
	"sync"
)

const (
	// DefaultTokenKey is the storage key of the bearer token.
	DefaultTokenKey = "auth_token"
	// DefaultUserKey is the storage key of the serialized user record.
	DefaultUserKey = "user_data"
)

// ErrEmptyToken is returned by [Store.Save] when the token is blank.
var ErrEmptyToken = errors.New("empty token")

// ErrNilUser is returned by [Store.Save] when no user record is given.
var ErrNilUser = errors.New("nil user")

// TokenSink receives the current bearer token after every save or clear. An empty
// token means the credentials were removed.
type TokenSink interface {
	SetBearerToken(token string)
}

// Store pairs the bearer token with the user record on top of a [Storage] backend.
//
// Both values are written in one Storage.Save and removed in one Storage.Delete; a
// Load that finds only one of them reports the credentials as absent and removes the
// orphan.
type Store struct {
	storage  Storage
	tokenKey string
	userKey  string

	mu   sync.Mutex
	sink TokenSink
}

// NewStore creates a credential [Store]. Empty key names fall back to
// [DefaultTokenKey] and [DefaultUserKey].
func NewStore(storage Storage, tokenKey, userKey string) *Store {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	if tokenKey == "" {
		tokenKey = DefaultTokenKey
	}
	if userKey == "" {
		userKey = DefaultUserKey
	}
	return &Store{
		storage:  storage,
		tokenKey: tokenKey,
		userKey:  userKey,
	}
}

// SetTokenSink registers the component notified of token changes.
func (s *Store) SetTokenSink(sink TokenSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Save persists token and user together.
func (s *Store) Save(ctx context.Context, token string, user *User) error {
	if token == "" {
		return ErrEmptyToken
	}
	if user == nil {
		return ErrNilUser
	}
	encoded, err := EncodeUser(user)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Save(ctx, map[string]string{
		s.tokenKey: token,
		s.userKey:  encoded,
	}); err != nil {
		return err
	}
	s.notify(token)
	return nil
}

// Load returns the persisted credentials. ok is false when either value is missing;
// a record that fails to decode is returned as [ErrUserCorrupt].
func (s *Store) Load(ctx context.Context) (Credentials, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.storage.Load(ctx, s.tokenKey, s.userKey)
	if err != nil {
		return Credentials{}, false, err
	}

	token, hasToken := values[s.tokenKey]
	rawUser, hasUser := values[s.userKey]
	if !hasToken && !hasUser {
		return Credentials{}, false, nil
	}
	if !hasToken || !hasUser || token == "" {
		// Half a pair is never exposed; drop what is left.
		if err := s.storage.Delete(ctx, s.tokenKey, s.userKey); err != nil {
			return Credentials{}, false, err
		}
		return Credentials{}, false, nil
	}

	user, err := DecodeUser(rawUser)
	if err != nil {
		return Credentials{}, false, err
	}
	return Credentials{Token: token, User: user}, true, nil
}

// Clear removes both values. Clearing an empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Delete(ctx, s.tokenKey, s.userKey); err != nil {
		return err
	}
	s.notify("")
	return nil
}

// UpdateUser replaces the stored user record while keeping the token. It fails with
// [ErrEmptyToken] when no token is stored.
func (s *Store) UpdateUser(ctx context.Context, user *User) error {
	if user == nil {
		return ErrNilUser
	}
	encoded, err := EncodeUser(user)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.storage.Load(ctx, s.tokenKey)
	if err != nil {
		return err
	}
	if values[s.tokenKey] == "" {
		return ErrEmptyToken
	}
	return s.storage.Save(ctx, map[string]string{s.userKey: encoded})
}

func (s *Store) notify(token string) {
	if s.sink != nil {
		s.sink.SetBearerToken(token)
	}
}
