package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUserCorrupt is returned when a persisted user record cannot be decoded.
var ErrUserCorrupt = errors.New("user record corrupt")

// EncodeUser serializes u the way the remote API sends it.
func EncodeUser(u *User) (string, error) {
	if u == nil {
		return "", errors.New("nil user")
	}
	data, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeUser parses a record produced by [EncodeUser]. An empty username together with
// a zero id is rejected: a record like that cannot identify the session owner.
func DecodeUser(raw string) (*User, error) {
	if raw == "" {
		return nil, ErrUserCorrupt
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserCorrupt, err)
	}
	if u.ID == 0 && u.Username == "" {
		return nil, ErrUserCorrupt
	}
	return &u, nil
}
