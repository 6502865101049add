package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Inspect decodes the claims of tokenStr without verifying its signature.
func Inspect(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// ExpiresAt returns the exp claim of tokenStr. Opaque tokens and tokens without exp
// report false.
func ExpiresAt(tokenStr string) (time.Time, bool) {
	claims, err := Inspect(tokenStr)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// ExpiresIn returns the remaining lifetime of tokenStr relative to now, in whole
// seconds. Expired or unreadable tokens report false.
func ExpiresIn(tokenStr string, now time.Time) (int, bool) {
	exp, ok := ExpiresAt(tokenStr)
	if !ok {
		return 0, false
	}
	left := exp.Sub(now)
	if left <= 0 {
		return 0, false
	}
	return int(left / time.Second), true
}
