package core

import (
	"errors"
	"time"
)

var (
	ErrTokenExpired = errors.New("token has expired")
	ErrInvalidToken = errors.New("invalid token")
)

// Principal is the verified subject of a bearer token
type Principal struct {
	ID        string    // Unique token identifier
	Subject   string    // Who the token was issued to
	Audience  string    // Gateway or relayer
	IssuedAt  time.Time // When the token was issued
	ExpiresAt time.Time // When the token expires
}
