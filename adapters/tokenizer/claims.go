package tokenizer

import "github.com/golang-jwt/jwt/v5"

// Claims are the standard claims plus the client that requested the token
type Claims struct {
	jwt.RegisteredClaims
	Client string `json:"cli,omitempty"`
}
