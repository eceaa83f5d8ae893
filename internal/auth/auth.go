package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"teachat/pkg/interfaces"
	"teachat/pkg/types"
)

// Supported identity modes
const (
	ModeQuery = "query"
	ModeToken = "token"
)

// QueryParamAuthenticator trusts the user_id connection parameter.
// FUNCTIONAL DISCOVERY: A missing user_id is an anonymous connection; a
// present but malformed one is refused
type QueryParamAuthenticator struct{}

// Authenticate implements interfaces.Authenticator
func (QueryParamAuthenticator) Authenticate(params url.Values) (int64, error) {
	raw := strings.TrimSpace(params.Get("user_id"))
	if raw == "" {
		return 0, nil
	}
	userID, err := types.ParseUserID(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", interfaces.ErrInvalidIdentity, err)
	}
	return userID, nil
}

// TokenAuthenticator verifies an HS256 token whose subject is the user id
type TokenAuthenticator struct {
	secret []byte
}

// NewTokenAuthenticator creates a token authenticator for secret
func NewTokenAuthenticator(secret string) *TokenAuthenticator {
	return &TokenAuthenticator{secret: []byte(secret)}
}

// Authenticate implements interfaces.Authenticator. A missing token is an
// anonymous connection.
func (a *TokenAuthenticator) Authenticate(params url.Values) (int64, error) {
	raw := strings.TrimSpace(params.Get("token"))
	if raw == "" {
		return 0, nil
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, fmt.Errorf("%w: token expired", interfaces.ErrUnauthorized)
		}
		return 0, fmt.Errorf("%w: %v", interfaces.ErrUnauthorized, err)
	}
	if !token.Valid {
		return 0, interfaces.ErrUnauthorized
	}

	userID, err := types.ParseUserID(claims.Subject)
	if err != nil {
		return 0, fmt.Errorf("%w: subject is not a user id", interfaces.ErrUnauthorized)
	}
	return userID, nil
}

// New builds the authenticator for mode
func New(mode, secret string) (interfaces.Authenticator, error) {
	switch mode {
	case "", ModeQuery:
		return QueryParamAuthenticator{}, nil
	case ModeToken:
		if secret == "" {
			return nil, errors.New("token mode requires a secret")
		}
		return NewTokenAuthenticator(secret), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}
