package auth

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"teachat/pkg/interfaces"
)

func signToken(t *testing.T, secret, subject string, expires time.Time, method jwt.SigningMethod) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestQueryParamAuthenticator(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    int64
		wantErr error
	}{
		{"anonymous", "", 0, nil},
		{"user", "user_id=7", 7, nil},
		{"padded", "user_id=%2007", 7, nil},
		{"not a number", "user_id=alice", 0, interfaces.ErrInvalidIdentity},
		{"zero", "user_id=0", 0, interfaces.ErrInvalidIdentity},
		{"negative", "user_id=-1", 0, interfaces.ErrInvalidIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, _ := url.ParseQuery(tt.query)
			got, err := QueryParamAuthenticator{}.Authenticate(params)
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Fatalf("Authenticate error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Authenticate = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTokenAuthenticator(t *testing.T) {
	a := NewTokenAuthenticator("secret")
	future := time.Now().Add(time.Hour)

	valid := signToken(t, "secret", "42", future, jwt.SigningMethodHS256)
	if got, err := a.Authenticate(url.Values{"token": {valid}}); err != nil || got != 42 {
		t.Errorf("valid token = %d, %v; want 42", got, err)
	}

	if got, err := a.Authenticate(url.Values{}); err != nil || got != 0 {
		t.Errorf("missing token = %d, %v; want anonymous", got, err)
	}

	rejected := map[string]string{
		"wrong secret": signToken(t, "other", "42", future, jwt.SigningMethodHS256),
		"expired":      signToken(t, "secret", "42", time.Now().Add(-time.Minute), jwt.SigningMethodHS256),
		"bad subject":  signToken(t, "secret", "alice", future, jwt.SigningMethodHS256),
		"wrong alg":    signToken(t, "secret", "42", future, jwt.SigningMethodHS512),
		"garbage":      "not-a-token",
	}
	for name, token := range rejected {
		t.Run(name, func(t *testing.T) {
			if _, err := a.Authenticate(url.Values{"token": {token}}); !errors.Is(err, interfaces.ErrUnauthorized) {
				t.Errorf("Expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	if a, err := New("", ""); err != nil {
		t.Errorf("default mode failed: %v", err)
	} else if _, ok := a.(QueryParamAuthenticator); !ok {
		t.Errorf("default mode should be query, got %T", a)
	}
	if _, err := New(ModeToken, ""); err == nil {
		t.Error("token mode without secret should fail")
	}
	if _, err := New(ModeToken, "s"); err != nil {
		t.Errorf("token mode failed: %v", err)
	}
	if _, err := New("ldap", ""); err == nil {
		t.Error("unknown mode should fail")
	}
}
