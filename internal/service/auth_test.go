package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

func TestAuthServicePassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	for name, configured := range map[string]string{"plain": "hunter2", "bcrypt": string(hash)} {
		t.Run(name, func(t *testing.T) {
			s, err := NewAuthService(AuthConfig{Password: configured, PasswordForWrite: true}, JWTConfig{})
			if err != nil {
				t.Fatal(err)
			}
			if !s.CheckPassword("hunter2") {
				t.Error("CheckPassword(correct) = false")
			}
			if s.CheckPassword("hunter3") || s.CheckPassword("") {
				t.Error("CheckPassword(wrong) = true")
			}
		})
	}
}

func TestAuthServiceRequired(t *testing.T) {
	tests := []struct {
		cfg         AuthConfig
		read, write bool
	}{
		{AuthConfig{}, false, false},
		{AuthConfig{PasswordForRead: true, PasswordForWrite: true}, false, false},
		{AuthConfig{Password: "x"}, false, false},
		{AuthConfig{Password: "x", PasswordForWrite: true}, false, true},
		{AuthConfig{Password: "x", PasswordForRead: true, PasswordForWrite: true}, true, true},
	}
	for _, tt := range tests {
		s, _ := NewAuthService(tt.cfg, JWTConfig{})
		if got := s.Required(AccessRead); got != tt.read {
			t.Errorf("%+v: Required(read) = %v", tt.cfg, got)
		}
		if got := s.Required(AccessWrite); got != tt.write {
			t.Errorf("%+v: Required(write) = %v", tt.cfg, got)
		}
	}
}

func TestAuthServiceTokens(t *testing.T) {
	s, _ := NewAuthService(AuthConfig{Password: "pw", PasswordForRead: true}, JWTConfig{Secret: "s3cret", ExpiresIn: 1})

	if _, _, err := s.IssueToken("nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("IssueToken(wrong) error = %v", err)
	}

	token, expires, err := s.IssueToken("pw")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if d := time.Until(expires); d < 59*time.Minute || d > time.Hour {
		t.Errorf("expires in %v, want about 1h", d)
	}
	if _, err := s.ValidateToken(token); err != nil {
		t.Errorf("ValidateToken() error = %v", err)
	}
	if err := s.Authorize(AccessRead, "", token); err != nil {
		t.Errorf("Authorize(token) error = %v", err)
	}
	if err := s.Authorize(AccessRead, "pw", ""); err != nil {
		t.Errorf("Authorize(password) error = %v", err)
	}
	if err := s.Authorize(AccessRead, "bad", "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Authorize(bad) error = %v", err)
	}

	other, _ := NewAuthService(AuthConfig{Password: "pw"}, JWTConfig{Secret: "different"})
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("token accepted under a different secret")
	}
}

func TestAuthServiceRejectsExpiredToken(t *testing.T) {
	s, _ := NewAuthService(AuthConfig{Password: "pw"}, JWTConfig{Secret: "k"})
	claims := &Claims{
		Scope: "api",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ValidateToken(token); err == nil {
		t.Error("expired token accepted")
	}
}
