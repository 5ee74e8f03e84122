package service

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
)

// Access is the kind of operation a request performs
type Access int

const (
	AccessRead Access = iota
	AccessWrite
)

// AuthConfig holds the shared password and which operations it guards
type AuthConfig struct {
	Password         string // plain text or a bcrypt hash
	PasswordForRead  bool
	PasswordForWrite bool
}

// JWTConfig holds configuration for JWT token generation
type JWTConfig struct {
	Secret    string
	ExpiresIn int // hours
}

// AuthService checks the configured password and issues bearer tokens for it
type AuthService struct {
	cfg       AuthConfig
	jwtConfig JWTConfig
	secret    []byte
}

// NewAuthService creates a new authentication service. Without a configured
// secret a random one is used, so tokens do not survive a restart.
func NewAuthService(cfg AuthConfig, jwtConfig JWTConfig) (*AuthService, error) {
	secret := []byte(jwtConfig.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate token secret: %w", err)
		}
	}
	if jwtConfig.ExpiresIn <= 0 {
		jwtConfig.ExpiresIn = 24
	}
	return &AuthService{cfg: cfg, jwtConfig: jwtConfig, secret: secret}, nil
}

// Claims represents JWT claims
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Required reports whether access of the given kind needs credentials
func (s *AuthService) Required(access Access) bool {
	if s.cfg.Password == "" {
		return false
	}
	if access == AccessWrite {
		return s.cfg.PasswordForWrite
	}
	return s.cfg.PasswordForRead
}

// CheckPassword compares password with the configured one
func (s *AuthService) CheckPassword(password string) bool {
	if s.cfg.Password == "" {
		return false
	}
	if strings.HasPrefix(s.cfg.Password, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(s.cfg.Password), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(s.cfg.Password), []byte(password)) == 1
}

// Authorize accepts either the password or a bearer token issued by IssueToken
func (s *AuthService) Authorize(access Access, password, token string) error {
	if !s.Required(access) {
		return nil
	}
	if password != "" && s.CheckPassword(password) {
		return nil
	}
	if token != "" {
		if _, err := s.ValidateToken(token); err == nil {
			return nil
		}
	}
	return ErrUnauthorized
}

// IssueToken exchanges the password for a signed token
func (s *AuthService) IssueToken(password string) (string, time.Time, error) {
	if !s.CheckPassword(password) {
		return "", time.Time{}, ErrInvalidCredentials
	}

	token, expires, err := s.generateToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate token: %w", err)
	}
	return token, expires, nil
}

// generateToken generates a JWT token with full API scope
func (s *AuthService) generateToken() (string, time.Time, error) {
	now := time.Now()
	expirationTime := now.Add(time.Duration(s.jwtConfig.ExpiresIn) * time.Hour)

	claims := &Claims{
		Scope: "api",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "flashforge-api-server",
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expirationTime, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid || claims.Scope != "api" {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
