package service

import (
	"crypto/subtle"
	"errors"
	"time"

	"go-customs-ledger/pkg/jwt"

	"golang.org/x/crypto/bcrypt"
)

const RoleAdmin = "ADMIN"

type AuthService interface {
	Login(username, password string) (string, error)
	TTL() time.Duration
}

// AuthOptions configures the single operator account. PasswordHash wins over
// Password when both are set.
type AuthOptions struct {
	Username     string
	Password     string
	PasswordHash string
	Secret       []byte
	TTL          time.Duration
}

type authService struct {
	username string
	hash     []byte
	secret   []byte
	ttl      time.Duration
}

func NewAuthService(opts AuthOptions) (AuthService, error) {
	s := &authService{
		username: opts.Username,
		secret:   opts.Secret,
		ttl:      opts.TTL,
	}
	if s.ttl <= 0 {
		s.ttl = 8 * time.Hour
	}

	switch {
	case opts.PasswordHash != "":
		if _, err := bcrypt.Cost([]byte(opts.PasswordHash)); err != nil {
			return nil, errors.New("ADMIN_PASSWORD_HASH is not a bcrypt hash")
		}
		s.hash = []byte(opts.PasswordHash)
	case opts.Password != "":
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		s.hash = hash
	}
	return s, nil
}

// Login checks the operator credentials and issues a session token. Without a
// configured password every attempt fails.
func (s *authService) Login(username, password string) (string, error) {
	if s.hash == nil || username == "" {
		return "", ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) != 1 {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.hash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return jwt.GenerateToken(s.secret, username, RoleAdmin, s.ttl)
}

func (s *authService) TTL() time.Duration {
	return s.ttl
}
