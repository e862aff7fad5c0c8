package services

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"fmt"
	"time"
)

type IAuthService interface {
	Register(username, password string) (Session, error)
	Login(username, password string) (Session, error)
}

// Session is an issued token with its expiry, as returned to the peer.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

type AuthService struct {
	users    repositories.IUserRepository
	sessions *auth.Sessions
}

func NewAuthService(users repositories.IUserRepository, sessions *auth.Sessions) *AuthService {
	return &AuthService{users: users, sessions: sessions}
}

// Register validates the credentials, hashes the password and persists
// the account, then issues the first session token.
func (s *AuthService) Register(username, password string) (Session, error) {
	creds := auth.Credentials{Username: username, Password: password}

	// Business rules first, before any expensive cryptographic work.
	if err := auth.ValidateCredentials(creds); err != nil {
		return Session{}, err
	}

	// Hashing happens in the service layer so the repository never
	// sees a plain password.
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return Session{}, fmt.Errorf("hashing failed: %w", err)
	}

	userID, err := s.users.CreateUser(username, hashed)
	if err != nil {
		return Session{}, err // Propagates ErrUserAlreadyExists for taken names.
	}

	token, expiresAt, err := s.sessions.Issue(userID)
	if err != nil {
		return Session{}, errors.ErrTokenGeneration
	}
	return Session{Token: token, ExpiresAt: expiresAt}, nil
}

// Login verifies the credentials and issues a session token.
func (s *AuthService) Login(username, password string) (Session, error) {
	user, err := s.users.GetUserByName(username)
	if err != nil {
		// Same answer for unknown user and bad password, to prevent
		// user enumeration.
		return Session{}, errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return Session{}, errors.ErrInvalidCredentials
	}

	token, expiresAt, err := s.sessions.Issue(domain.UserID(user.ID))
	if err != nil {
		return Session{}, errors.ErrTokenGeneration
	}
	return Session{Token: token, ExpiresAt: expiresAt}, nil
}
