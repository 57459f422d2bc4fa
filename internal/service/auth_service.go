package service

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"studio-site/internal/domain"
	"studio-site/internal/security"
)

const bcryptCost = 12

// LoginRequest is the admin login payload.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=200"`
}

// AuthService checks the single admin account and issues session tokens.
type AuthService struct {
	username     string
	passwordHash []byte
	sessions     *security.SessionTokens
}

func NewAuthService(username, passwordHash string, sessions *security.SessionTokens) *AuthService {
	return &AuthService{
		username:     username,
		passwordHash: []byte(passwordHash),
		sessions:     sessions,
	}
}

// Login returns a signed session token when the credentials match.
// The password hash is compared even when the username is wrong so both
// failures take the same time.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (string, error) {
	if err := validateStruct(&req); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	userOK := security.Equal(req.Username, s.username)
	passErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(req.Password))
	if !userOK || passErr != nil {
		return "", domain.ErrInvalidCredentials
	}

	token, err := s.sessions.Issue()
	if err != nil {
		return "", fmt.Errorf("failed to issue session: %w", err)
	}
	return token, nil
}

// Validate verifies a session token.
func (s *AuthService) Validate(token string) (*security.SessionPayload, error) {
	return s.sessions.Verify(token)
}

// HashPassword hashes a plaintext password for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
