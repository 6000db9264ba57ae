package database

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserService provides business logic for platform user administration
type UserService struct {
	repo      *Repository
	jwtSecret []byte
}

// NewUserService creates a new user service
func NewUserService(repo *Repository, jwtSecret string) *UserService {
	return &UserService{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
	}
}

// CreateUser registers a new platform user.
func (s *UserService) CreateUser(email, role string) (*User, error) {
	if role != "" && role != RoleMember && role != RoleAdmin {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	return s.repo.CreateUser(email, role)
}

// ListUsers returns platform users for the admin surface.
func (s *UserService) ListUsers(limit int) ([]User, error) {
	return s.repo.ListUsers(limit)
}

// DeactivateUser disables a user account. Accounts are never deleted.
func (s *UserService) DeactivateUser(userID string) error {
	return s.repo.SetUserActive(userID, false)
}

// ReactivateUser re-enables a previously deactivated account.
func (s *UserService) ReactivateUser(userID string) error {
	return s.repo.SetUserActive(userID, true)
}

// GenerateSessionToken generates a JWT token for an admin session
func (s *UserService) GenerateSessionToken(userID string) (string, error) {
	user, err := s.repo.GetUser(userID)
	if err != nil {
		return "", err
	}
	if !user.IsActive {
		return "", fmt.Errorf("user %s is deactivated", userID)
	}

	claims := jwt.MapClaims{
		"user_id": user.ID,
		"role":    user.Role,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// ValidateSessionToken validates a JWT token and returns the user ID and role
func (s *UserService) ValidateSessionToken(tokenString string) (string, string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return "", "", err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		userID, ok := claims["user_id"].(string)
		if !ok {
			return "", "", fmt.Errorf("user_id not found in token")
		}
		role, _ := claims["role"].(string)
		return userID, role, nil
	}

	return "", "", fmt.Errorf("invalid token")
}
