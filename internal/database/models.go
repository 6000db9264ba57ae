package database

import (
	"time"

	"github.com/google/uuid"
)

// User represents a platform user account
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email,omitempty" db:"email"`
	Role      string    `json:"role" db:"role"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// User roles understood by the admin surface.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// BorrowerProfileRow is the flattened borrower snapshot stored for
// admin queries; the authoritative profile lives in the market payload.
type BorrowerProfileRow struct {
	Address         string    `json:"address" db:"address"`
	GitHubHandle    string    `json:"github_handle" db:"github_handle"`
	TrustScore      int       `json:"trust_score" db:"trust_score"`
	RiskCategory    string    `json:"risk_category" db:"risk_category"`
	SuccessfulLoans int       `json:"successful_loans" db:"successful_loans"`
	DefaultedLoans  int       `json:"defaulted_loans" db:"defaulted_loans"`
	IsVerified      bool      `json:"is_verified" db:"is_verified"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// NewUser creates a new user with generated ID
func NewUser(email, role string) *User {
	now := time.Now()
	if role == "" {
		role = RoleMember
	}
	return &User{
		ID:        uuid.New().String(),
		Email:     email,
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
