package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/71220903/coredev-finance-flow-sub001/internal/encoding"
	"github.com/71220903/coredev-finance-flow-sub001/internal/market"
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// UpsertMarket writes a market record, replacing any previous version.
// The full record is stored as a JSON payload; the scalar columns exist
// for indexing and admin queries only.
func (r *Repository) UpsertMarket(m market.LoanMarket) error {
	if err := m.Validate(); err != nil {
		return err
	}

	payload, err := encoding.MarshalJSON(m)
	if err != nil {
		return fmt.Errorf("failed to marshal market %s: %w", m.ID, err)
	}

	stmt, err := r.db.GetPreparedStatement("upsert_market")
	if err != nil {
		return err
	}

	_, err = stmt.Exec(
		m.ID, m.Borrower, m.LoanAmount, m.InterestRateBps, string(m.State),
		m.BorrowerProfile.TrustScore, m.RiskScore,
		m.CreatedAt, m.FundingDeadline, string(payload), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert market %s: %w", m.ID, err)
	}

	return nil
}

// GetMarket loads a single market by id. Returns sql.ErrNoRows when absent.
func (r *Repository) GetMarket(ctx context.Context, id string) (market.LoanMarket, error) {
	stmt, err := r.db.GetPreparedStatement("get_market")
	if err != nil {
		return market.LoanMarket{}, err
	}

	var payload string
	if err := stmt.QueryRowContext(ctx, id).Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return market.LoanMarket{}, err
		}
		return market.LoanMarket{}, fmt.Errorf("failed to get market %s: %w", id, err)
	}

	var m market.LoanMarket
	if err := encoding.UnmarshalJSON([]byte(payload), &m); err != nil {
		return market.LoanMarket{}, fmt.Errorf("failed to unmarshal market %s: %w", id, err)
	}

	return m, nil
}

// ListMarkets loads the full catalogue, newest first. The context bounds
// the query so a cancelled refresh does not hold the read open.
func (r *Repository) ListMarkets(ctx context.Context) ([]market.LoanMarket, error) {
	stmt, err := r.db.GetPreparedStatement("list_markets")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list markets: %w", err)
	}
	defer rows.Close()

	var markets []market.LoanMarket
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan market row: %w", err)
		}

		var m market.LoanMarket
		if err := encoding.UnmarshalJSON([]byte(payload), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal market row: %w", err)
		}
		markets = append(markets, m)
	}

	return markets, rows.Err()
}

// UpsertBorrowerProfile writes the flattened borrower snapshot used by
// admin queries.
func (r *Repository) UpsertBorrowerProfile(p market.DeveloperProfile) error {
	stmt, err := r.db.GetPreparedStatement("upsert_profile")
	if err != nil {
		return err
	}

	_, err = stmt.Exec(
		p.Address, p.GitHubHandle, p.TrustScore, string(p.RiskCategory),
		p.SuccessfulLoans, p.DefaultedLoans, p.IsVerified, p.IsActive, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert borrower profile %s: %w", p.Address, err)
	}

	return nil
}

// ListBorrowerProfiles returns borrower snapshots ordered by trust score.
func (r *Repository) ListBorrowerProfiles(limit int) ([]BorrowerProfileRow, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT address, github_handle, trust_score, risk_category,
			   successful_loans, defaulted_loans, is_verified, is_active, updated_at
		FROM borrower_profiles
		ORDER BY trust_score DESC, address ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list borrower profiles: %w", err)
	}
	defer rows.Close()

	var profiles []BorrowerProfileRow
	for rows.Next() {
		var p BorrowerProfileRow
		if err := rows.Scan(
			&p.Address, &p.GitHubHandle, &p.TrustScore, &p.RiskCategory,
			&p.SuccessfulLoans, &p.DefaultedLoans, &p.IsVerified, &p.IsActive, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan borrower profile: %w", err)
		}
		profiles = append(profiles, p)
	}

	return profiles, rows.Err()
}

// CreateUser inserts a new platform user.
func (r *Repository) CreateUser(email, role string) (*User, error) {
	user := NewUser(email, role)

	stmt, err := r.db.GetPreparedStatement("insert_user")
	if err != nil {
		return nil, err
	}

	_, err = stmt.Exec(user.ID, user.Email, user.Role, user.IsActive, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetUser loads a user by id.
func (r *Repository) GetUser(id string) (*User, error) {
	var user User
	err := r.db.QueryRow(`
		SELECT id, email, role, is_active, created_at, updated_at
		FROM users WHERE id = ?
	`, id).Scan(&user.ID, &user.Email, &user.Role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}

	return &user, nil
}

// ListUsers returns platform users, newest first.
func (r *Repository) ListUsers(limit int) ([]User, error) {
	if limit <= 0 {
		limit = 50
	}

	stmt, err := r.db.GetPreparedStatement("list_users")
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// SetUserActive flips a user's active flag. Users are deactivated, never
// deleted.
func (r *Repository) SetUserActive(id string, active bool) error {
	stmt, err := r.db.GetPreparedStatement("set_user_active")
	if err != nil {
		return err
	}

	result, err := stmt.Exec(active, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of user %s: %w", id, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}
