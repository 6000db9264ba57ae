package privacy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/71220903/coredev-finance-flow-sub001/internal/database"
)

// PrivacyService handles data anonymization and privacy compliance
type PrivacyService struct {
	db *database.DB
}

// NewService creates a new privacy service
func NewService(db *database.DB) *PrivacyService {
	return &PrivacyService{db: db}
}

// AnonymizeData creates anonymized versions of personal identifiers
func (ps *PrivacyService) AnonymizeData(data string) string {
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// IsPublicData checks if a profile field can be shown without explicit
// consent. Wallet addresses and loan terms are on-chain and public;
// anything that links a wallet to an off-chain identity is not.
func (ps *PrivacyService) IsPublicData(field string) bool {
	switch field {
	case "address", "trust_score", "risk_category", "loan_terms":
		return true
	case "github_handle", "email":
		return false
	default:
		return false
	}
}

// DeleteBorrowerData removes the off-chain reputation data associated
// with a borrower address
func (ps *PrivacyService) DeleteBorrowerData(address string) error {
	slog.Info("Initiating GDPR-compliant data deletion", "address", shortID(address))

	profileResult, err := ps.db.Exec("DELETE FROM borrower_profiles WHERE address = ?", address)
	if err != nil {
		return fmt.Errorf("failed to delete borrower profile: %w", err)
	}
	profileRows, _ := profileResult.RowsAffected()

	// Market records stay (the loans happened on-chain), but the embedded
	// off-chain handle is scrubbed from the stored payloads
	marketResult, err := ps.db.Exec(
		`UPDATE markets SET payload = json_set(payload, '$.borrower_profile.github_handle', ''), updated_at = ?
		 WHERE borrower = ?`, time.Now(), address)
	if err != nil {
		return fmt.Errorf("failed to scrub market payloads: %w", err)
	}
	marketRows, _ := marketResult.RowsAffected()

	slog.Info("Data deletion completed",
		"address", shortID(address),
		"profiles_deleted", profileRows,
		"markets_scrubbed", marketRows,
	)

	return nil
}

// GetDataRetentionInfo provides information about data retention policies
func (ps *PrivacyService) GetDataRetentionInfo() map[string]interface{} {
	return map[string]interface{}{
		"profile_retention_days":      365,
		"market_snapshot_ttl_minutes": 15,
		"anonymization_method":        "SHA-256",
		"data_deletion_response_time": "24 hours",
		"privacy_policy_url":          "/privacy-policy",
	}
}

// ScheduleDataCleanup deletes inactive borrower profiles past retention
func (ps *PrivacyService) ScheduleDataCleanup(retentionDays int) error {
	slog.Info("Scheduling data cleanup", "retention_days", retentionDays)

	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	result, err := ps.db.Exec(
		"DELETE FROM borrower_profiles WHERE updated_at < ? AND is_active = FALSE", cutoffDate)
	if err != nil {
		return fmt.Errorf("failed to delete stale profiles: %w", err)
	}

	rows, _ := result.RowsAffected()
	slog.Info("Data cleanup completed", "cutoff_date", cutoffDate, "profiles_deleted", rows)
	return nil
}

// GetPrivacySettings returns the stored footprint for a borrower address
func (ps *PrivacyService) GetPrivacySettings(address string) (map[string]interface{}, error) {
	query := `
		SELECT
			COUNT(*) as total_markets,
			MAX(created_at) as last_market_date,
			MIN(created_at) as first_market_date
		FROM markets
		WHERE borrower = ?
	`

	var totalMarkets int
	var lastMarketDate, firstMarketDate *time.Time

	err := ps.db.QueryRow(query, address).Scan(&totalMarkets, &lastMarketDate, &firstMarketDate)
	if err != nil {
		return nil, fmt.Errorf("failed to get privacy settings: %w", err)
	}

	return map[string]interface{}{
		"address":             shortID(address),
		"total_markets":       totalMarkets,
		"last_market_date":    lastMarketDate,
		"first_market_date":   firstMarketDate,
		"data_retention_info": ps.GetDataRetentionInfo(),
		"can_delete_data":     true,
	}, nil
}

// SetProfileVisibility toggles whether a borrower profile appears in
// public catalogue views
func (ps *PrivacyService) SetProfileVisibility(address string, visible bool) error {
	result, err := ps.db.Exec(
		"UPDATE borrower_profiles SET is_active = ?, updated_at = ? WHERE address = ?",
		visible, time.Now(), address)
	if err != nil {
		return fmt.Errorf("failed to update profile visibility: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	slog.Info("Profile visibility updated",
		"address", shortID(address),
		"visible", visible,
		"rows_affected", rowsAffected,
	)

	return nil
}

func shortID(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8] + "..."
}
