package privacy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/71220903/coredev-finance-flow-sub001/internal/database"
)

func newTestService(t *testing.T) (*PrivacyService, *database.DB) {
	t.Helper()

	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewService(db), db
}

func seedProfile(t *testing.T, db *database.DB, address string, active bool) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO borrower_profiles
			(address, github_handle, trust_score, risk_category, successful_loans, defaulted_loans, is_verified, is_active, updated_at)
		VALUES (?, ?, 72, 'medium', 3, 0, TRUE, ?, ?)`,
		address, "dev-"+address[:6], active, time.Now())
	require.NoError(t, err)
}

func TestAnonymizeDataIsDeterministic(t *testing.T) {
	ps := &PrivacyService{}

	a := ps.AnonymizeData("0xAbC123")
	b := ps.AnonymizeData("0xAbC123")

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, ps.AnonymizeData("0xAbC124"))
}

func TestIsPublicData(t *testing.T) {
	ps := &PrivacyService{}

	tests := []struct {
		field  string
		public bool
	}{
		{"address", true},
		{"trust_score", true},
		{"risk_category", true},
		{"loan_terms", true},
		{"github_handle", false},
		{"email", false},
		{"unknown_field", false},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.public, ps.IsPublicData(tt.field))
		})
	}
}

func TestDeleteBorrowerDataRemovesProfile(t *testing.T) {
	ps, db := newTestService(t)

	seedProfile(t, db, "0x1111111111111111", true)
	seedProfile(t, db, "0x2222222222222222", true)

	err := ps.DeleteBorrowerData("0x1111111111111111")
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM borrower_profiles WHERE address = ?", "0x1111111111111111").Scan(&count))
	assert.Equal(t, 0, count)

	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM borrower_profiles WHERE address = ?", "0x2222222222222222").Scan(&count))
	assert.Equal(t, 1, count, "deletion must not touch other borrowers")
}

func TestScheduleDataCleanupDeletesOnlyInactiveStaleProfiles(t *testing.T) {
	ps, db := newTestService(t)

	seedProfile(t, db, "0x3333333333333333", false)
	seedProfile(t, db, "0x4444444444444444", true)

	stale := time.Now().AddDate(0, 0, -400)
	_, err := db.Exec("UPDATE borrower_profiles SET updated_at = ?", stale)
	require.NoError(t, err)

	require.NoError(t, ps.ScheduleDataCleanup(365))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM borrower_profiles WHERE address = ?", "0x3333333333333333").Scan(&count))
	assert.Equal(t, 0, count, "stale inactive profile should be removed")

	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM borrower_profiles WHERE address = ?", "0x4444444444444444").Scan(&count))
	assert.Equal(t, 1, count, "active profile survives cleanup regardless of age")
}

func TestGetPrivacySettingsForUnknownAddress(t *testing.T) {
	ps, _ := newTestService(t)

	settings, err := ps.GetPrivacySettings("0x5555555555555555")
	require.NoError(t, err)

	assert.Equal(t, 0, settings["total_markets"])
	assert.Equal(t, true, settings["can_delete_data"])
	assert.NotNil(t, settings["data_retention_info"])
}

func TestSetProfileVisibility(t *testing.T) {
	ps, db := newTestService(t)

	seedProfile(t, db, "0x6666666666666666", true)

	require.NoError(t, ps.SetProfileVisibility("0x6666666666666666", false))

	var active bool
	require.NoError(t, db.QueryRow("SELECT is_active FROM borrower_profiles WHERE address = ?", "0x6666666666666666").Scan(&active))
	assert.False(t, active)
}
