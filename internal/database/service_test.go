package database

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUserService(t *testing.T) (*UserService, *Repository) {
	t.Helper()

	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db)
	return NewUserService(repo, "test-secret"), repo
}

func TestCreateUserRoles(t *testing.T) {
	svc, _ := newTestUserService(t)

	tests := []struct {
		name     string
		role     string
		wantRole string
		wantErr  bool
	}{
		{name: "admin role", role: RoleAdmin, wantRole: RoleAdmin},
		{name: "member role", role: RoleMember, wantRole: RoleMember},
		{name: "empty role defaults to member", role: "", wantRole: RoleMember},
		{name: "unknown role rejected", role: "superuser", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := svc.CreateUser(tt.name+"@coredev.finance", tt.role)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, user.ID)
			assert.Equal(t, tt.wantRole, user.Role)
			assert.True(t, user.IsActive)
		})
	}
}

func TestListUsersReturnsNewestFirst(t *testing.T) {
	svc, _ := newTestUserService(t)

	for _, email := range []string{"a@coredev.finance", "b@coredev.finance", "c@coredev.finance"} {
		_, err := svc.CreateUser(email, RoleMember)
		require.NoError(t, err)
	}

	users, err := svc.ListUsers(10)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	limited, err := svc.ListUsers(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSessionTokenRoundTrip(t *testing.T) {
	svc, _ := newTestUserService(t)

	user, err := svc.CreateUser("ops@coredev.finance", RoleAdmin)
	require.NoError(t, err)

	token, err := svc.GenerateSessionToken(user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, role, err := svc.ValidateSessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
	assert.Equal(t, RoleAdmin, role)
}

func TestValidateSessionTokenRejectsBadTokens(t *testing.T) {
	svc, _ := newTestUserService(t)

	user, err := svc.CreateUser("ops@coredev.finance", RoleAdmin)
	require.NoError(t, err)

	token, err := svc.GenerateSessionToken(user.ID)
	require.NoError(t, err)

	// Token signed under a different secret must not validate.
	_, otherRepo := newTestUserService(t)
	otherSvc := NewUserService(otherRepo, "other-secret")
	_, _, err = otherSvc.ValidateSessionToken(token)
	assert.Error(t, err)

	_, _, err = svc.ValidateSessionToken("not.a.jwt")
	assert.Error(t, err)

	_, _, err = svc.ValidateSessionToken("")
	assert.Error(t, err)
}

func TestDeactivatedUserCannotGetToken(t *testing.T) {
	svc, _ := newTestUserService(t)

	user, err := svc.CreateUser("member@coredev.finance", RoleMember)
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateUser(user.ID))

	_, err = svc.GenerateSessionToken(user.ID)
	assert.Error(t, err)

	require.NoError(t, svc.ReactivateUser(user.ID))

	token, err := svc.GenerateSessionToken(user.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestSetUserActiveUnknownUser(t *testing.T) {
	svc, _ := newTestUserService(t)

	err := svc.DeactivateUser("no-such-user")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestGetUserTimestamps(t *testing.T) {
	svc, repo := newTestUserService(t)

	user, err := svc.CreateUser("ts@coredev.finance", RoleMember)
	require.NoError(t, err)

	loaded, err := repo.GetUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, loaded.Email)
	assert.WithinDuration(t, time.Now(), loaded.CreatedAt, 5*time.Second)
}
