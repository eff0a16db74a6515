package gatewaydb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.db")
	store, err := NewStore(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestUser(username string) *User {
	return &User{ID: uuid.NewString(), Username: username, Roles: []string{"user"}, Enabled: true}
}

func TestCreateAndGetUser(t *testing.T) {
	store := newTestStore(t)
	u := newTestUser("alice")
	require.NoError(t, store.CreateUser(context.Background(), u, "hunter2"))

	got, err := store.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.NotEmpty(t, got.PasswordHash)
	assert.NotEqual(t, "hunter2", got.PasswordHash)
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateUser(context.Background(), newTestUser("bob"), "pw1"))

	err := store.CreateUser(context.Background(), newTestUser("bob"), "pw2")
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestVerifyPassword_Success(t *testing.T) {
	store := newTestStore(t)
	u := newTestUser("carol")
	require.NoError(t, store.CreateUser(context.Background(), u, "correct-horse"))

	got, err := store.VerifyPassword(context.Background(), "carol", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.NotNil(t, got.LastLoginAt)
}

func TestVerifyPassword_WrongPassword(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateUser(context.Background(), newTestUser("dave"), "correct"))

	_, err := store.VerifyPassword(context.Background(), "dave", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyPassword_DisabledUser(t *testing.T) {
	store := newTestStore(t)
	u := newTestUser("erin")
	u.Enabled = false
	require.NoError(t, store.CreateUser(context.Background(), u, "pw"))

	_, err := store.VerifyPassword(context.Background(), "erin", "pw")
	assert.ErrorIs(t, err, ErrUserDisabled)
}

func TestVerifyPassword_UnknownUser(t *testing.T) {
	store := newTestStore(t)
	_, err := store.VerifyPassword(context.Background(), "nobody", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdateUser_PartialUpdate(t *testing.T) {
	store := newTestStore(t)
	u := newTestUser("frank")
	require.NoError(t, store.CreateUser(context.Background(), u, "pw"))

	newEmail := "frank@example.com"
	updated, err := store.UpdateUser(context.Background(), u.ID, UserUpdate{Email: &newEmail})
	require.NoError(t, err)
	assert.Equal(t, newEmail, updated.Email)
	assert.Equal(t, "frank", updated.Username)
}

func TestDeleteUser(t *testing.T) {
	store := newTestStore(t)
	u := newTestUser("gina")
	require.NoError(t, store.CreateUser(context.Background(), u, "pw"))

	require.NoError(t, store.DeleteUser(context.Background(), u.ID))
	_, err := store.GetUser(context.Background(), u.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDeleteUser_Unknown(t *testing.T) {
	store := newTestStore(t)
	err := store.DeleteUser(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestQuotaLimits_DefaultedOnCreate(t *testing.T) {
	store := newTestStore(t)
	u := newTestUser("henry")
	require.NoError(t, store.CreateUser(context.Background(), u, "pw"))

	limits, err := store.GetQuotaLimits(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultQuotaLimits(), *limits)
}

func TestRecordUsage_IncrementsDailyAndMonthly(t *testing.T) {
	store := newTestStore(t)
	u := newTestUser("iris")
	require.NoError(t, store.CreateUser(context.Background(), u, "pw"))

	require.NoError(t, store.RecordUsage(context.Background(), u.ID, 100, 20))
	require.NoError(t, store.RecordUsage(context.Background(), u.ID, 50, 10))

	daily, err := store.GetDailyUsage(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), daily.InputTokens)
	assert.Equal(t, int64(30), daily.OutputTokens)
	assert.Equal(t, int64(2), daily.Requests)

	monthly, err := store.GetMonthlyUsage(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), monthly.InputTokens)
	assert.Equal(t, int64(2), monthly.Requests)
}

func TestCheckQuota_ExceededDailyRequests(t *testing.T) {
	store := newTestStore(t)
	u := newTestUser("jack")
	require.NoError(t, store.CreateUser(context.Background(), u, "pw"))
	require.NoError(t, store.SetQuotaLimits(context.Background(), u.ID, QuotaLimits{
		DailyInputTokens: 1000, DailyOutputTokens: 1000, DailyRequests: 1,
		MonthlyInputTokens: 10000, MonthlyOutputTokens: 10000,
	}))

	require.NoError(t, store.RecordUsage(context.Background(), u.ID, 10, 10))

	ok, reason, err := store.CheckQuota(context.Background(), u.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "daily request limit")
}

func TestCheckQuota_WithinLimits(t *testing.T) {
	store := newTestStore(t)
	u := newTestUser("kim")
	require.NoError(t, store.CreateUser(context.Background(), u, "pw"))

	ok, reason, err := store.CheckQuota(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestListUsers(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateUser(context.Background(), newTestUser("amy"), "pw"))
	require.NoError(t, store.CreateUser(context.Background(), newTestUser("zoe"), "pw"))

	users, err := store.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "amy", users[0].Username)
	assert.Equal(t, "zoe", users[1].Username)
}
