package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/studenthub/internal/domain"
)

func newChallenge(email, code string) *domain.OTPChallenge {
	now := time.Now()
	return &domain.OTPChallenge{
		Email:     email,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Minute),
	}
}

func TestReplaceChallengeSupersedes(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	require.NoError(t, store.ReplaceChallenge(ctx, newChallenge("a@x.com", "111111")))
	require.NoError(t, store.ReplaceChallenge(ctx, newChallenge("a@x.com", "222222")))

	_, err := store.FindChallenge(ctx, "a@x.com", "111111")
	require.ErrorIs(t, err, domain.ErrNotFound)

	ch, err := store.FindChallenge(ctx, "a@x.com", "222222")
	require.NoError(t, err)
	assert.False(t, ch.Verified)
}

func TestCreateVerifiedSignupConsumesOnce(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	ch := newChallenge("a@x.com", "111111")
	require.NoError(t, store.ReplaceChallenge(ctx, ch))

	acct, err := store.CreateVerifiedSignup(ctx, ch.ID, &domain.Account{
		Username:      "alice",
		Email:         "a@x.com",
		EmailVerified: true,
	})
	require.NoError(t, err)
	assert.NotZero(t, acct.ID)
	assert.False(t, acct.CreatedAt.IsZero())

	// The consumed challenge authorizes nothing further.
	_, err = store.FindChallenge(ctx, "a@x.com", "111111")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.CreateVerifiedSignup(ctx, ch.ID, &domain.Account{
		Username: "alice2",
		Email:    "a@x.com",
	})
	require.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestCreateVerifiedSignupStaleChallengeID(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	old := newChallenge("a@x.com", "111111")
	require.NoError(t, store.ReplaceChallenge(ctx, old))
	require.NoError(t, store.ReplaceChallenge(ctx, newChallenge("a@x.com", "222222")))

	_, err := store.CreateVerifiedSignup(ctx, old.ID, &domain.Account{
		Username: "alice",
		Email:    "a@x.com",
	})
	require.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestCreateOAuthAccountConflicts(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	_, err := store.CreateOAuthAccount(ctx, &domain.Account{Username: "alice", Email: "a@x.com"})
	require.NoError(t, err)

	_, err = store.CreateOAuthAccount(ctx, &domain.Account{Username: "alice2", Email: "a@x.com"})
	require.ErrorIs(t, err, domain.ErrEmailTaken)

	_, err = store.CreateOAuthAccount(ctx, &domain.Account{Username: "alice", Email: "b@x.com"})
	require.ErrorIs(t, err, domain.ErrUsernameTaken)
}

func TestAccountLookups(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	_, err := store.FindAccountByID(ctx, 1)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.FindAccountByEmail(ctx, "a@x.com")
	require.ErrorIs(t, err, domain.ErrNotFound)

	created, err := store.CreateOAuthAccount(ctx, &domain.Account{Username: "alice", Email: "a@x.com"})
	require.NoError(t, err)

	byID, err := store.FindAccountByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	byEmail, err := store.FindAccountByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	taken, err := store.UsernameExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, taken)
	free, err := store.UsernameExists(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, free)
}
