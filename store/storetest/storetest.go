// Package storetest checks goGate.AccountStore implementations against the
// behavior the engine relies on.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) goGate.AccountStore

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Run executes every conformance check against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndLookup", func(t *testing.T) { testCreateAndLookup(t, newStore(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, newStore(t)) })
	t.Run("LoginFailureLocks", func(t *testing.T) { testLoginFailureLocks(t, newStore(t)) })
	t.Run("LoginFailureAfterExpiry", func(t *testing.T) { testLoginFailureAfterExpiry(t, newStore(t)) })
	t.Run("LoginFailureConcurrent", func(t *testing.T) { testLoginFailureConcurrent(t, newStore(t)) })
	t.Run("ResetRotation", func(t *testing.T) { testResetRotation(t, newStore(t)) })
	t.Run("ResetRotationAttempts", func(t *testing.T) { testResetRotationAttempts(t, newStore(t)) })
	t.Run("ResetChallengeOverwrite", func(t *testing.T) { testResetChallengeOverwrite(t, newStore(t)) })
	t.Run("UpdatePasswordPreconditions", func(t *testing.T) { testUpdatePasswordPreconditions(t, newStore(t)) })
	t.Run("Activation", func(t *testing.T) { testActivation(t, newStore(t)) })
	t.Run("SetActive", func(t *testing.T) { testSetActive(t, newStore(t)) })
}

// NewAccount returns a verified local account ready for Create.
func NewAccount(handle string) *goGate.Account {
	return &goGate.Account{
		Handle:       handle,
		Email:        handle + "@example.com",
		PasswordHash: "hash-" + handle,
		AuthMethod:   goGate.AuthLocal,
		Role:         "user",
		Verification: goGate.Verified,
		Active:       true,
		CreatedAt:    base,
		UpdatedAt:    base,
	}
}

func create(t *testing.T, s goGate.AccountStore, acc *goGate.Account) *goGate.Account {
	t.Helper()
	require.NoError(t, s.Create(context.Background(), acc))
	require.NotEmpty(t, acc.ID)
	return acc
}

func testCreateAndLookup(t *testing.T, s goGate.AccountStore) {
	ctx := context.Background()
	acc := create(t, s, NewAccount("Alice"))

	got, err := s.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Handle)
	assert.Equal(t, goGate.Verified, got.Verification)

	got, err = s.GetByHandle(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)

	got, err = s.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)

	_, err = s.GetByHandle(ctx, "bob")
	assert.ErrorIs(t, err, goGate.ErrAccountNotFound)
	_, err = s.GetByResetTokenHash(ctx, "nope")
	assert.ErrorIs(t, err, goGate.ErrAccountNotFound)
	_, err = s.GetByActivationToken(ctx, "nope")
	assert.ErrorIs(t, err, goGate.ErrAccountNotFound)

	got.Handle = "mutated"
	again, err := s.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", again.Handle, "store must not hand out shared records")
}

func testCreateDuplicate(t *testing.T, s goGate.AccountStore) {
	create(t, s, NewAccount("alice"))

	dupHandle := NewAccount("ALICE")
	dupHandle.Email = "other@example.com"
	assert.ErrorIs(t, s.Create(context.Background(), dupHandle), goGate.ErrAccountExists)

	dupEmail := NewAccount("alice2")
	dupEmail.Email = "alice@example.com"
	assert.ErrorIs(t, s.Create(context.Background(), dupEmail), goGate.ErrAccountExists)
}

func testLoginFailureLocks(t *testing.T, s goGate.AccountStore) {
	ctx := context.Background()
	acc := create(t, s, NewAccount("alice"))
	policy := goGate.LockoutPolicy{Threshold: 3, Duration: 15 * time.Minute, Now: base}

	for i := 1; i < 3; i++ {
		res, err := s.RecordLoginFailure(ctx, acc.ID, policy)
		require.NoError(t, err)
		assert.Equal(t, i, res.FailedLogins)
		assert.False(t, res.Locked)
	}

	res, err := s.RecordLoginFailure(ctx, acc.ID, policy)
	require.NoError(t, err)
	assert.True(t, res.Locked)
	assert.Equal(t, 3, res.FailedLogins)
	assert.True(t, res.LockedUntil.Equal(base.Add(15*time.Minute)))

	got, err := s.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, got.LockedAt(base.Add(time.Minute)))

	require.NoError(t, s.RecordLoginSuccess(ctx, acc.ID))
	got, err = s.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailedLogins)
	assert.True(t, got.LockedUntil.IsZero())
}

func testLoginFailureAfterExpiry(t *testing.T, s goGate.AccountStore) {
	ctx := context.Background()
	acc := create(t, s, NewAccount("alice"))
	policy := goGate.LockoutPolicy{Threshold: 2, Duration: time.Minute, Now: base}

	for i := 0; i < 2; i++ {
		_, err := s.RecordLoginFailure(ctx, acc.ID, policy)
		require.NoError(t, err)
	}

	policy.Now = base.Add(2 * time.Minute)
	res, err := s.RecordLoginFailure(ctx, acc.ID, policy)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedLogins)
	assert.False(t, res.Locked)
	assert.True(t, res.LockedUntil.IsZero())
}

func testLoginFailureConcurrent(t *testing.T, s goGate.AccountStore) {
	ctx := context.Background()
	acc := create(t, s, NewAccount("alice"))
	policy := goGate.LockoutPolicy{Threshold: 10, Duration: time.Minute, Now: base}

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	locks := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.RecordLoginFailure(ctx, acc.ID, policy)
			if err != nil {
				t.Errorf("RecordLoginFailure: %v", err)
				return
			}
			if res.Locked {
				mu.Lock()
				locks++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, err := s.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, got.FailedLogins, "increments must not be lost")
	assert.Equal(t, 1, locks, "exactly one failure crosses the threshold")
}

func challenge() goGate.ResetChallenge {
	return goGate.ResetChallenge{
		TokenHash:     "hash-1",
		ExpiresAt:     base.Add(time.Hour),
		Code:          "123456",
		CodeExpiresAt: base.Add(15 * time.Minute),
	}
}

func testResetRotation(t *testing.T, s goGate.AccountStore) {
	ctx := context.Background()
	acc := create(t, s, NewAccount("alice"))
	require.NoError(t, s.SetResetChallenge(ctx, acc.ID, challenge()))

	got, err := s.GetByResetTokenHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	assert.False(t, got.ResetCodeVerified)

	rotation := goGate.ResetRotation{
		OldHash:      "hash-1",
		Code:         "123456",
		NewHash:      "hash-2",
		NewExpiresAt: base.Add(2 * time.Hour),
		MaxAttempts:  5,
		Now:          base.Add(time.Minute),
	}
	rotated, err := s.RotateResetToken(ctx, rotation)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, rotated.ID)
	assert.True(t, rotated.ResetCodeVerified)
	assert.Empty(t, rotated.ResetCode)

	_, err = s.GetByResetTokenHash(ctx, "hash-1")
	assert.ErrorIs(t, err, goGate.ErrAccountNotFound)

	_, err = s.RotateResetToken(ctx, rotation)
	assert.ErrorIs(t, err, goGate.ErrAccountNotFound, "old token must not rotate twice")

	// The verified token cannot be rotated again with the consumed code.
	rotation.OldHash = "hash-2"
	rotation.NewHash = "hash-3"
	_, err = s.RotateResetToken(ctx, rotation)
	assert.ErrorIs(t, err, goGate.ErrConflict)
}

func testResetRotationAttempts(t *testing.T, s goGate.AccountStore) {
	ctx := context.Background()
	acc := create(t, s, NewAccount("alice"))
	require.NoError(t, s.SetResetChallenge(ctx, acc.ID, challenge()))

	wrong := goGate.ResetRotation{
		OldHash:      "hash-1",
		Code:         "000000",
		NewHash:      "hash-2",
		NewExpiresAt: base.Add(2 * time.Hour),
		MaxAttempts:  3,
		Now:          base.Add(time.Minute),
	}
	for i := 0; i < 3; i++ {
		_, err := s.RotateResetToken(ctx, wrong)
		require.Error(t, err)
	}

	right := wrong
	right.Code = "123456"
	_, err := s.RotateResetToken(ctx, right)
	assert.True(t, errors.Is(err, goGate.ErrAccountNotFound) || errors.Is(err, goGate.ErrConflict),
		"challenge must be gone after max attempts, got %v", err)

	expired := goGate.ResetRotation{
		OldHash: "hash-9", Code: "123456", NewHash: "hash-10", MaxAttempts: 3,
		Now: base.Add(16 * time.Minute),
	}
	c := challenge()
	c.TokenHash = "hash-9"
	require.NoError(t, s.SetResetChallenge(ctx, acc.ID, c))
	_, err = s.RotateResetToken(ctx, expired)
	assert.ErrorIs(t, err, goGate.ErrConflict, "expired code must not rotate")
}

func testResetChallengeOverwrite(t *testing.T, s goGate.AccountStore) {
	ctx := context.Background()
	acc := create(t, s, NewAccount("alice"))
	require.NoError(t, s.SetResetChallenge(ctx, acc.ID, challenge()))

	next := challenge()
	next.TokenHash = "hash-new"
	next.Code = "654321"
	require.NoError(t, s.SetResetChallenge(ctx, acc.ID, next))

	_, err := s.GetByResetTokenHash(ctx, "hash-1")
	assert.ErrorIs(t, err, goGate.ErrAccountNotFound)

	_, err = s.RotateResetToken(ctx, goGate.ResetRotation{
		OldHash: "hash-new", Code: "123456", NewHash: "x", NewExpiresAt: base.Add(time.Hour),
		MaxAttempts: 5, Now: base,
	})
	assert.ErrorIs(t, err, goGate.ErrConflict, "previous code must not match")
}

func testUpdatePasswordPreconditions(t *testing.T, s goGate.AccountStore) {
	ctx := context.Background()
	acc := create(t, s, NewAccount("alice"))

	err := s.UpdatePassword(ctx, acc.ID, goGate.PasswordUpdate{
		NewHash: "new", ExpectedPasswordHash: "stale", Now: base,
	})
	assert.ErrorIs(t, err, goGate.ErrConflict)

	require.NoError(t, s.UpdatePassword(ctx, acc.ID, goGate.PasswordUpdate{
		NewHash:              "new",
		History:              []string{"hash-alice"},
		ExpectedPasswordHash: "hash-alice",
		Now:                  base,
	}))
	got, err := s.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.PasswordHash)
	assert.Equal(t, []string{"hash-alice"}, got.PasswordHistory)

	// Reset-token path requires a code-verified token.
	require.NoError(t, s.SetResetChallenge(ctx, acc.ID, challenge()))
	err = s.UpdatePassword(ctx, acc.ID, goGate.PasswordUpdate{
		NewHash: "newer", ExpectedResetTokenHash: "hash-1", Now: base,
	})
	assert.ErrorIs(t, err, goGate.ErrConflict)

	_, err = s.RotateResetToken(ctx, goGate.ResetRotation{
		OldHash: "hash-1", Code: "123456", NewHash: "hash-2", NewExpiresAt: base.Add(time.Hour),
		MaxAttempts: 5, Now: base,
	})
	require.NoError(t, err)

	update := goGate.PasswordUpdate{
		NewHash: "newer", History: []string{"new", "hash-alice"}, ExpectedResetTokenHash: "hash-2", Now: base,
	}
	require.NoError(t, s.UpdatePassword(ctx, acc.ID, update))
	assert.ErrorIs(t, s.UpdatePassword(ctx, acc.ID, update), goGate.ErrConflict, "token is single use")

	got, err = s.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "newer", got.PasswordHash)
	assert.Empty(t, got.ResetTokenHash)
	_, err = s.GetByResetTokenHash(ctx, "hash-2")
	assert.ErrorIs(t, err, goGate.ErrAccountNotFound)
}

func testActivation(t *testing.T, s goGate.AccountStore) {
	ctx := context.Background()
	acc := NewAccount("alice")
	acc.Verification = goGate.NotVerified
	create(t, s, acc)

	require.NoError(t, s.SetActivationToken(ctx, acc.ID, "tok-1", base.Add(time.Hour)))
	require.NoError(t, s.SetActivationToken(ctx, acc.ID, "tok-2", base.Add(time.Hour)))

	_, err := s.ConsumeActivation(ctx, "tok-1", base)
	assert.ErrorIs(t, err, goGate.ErrAccountNotFound, "replaced token must not activate")

	_, err = s.ConsumeActivation(ctx, "tok-2", base.Add(2*time.Hour))
	assert.ErrorIs(t, err, goGate.ErrConflict, "expired token must not activate")

	got, err := s.ConsumeActivation(ctx, "tok-2", base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, goGate.Verified, got.Verification)
	assert.True(t, got.Active)

	_, err = s.ConsumeActivation(ctx, "tok-2", base.Add(time.Minute))
	assert.ErrorIs(t, err, goGate.ErrAccountNotFound, "activation token is single use")
}

func testSetActive(t *testing.T, s goGate.AccountStore) {
	ctx := context.Background()
	acc := create(t, s, NewAccount("alice"))

	require.NoError(t, s.SetActive(ctx, acc.ID, false))
	got, err := s.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	assert.ErrorIs(t, s.SetActive(ctx, "missing", true), goGate.ErrAccountNotFound)
}
