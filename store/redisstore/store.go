package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const maxRetries = 16

var (
	// ErrUnavailable wraps Redis transport failures.
	ErrUnavailable = errors.New("account redis unavailable")
	// ErrContention is returned when a transaction lost every retry.
	ErrContention = errors.New("account update contention")
)

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Store is a Redis-backed goGate.AccountStore.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ goGate.AccountStore = (*Store)(nil)

// New returns a store using keys under prefix ("gg" when empty).
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "gg"
	}
	return &Store{redis: client, prefix: prefix, now: time.Now}
}

// WithClock sets the clock used for UpdatedAt stamps on writes that carry no time.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) accountKey(id string) string { return s.prefix + ":acct:" + id }
func (s *Store) handleKey(handle string) string {
	return s.prefix + ":handle:" + goGate.NormalizeKey(handle)
}
func (s *Store) emailKey(email string) string {
	return s.prefix + ":email:" + goGate.NormalizeKey(email)
}
func (s *Store) resetKey(hash string) string       { return s.prefix + ":reset:" + hash }
func (s *Store) activationKey(token string) string { return s.prefix + ":activation:" + token }

/*
====================================
LOOKUPS
====================================
*/

func (s *Store) GetByID(ctx context.Context, id string) (*goGate.Account, error) {
	if id == "" {
		return nil, goGate.ErrAccountNotFound
	}
	return s.load(ctx, s.redis, id)
}

func (s *Store) GetByHandle(ctx context.Context, handle string) (*goGate.Account, error) {
	acc, err := s.viaIndex(ctx, s.handleKey(handle))
	if err != nil {
		return nil, err
	}
	if goGate.NormalizeKey(acc.Handle) != goGate.NormalizeKey(handle) {
		return nil, goGate.ErrAccountNotFound
	}
	return acc, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*goGate.Account, error) {
	acc, err := s.viaIndex(ctx, s.emailKey(email))
	if err != nil {
		return nil, err
	}
	if goGate.NormalizeKey(acc.Email) != goGate.NormalizeKey(email) {
		return nil, goGate.ErrAccountNotFound
	}
	return acc, nil
}

func (s *Store) GetByResetTokenHash(ctx context.Context, hash string) (*goGate.Account, error) {
	if hash == "" {
		return nil, goGate.ErrAccountNotFound
	}
	acc, err := s.viaIndex(ctx, s.resetKey(hash))
	if err != nil {
		return nil, err
	}
	if acc.ResetTokenHash != hash {
		return nil, goGate.ErrAccountNotFound
	}
	return acc, nil
}

func (s *Store) GetByActivationToken(ctx context.Context, token string) (*goGate.Account, error) {
	if token == "" {
		return nil, goGate.ErrAccountNotFound
	}
	acc, err := s.viaIndex(ctx, s.activationKey(token))
	if err != nil {
		return nil, err
	}
	if acc.ActivationToken != token {
		return nil, goGate.ErrAccountNotFound
	}
	return acc, nil
}

func (s *Store) viaIndex(ctx context.Context, indexKey string) (*goGate.Account, error) {
	id, err := s.redis.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, goGate.ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.load(ctx, s.redis, id)
}

func (s *Store) load(ctx context.Context, c getter, id string) (*goGate.Account, error) {
	data, err := c.Get(ctx, s.accountKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, goGate.ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var acc goGate.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", id, err)
	}
	return &acc, nil
}

/*
====================================
CREATE
====================================
*/

// Create writes acc and its handle and email indexes in one transaction. An empty ID is
// filled with a random UUID and written back to acc.
func (s *Store) Create(ctx context.Context, acc *goGate.Account) error {
	if acc == nil {
		return errors.New("nil account")
	}
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}

	data, err := json.Marshal(acc)
	if err != nil {
		return err
	}

	handleKey := s.handleKey(acc.Handle)
	emailKey := s.emailKey(acc.Email)
	accountKey := s.accountKey(acc.ID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, handleKey, emailKey, accountKey).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return goGate.ErrAccountExists
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, accountKey, data, 0)
				pipe.Set(ctx, handleKey, acc.ID, 0)
				pipe.Set(ctx, emailKey, acc.ID, 0)
				if acc.ActivationToken != "" {
					pipe.Set(ctx, s.activationKey(acc.ActivationToken), acc.ID, 0)
				}
				return nil
			})
			return err
		}, handleKey, emailKey, accountKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return s.mapErr(err)
	}
	return ErrContention
}

/*
====================================
CONDITIONAL UPDATES
====================================
*/

// mutation edits acc in place. persist reports whether the edit must be written even
// when err is non-nil.
type mutation func(acc *goGate.Account) (persist bool, err error)

// update runs fn against the current document inside a WATCH transaction and rewrites
// the document plus any reset or activation index that changed.
func (s *Store) update(ctx context.Context, id string, fn mutation, extraWatch ...string) (*goGate.Account, error) {
	accountKey := s.accountKey(id)
	keys := append([]string{accountKey}, extraWatch...)

	for i := 0; i < maxRetries; i++ {
		var out *goGate.Account
		var result error

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			acc, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			before := *acc

			persist, ferr := fn(acc)
			if !persist {
				return ferr
			}

			data, err := json.Marshal(acc)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, accountKey, data, 0)
				if before.ResetTokenHash != acc.ResetTokenHash {
					if before.ResetTokenHash != "" {
						pipe.Del(ctx, s.resetKey(before.ResetTokenHash))
					}
					if acc.ResetTokenHash != "" {
						pipe.Set(ctx, s.resetKey(acc.ResetTokenHash), acc.ID, 0)
					}
				}
				if before.ActivationToken != acc.ActivationToken {
					if before.ActivationToken != "" {
						pipe.Del(ctx, s.activationKey(before.ActivationToken))
					}
					if acc.ActivationToken != "" {
						pipe.Set(ctx, s.activationKey(acc.ActivationToken), acc.ID, 0)
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			out = acc
			result = ferr
			return nil
		}, keys...)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, s.mapErr(err)
		}
		if result != nil {
			return nil, result
		}
		return out, nil
	}
	return nil, ErrContention
}

func (s *Store) RecordLoginFailure(ctx context.Context, id string, policy goGate.LockoutPolicy) (goGate.LoginFailure, error) {
	var failure goGate.LoginFailure
	_, err := s.update(ctx, id, func(acc *goGate.Account) (bool, error) {
		failure = acc.ApplyLoginFailure(policy)
		return true, nil
	})
	if err != nil {
		return goGate.LoginFailure{}, err
	}
	return failure, nil
}

func (s *Store) RecordLoginSuccess(ctx context.Context, id string) error {
	_, err := s.update(ctx, id, func(acc *goGate.Account) (bool, error) {
		if acc.FailedLogins == 0 && acc.LockedUntil.IsZero() {
			return false, nil
		}
		acc.ApplyLoginSuccess(s.now())
		return true, nil
	})
	return err
}

func (s *Store) SetResetChallenge(ctx context.Context, id string, challenge goGate.ResetChallenge) error {
	_, err := s.update(ctx, id, func(acc *goGate.Account) (bool, error) {
		acc.ApplyResetChallenge(challenge, s.now())
		return true, nil
	})
	return err
}

func (s *Store) RotateResetToken(ctx context.Context, rotation goGate.ResetRotation) (*goGate.Account, error) {
	if rotation.OldHash == "" {
		return nil, goGate.ErrAccountNotFound
	}
	indexKey := s.resetKey(rotation.OldHash)

	id, err := s.redis.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, goGate.ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return s.update(ctx, id, func(acc *goGate.Account) (bool, error) {
		if acc.ResetTokenHash != rotation.OldHash {
			return false, goGate.ErrAccountNotFound
		}
		before := acc.ResetCodeAttempts
		err := acc.ApplyResetRotation(rotation)
		persist := err == nil || acc.ResetCodeAttempts != before || acc.ResetTokenHash == ""
		return persist, err
	}, indexKey)
}

func (s *Store) UpdatePassword(ctx context.Context, id string, update goGate.PasswordUpdate) error {
	_, err := s.update(ctx, id, func(acc *goGate.Account) (bool, error) {
		if err := acc.ApplyPasswordUpdate(update); err != nil {
			return false, err
		}
		return true, nil
	})
	return err
}

func (s *Store) SetActivationToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	_, err := s.update(ctx, id, func(acc *goGate.Account) (bool, error) {
		acc.ApplyActivationToken(token, expiresAt, s.now())
		return true, nil
	})
	return err
}

func (s *Store) ConsumeActivation(ctx context.Context, token string, now time.Time) (*goGate.Account, error) {
	if token == "" {
		return nil, goGate.ErrAccountNotFound
	}
	indexKey := s.activationKey(token)

	id, err := s.redis.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, goGate.ErrAccountNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return s.update(ctx, id, func(acc *goGate.Account) (bool, error) {
		if acc.ActivationToken != token {
			return false, goGate.ErrAccountNotFound
		}
		if err := acc.ApplyActivation(now); err != nil {
			return false, err
		}
		return true, nil
	}, indexKey)
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	_, err := s.update(ctx, id, func(acc *goGate.Account) (bool, error) {
		acc.Active = active
		acc.UpdatedAt = s.now()
		return true, nil
	})
	return err
}

func (s *Store) mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, goGate.ErrAccountNotFound),
		errors.Is(err, goGate.ErrAccountExists),
		errors.Is(err, goGate.ErrConflict),
		errors.Is(err, ErrUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
