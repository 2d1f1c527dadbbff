// Package memory is an in-process goGate.AccountStore. A single mutex serializes
// every mutation, which makes each conditional operation atomic.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/google/uuid"
)

// Store keeps accounts in maps keyed by id with secondary indexes.
type Store struct {
	mu           sync.Mutex
	now          func() time.Time
	accounts     map[string]*goGate.Account
	byHandle     map[string]string
	byEmail      map[string]string
	byResetHash  map[string]string
	byActivation map[string]string
}

var _ goGate.AccountStore = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		now:          time.Now,
		accounts:     make(map[string]*goGate.Account),
		byHandle:     make(map[string]string),
		byEmail:      make(map[string]string),
		byResetHash:  make(map[string]string),
		byActivation: make(map[string]string),
	}
}

// WithClock sets the clock used for UpdatedAt stamps on writes that carry no time.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) GetByID(_ context.Context, id string) (*goGate.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneByID(id)
}

func (s *Store) GetByHandle(_ context.Context, handle string) (*goGate.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneByID(s.byHandle[goGate.NormalizeKey(handle)])
}

func (s *Store) GetByEmail(_ context.Context, email string) (*goGate.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneByID(s.byEmail[goGate.NormalizeKey(email)])
}

func (s *Store) GetByResetTokenHash(_ context.Context, hash string) (*goGate.Account, error) {
	if hash == "" {
		return nil, goGate.ErrAccountNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneByID(s.byResetHash[hash])
}

func (s *Store) GetByActivationToken(_ context.Context, token string) (*goGate.Account, error) {
	if token == "" {
		return nil, goGate.ErrAccountNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneByID(s.byActivation[token])
}

// Create stores a copy of acc. An empty ID is filled with a random UUID and written
// back to acc.
func (s *Store) Create(_ context.Context, acc *goGate.Account) error {
	if acc == nil {
		return errors.New("nil account")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	handle := goGate.NormalizeKey(acc.Handle)
	email := goGate.NormalizeKey(acc.Email)
	if _, ok := s.byHandle[handle]; ok {
		return goGate.ErrAccountExists
	}
	if _, ok := s.byEmail[email]; ok {
		return goGate.ErrAccountExists
	}
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	if _, ok := s.accounts[acc.ID]; ok {
		return goGate.ErrAccountExists
	}

	stored := acc.Clone()
	s.accounts[stored.ID] = stored
	s.byHandle[handle] = stored.ID
	s.byEmail[email] = stored.ID
	if stored.ResetTokenHash != "" {
		s.byResetHash[stored.ResetTokenHash] = stored.ID
	}
	if stored.ActivationToken != "" {
		s.byActivation[stored.ActivationToken] = stored.ID
	}
	return nil
}

func (s *Store) RecordLoginFailure(_ context.Context, id string, policy goGate.LockoutPolicy) (goGate.LoginFailure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return goGate.LoginFailure{}, goGate.ErrAccountNotFound
	}
	return acc.ApplyLoginFailure(policy), nil
}

func (s *Store) RecordLoginSuccess(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return goGate.ErrAccountNotFound
	}
	acc.ApplyLoginSuccess(s.now())
	return nil
}

func (s *Store) SetResetChallenge(_ context.Context, id string, challenge goGate.ResetChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return goGate.ErrAccountNotFound
	}
	s.unindexReset(acc)
	acc.ApplyResetChallenge(challenge, s.now())
	s.indexReset(acc)
	return nil
}

func (s *Store) RotateResetToken(_ context.Context, rotation goGate.ResetRotation) (*goGate.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byResetHash[rotation.OldHash]
	if !ok || rotation.OldHash == "" {
		return nil, goGate.ErrAccountNotFound
	}
	acc := s.accounts[id]

	s.unindexReset(acc)
	err := acc.ApplyResetRotation(rotation)
	s.indexReset(acc)
	if err != nil {
		return nil, err
	}
	return acc.Clone(), nil
}

func (s *Store) UpdatePassword(_ context.Context, id string, update goGate.PasswordUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return goGate.ErrAccountNotFound
	}

	s.unindexReset(acc)
	err := acc.ApplyPasswordUpdate(update)
	s.indexReset(acc)
	return err
}

func (s *Store) SetActivationToken(_ context.Context, id, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return goGate.ErrAccountNotFound
	}
	if acc.ActivationToken != "" {
		delete(s.byActivation, acc.ActivationToken)
	}
	acc.ApplyActivationToken(token, expiresAt, s.now())
	if token != "" {
		s.byActivation[token] = acc.ID
	}
	return nil
}

func (s *Store) ConsumeActivation(_ context.Context, token string, now time.Time) (*goGate.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byActivation[token]
	if !ok || token == "" {
		return nil, goGate.ErrAccountNotFound
	}
	acc := s.accounts[id]
	if err := acc.ApplyActivation(now); err != nil {
		return nil, err
	}
	delete(s.byActivation, token)
	return acc.Clone(), nil
}

func (s *Store) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return goGate.ErrAccountNotFound
	}
	acc.Active = active
	acc.UpdatedAt = s.now()
	return nil
}

// Put inserts or replaces acc without uniqueness checks. It is meant for seeding.
func (s *Store) Put(acc *goGate.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.accounts[acc.ID]; ok {
		delete(s.byHandle, goGate.NormalizeKey(old.Handle))
		delete(s.byEmail, goGate.NormalizeKey(old.Email))
		s.unindexReset(old)
		if old.ActivationToken != "" {
			delete(s.byActivation, old.ActivationToken)
		}
	}

	stored := acc.Clone()
	s.accounts[stored.ID] = stored
	s.byHandle[goGate.NormalizeKey(stored.Handle)] = stored.ID
	s.byEmail[goGate.NormalizeKey(stored.Email)] = stored.ID
	s.indexReset(stored)
	if stored.ActivationToken != "" {
		s.byActivation[stored.ActivationToken] = stored.ID
	}
}

func (s *Store) cloneByID(id string) (*goGate.Account, error) {
	acc, ok := s.accounts[id]
	if !ok || id == "" {
		return nil, goGate.ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (s *Store) unindexReset(acc *goGate.Account) {
	if acc.ResetTokenHash != "" {
		delete(s.byResetHash, acc.ResetTokenHash)
	}
}

func (s *Store) indexReset(acc *goGate.Account) {
	if acc.ResetTokenHash != "" {
		s.byResetHash[acc.ResetTokenHash] = acc.ID
	}
}
