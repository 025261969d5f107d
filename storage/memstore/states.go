package memstore

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
	"github.com/jrsteele09/go-azure-oauth2-client/states"
)

var _ states.Repo = (*StateRepo)(nil)

type StateRepo struct {
	store *Store
}

func (r *StateRepo) Create(_ context.Context, state *states.State) error {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()
	if _, ok := r.store.clients[state.ClientID]; !ok {
		return fmt.Errorf("%w: client %d", apperrors.ErrNotFound, state.ClientID)
	}
	if _, ok := r.store.states[state.State]; ok {
		return fmt.Errorf("%w: state", apperrors.ErrDuplicate)
	}
	r.store.nextStateID++
	state.ID = r.store.nextStateID
	r.store.states[state.State] = state.Copy()
	return nil
}

func (r *StateRepo) FindValid(_ context.Context, token string, now time.Time) (*states.State, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()
	s, ok := r.store.states[token]
	if !ok || !s.IsValid(now) {
		return nil, fmt.Errorf("%w: state", apperrors.ErrNotFound)
	}
	return s.Copy(), nil
}

func (r *StateRepo) MarkUsed(_ context.Context, token string, now time.Time) (bool, error) {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()
	s, ok := r.store.states[token]
	if !ok || !s.IsValid(now) {
		return false, nil
	}
	s.IsUsed = true
	s.UpdateTime = now
	return true, nil
}

func (r *StateRepo) CleanupExpired(_ context.Context, now time.Time) (int, error) {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()
	removed := 0
	for token, s := range r.store.states {
		if s.IsUsed || s.ExpiresTime.Before(now) {
			delete(r.store.states, token)
			removed++
		}
	}
	return removed, nil
}

// Get returns a state regardless of its validity.
func (r *StateRepo) Get(token string) (*states.State, bool) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()
	s, ok := r.store.states[token]
	return s.Copy(), ok
}
