// Package memstore keeps registrations, states and users in process memory. It backs
// the "memory" storage driver and the package tests.
package memstore

import (
	"sync"

	"github.com/jrsteele09/go-azure-oauth2-client/clients"
	"github.com/jrsteele09/go-azure-oauth2-client/states"
	"github.com/jrsteele09/go-azure-oauth2-client/users"
)

// Store holds all three collections behind one lock so that deleting a registration
// can cascade to its states and users.
type Store struct {
	lock sync.RWMutex

	clients map[int64]*clients.Client
	states  map[string]*states.State
	users   map[string]*users.User

	nextClientID int64
	nextStateID  int64
	nextUserID   int64
}

func New() *Store {
	return &Store{
		clients: make(map[int64]*clients.Client),
		states:  make(map[string]*states.State),
		users:   make(map[string]*users.User),
	}
}

func (s *Store) Clients() *ClientRepo {
	return &ClientRepo{store: s}
}

func (s *Store) States() *StateRepo {
	return &StateRepo{store: s}
}

func (s *Store) Users() *UserRepo {
	return &UserRepo{store: s}
}
