// Package session holds bearer-token sessions as an explicit dependency.
// Handlers and workflow clients receive a session or a session store at
// construction time; nothing reads auth state ambiently.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
)

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleVendor Role = "vendor"
	RoleAdmin  Role = "admin"
)

type Session struct {
	Token   string
	ActorID string
	Role    Role
}

type Store struct {
	mu      sync.RWMutex
	byToken map[string]Session
}

func NewStore() *Store {
	return &Store{byToken: make(map[string]Session)}
}

// Issue creates a session with a random token.
func (s *Store) Issue(actorID string, role Role) Session {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	sess := Session{Token: hex.EncodeToString(buf), ActorID: actorID, Role: role}
	s.Put(sess)
	return sess
}

// Put registers a pre-built session (fixed tokens from config, tests).
func (s *Store) Put(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byToken[sess.Token] = sess
}

func (s *Store) Get(token string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byToken[token]
	return sess, ok
}

func (s *Store) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byToken, token)
}
