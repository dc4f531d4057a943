// Package auth keeps track of the reconnection tokens handed out to
// authenticated users so that a client can rebind to its previous identity.
package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

var (
	ErrTokenInUse   = errors.New("token is already in use")
	ErrTokenUnknown = errors.New("token is not known")
)

// Profile is the part of a user's identity that survives a reconnection.
type Profile struct {
	UserGUID   uuid.UUID
	Username   string
	LobbyColor uint32
}

type session struct {
	profile Profile
	// Peer currently bound to the token, empty once the peer disconnected.
	peerID string
}

// Sessions maps tokens to sessions. Live sessions never expire; once the
// owning peer disconnects the token is kept for the configured TTL.
type Sessions struct {
	mu    sync.Mutex
	live  map[string]*session
	cache *gocache.Cache
	ttl   time.Duration
}

// NewSessions creates a store keeping released tokens for ttl.
func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{
		live:  make(map[string]*session),
		cache: gocache.New(ttl, time.Minute),
		ttl:   ttl,
	}
}

// Issue creates a brand new token bound to peerID.
func (s *Sessions) Issue(peerID string, profile Profile) string {
	token := uuid.NewString()

	s.mu.Lock()
	s.live[token] = &session{profile: profile, peerID: peerID}
	s.mu.Unlock()
	return token
}

// IsLive reports whether token is bound to a connected peer.
func (s *Sessions) IsLive(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live[token]
	return ok
}

// Rebind binds a released token to peerID and returns the profile that was
// saved with it.
func (s *Sessions) Rebind(token, peerID string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live[token]; ok {
		return Profile{}, ErrTokenInUse
	}
	value, ok := s.cache.Get(token)
	if !ok {
		return Profile{}, ErrTokenUnknown
	}
	s.cache.Delete(token)

	profile := value.(Profile)
	s.live[token] = &session{profile: profile, peerID: peerID}
	return profile, nil
}

// Update replaces the profile saved with a live token.
func (s *Sessions) Update(token string, profile Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.live[token]; ok {
		sess.profile = profile
	}
}

// Release unbinds the token from its peer and keeps the profile around for
// reconnection until the TTL passes.
func (s *Sessions) Release(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live[token]
	if !ok {
		return
	}
	delete(s.live, token)
	if s.ttl > 0 {
		s.cache.Set(token, sess.profile, gocache.DefaultExpiration)
	}
}

// Revoke forgets a token entirely, live or released.
func (s *Sessions) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, token)
	s.cache.Delete(token)
}
