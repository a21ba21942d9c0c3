package redis

import (
	"context"
	"sync"
	"time"

	"assessment-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of SessionRepository.
// Notes:
//   - Controllers are in-process, so sessions stay in a local map.
//   - Redis holds a liveness marker per session (learner and scope) so other
//     instances and operators can see which attempts are open.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	// best-effort liveness marker
	_ = s.client.HSet(context.Background(), s.key(session.ID),
		"learner", session.LearnerID,
		"scope", session.Scope,
		"opened_at", session.OpenedAt.UTC().Format(time.RFC3339),
	).Err()
	if s.ttl > 0 {
		_ = s.client.Expire(context.Background(), s.key(session.ID), s.ttl).Err()
	}
}

func (s *SessionStore) Get(id string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	_ = s.client.Del(context.Background(), s.key(id)).Err()
}

// List returns the live sessions in no particular order.
func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

func (s *SessionStore) key(id string) string {
	return "assessment:session:" + id
}
