package handlers

import (
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"krushak/internal/types"
	"krushak/internal/workflow"
)

// ControllerFactory builds a fresh, idle controller for a new session.
type ControllerFactory func() *workflow.Controller

// SessionMetrics observes the session store. *telemetry.Metrics implements it.
type SessionMetrics interface {
	SetActiveSessions(n int)
	SessionEvicted()
}

// SessionStore keeps one workflow controller per session in a bounded LRU.
// When the store is full the least recently used session is dropped; its
// in-flight calls are invalidated and it cannot be recovered.
type SessionStore struct {
	cache   *lru.Cache[string, *workflow.Controller]
	factory ControllerFactory
	metrics SessionMetrics
}

// NewSessionStore creates a store holding at most capacity sessions.
func NewSessionStore(capacity int, factory ControllerFactory, metrics SessionMetrics) (*SessionStore, error) {
	if factory == nil {
		return nil, fmt.Errorf("session store: controller factory must not be nil")
	}
	cache, err := lru.NewWithEvict[string, *workflow.Controller](capacity, func(_ string, c *workflow.Controller) {
		c.Reset()
	})
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	return &SessionStore{cache: cache, factory: factory, metrics: metrics}, nil
}

// Create starts a new session and returns its ID and controller.
func (s *SessionStore) Create() (string, *workflow.Controller) {
	id := uuid.NewString()
	c := s.factory()
	evicted := s.cache.Add(id, c)
	if s.metrics != nil {
		if evicted {
			s.metrics.SessionEvicted()
		}
		s.metrics.SetActiveSessions(s.cache.Len())
	}
	return id, c
}

// Get returns the controller of a live session.
func (s *SessionStore) Get(id string) (*workflow.Controller, error) {
	if c, ok := s.cache.Get(id); ok {
		return c, nil
	}
	return nil, types.NewAppErrorWithDetails(types.ErrCodeNotFoundSession,
		"session not found or expired", nil, map[string]any{"session_id": id})
}

// Delete drops a session. It reports whether the session existed.
func (s *SessionStore) Delete(id string) bool {
	ok := s.cache.Remove(id)
	if ok && s.metrics != nil {
		s.metrics.SetActiveSessions(s.cache.Len())
	}
	return ok
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	return s.cache.Len()
}
