// Package session хранит состояние диалога пользователей.
package session

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/orderbot/internal/model"
)

// ErrSessionNotFound возвращается, если сессия пользователя не существует.
var ErrSessionNotFound = errors.New("session not found")

// MemoryStore хранит сессии в памяти процесса. Наружу отдаются только копии.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	now      func() time.Time
}

// NewMemoryStore создаёт пустое хранилище сессий в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*model.Session),
		now:      time.Now,
	}
}

// GetOrCreate возвращает сессию пользователя, создавая её при первом обращении.
func (s *MemoryStore) GetOrCreate(_ context.Context, userID string) (*model.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[userID]
	if ok {
		c := sess.Clone()
		s.mu.RUnlock()
		return c, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		return sess.Clone(), nil
	}

	now := s.now()
	sess = &model.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[userID] = sess
	return sess.Clone(), nil
}

// Get возвращает копию сессии пользователя или ErrSessionNotFound.
func (s *MemoryStore) Get(_ context.Context, userID string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Save сохраняет копию сессии.
func (s *MemoryStore) Save(_ context.Context, sess *model.Session) error {
	if sess == nil || sess.UserID == "" {
		return errors.New("save session: empty user id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.UserID] = sess.Clone()
	return nil
}

// List возвращает копии всех сессий, упорядоченные по идентификатору пользователя.
func (s *MemoryStore) List(_ context.Context) ([]*model.Session, error) {
	s.mu.RLock()
	res := make([]*model.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		res = append(res, sess.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(res, func(a, b *model.Session) int {
		return strings.Compare(a.UserID, b.UserID)
	})
	return res, nil
}

// DeleteIdle удаляет сессии, не обновлявшиеся с момента before, и возвращает их количество.
func (s *MemoryStore) DeleteIdle(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for userID, sess := range s.sessions {
		if sess.UpdatedAt.Before(before) {
			delete(s.sessions, userID)
			n++
		}
	}
	return n, nil
}
