package auth

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/unihub/unihub/storage"
)

// Service owns the access token. The in-memory cell is authoritative once
// set; the storer is consulted on a miss and written on every change.
type Service struct {
	Storer TokenStorer

	mu    sync.RWMutex
	token string
}

// NewService is the constructor for our auth service.
func NewService(storer TokenStorer) *Service {
	return &Service{Storer: storer}
}

// Token returns the current access token, or "" when there is none.
func (s *Service) Token(ctx context.Context) string {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token != "" || s.Storer == nil {
		return token
	}

	stored, ok := s.Storer.Get(ctx, storage.KeyAccessToken)
	if !ok || stored == "" {
		return ""
	}
	s.mu.Lock()
	if s.token == "" {
		s.token = stored
	}
	token = s.token
	s.mu.Unlock()
	return token
}

// Save replaces the access token in the store and in memory.
func (s *Service) Save(ctx context.Context, token string) {
	if token == "" {
		s.Clear(ctx)
		return
	}
	if s.Storer != nil {
		s.Storer.Set(ctx, storage.KeyAccessToken, token)
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	log.Debug().Msg("Access token saved")
}

// Clear forgets the access token everywhere.
func (s *Service) Clear(ctx context.Context) {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	if s.Storer != nil {
		s.Storer.Remove(ctx, storage.KeyAccessToken)
	}
	log.Debug().Msg("Access token cleared")
}
