package push

import (
	"context"
	"sync"

	"aimon/internal/core/domain"
	"aimon/internal/core/ports"
)

// MemoryTokenStore keeps push tokens in process. Single-node only.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[domain.UserID][]string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[domain.UserID][]string)}
}

var _ ports.TokenStore = (*MemoryTokenStore)(nil)

func (s *MemoryTokenStore) SaveToken(ctx context.Context, userID domain.UserID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tokens[userID] {
		if existing == token {
			return nil
		}
	}
	s.tokens[userID] = append(s.tokens[userID], token)
	return nil
}

func (s *MemoryTokenStore) Tokens(ctx context.Context, userID domain.UserID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.tokens[userID]...), nil
}
