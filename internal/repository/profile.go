package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"ad-board/internal/domain"
)

// ProfileStore holds the single admin record (admin.json).
type ProfileStore interface {
	Get(ctx context.Context) (*domain.AdminProfile, error)
	Update(ctx context.Context, profile *domain.AdminProfile) error
}

type jsonProfileStore struct {
	path string
	mu   sync.Mutex
}

func NewJSONProfileStore(path string) ProfileStore {
	return &jsonProfileStore{path: path}
}

func (s *jsonProfileStore) Get(ctx context.Context) (*domain.AdminProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read admin profile: %w", err)
	}
	var profile domain.AdminProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse admin profile: %w", err)
	}
	return &profile, nil
}

func (s *jsonProfileStore) Update(ctx context.Context, profile *domain.AdminProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal admin profile: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write admin profile: %w", err)
	}
	return nil
}
