package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/prboard/internal/store"
)

const (
	visitKeyPrefix = "prboard:visit:"
	favoritesKey   = "prboard:favorites"
)

// VisitService persists the small per-user maps the dashboard keeps
// alongside the cache: last-visit time per pull request and the
// favorited project list.
type VisitService struct {
	kv     store.KeyValueStore
	logger *zap.Logger
	now    func() time.Time
}

// NewVisitService creates a visit service on the given storage.
func NewVisitService(kv store.KeyValueStore, logger *zap.Logger) *VisitService {
	return &VisitService{
		kv:     kv,
		logger: logger,
		now:    time.Now,
	}
}

// RecordVisit stores the current instant as the last-visit time of id.
func (s *VisitService) RecordVisit(ctx context.Context, id string) error {
	ms := s.now().UnixMilli()
	if err := s.kv.Set(ctx, visitKeyPrefix+id, fmt.Sprintf("%d", ms)); err != nil {
		return fmt.Errorf("failed to record visit for %s: %w", id, err)
	}
	return nil
}

// LastVisit returns the last-visit time of id in epoch milliseconds, or
// 0 when the item was never visited.
func (s *VisitService) LastVisit(ctx context.Context, id string) (int64, error) {
	raw, err := s.kv.Get(ctx, visitKeyPrefix+id)
	if err == store.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var ms int64
	if _, err := fmt.Sscanf(raw, "%d", &ms); err != nil || ms < 0 {
		// Unreadable value, treat as never visited.
		s.logger.Debug("dropping corrupt visit record", zap.String("id", id))
		_ = s.kv.Delete(ctx, visitKeyPrefix+id)
		return 0, nil
	}
	return ms, nil
}

// Favorites returns the favorited project list. A missing or corrupt
// list degrades to empty.
func (s *VisitService) Favorites(ctx context.Context) ([]string, error) {
	raw, err := s.kv.Get(ctx, favoritesKey)
	if err == store.ErrNotFound {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	var favs []string
	if err := json.Unmarshal([]byte(raw), &favs); err != nil {
		s.logger.Warn("favorites list corrupt, resetting", zap.Error(err))
		_ = s.kv.Delete(ctx, favoritesKey)
		return []string{}, nil
	}
	return favs, nil
}

// SetFavorites replaces the favorited project list.
func (s *VisitService) SetFavorites(ctx context.Context, favs []string) error {
	raw, err := json.Marshal(favs)
	if err != nil {
		return fmt.Errorf("failed to marshal favorites: %w", err)
	}
	if err := s.kv.Set(ctx, favoritesKey, string(raw)); err != nil {
		return fmt.Errorf("failed to store favorites: %w", err)
	}
	return nil
}
