package store

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStorage is a read-through LRU cache in front of another backend.
// Writes go to the backend first and then refresh the cache.
type CachedStorage struct {
	backend ConversationStorage
	cache   *lru.Cache[string, []Message]
}

// NewCachedStorage wraps backend with an LRU of size entries.
func NewCachedStorage(backend ConversationStorage, size int) (*CachedStorage, error) {
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New[string, []Message](size)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &CachedStorage{backend: backend, cache: cache}, nil
}

func (c *CachedStorage) Save(ctx context.Context, sessionID string, history []Message) error {
	if err := c.backend.Save(ctx, sessionID, history); err != nil {
		return err
	}
	if len(history) == 0 {
		c.cache.Remove(sessionID)
		return nil
	}
	c.cache.Add(sessionID, cloneHistory(history))
	return nil
}

func (c *CachedStorage) Load(ctx context.Context, sessionID string) ([]Message, error) {
	if h, ok := c.cache.Get(sessionID); ok {
		return cloneHistory(h), nil
	}
	h, err := c.backend.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(h) > 0 {
		c.cache.Add(sessionID, cloneHistory(h))
	}
	return h, nil
}

func (c *CachedStorage) Delete(ctx context.Context, sessionID string) error {
	c.cache.Remove(sessionID)
	return c.backend.Delete(ctx, sessionID)
}

func (c *CachedStorage) ListSessions(ctx context.Context) ([]string, error) {
	return c.backend.ListSessions(ctx)
}

func (c *CachedStorage) Exists(ctx context.Context, sessionID string) (bool, error) {
	if c.cache.Contains(sessionID) {
		return true, nil
	}
	return c.backend.Exists(ctx, sessionID)
}

// Len reports the number of cached sessions.
func (c *CachedStorage) Len() int { return c.cache.Len() }
