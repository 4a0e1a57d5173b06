// Package cachestore decorates a storage backend with an in-process LRU
// cache for conversation lookups, the hottest read on every engine call.
// Writes invalidate synchronously, so a hit can never resurrect a deleted
// conversation.
package cachestore

import (
	"context"

	lru "github.com/hashicorp/golang-lru"

	"github.com/contextd/contextd/internal/domain/conversation"
)

type CachedStore struct {
	conversation.Store
	cache *lru.Cache
}

var _ conversation.Store = (*CachedStore)(nil)

// New wraps inner with an LRU of the given size.
func New(inner conversation.Store, size int) (*CachedStore, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{Store: inner, cache: cache}, nil
}

type cacheKey struct {
	publicID       string
	includeDeleted bool
}

// GetConversation implements conversation.Store.
func (s *CachedStore) GetConversation(ctx context.Context, publicID string, includeDeleted bool) (*conversation.Conversation, error) {
	key := cacheKey{publicID, includeDeleted}
	if val, ok := s.cache.Get(key); ok {
		cached := val.(conversation.Conversation)
		clone := cached
		return &clone, nil
	}

	conv, err := s.Store.GetConversation(ctx, publicID, includeDeleted)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, *conv)
	return conv, nil
}

func (s *CachedStore) invalidate(publicID string) {
	s.cache.Remove(cacheKey{publicID, false})
	s.cache.Remove(cacheKey{publicID, true})
}

// SoftDelete implements conversation.Store.
func (s *CachedStore) SoftDelete(ctx context.Context, conversationID string) error {
	err := s.Store.SoftDelete(ctx, conversationID)
	s.invalidate(conversationID)
	return err
}

// Restore implements conversation.Store.
func (s *CachedStore) Restore(ctx context.Context, conversationID string) error {
	err := s.Store.Restore(ctx, conversationID)
	s.invalidate(conversationID)
	return err
}

// HardDelete implements conversation.Store.
func (s *CachedStore) HardDelete(ctx context.Context, conversationID string) error {
	err := s.Store.HardDelete(ctx, conversationID)
	s.invalidate(conversationID)
	return err
}

// AppendItems implements conversation.Store. The conversation row itself is
// untouched by appends, but invalidating keeps cached UpdatedAt honest.
func (s *CachedStore) AppendItems(ctx context.Context, conversationID string, items []*conversation.Item, opts conversation.AppendOptions) ([]*conversation.Item, error) {
	appended, err := s.Store.AppendItems(ctx, conversationID, items, opts)
	s.invalidate(conversationID)
	return appended, err
}
