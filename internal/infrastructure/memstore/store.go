// Package memstore provides an in-process storage backend. It backs tests
// and small embedded deployments that need no persistence.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/contextd/contextd/internal/domain/conversation"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

type record struct {
	conv      *conversation.Conversation
	items     []*conversation.Item
	latestSeq int64
	usage     []*conversation.UsageRecord
}

// MemoryStore keeps all state behind a single RWMutex. The mutex also
// provides the per-conversation append linearization the contract asks for.
type MemoryStore struct {
	mu     sync.RWMutex
	convs  map[string]*record
	nextID uint
}

var _ conversation.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]*record)}
}

// CreateConversation implements conversation.Store.
func (s *MemoryStore) CreateConversation(ctx context.Context, conv *conversation.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.convs[conv.PublicID]; exists {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository,
			platformerrors.ErrorTypeStorage, "conversation already exists", nil,
			"fd82a361-49c0-4e7b-95d3-1b6e8a204c5f")
	}

	s.nextID++
	conv.ID = s.nextID
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	clone := *conv
	rec := &record{conv: &clone}
	if clone.Branch != nil {
		// Branch logs continue the sequence after the fork point, keeping
		// the effective view on one monotonic sequence.
		rec.latestSeq = clone.Branch.ForkPointSeq
	}
	s.convs[conv.PublicID] = rec
	return nil
}

// GetConversation implements conversation.Store.
func (s *MemoryStore) GetConversation(ctx context.Context, publicID string, includeDeleted bool) (*conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.convs[publicID]
	if !ok || (!includeDeleted && rec.conv.IsDeleted()) {
		return nil, s.notFound(ctx)
	}
	clone := *rec.conv
	return &clone, nil
}

// AppendItems implements conversation.Store.
func (s *MemoryStore) AppendItems(ctx context.Context, conversationID string, items []*conversation.Item, opts conversation.AppendOptions) ([]*conversation.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.convs[conversationID]
	if !ok || rec.conv.IsDeleted() {
		return nil, s.notFound(ctx)
	}

	now := time.Now().UTC()
	for _, item := range items {
		rec.latestSeq++
		s.nextID++
		item.ID = s.nextID
		item.ConversationID = conversationID
		item.Seq = rec.latestSeq
		item.CreatedAt = now
		clone := *item
		rec.items = append(rec.items, &clone)
	}

	if opts.TrimAfterTurns > 0 {
		if cut, ok := conversation.TrimCutoff(rec.items, opts.TrimAfterTurns); ok {
			rec.items = append([]*conversation.Item(nil), rec.items[cut:]...)
		}
	}
	return items, nil
}

// ReadItems implements conversation.Store.
func (s *MemoryStore) ReadItems(ctx context.Context, conversationID string, rng conversation.ReadRange) ([]*conversation.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.convs[conversationID]
	if !ok {
		return []*conversation.Item{}, nil
	}

	out := make([]*conversation.Item, 0, len(rec.items))
	for _, item := range rec.items {
		if rng.FromSeq > 0 && item.Seq < rng.FromSeq {
			continue
		}
		if rng.ToSeq > 0 && item.Seq > rng.ToSeq {
			continue
		}
		clone := *item
		out = append(out, &clone)
	}
	return out, nil
}

// ReplaceItemsBefore implements conversation.Store.
func (s *MemoryStore) ReplaceItemsBefore(ctx context.Context, conversationID string, beforeSeq int64, summary *conversation.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.convs[conversationID]
	if !ok {
		return s.notFound(ctx)
	}

	var lowest int64
	if len(rec.items) > 0 {
		lowest = rec.items[0].Seq
	}

	kept := make([]*conversation.Item, 0, len(rec.items))
	for _, item := range rec.items {
		if item.Seq >= beforeSeq {
			kept = append(kept, item)
		}
	}

	if summary != nil {
		s.nextID++
		summary.ID = s.nextID
		summary.ConversationID = conversationID
		summary.Seq = lowest
		summary.CreatedAt = time.Now().UTC()
		clone := *summary
		kept = append([]*conversation.Item{&clone}, kept...)
	}
	rec.items = kept
	return nil
}

// CountUserTurns implements conversation.Store.
func (s *MemoryStore) CountUserTurns(ctx context.Context, conversationID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.convs[conversationID]
	if !ok {
		return 0, nil
	}
	return conversation.CountTurns(rec.items), nil
}

// LatestSeq implements conversation.Store.
func (s *MemoryStore) LatestSeq(ctx context.Context, conversationID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.convs[conversationID]
	if !ok {
		return 0, nil
	}
	return rec.latestSeq, nil
}

// SoftDelete implements conversation.Store.
func (s *MemoryStore) SoftDelete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.convs[conversationID]
	if !ok || rec.conv.IsDeleted() {
		return s.notFound(ctx)
	}
	now := time.Now().UTC()
	rec.conv.DeletedAt = &now
	rec.conv.UpdatedAt = now
	return nil
}

// Restore implements conversation.Store.
func (s *MemoryStore) Restore(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.convs[conversationID]
	if !ok {
		return s.notFound(ctx)
	}
	if !rec.conv.IsDeleted() {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository,
			platformerrors.ErrorTypeNotDeleted, "conversation is not deleted", nil,
			"6a09e8b3-2f51-47cd-9e04-d13b7c6a85f2")
	}
	rec.conv.DeletedAt = nil
	rec.conv.UpdatedAt = time.Now().UTC()
	return nil
}

// HardDelete implements conversation.Store.
func (s *MemoryStore) HardDelete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[conversationID]; !ok {
		return s.notFound(ctx)
	}
	delete(s.convs, conversationID)
	return nil
}

// ListBranches implements conversation.Store.
func (s *MemoryStore) ListBranches(ctx context.Context, parentID string) ([]*conversation.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branches := make([]*conversation.Branch, 0)
	for _, rec := range s.convs {
		if rec.conv.IsDeleted() || rec.conv.Branch == nil {
			continue
		}
		if rec.conv.Branch.ParentID == parentID {
			clone := *rec.conv.Branch
			branches = append(branches, &clone)
		}
	}
	sort.Slice(branches, func(i, j int) bool {
		return branches[i].CreatedAt.Before(branches[j].CreatedAt)
	})
	return branches, nil
}

// ListSoftDeletedBefore implements conversation.Store.
func (s *MemoryStore) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)
	for id, rec := range s.convs {
		if rec.conv.DeletedAt != nil && rec.conv.DeletedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// WriteUsage implements conversation.Store.
func (s *MemoryStore) WriteUsage(ctx context.Context, rec *conversation.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cr, ok := s.convs[rec.ConversationID]
	if !ok {
		return s.notFound(ctx)
	}
	s.nextID++
	rec.ID = s.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	clone := *rec
	cr.usage = append(cr.usage, &clone)
	return nil
}

// ReadUsage implements conversation.Store.
func (s *MemoryStore) ReadUsage(ctx context.Context, conversationID string) ([]*conversation.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.convs[conversationID]
	if !ok {
		return []*conversation.UsageRecord{}, nil
	}
	out := make([]*conversation.UsageRecord, 0, len(rec.usage))
	for _, u := range rec.usage {
		clone := *u
		out = append(out, &clone)
	}
	return out, nil
}

func (s *MemoryStore) notFound(ctx context.Context) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository,
		platformerrors.ErrorTypeNotFound, "conversation not found", nil,
		"3c17d0e9-84b6-4f2a-a5d1-e96c204b87f3")
}
