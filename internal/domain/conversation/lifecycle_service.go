package conversation

import (
	"context"
	"time"

	"github.com/contextd/contextd/internal/infrastructure/logger"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

// LifecycleService owns reversible and irreversible conversation removal,
// independent of trimming. Every operation targets exactly one conversation
// id, which is what keeps branch isolation a hard invariant: no lifecycle
// call can fan out to a parent or sibling.
type LifecycleService struct {
	store Store
}

// NewLifecycleService creates a lifecycle service.
func NewLifecycleService(store Store) *LifecycleService {
	return &LifecycleService{store: store}
}

// SoftDelete marks a conversation deleted. Items and usage records remain
// physically present; normal reads report not_found until a restore.
func (s *LifecycleService) SoftDelete(ctx context.Context, conversationID string) error {
	if err := s.store.SoftDelete(ctx, conversationID); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to soft delete conversation")
	}
	return nil
}

// Restore clears the soft-delete marker, yielding the conversation exactly
// as it was before deletion. Restoring a live conversation is a caller error.
func (s *LifecycleService) Restore(ctx context.Context, conversationID string) error {
	if err := s.store.Restore(ctx, conversationID); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to restore conversation")
	}
	return nil
}

// HardDelete irreversibly removes a conversation, its items, its lineage
// row, and its usage records. Blocked while live branches still reference
// the conversation as parent: callers must delete or re-parent dependents
// first.
func (s *LifecycleService) HardDelete(ctx context.Context, conversationID string) error {
	branches, err := s.store.ListBranches(ctx, conversationID)
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to check dependent branches")
	}
	if len(branches) > 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeStillHasBranches, "conversation has live dependent branches", nil,
			"4b7e2d90-8a15-4f6c-b3d8-26c9e0f1a758")
	}

	if err := s.store.HardDelete(ctx, conversationID); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to hard delete conversation")
	}
	return nil
}

// SweepExpired hard-deletes conversations soft-deleted longer than ttl ago.
// Conversations with live dependent branches are skipped and retried on the
// next sweep. Returns the number of conversations removed.
func (s *LifecycleService) SweepExpired(ctx context.Context, ttl time.Duration, limit int) (int, error) {
	log := logger.ForComponent("lifecycle")

	cutoff := time.Now().UTC().Add(-ttl)
	ids, err := s.store.ListSoftDeletedBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list expired conversations")
	}

	removed := 0
	for _, id := range ids {
		if err := s.HardDelete(ctx, id); err != nil {
			if platformerrors.IsErrorType(err, platformerrors.ErrorTypeStillHasBranches) {
				log.Debug().Str("conversation_id", id).Msg("retention sweep skipping conversation with live branches")
				continue
			}
			return removed, err
		}
		removed++
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("retention sweep completed")
	}
	return removed, nil
}
