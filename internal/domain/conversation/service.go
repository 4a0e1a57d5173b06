package conversation

import (
	"context"
	"encoding/json"

	"github.com/contextd/contextd/internal/infrastructure/logger"
	"github.com/contextd/contextd/internal/infrastructure/metrics"
	"github.com/contextd/contextd/internal/utils/idgen"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

// Summarizer is the external collaborator that condenses trimmed-away items
// into a single synthetic payload. The engine treats it as a black box and
// never depends on the quality of its output.
type Summarizer interface {
	Summarize(ctx context.Context, items []*Item) (json.RawMessage, error)
}

// Service owns item-log operations: appends with trim-on-write enforcement
// and reads with trim-on-read enforcement.
type Service struct {
	store      Store
	policy     TrimPolicy
	validator  *Validator
	summarizer Summarizer // nil unless summarize mode is configured
}

// NewService creates a conversation service. summarizer may be nil; it is
// only consulted when policy.Summarize is set.
func NewService(store Store, policy TrimPolicy, summarizer Summarizer) *Service {
	return &Service{
		store:      store,
		policy:     policy,
		validator:  NewValidator(nil),
		summarizer: summarizer,
	}
}

// Policy returns the configured trim policy.
func (s *Service) Policy() TrimPolicy {
	return s.policy
}

// ===============================================
// Conversation Lifecycle (creation side)
// ===============================================

// CreateConversation creates a new root conversation.
func (s *Service) CreateConversation(ctx context.Context, metadata map[string]string) (*Conversation, error) {
	if err := s.validator.ValidateMetadata(metadata); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "conversation validation failed", err,
			"c2f4a8d1-6b3e-4972-8e5a-1d0b7f94c36e")
	}

	publicID, err := idgen.ConversationID()
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to generate conversation ID")
	}

	conv := NewConversation(publicID, metadata)
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create conversation")
	}
	return conv, nil
}

// GetConversation returns a live conversation by public id.
func (s *Service) GetConversation(ctx context.Context, publicID string) (*Conversation, error) {
	if err := s.validator.ValidateConversationID(publicID); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "invalid conversation ID", err,
			"7e49b0c5-2d81-4f66-9a3b-c85e60d217f4")
	}
	conv, err := s.store.GetConversation(ctx, publicID, false)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "conversation not found")
	}
	return conv, nil
}

// ===============================================
// Item Operations
// ===============================================

// AddItems appends a batch of items to a conversation. The append is
// all-or-nothing. When trim-on-write is enabled the stored log is brought
// back within the turn budget before this call returns: in drop mode the
// store trims inside the same per-conversation transaction as the append; in
// summarize mode the over-budget prefix is condensed into a synthetic item
// afterwards, degrading to a plain drop if the summarizer fails.
func (s *Service) AddItems(ctx context.Context, conversationID string, items []*Item) ([]*Item, error) {
	appended, err := s.appendValidated(ctx, conversationID, items, s.policy.TrimOnWrite && !s.policy.Summarize)
	if err != nil {
		return nil, err
	}

	if s.policy.TrimOnWrite && s.policy.Summarize {
		if err := s.summarizeOverBudget(ctx, conversationID); err != nil {
			return nil, err
		}
	}

	return appended, nil
}

// AppendWithoutTrim appends a batch of items with full validation but no
// write-time trimming. Callers that measure the budget over a wider view
// than the stored log, such as branch appends, trim separately.
func (s *Service) AppendWithoutTrim(ctx context.Context, conversationID string, items []*Item) ([]*Item, error) {
	return s.appendValidated(ctx, conversationID, items, false)
}

func (s *Service) appendValidated(ctx context.Context, conversationID string, items []*Item, trimOnWrite bool) ([]*Item, error) {
	if err := s.validator.ValidateConversationID(conversationID); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "invalid conversation ID", err,
			"3a8c1f62-9e07-4b5d-8f24-6d1a0c97e5b3")
	}
	if err := s.validator.ValidateItems(items); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "item validation failed", err,
			"b5d92e07-4c16-4a83-9f70-2e8b5d1c64af")
	}
	if err := s.policy.Validate(ctx); err != nil {
		return nil, err
	}

	// Soft-deleted conversations reject appends like unknown ones.
	if _, err := s.store.GetConversation(ctx, conversationID, false); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "conversation not found")
	}

	for _, item := range items {
		if item.PublicID == "" {
			publicID, err := idgen.ItemID()
			if err != nil {
				return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to generate item ID")
			}
			item.PublicID = publicID
		}
		item.ConversationID = conversationID
	}

	opts := AppendOptions{}
	if trimOnWrite {
		opts.TrimAfterTurns = s.policy.MaxTurns
	}

	appended, err := s.store.AppendItems(ctx, conversationID, items, opts)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to append items")
	}

	return appended, nil
}

// GetItems returns the ordered items of a conversation. With trim-on-read
// enabled the returned view is always within the turn budget, even when the
// stored log is oversized (e.g. after a backend restore).
func (s *Service) GetItems(ctx context.Context, conversationID string, rng ReadRange) ([]*Item, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	items, err := s.store.ReadItems(ctx, conversationID, rng)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to read items")
	}

	if s.policy.TrimOnRead {
		return Trim(ctx, items, s.policy.MaxTurns)
	}
	return items, nil
}

// CountUserTurns counts real user turns without reading the full log.
func (s *Service) CountUserTurns(ctx context.Context, conversationID string) (int, error) {
	count, err := s.store.CountUserTurns(ctx, conversationID)
	if err != nil {
		return 0, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to count user turns")
	}
	return count, nil
}

// summarizeOverBudget replaces the over-budget prefix with one synthetic
// summary item. The summarizer runs outside any per-conversation lock; only
// the replace itself is a store transaction.
func (s *Service) summarizeOverBudget(ctx context.Context, conversationID string) error {
	items, err := s.store.ReadItems(ctx, conversationID, ReadRange{})
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to read items for summarization")
	}

	cut, ok := TrimCutoff(items, s.policy.MaxTurns)
	if !ok {
		return nil
	}
	trimmed := items[:cut]
	beforeSeq := items[cut].Seq

	var summary *Item
	if s.summarizer != nil {
		payload, err := s.summarizer.Summarize(ctx, trimmed)
		if err != nil {
			log := logger.ForComponent("conversation")
			log.Warn().
				Err(err).
				Str("conversation_id", conversationID).
				Int("trimmed_items", len(trimmed)).
				Msg("summarizer failed, degrading to drop trimming")
		} else {
			publicID, idErr := idgen.ItemID()
			if idErr != nil {
				return platformerrors.AsError(ctx, platformerrors.LayerDomain, idErr, "failed to generate summary item ID")
			}
			summary = NewSyntheticItem(publicID, ItemRoleSystem, payload)
			summary.ConversationID = conversationID
		}
	}

	if err := s.store.ReplaceItemsBefore(ctx, conversationID, beforeSeq, summary); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to apply summarized trim")
	}
	mode := "drop"
	if summary != nil {
		mode = "summarize"
	}
	metrics.TrimsTotal.WithLabelValues(mode).Inc()
	return nil
}
