package usage

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/contextd/contextd/internal/domain/conversation"
	"github.com/contextd/contextd/internal/utils/idgen"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

// Service provides usage recording and read-time aggregation. Records are
// write-once: the service never updates or deletes them, and summaries are
// always recomputed from the record stream.
type Service struct {
	store conversation.Store
}

// NewService creates a new usage service.
func NewService(store conversation.Store) *Service {
	return &Service{store: store}
}

// Record validates and persists one usage event. Token counts and cost are
// completed if the caller left them zero.
func (s *Service) Record(ctx context.Context, rec *Record) (*Record, error) {
	if rec.ConversationID == "" || rec.RunID == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "conversation_id and run_id are required", nil,
			"9f3a61c2-7d04-4e8b-a5f9-0c2b84d1e637")
	}
	if rec.PromptTokens < 0 || rec.CompletionTokens < 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "token counts cannot be negative", nil,
			"2e85c0d7-41fb-49a2-9d63-b7a0e5f41c98")
	}

	// Verify the conversation exists and is live before attributing usage.
	if _, err := s.store.GetConversation(ctx, rec.ConversationID, false); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to resolve conversation for usage record")
	}

	if rec.ID == "" {
		id, err := idgen.UsageID()
		if err != nil {
			return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to generate usage record id")
		}
		rec.ID = id
	}
	if rec.TotalTokens == 0 {
		rec.TotalTokens = rec.PromptTokens + rec.CompletionTokens
	}
	if rec.EstimatedCostUSD.IsZero() {
		rec.EstimatedCostUSD = CalculateCost(rec.Model, rec.PromptTokens, rec.CompletionTokens)
	}

	if err := s.store.WriteUsage(ctx, toStoreRecord(rec)); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to write usage record")
	}
	return rec, nil
}

// List returns the usage records of a conversation matching the filter,
// ordered by creation time.
func (s *Service) List(ctx context.Context, conversationID string, filter Filter) ([]*Record, error) {
	stored, err := s.store.ReadUsage(ctx, conversationID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to read usage records")
	}

	records := make([]*Record, 0, len(stored))
	for _, sr := range stored {
		rec := fromStoreRecord(sr)
		if filter.RunID != "" && rec.RunID != filter.RunID {
			continue
		}
		if filter.Model != "" && rec.Model != filter.Model {
			continue
		}
		if !filter.StartDate.IsZero() && rec.CreatedAt.Before(filter.StartDate) {
			continue
		}
		if !filter.EndDate.IsZero() && rec.CreatedAt.After(filter.EndDate) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Aggregate computes summaries over a conversation's records grouped by the
// requested dimension.
func (s *Service) Aggregate(ctx context.Context, conversationID string, groupBy GroupBy) ([]*Summary, error) {
	switch groupBy {
	case GroupByRun, GroupByConversation:
	default:
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "group_by must be run or conversation", nil,
			"c1d94b07-6f2e-4a38-8b51-3ea7d2c09f46")
	}

	records, err := s.List(ctx, conversationID, Filter{})
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*Summary)
	for _, rec := range records {
		key := rec.ConversationID
		if groupBy == GroupByRun {
			key = rec.RunID
		}
		sum, ok := groups[key]
		if !ok {
			sum = &Summary{Key: key, EstimatedCostUSD: decimal.Zero}
			groups[key] = sum
		}
		sum.TotalPromptTokens += int64(rec.PromptTokens)
		sum.TotalCompletionTokens += int64(rec.CompletionTokens)
		sum.TotalTokens += int64(rec.TotalTokens)
		sum.RecordCount++
		sum.EstimatedCostUSD = sum.EstimatedCostUSD.Add(rec.EstimatedCostUSD)
	}

	summaries := make([]*Summary, 0, len(groups))
	for _, sum := range groups {
		summaries = append(summaries, sum)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Key < summaries[j].Key })
	return summaries, nil
}

func toStoreRecord(rec *Record) *conversation.UsageRecord {
	return &conversation.UsageRecord{
		PublicID:         rec.ID,
		ConversationID:   rec.ConversationID,
		BranchID:         rec.BranchID,
		RunID:            rec.RunID,
		Model:            rec.Model,
		PromptTokens:     rec.PromptTokens,
		CompletionTokens: rec.CompletionTokens,
		EstimatedCostUSD: rec.EstimatedCostUSD,
		CreatedAt:        rec.CreatedAt,
	}
}

func fromStoreRecord(sr *conversation.UsageRecord) *Record {
	return &Record{
		ID:               sr.PublicID,
		ConversationID:   sr.ConversationID,
		BranchID:         sr.BranchID,
		RunID:            sr.RunID,
		Model:            sr.Model,
		PromptTokens:     sr.PromptTokens,
		CompletionTokens: sr.CompletionTokens,
		TotalTokens:      sr.PromptTokens + sr.CompletionTokens,
		EstimatedCostUSD: sr.EstimatedCostUSD,
		CreatedAt:        sr.CreatedAt,
	}
}
