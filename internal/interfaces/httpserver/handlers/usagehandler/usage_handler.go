package usagehandler

import (
	"context"

	"github.com/contextd/contextd/internal/domain/session"
	"github.com/contextd/contextd/internal/domain/usage"
	"github.com/contextd/contextd/internal/infrastructure/metrics"
	conversationrequests "github.com/contextd/contextd/internal/interfaces/httpserver/requests/conversation"
	conversationresponses "github.com/contextd/contextd/internal/interfaces/httpserver/responses/conversation"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

// UsageHandler handles usage-related HTTP requests
type UsageHandler struct {
	engine *session.Engine
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(engine *session.Engine) *UsageHandler {
	return &UsageHandler{engine: engine}
}

// RecordUsage records one usage event against a conversation.
func (h *UsageHandler) RecordUsage(
	ctx context.Context,
	conversationID string,
	req conversationrequests.RecordUsageRequest,
) (*conversationresponses.UsageRecordResponse, error) {
	rec, err := h.engine.RecordUsage(ctx, &usage.Record{
		ConversationID:   conversationID,
		BranchID:         req.BranchID,
		RunID:            req.RunID,
		Model:            req.Model,
		PromptTokens:     req.PromptTokens,
		CompletionTokens: req.CompletionTokens,
	})
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to record usage")
	}

	model := rec.Model
	if model == "" {
		model = "unknown"
	}
	metrics.TokensPromptTotal.WithLabelValues(model).Add(float64(rec.PromptTokens))
	metrics.TokensCompletionTotal.WithLabelValues(model).Add(float64(rec.CompletionTokens))

	resp := conversationresponses.NewUsageRecordResponse(rec)
	return &resp, nil
}

// ListUsage returns usage records matching the filter.
func (h *UsageHandler) ListUsage(
	ctx context.Context,
	conversationID string,
	params conversationrequests.UsageQueryParams,
) (*conversationresponses.UsageListResponse, error) {
	records, err := h.engine.ListUsage(ctx, conversationID, usage.Filter{
		RunID: params.RunID,
		Model: params.Model,
	})
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to list usage")
	}
	return conversationresponses.NewUsageListResponse(records), nil
}

// GetUsageSummary aggregates usage grouped by run or by conversation.
func (h *UsageHandler) GetUsageSummary(
	ctx context.Context,
	conversationID string,
	params conversationrequests.UsageQueryParams,
) (*conversationresponses.UsageSummaryListResponse, error) {
	groupBy := usage.GroupBy(params.GroupBy)
	if params.GroupBy == "" {
		groupBy = usage.GroupByConversation
	}
	summaries, err := h.engine.GetUsageSummary(ctx, conversationID, groupBy)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to aggregate usage")
	}
	return conversationresponses.NewUsageSummaryListResponse(summaries), nil
}
