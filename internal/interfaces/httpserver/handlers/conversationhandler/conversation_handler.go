package conversationhandler

import (
	"context"
	"encoding/json"

	"github.com/contextd/contextd/internal/domain/conversation"
	"github.com/contextd/contextd/internal/domain/session"
	"github.com/contextd/contextd/internal/infrastructure/metrics"
	conversationrequests "github.com/contextd/contextd/internal/interfaces/httpserver/requests/conversation"
	conversationresponses "github.com/contextd/contextd/internal/interfaces/httpserver/responses/conversation"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

// ConversationHandler handles conversation-related HTTP requests
type ConversationHandler struct {
	engine *session.Engine
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(engine *session.Engine) *ConversationHandler {
	return &ConversationHandler{engine: engine}
}

func toDomainItems(reqs []conversationrequests.CreateItemRequest) []*conversation.Item {
	items := make([]*conversation.Item, len(reqs))
	for i, r := range reqs {
		items[i] = conversation.NewItem("", conversation.ItemRole(r.Role), json.RawMessage(r.Content))
	}
	return items
}

// CreateConversation creates a new conversation, optionally seeding items.
func (h *ConversationHandler) CreateConversation(
	ctx context.Context,
	req conversationrequests.CreateConversationRequest,
) (*conversationresponses.ConversationResponse, error) {
	conv, err := h.engine.CreateConversation(ctx, req.Metadata)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to create conversation")
	}
	metrics.ConversationsCreatedTotal.Inc()

	if len(req.Items) > 0 {
		if _, err := h.engine.AddItems(ctx, conv.PublicID, toDomainItems(req.Items)); err != nil {
			return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to add items")
		}
	}
	return conversationresponses.NewConversationResponse(conv), nil
}

// GetConversation returns a live conversation.
func (h *ConversationHandler) GetConversation(ctx context.Context, conversationID string) (*conversationresponses.ConversationResponse, error) {
	conv, err := h.engine.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to get conversation")
	}
	return conversationresponses.NewConversationResponse(conv), nil
}

// CreateItems appends a batch of items.
func (h *ConversationHandler) CreateItems(
	ctx context.Context,
	conversationID string,
	req conversationrequests.CreateItemsRequest,
) (*conversationresponses.ItemListResponse, error) {
	appended, err := h.engine.AddItems(ctx, conversationID, toDomainItems(req.Items))
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to add items")
	}
	metrics.ItemsAppendedTotal.Add(float64(len(appended)))
	return conversationresponses.NewItemListResponse(appended), nil
}

// ListItems returns the visible items of a conversation.
func (h *ConversationHandler) ListItems(
	ctx context.Context,
	conversationID string,
	params conversationrequests.ListItemsQueryParams,
) (*conversationresponses.ItemListResponse, error) {
	items, err := h.engine.GetItems(ctx, conversationID, conversation.ReadRange{
		FromSeq: params.FromSeq,
		ToSeq:   params.ToSeq,
	})
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to list items")
	}
	return conversationresponses.NewItemListResponse(items), nil
}

// DeleteConversation soft-deletes a conversation.
func (h *ConversationHandler) DeleteConversation(ctx context.Context, conversationID string) (*conversationresponses.DeletedResponse, error) {
	if err := h.engine.SoftDelete(ctx, conversationID); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to delete conversation")
	}
	return &conversationresponses.DeletedResponse{
		ID:      conversationID,
		Object:  "conversation.deleted",
		Deleted: true,
	}, nil
}

// RestoreConversation brings back a soft-deleted conversation.
func (h *ConversationHandler) RestoreConversation(ctx context.Context, conversationID string) (*conversationresponses.ConversationResponse, error) {
	if err := h.engine.Restore(ctx, conversationID); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to restore conversation")
	}
	conv, err := h.engine.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to get restored conversation")
	}
	return conversationresponses.NewConversationResponse(conv), nil
}

// PurgeConversation irreversibly removes a conversation.
func (h *ConversationHandler) PurgeConversation(ctx context.Context, conversationID string) (*conversationresponses.DeletedResponse, error) {
	if err := h.engine.HardDelete(ctx, conversationID); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to purge conversation")
	}
	return &conversationresponses.DeletedResponse{
		ID:      conversationID,
		Object:  "conversation.deleted",
		Deleted: true,
	}, nil
}
