package conversationhandler

import (
	"context"

	"github.com/contextd/contextd/internal/domain/session"
	"github.com/contextd/contextd/internal/infrastructure/metrics"
	conversationrequests "github.com/contextd/contextd/internal/interfaces/httpserver/requests/conversation"
	conversationresponses "github.com/contextd/contextd/internal/interfaces/httpserver/responses/conversation"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

// BranchHandler handles branch-related HTTP requests
type BranchHandler struct {
	engine *session.Engine
}

// NewBranchHandler creates a new branch handler
func NewBranchHandler(engine *session.Engine) *BranchHandler {
	return &BranchHandler{engine: engine}
}

// CreateBranch forks a conversation at a fork point.
func (h *BranchHandler) CreateBranch(
	ctx context.Context,
	parentID string,
	req conversationrequests.CreateBranchRequest,
) (*conversationresponses.ConversationResponse, error) {
	branch, err := h.engine.CreateBranch(ctx, parentID, req.ForkPointSeq, req.Name)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to create branch")
	}
	metrics.BranchesCreatedTotal.Inc()
	return conversationresponses.NewConversationResponse(branch), nil
}

// ListBranches returns the live branches of a conversation.
func (h *BranchHandler) ListBranches(ctx context.Context, parentID string) (*conversationresponses.BranchListResponse, error) {
	branches, err := h.engine.ListBranches(ctx, parentID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerHandler, err, "failed to list branches")
	}
	return conversationresponses.NewBranchListResponse(branches), nil
}
