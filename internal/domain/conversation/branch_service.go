package conversation

import (
	"context"
	"time"

	"github.com/contextd/contextd/internal/utils/idgen"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

// BranchService forks conversations into independent continuations. A fork
// never mutates the parent: the branch stores only its own appended items,
// and its effective view is assembled as parent prefix plus own items.
type BranchService struct {
	store     Store
	policy    TrimPolicy
	validator *Validator
}

// NewBranchService creates a branch service sharing the item store and trim
// policy of the conversation service.
func NewBranchService(store Store, policy TrimPolicy) *BranchService {
	return &BranchService{
		store:     store,
		policy:    policy,
		validator: NewValidator(nil),
	}
}

// CreateBranch forks parentID at forkPointSeq. The fork point must be an
// existing item sequence no greater than the parent's latest; sequences below
// the first retained item (physically removed by trim-on-write) are invalid
// fork targets. Fork-point validation runs against the store's current state,
// which shares the parent's per-conversation serialization with append and
// trim, so a fork always observes a post-trim consistent parent.
func (s *BranchService) CreateBranch(ctx context.Context, parentID string, forkPointSeq int64, name string) (*Conversation, error) {
	if err := s.validator.ValidateConversationID(parentID); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "invalid parent conversation ID", err,
			"e8b3f952-1c70-4da6-b48e-07f5a2c9d613")
	}
	if err := s.validator.ValidateBranchName(name); err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "invalid branch name", err,
			"1f6e0a84-5d29-4c37-92b1-8a4c7e03d5f6")
	}

	if _, err := s.store.GetConversation(ctx, parentID, false); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "parent conversation not found")
	}

	latest, err := s.store.LatestSeq(ctx, parentID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to resolve parent latest sequence")
	}
	if forkPointSeq <= 0 || forkPointSeq > latest {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeInvalidForkPoint, "fork point exceeds parent's latest item", nil,
			"a94d7c20-e816-4f53-b072-3c58f1e9a6d4")
	}
	forkItem, err := s.store.ReadItems(ctx, parentID, ReadRange{FromSeq: forkPointSeq, ToSeq: forkPointSeq})
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to resolve fork point item")
	}
	if len(forkItem) == 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeInvalidForkPoint, "fork point item does not exist", nil,
			"60c2e9b7-3f45-4a18-8d6c-f127b0a5e394")
	}

	convID, err := idgen.ConversationID()
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to generate branch conversation ID")
	}
	branchID, err := idgen.BranchID()
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to generate branch ID")
	}

	branch := NewConversation(convID, nil)
	branch.Branch = &Branch{
		PublicID:     branchID,
		ParentID:     parentID,
		Name:         name,
		ForkPointSeq: forkPointSeq,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreateConversation(ctx, branch); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create branch")
	}
	return branch, nil
}

// EffectiveItems assembles the branch's logical item sequence: the parent's
// items up to the fork point followed by the branch's own items, in one
// positional order. The fork point is fixed at creation, so parent appends
// after the fork never appear here; the parent's soft-delete state is also
// irrelevant, since branch reads never go through the parent's visibility
// rules. With trim-on-read enabled the concatenated view is trimmed as one
// list; the parent's stored items are never touched.
func (s *BranchService) EffectiveItems(ctx context.Context, branchConvID string) ([]*Item, error) {
	conv, err := s.store.GetConversation(ctx, branchConvID, false)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "branch conversation not found")
	}

	own, err := s.store.ReadItems(ctx, branchConvID, ReadRange{})
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to read branch items")
	}

	if conv.Branch == nil {
		// Not a fork; the effective view is just the conversation's log.
		if s.policy.TrimOnRead {
			return Trim(ctx, own, s.policy.MaxTurns)
		}
		return own, nil
	}

	prefix, err := s.store.ReadItems(ctx, conv.Branch.ParentID, ReadRange{ToSeq: conv.Branch.ForkPointSeq})
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to read parent prefix")
	}

	effective := make([]*Item, 0, len(prefix)+len(own))
	effective = append(effective, prefix...)
	effective = append(effective, own...)

	if s.policy.TrimOnRead {
		return Trim(ctx, effective, s.policy.MaxTurns)
	}
	return effective, nil
}

// TrimBranchOwnItems applies trim-on-write semantics to a branch after an
// append. The cut index is computed on the effective view, but physical
// deletion only ever removes branch-own items; a cut point inside the parent
// prefix deletes nothing (the prefix is dropped at read time instead).
func (s *BranchService) TrimBranchOwnItems(ctx context.Context, branchConvID string) error {
	if !s.policy.TrimOnWrite {
		return nil
	}

	conv, err := s.store.GetConversation(ctx, branchConvID, false)
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "branch conversation not found")
	}
	if conv.Branch == nil {
		return nil
	}

	prefix, err := s.store.ReadItems(ctx, conv.Branch.ParentID, ReadRange{ToSeq: conv.Branch.ForkPointSeq})
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to read parent prefix")
	}
	own, err := s.store.ReadItems(ctx, branchConvID, ReadRange{})
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to read branch items")
	}

	effective := make([]*Item, 0, len(prefix)+len(own))
	effective = append(effective, prefix...)
	effective = append(effective, own...)

	cut, ok := TrimCutoff(effective, s.policy.MaxTurns)
	if !ok || cut <= len(prefix) {
		return nil
	}

	beforeSeq := own[cut-len(prefix)].Seq
	if err := s.store.ReplaceItemsBefore(ctx, branchConvID, beforeSeq, nil); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to trim branch items")
	}
	return nil
}

// ListBranches returns the live branches forked from parentID.
func (s *BranchService) ListBranches(ctx context.Context, parentID string) ([]*Branch, error) {
	branches, err := s.store.ListBranches(ctx, parentID)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to list branches")
	}
	return branches, nil
}
