// Package session exposes the engine as a single facade over the
// conversation, branch, lifecycle and usage services. Callers that embed the
// engine in-process work against this package only.
package session

import (
	"context"
	"time"

	"github.com/contextd/contextd/internal/domain/conversation"
	"github.com/contextd/contextd/internal/domain/usage"
)

// Engine coordinates the domain services behind one surface. It owns the
// routing between root conversations and branches: branch reads go through
// effective-view assembly, branch writes through branch-safe trimming.
type Engine struct {
	conversations *conversation.Service
	branches      *conversation.BranchService
	lifecycle     *conversation.LifecycleService
	usage         *usage.Service
}

// NewEngine creates an engine over a single store with one trim policy
// shared by every service.
func NewEngine(store conversation.Store, policy conversation.TrimPolicy, summarizer conversation.Summarizer) *Engine {
	return &Engine{
		conversations: conversation.NewService(store, policy, summarizer),
		branches:      conversation.NewBranchService(store, policy),
		lifecycle:     conversation.NewLifecycleService(store),
		usage:         usage.NewService(store),
	}
}

// CreateConversation creates a new root conversation.
func (e *Engine) CreateConversation(ctx context.Context, metadata map[string]string) (*conversation.Conversation, error) {
	return e.conversations.CreateConversation(ctx, metadata)
}

// GetConversation returns a live conversation by public id.
func (e *Engine) GetConversation(ctx context.Context, id string) (*conversation.Conversation, error) {
	return e.conversations.GetConversation(ctx, id)
}

// AddItems appends items to a conversation or branch, applying the trim
// policy on write. Appends to a branch never touch inherited parent items.
func (e *Engine) AddItems(ctx context.Context, conversationID string, items []*conversation.Item) ([]*conversation.Item, error) {
	conv, err := e.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsBranch() {
		return e.conversations.AddItems(ctx, conversationID, items)
	}

	// Branch appends bypass the write-time cutoff baked into the plain
	// append path: the budget must be measured over the effective view,
	// and only branch-own items may be dropped.
	appended, err := e.conversations.AppendWithoutTrim(ctx, conversationID, items)
	if err != nil {
		return nil, err
	}
	if err := e.branches.TrimBranchOwnItems(ctx, conversationID); err != nil {
		return nil, err
	}
	return appended, nil
}

// GetItems returns the visible items of a conversation. For branches the
// result is the effective view, parent prefix first.
func (e *Engine) GetItems(ctx context.Context, conversationID string, rng conversation.ReadRange) ([]*conversation.Item, error) {
	conv, err := e.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.IsBranch() {
		items, err := e.branches.EffectiveItems(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		return filterRange(items, rng), nil
	}
	return e.conversations.GetItems(ctx, conversationID, rng)
}

// CountUserTurns returns the number of real user turns visible in a
// conversation.
func (e *Engine) CountUserTurns(ctx context.Context, conversationID string) (int, error) {
	conv, err := e.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if conv.IsBranch() {
		items, err := e.branches.EffectiveItems(ctx, conversationID)
		if err != nil {
			return 0, err
		}
		return conversation.CountTurns(items), nil
	}
	return e.conversations.CountUserTurns(ctx, conversationID)
}

// CreateBranch forks a conversation at a fork point.
func (e *Engine) CreateBranch(ctx context.Context, parentID string, forkPointSeq int64, name string) (*conversation.Conversation, error) {
	return e.branches.CreateBranch(ctx, parentID, forkPointSeq, name)
}

// ListBranches returns the live branches of a conversation.
func (e *Engine) ListBranches(ctx context.Context, parentID string) ([]*conversation.Branch, error) {
	return e.branches.ListBranches(ctx, parentID)
}

// SoftDelete marks a conversation deleted, keeping its data recoverable.
func (e *Engine) SoftDelete(ctx context.Context, conversationID string) error {
	return e.lifecycle.SoftDelete(ctx, conversationID)
}

// Restore brings back a soft-deleted conversation unchanged.
func (e *Engine) Restore(ctx context.Context, conversationID string) error {
	return e.lifecycle.Restore(ctx, conversationID)
}

// HardDelete irreversibly removes a conversation and its data.
func (e *Engine) HardDelete(ctx context.Context, conversationID string) error {
	return e.lifecycle.HardDelete(ctx, conversationID)
}

// SweepExpired hard-deletes conversations whose soft delete is older than
// ttl. Used by the retention cron.
func (e *Engine) SweepExpired(ctx context.Context, ttl time.Duration, limit int) (int, error) {
	return e.lifecycle.SweepExpired(ctx, ttl, limit)
}

// RecordUsage persists one usage record against a conversation or branch.
func (e *Engine) RecordUsage(ctx context.Context, rec *usage.Record) (*usage.Record, error) {
	return e.usage.Record(ctx, rec)
}

// ListUsage returns a conversation's usage records matching the filter.
func (e *Engine) ListUsage(ctx context.Context, conversationID string, filter usage.Filter) ([]*usage.Record, error) {
	return e.usage.List(ctx, conversationID, filter)
}

// GetUsageSummary aggregates a conversation's usage grouped by run or by
// conversation.
func (e *Engine) GetUsageSummary(ctx context.Context, conversationID string, groupBy usage.GroupBy) ([]*usage.Summary, error) {
	return e.usage.Aggregate(ctx, conversationID, groupBy)
}

func filterRange(items []*conversation.Item, rng conversation.ReadRange) []*conversation.Item {
	if rng.FromSeq == 0 && rng.ToSeq == 0 {
		return items
	}
	out := make([]*conversation.Item, 0, len(items))
	for _, it := range items {
		if rng.FromSeq > 0 && it.Seq < rng.FromSeq {
			continue
		}
		if rng.ToSeq > 0 && it.Seq > rng.ToSeq {
			continue
		}
		out = append(out, it)
	}
	return out
}
