package conversation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ===============================================
// Conversation Structure
// ===============================================

// Conversation is the owning record of an item log. A branch is itself a
// conversation whose Branch field links it to a parent; root conversations
// have a nil Branch.
type Conversation struct {
	ID        uint              `json:"-"`
	PublicID  string            `json:"id"`
	Object    string            `json:"object"` // Always "conversation"
	Metadata  map[string]string `json:"metadata,omitempty"`
	Branch    *Branch           `json:"branch,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	DeletedAt *time.Time        `json:"deleted_at,omitempty"` // Soft delete marker
}

// IsDeleted reports whether the conversation is soft-deleted. Soft-deleted
// conversations are excluded from normal reads but remain physically present
// until a hard delete.
func (c *Conversation) IsDeleted() bool {
	return c.DeletedAt != nil
}

// IsBranch reports whether this conversation was forked from a parent.
func (c *Conversation) IsBranch() bool {
	return c.Branch != nil
}

// NewConversation creates a root conversation with the given public id.
func NewConversation(publicID string, metadata map[string]string) *Conversation {
	now := time.Now().UTC()
	if metadata == nil {
		metadata = make(map[string]string)
	}
	return &Conversation{
		PublicID:  publicID,
		Object:    "conversation",
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ===============================================
// Branch Structure
// ===============================================

// Branch is the lineage record of a forked conversation. It stores only the
// parent reference; children are discovered through a reverse query on the
// branches relation, so the lineage is a forest by construction (no
// parent-to-child pointers exist to form cycles).
type Branch struct {
	ID           uint      `json:"-"`
	PublicID     string    `json:"id"`
	ParentID     string    `json:"parent_conversation_id"`
	Name         string    `json:"branch_name"`
	ForkPointSeq int64     `json:"fork_point_item_seq"` // Last parent sequence included in the fork
	CreatedAt    time.Time `json:"created_at"`
}

// ===============================================
// Filters
// ===============================================

// Filter narrows conversation lookups.
type Filter struct {
	PublicID       *string
	IncludeDeleted bool
}

// ReadRange bounds an item read. Zero values mean unbounded.
type ReadRange struct {
	FromSeq int64
	ToSeq   int64
}

// ===============================================
// Storage Backend Interface
// ===============================================

// AppendOptions control store-side behavior of a batch append.
type AppendOptions struct {
	// TrimAfterTurns, when positive, makes the store trim the conversation to
	// that many user turns inside the same per-conversation transaction as
	// the append, so an in-flight trim can never race a concurrent append.
	TrimAfterTurns int
}

// Store is the storage backend contract. Implementations exist for GORM
// (Postgres server or SQLite file, selected by configuration) and Redis;
// an in-process implementation backs tests. All methods honor the caller's
// context deadline and fail cleanly with no partial writes.
//
// Within a single conversation, AppendItems calls are linearized by the
// store (row lock, distributed mutex, or process mutex); operations on
// different conversations need no coordination.
type Store interface {
	// CreateConversation persists a new conversation row (and its branch
	// lineage row when conv.Branch is set).
	CreateConversation(ctx context.Context, conv *Conversation) error

	// GetConversation returns a conversation by public id. Soft-deleted
	// conversations are only visible with filter.IncludeDeleted.
	GetConversation(ctx context.Context, publicID string, includeDeleted bool) (*Conversation, error)

	// AppendItems appends a batch to a conversation's log, assigning
	// contiguous sequence numbers. All-or-nothing: on error no item of the
	// batch is persisted. Returns the items with assigned sequences.
	AppendItems(ctx context.Context, conversationID string, items []*Item, opts AppendOptions) ([]*Item, error)

	// ReadItems returns the ordered items of a conversation within the
	// range. Unknown conversations yield an empty slice, not an error.
	ReadItems(ctx context.Context, conversationID string, rng ReadRange) ([]*Item, error)

	// ReplaceItemsBefore atomically deletes all items with seq < beforeSeq
	// and, when summary is non-nil, inserts it at the lowest freed sequence.
	// Used by summarize-mode trimming.
	ReplaceItemsBefore(ctx context.Context, conversationID string, beforeSeq int64, summary *Item) error

	// CountUserTurns counts items with role == user and is_synthetic == false.
	CountUserTurns(ctx context.Context, conversationID string) (int, error)

	// LatestSeq returns the highest assigned sequence, 0 when the log is empty.
	LatestSeq(ctx context.Context, conversationID string) (int64, error)

	// SoftDelete sets the deleted_at marker. Fails with not_found when the
	// conversation is unknown or already soft-deleted.
	SoftDelete(ctx context.Context, conversationID string) error

	// Restore clears the deleted_at marker. Fails with not_deleted when the
	// conversation is live.
	Restore(ctx context.Context, conversationID string) error

	// HardDelete physically removes the conversation, its items, its branch
	// lineage row, and its usage records. Irreversible.
	HardDelete(ctx context.Context, conversationID string) error

	// ListBranches returns the lineage rows of live branches whose parent is
	// the given conversation (the rebuildable reverse index).
	ListBranches(ctx context.Context, parentID string) ([]*Branch, error)

	// ListSoftDeletedBefore returns public ids of conversations soft-deleted
	// earlier than the cutoff, for retention sweeps.
	ListSoftDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error)

	// WriteUsage appends one immutable usage record.
	WriteUsage(ctx context.Context, rec *UsageRecord) error

	// ReadUsage returns the usage records of a conversation ordered by time.
	ReadUsage(ctx context.Context, conversationID string) ([]*UsageRecord, error)
}

// UsageRecord mirrors usage.Record at the storage boundary so Store
// implementations do not import the usage domain package (which depends on
// this one for aggregation).
type UsageRecord struct {
	ID               uint
	PublicID         string
	ConversationID   string
	BranchID         *string
	RunID            string
	Model            string
	PromptTokens     int
	CompletionTokens int
	EstimatedCostUSD decimal.Decimal
	CreatedAt        time.Time
}
