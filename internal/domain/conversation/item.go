package conversation

import (
	"encoding/json"
	"time"
)

// ===============================================
// Item Types and Enums
// ===============================================

// ItemRole identifies who produced a conversation item.
type ItemRole string

const (
	ItemRoleUser      ItemRole = "user"
	ItemRoleAssistant ItemRole = "assistant"
	ItemRoleTool      ItemRole = "tool"
	ItemRoleSystem    ItemRole = "system"
)

func ValidateItemRole(input string) bool {
	switch ItemRole(input) {
	case ItemRoleUser, ItemRoleAssistant, ItemRoleTool, ItemRoleSystem:
		return true
	default:
		return false
	}
}

// ===============================================
// Item Structure
// ===============================================

// Item is one entry in a conversation's append-only log. Items are never
// mutated after insertion; the sequence number is assigned by the store under
// per-conversation serialization and totally orders items within a
// conversation.
type Item struct {
	ID             uint            `json:"-"`
	ConversationID string          `json:"-"`
	PublicID       string          `json:"id"`
	Object         string          `json:"object"` // Always "conversation.item"
	Seq            int64           `json:"seq"`
	Role           ItemRole        `json:"role"`
	Content        json.RawMessage `json:"content"` // Opaque payload: text, tool-call descriptor, or tool result
	IsSynthetic    bool            `json:"is_synthetic"`
	CreatedAt      time.Time       `json:"created_at"`
}

// IsUserTurn reports whether the item opens a turn: a real (non-synthetic)
// user item. Engine-generated summaries carry the user role but never count.
func (i *Item) IsUserTurn() bool {
	return i.Role == ItemRoleUser && !i.IsSynthetic
}

// NewItem builds an unsequenced item; the store assigns Seq on append.
func NewItem(publicID string, role ItemRole, content json.RawMessage) *Item {
	return &Item{
		PublicID:  publicID,
		Object:    "conversation.item",
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewSyntheticItem builds an engine-generated item (e.g. a summary produced
// in place of trimmed history). Synthetic items never count as user turns.
func NewSyntheticItem(publicID string, role ItemRole, content json.RawMessage) *Item {
	item := NewItem(publicID, role, content)
	item.IsSynthetic = true
	return item
}
