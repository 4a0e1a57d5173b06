package conversation

import (
	"encoding/json"
	"time"

	"github.com/contextd/contextd/internal/domain/conversation"
	"github.com/contextd/contextd/internal/domain/usage"
	"github.com/contextd/contextd/internal/utils/functional"
)

// ConversationResponse is the wire shape of a conversation.
type ConversationResponse struct {
	ID        string            `json:"id"`
	Object    string            `json:"object"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Branch    *BranchResponse   `json:"branch,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	DeletedAt *time.Time        `json:"deleted_at,omitempty"`
}

// BranchResponse is the wire shape of branch lineage.
type BranchResponse struct {
	ID           string    `json:"id"`
	ParentID     string    `json:"parent_conversation_id"`
	Name         string    `json:"name,omitempty"`
	ForkPointSeq int64     `json:"fork_point_seq"`
	CreatedAt    time.Time `json:"created_at"`
}

// ItemResponse is the wire shape of a conversation item.
type ItemResponse struct {
	ID          string          `json:"id"`
	Object      string          `json:"object"`
	Seq         int64           `json:"seq"`
	Role        string          `json:"role"`
	Content     json.RawMessage `json:"content"`
	IsSynthetic bool            `json:"is_synthetic,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ItemListResponse wraps an item read.
type ItemListResponse struct {
	Object string         `json:"object"`
	Data   []ItemResponse `json:"data"`
}

// BranchListResponse wraps a branch listing.
type BranchListResponse struct {
	Object string           `json:"object"`
	Data   []BranchResponse `json:"data"`
}

// UsageRecordResponse is the wire shape of one usage record.
type UsageRecordResponse struct {
	ID               string    `json:"id"`
	RunID            string    `json:"run_id"`
	BranchID         *string   `json:"branch_id,omitempty"`
	Model            string    `json:"model,omitempty"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	EstimatedCostUSD string    `json:"estimated_cost_usd"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageListResponse wraps a usage read.
type UsageListResponse struct {
	Object string                `json:"object"`
	Data   []UsageRecordResponse `json:"data"`
}

// UsageSummaryResponse is one aggregated usage group.
type UsageSummaryResponse struct {
	Key                   string `json:"key"`
	TotalPromptTokens     int64  `json:"total_prompt_tokens"`
	TotalCompletionTokens int64  `json:"total_completion_tokens"`
	TotalTokens           int64  `json:"total_tokens"`
	RecordCount           int64  `json:"record_count"`
	EstimatedCostUSD      string `json:"estimated_cost_usd"`
}

// UsageSummaryListResponse wraps an aggregation.
type UsageSummaryListResponse struct {
	Object string                 `json:"object"`
	Data   []UsageSummaryResponse `json:"data"`
}

// DeletedResponse acknowledges a lifecycle operation.
type DeletedResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

func NewConversationResponse(conv *conversation.Conversation) *ConversationResponse {
	resp := &ConversationResponse{
		ID:        conv.PublicID,
		Object:    conv.Object,
		Metadata:  conv.Metadata,
		CreatedAt: conv.CreatedAt,
		DeletedAt: conv.DeletedAt,
	}
	if conv.Branch != nil {
		resp.Branch = NewBranchResponse(conv.Branch)
	}
	return resp
}

func NewBranchResponse(b *conversation.Branch) *BranchResponse {
	return &BranchResponse{
		ID:           b.PublicID,
		ParentID:     b.ParentID,
		Name:         b.Name,
		ForkPointSeq: b.ForkPointSeq,
		CreatedAt:    b.CreatedAt,
	}
}

func NewItemResponse(item *conversation.Item) ItemResponse {
	return ItemResponse{
		ID:          item.PublicID,
		Object:      item.Object,
		Seq:         item.Seq,
		Role:        string(item.Role),
		Content:     item.Content,
		IsSynthetic: item.IsSynthetic,
		CreatedAt:   item.CreatedAt,
	}
}

func NewItemListResponse(items []*conversation.Item) *ItemListResponse {
	return &ItemListResponse{
		Object: "list",
		Data:   functional.Map(items, NewItemResponse),
	}
}

func NewBranchListResponse(branches []*conversation.Branch) *BranchListResponse {
	return &BranchListResponse{
		Object: "list",
		Data: functional.Map(branches, func(b *conversation.Branch) BranchResponse {
			return *NewBranchResponse(b)
		}),
	}
}

func NewUsageRecordResponse(rec *usage.Record) UsageRecordResponse {
	return UsageRecordResponse{
		ID:               rec.ID,
		RunID:            rec.RunID,
		BranchID:         rec.BranchID,
		Model:            rec.Model,
		PromptTokens:     rec.PromptTokens,
		CompletionTokens: rec.CompletionTokens,
		TotalTokens:      rec.TotalTokens,
		EstimatedCostUSD: rec.EstimatedCostUSD.StringFixed(6),
		CreatedAt:        rec.CreatedAt,
	}
}

func NewUsageListResponse(records []*usage.Record) *UsageListResponse {
	return &UsageListResponse{
		Object: "list",
		Data:   functional.Map(records, NewUsageRecordResponse),
	}
}

func NewUsageSummaryListResponse(summaries []*usage.Summary) *UsageSummaryListResponse {
	return &UsageSummaryListResponse{
		Object: "list",
		Data: functional.Map(summaries, func(s *usage.Summary) UsageSummaryResponse {
			return UsageSummaryResponse{
				Key:                   s.Key,
				TotalPromptTokens:     s.TotalPromptTokens,
				TotalCompletionTokens: s.TotalCompletionTokens,
				TotalTokens:           s.TotalTokens,
				RecordCount:           s.RecordCount,
				EstimatedCostUSD:      s.EstimatedCostUSD.StringFixed(6),
			}
		}),
	}
}
