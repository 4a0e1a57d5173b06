package conversation

import "encoding/json"

// CreateConversationRequest creates a conversation, optionally seeding items.
type CreateConversationRequest struct {
	Metadata map[string]string   `json:"metadata"`
	Items    []CreateItemRequest `json:"items"`
}

// CreateItemRequest is one item of an append batch.
type CreateItemRequest struct {
	Role    string          `json:"role" binding:"required"`
	Content json.RawMessage `json:"content" binding:"required"`
}

// CreateItemsRequest appends a batch of items.
type CreateItemsRequest struct {
	Items []CreateItemRequest `json:"items" binding:"required"`
}

// ListItemsQueryParams bound a read by sequence numbers.
type ListItemsQueryParams struct {
	FromSeq int64 `form:"from_seq"`
	ToSeq   int64 `form:"to_seq"`
}

// CreateBranchRequest forks a conversation at a fork point.
type CreateBranchRequest struct {
	ForkPointSeq int64  `json:"fork_point_seq" binding:"required"`
	Name         string `json:"name"`
}

// RecordUsageRequest records one usage event.
type RecordUsageRequest struct {
	RunID            string  `json:"run_id" binding:"required"`
	BranchID         *string `json:"branch_id"`
	Model            string  `json:"model"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
}

// UsageQueryParams filter usage reads and select aggregation.
type UsageQueryParams struct {
	RunID   string `form:"run_id"`
	Model   string `form:"model"`
	GroupBy string `form:"group_by"`
}
