package usage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record represents a single usage event attributed to one model run against
// a conversation. Records are immutable once written.
type Record struct {
	ID               string          `json:"id"`
	ConversationID   string          `json:"conversation_id"`
	BranchID         *string         `json:"branch_id,omitempty"`
	RunID            string          `json:"run_id"`
	Model            string          `json:"model"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	TotalTokens      int             `json:"total_tokens"`
	EstimatedCostUSD decimal.Decimal `json:"estimated_cost_usd"`
	CreatedAt        time.Time       `json:"created_at"`
}

// GroupBy selects the aggregation dimension for usage summaries.
type GroupBy string

const (
	GroupByRun          GroupBy = "run"
	GroupByConversation GroupBy = "conversation"
)

// Summary represents aggregated usage for one group key. Summaries are
// computed from records at read time, never stored.
type Summary struct {
	Key                   string          `json:"key"`
	TotalPromptTokens     int64           `json:"total_prompt_tokens"`
	TotalCompletionTokens int64           `json:"total_completion_tokens"`
	TotalTokens           int64           `json:"total_tokens"`
	RecordCount           int64           `json:"record_count"`
	EstimatedCostUSD      decimal.Decimal `json:"estimated_cost_usd"`
}

// Filter represents filter options for querying usage records.
type Filter struct {
	RunID     string
	Model     string
	StartDate time.Time
	EndDate   time.Time
}

// Model pricing constants (USD per token) - can be configured externally
var ModelPricing = map[string]struct {
	PromptPrice     decimal.Decimal
	CompletionPrice decimal.Decimal
}{
	"gpt-4o":            {decimal.NewFromFloat(0.000005), decimal.NewFromFloat(0.000015)},
	"gpt-4o-mini":       {decimal.NewFromFloat(0.00000015), decimal.NewFromFloat(0.0000006)},
	"gpt-3.5-turbo":     {decimal.NewFromFloat(0.0000005), decimal.NewFromFloat(0.0000015)},
	"claude-3-opus":     {decimal.NewFromFloat(0.000015), decimal.NewFromFloat(0.000075)},
	"claude-3.5-sonnet": {decimal.NewFromFloat(0.000003), decimal.NewFromFloat(0.000015)},
	"claude-3-haiku":    {decimal.NewFromFloat(0.00000025), decimal.NewFromFloat(0.00000125)},
}

// CalculateCost calculates estimated cost for token usage
func CalculateCost(model string, promptTokens, completionTokens int) decimal.Decimal {
	pricing, exists := ModelPricing[model]
	if !exists {
		// Default pricing for unknown models
		pricing = struct {
			PromptPrice     decimal.Decimal
			CompletionPrice decimal.Decimal
		}{
			PromptPrice:     decimal.NewFromFloat(0.000003),
			CompletionPrice: decimal.NewFromFloat(0.000006),
		}
	}

	promptCost := pricing.PromptPrice.Mul(decimal.NewFromInt(int64(promptTokens)))
	completionCost := pricing.CompletionPrice.Mul(decimal.NewFromInt(int64(completionTokens)))

	return promptCost.Add(completionCost)
}
