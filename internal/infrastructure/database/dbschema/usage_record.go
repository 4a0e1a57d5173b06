package dbschema

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/contextd/contextd/internal/domain/conversation"
	"github.com/contextd/contextd/internal/infrastructure/database"
)

func init() {
	database.RegisterSchemaForAutoMigrate(UsageRecord{})
}

// UsageRecord represents the database schema for usage records. Rows are
// insert-only; the engine never updates them.
type UsageRecord struct {
	ID                   uint            `gorm:"primaryKey"`
	PublicID             string          `gorm:"type:varchar(50);uniqueIndex;not null"`
	ConversationPublicID string          `gorm:"type:varchar(50);index;not null"`
	BranchPublicID       *string         `gorm:"type:varchar(50)"`
	RunID                string          `gorm:"type:varchar(64);index;not null"`
	Model                string          `gorm:"type:varchar(128)"`
	PromptTokens         int             `gorm:"not null;default:0"`
	CompletionTokens     int             `gorm:"not null;default:0"`
	EstimatedCostUSD     decimal.Decimal `gorm:"type:decimal(12,6)"`
	CreatedAt            time.Time       `gorm:"autoCreateTime;index"`
}

// TableName returns the table name for UsageRecord
func (UsageRecord) TableName() string {
	return "usage_records"
}

// NewSchemaUsageRecord creates a database schema from a storage-level record
func NewSchemaUsageRecord(rec *conversation.UsageRecord) *UsageRecord {
	return &UsageRecord{
		ID:                   rec.ID,
		PublicID:             rec.PublicID,
		ConversationPublicID: rec.ConversationID,
		BranchPublicID:       rec.BranchID,
		RunID:                rec.RunID,
		Model:                rec.Model,
		PromptTokens:         rec.PromptTokens,
		CompletionTokens:     rec.CompletionTokens,
		EstimatedCostUSD:     rec.EstimatedCostUSD,
		CreatedAt:            rec.CreatedAt,
	}
}

// EtoD converts database schema to a storage-level record
func (u *UsageRecord) EtoD() *conversation.UsageRecord {
	return &conversation.UsageRecord{
		ID:               u.ID,
		PublicID:         u.PublicID,
		ConversationID:   u.ConversationPublicID,
		BranchID:         u.BranchPublicID,
		RunID:            u.RunID,
		Model:            u.Model,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		EstimatedCostUSD: u.EstimatedCostUSD,
		CreatedAt:        u.CreatedAt,
	}
}
