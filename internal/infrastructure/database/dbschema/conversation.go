package dbschema

import (
	"database/sql/driver"
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/contextd/contextd/internal/domain/conversation"
	"github.com/contextd/contextd/internal/infrastructure/database"
)

func init() {
	database.RegisterSchemaForAutoMigrate(Conversation{})
	database.RegisterSchemaForAutoMigrate(ConversationItem{})
	database.RegisterSchemaForAutoMigrate(ConversationBranch{})
}

// Conversation represents the database schema for conversations
type Conversation struct {
	BaseModel
	PublicID string  `gorm:"type:varchar(50);uniqueIndex;not null"`
	Object   string  `gorm:"type:varchar(50);not null;default:'conversation'"`
	Metadata JSONMap `gorm:"type:jsonb"`

	Items  []ConversationItem  `gorm:"foreignKey:ConversationPublicID;references:PublicID"`
	Branch *ConversationBranch `gorm:"foreignKey:ConversationPublicID;references:PublicID"`
}

// ConversationBranch records the lineage of a branch conversation: which
// parent it was forked from and at which sequence number. Root conversations
// have no row here.
type ConversationBranch struct {
	BaseModel
	PublicID             string `gorm:"type:varchar(50);uniqueIndex;not null"`
	ConversationPublicID string `gorm:"type:varchar(50);uniqueIndex;not null"`
	ParentPublicID       string `gorm:"type:varchar(50);index;not null"`
	Name                 string `gorm:"type:varchar(64)"`
	ForkPointSeq         int64  `gorm:"not null"`
}

// ConversationItem represents the database schema for conversation items
type ConversationItem struct {
	BaseModel
	ConversationPublicID string         `gorm:"type:varchar(50);uniqueIndex:idx_item_conversation_seq;not null"`
	PublicID             string         `gorm:"type:varchar(50);uniqueIndex;not null"`
	Object               string         `gorm:"type:varchar(50);not null;default:'conversation.item'"`
	Seq                  int64          `gorm:"uniqueIndex:idx_item_conversation_seq;not null"`
	Role                 string         `gorm:"type:varchar(20);not null"`
	Content              datatypes.JSON `gorm:"type:jsonb"`
	IsSynthetic          bool           `gorm:"not null;default:false"`
}

// JSONMap is a custom type for map[string]string stored as JSON
type JSONMap map[string]string

func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONMap) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// NewSchemaConversation creates a database schema from domain conversation
func NewSchemaConversation(c *conversation.Conversation) *Conversation {
	row := &Conversation{
		BaseModel: BaseModel{
			ID:        c.ID,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		},
		PublicID: c.PublicID,
		Object:   c.Object,
		Metadata: JSONMap(c.Metadata),
	}
	if c.DeletedAt != nil {
		row.DeletedAt.Time = *c.DeletedAt
		row.DeletedAt.Valid = true
	}
	return row
}

// NewSchemaConversationBranch creates a database schema from domain branch lineage
func NewSchemaConversationBranch(conversationPublicID string, b *conversation.Branch) *ConversationBranch {
	return &ConversationBranch{
		BaseModel: BaseModel{
			CreatedAt: b.CreatedAt,
		},
		PublicID:             b.PublicID,
		ConversationPublicID: conversationPublicID,
		ParentPublicID:       b.ParentID,
		Name:                 b.Name,
		ForkPointSeq:         b.ForkPointSeq,
	}
}

// EtoD converts database schema to domain conversation (Entity to Domain)
func (c *Conversation) EtoD() *conversation.Conversation {
	conv := &conversation.Conversation{
		ID:        c.ID,
		PublicID:  c.PublicID,
		Object:    c.Object,
		Metadata:  map[string]string(c.Metadata),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.DeletedAt.Valid {
		deletedAt := c.DeletedAt.Time
		conv.DeletedAt = &deletedAt
	}
	if c.Branch != nil {
		conv.Branch = c.Branch.EtoD()
	}
	return conv
}

// EtoD converts database branch to domain branch lineage
func (b *ConversationBranch) EtoD() *conversation.Branch {
	return &conversation.Branch{
		PublicID:     b.PublicID,
		ParentID:     b.ParentPublicID,
		Name:         b.Name,
		ForkPointSeq: b.ForkPointSeq,
		CreatedAt:    b.CreatedAt,
	}
}

// NewSchemaConversationItem creates a database schema from domain item
func NewSchemaConversationItem(item *conversation.Item) *ConversationItem {
	return &ConversationItem{
		BaseModel: BaseModel{
			ID:        item.ID,
			CreatedAt: item.CreatedAt,
		},
		ConversationPublicID: item.ConversationID,
		PublicID:             item.PublicID,
		Object:               item.Object,
		Seq:                  item.Seq,
		Role:                 string(item.Role),
		Content:              datatypes.JSON(item.Content),
		IsSynthetic:          item.IsSynthetic,
	}
}

// EtoD converts database schema to domain item
func (i *ConversationItem) EtoD() *conversation.Item {
	return &conversation.Item{
		ID:             i.ID,
		ConversationID: i.ConversationPublicID,
		PublicID:       i.PublicID,
		Object:         i.Object,
		Seq:            i.Seq,
		Role:           conversation.ItemRole(i.Role),
		Content:        json.RawMessage(i.Content),
		IsSynthetic:    i.IsSynthetic,
		CreatedAt:      i.CreatedAt,
	}
}
