// Package gormstore implements the storage backend contract on a relational
// database through GORM. The same implementation serves a Postgres server
// and an embedded SQLite file; the driver is chosen at connection time.
package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/contextd/contextd/internal/domain/conversation"
	"github.com/contextd/contextd/internal/infrastructure/database/dbschema"
	"github.com/contextd/contextd/internal/infrastructure/database/transaction"
	"github.com/contextd/contextd/internal/infrastructure/metrics"
	"github.com/contextd/contextd/internal/utils/functional"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

type GormStore struct {
	db *transaction.Database
}

var _ conversation.Store = (*GormStore)(nil)

func NewGormStore(db *transaction.Database) conversation.Store {
	return &GormStore{db}
}

// CreateConversation implements conversation.Store.
func (s *GormStore) CreateConversation(ctx context.Context, conv *conversation.Conversation) error {
	model := dbschema.NewSchemaConversation(conv)
	err := s.db.GetTx(ctx).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		if conv.Branch != nil {
			branch := dbschema.NewSchemaConversationBranch(conv.PublicID, conv.Branch)
			if err := tx.Create(branch).Error; err != nil {
				return err
			}
			conv.Branch.ID = branch.ID
		}
		return nil
	})
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to create conversation")
	}
	conv.ID = model.ID
	conv.CreatedAt = model.CreatedAt
	conv.UpdatedAt = model.UpdatedAt
	return nil
}

// GetConversation implements conversation.Store.
func (s *GormStore) GetConversation(ctx context.Context, publicID string, includeDeleted bool) (*conversation.Conversation, error) {
	sql := s.db.GetTx(ctx).WithContext(ctx)
	if includeDeleted {
		sql = sql.Unscoped()
	}

	var row dbschema.Conversation
	err := sql.Preload("Branch").Where("public_id = ?", publicID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound, "conversation not found", err,
				"0e7d3b92-5a48-4c61-9f2e-84b0d6c15a37")
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to find conversation by public ID")
	}
	return row.EtoD(), nil
}

// AppendItems implements conversation.Store. The conversation row is locked
// for the duration of the transaction, which linearizes appends and makes
// the optional write-time trim atomic with the insert.
func (s *GormStore) AppendItems(ctx context.Context, conversationID string, items []*conversation.Item, opts conversation.AppendOptions) ([]*conversation.Item, error) {
	err := s.db.GetTx(ctx).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv dbschema.Conversation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("public_id = ?", conversationID).First(&conv).Error
		if err != nil {
			return err
		}

		var latest int64
		err = tx.Model(&dbschema.ConversationItem{}).
			Where("conversation_public_id = ?", conversationID).
			Select("COALESCE(MAX(seq), 0)").Scan(&latest).Error
		if err != nil {
			return err
		}
		if latest == 0 {
			// An empty branch log continues the sequence after its fork
			// point, keeping the effective view on one monotonic sequence.
			var branch dbschema.ConversationBranch
			err := tx.Where("conversation_public_id = ?", conversationID).First(&branch).Error
			switch {
			case err == nil:
				latest = branch.ForkPointSeq
			case errors.Is(err, gorm.ErrRecordNotFound):
			default:
				return err
			}
		}

		now := time.Now().UTC()
		rows := make([]*dbschema.ConversationItem, len(items))
		for i, item := range items {
			item.ConversationID = conversationID
			item.Seq = latest + int64(i) + 1
			item.CreatedAt = now
			rows[i] = dbschema.NewSchemaConversationItem(item)
		}
		if err := tx.Create(rows).Error; err != nil {
			return err
		}
		for i, row := range rows {
			items[i].ID = row.ID
		}

		if opts.TrimAfterTurns > 0 {
			return trimTx(tx, conversationID, opts.TrimAfterTurns)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound, "conversation not found", err,
				"b93f5c01-2d74-4e8a-8c36-f15a0d7e42b9")
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to append items")
	}
	return items, nil
}

// trimTx drops items before the turn-budget cutoff within the caller's
// transaction.
func trimTx(tx *gorm.DB, conversationID string, maxTurns int) error {
	var rows []*dbschema.ConversationItem
	err := tx.Where("conversation_public_id = ?", conversationID).
		Order("seq ASC").Find(&rows).Error
	if err != nil {
		return err
	}

	items := functional.Map(rows, func(r *dbschema.ConversationItem) *conversation.Item {
		return r.EtoD()
	})
	cut, ok := conversation.TrimCutoff(items, maxTurns)
	if !ok {
		return nil
	}

	// Unscoped makes the removal physical; trimmed rows must not linger
	// behind gorm's soft-delete scope.
	err = tx.Unscoped().Where("conversation_public_id = ? AND seq < ?", conversationID, items[cut].Seq).
		Delete(&dbschema.ConversationItem{}).Error
	if err != nil {
		return err
	}
	metrics.TrimsTotal.WithLabelValues("drop").Inc()
	return nil
}

// ReadItems implements conversation.Store.
func (s *GormStore) ReadItems(ctx context.Context, conversationID string, rng conversation.ReadRange) ([]*conversation.Item, error) {
	sql := s.db.GetTx(ctx).WithContext(ctx).
		Where("conversation_public_id = ?", conversationID)
	if rng.FromSeq > 0 {
		sql = sql.Where("seq >= ?", rng.FromSeq)
	}
	if rng.ToSeq > 0 {
		sql = sql.Where("seq <= ?", rng.ToSeq)
	}

	var rows []*dbschema.ConversationItem
	if err := sql.Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to read items")
	}
	return functional.Map(rows, func(r *dbschema.ConversationItem) *conversation.Item {
		return r.EtoD()
	}), nil
}

// ReplaceItemsBefore implements conversation.Store.
func (s *GormStore) ReplaceItemsBefore(ctx context.Context, conversationID string, beforeSeq int64, summary *conversation.Item) error {
	err := s.db.GetTx(ctx).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv dbschema.Conversation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("public_id = ?", conversationID).First(&conv).Error
		if err != nil {
			return err
		}

		var lowest int64
		err = tx.Model(&dbschema.ConversationItem{}).
			Where("conversation_public_id = ?", conversationID).
			Select("COALESCE(MIN(seq), 0)").Scan(&lowest).Error
		if err != nil {
			return err
		}

		err = tx.Unscoped().Where("conversation_public_id = ? AND seq < ?", conversationID, beforeSeq).
			Delete(&dbschema.ConversationItem{}).Error
		if err != nil {
			return err
		}

		if summary != nil {
			summary.ConversationID = conversationID
			summary.Seq = lowest
			summary.CreatedAt = time.Now().UTC()
			row := dbschema.NewSchemaConversationItem(summary)
			if err := tx.Create(row).Error; err != nil {
				return err
			}
			summary.ID = row.ID
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound, "conversation not found", err,
				"7c28e4f6-0b91-4da5-a63e-19d5b8c02f74")
		}
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to replace items")
	}
	return nil
}

// CountUserTurns implements conversation.Store.
func (s *GormStore) CountUserTurns(ctx context.Context, conversationID string) (int, error) {
	var count int64
	err := s.db.GetTx(ctx).WithContext(ctx).
		Model(&dbschema.ConversationItem{}).
		Where("conversation_public_id = ? AND role = ? AND is_synthetic = ?",
			conversationID, string(conversation.ItemRoleUser), false).
		Count(&count).Error
	if err != nil {
		return 0, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to count user turns")
	}
	return int(count), nil
}

// LatestSeq implements conversation.Store.
func (s *GormStore) LatestSeq(ctx context.Context, conversationID string) (int64, error) {
	var latest int64
	err := s.db.GetTx(ctx).WithContext(ctx).
		Model(&dbschema.ConversationItem{}).
		Where("conversation_public_id = ?", conversationID).
		Select("COALESCE(MAX(seq), 0)").Scan(&latest).Error
	if err != nil {
		return 0, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to read latest sequence")
	}
	return latest, nil
}

// SoftDelete implements conversation.Store.
func (s *GormStore) SoftDelete(ctx context.Context, conversationID string) error {
	result := s.db.GetTx(ctx).WithContext(ctx).
		Where("public_id = ?", conversationID).
		Delete(&dbschema.Conversation{})
	if result.Error != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, result.Error, "failed to soft delete conversation")
	}
	if result.RowsAffected == 0 {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository,
			platformerrors.ErrorTypeNotFound, "conversation not found", nil,
			"be4a90d1-6c58-43f2-b7a9-02e8d5c1f463")
	}
	return nil
}

// Restore implements conversation.Store.
func (s *GormStore) Restore(ctx context.Context, conversationID string) error {
	var row dbschema.Conversation
	err := s.db.GetTx(ctx).WithContext(ctx).Unscoped().
		Where("public_id = ?", conversationID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound, "conversation not found", err,
				"5d01c7a8-93e2-4f6b-8d14-c72a0b5e96d8")
		}
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to find conversation for restore")
	}
	if !row.DeletedAt.Valid {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository,
			platformerrors.ErrorTypeNotDeleted, "conversation is not deleted", nil,
			"1f6b8d24-07c5-49ae-b3f0-68d2e4a90c17")
	}

	err = s.db.GetTx(ctx).WithContext(ctx).Unscoped().
		Model(&dbschema.Conversation{}).
		Where("public_id = ?", conversationID).
		Update("deleted_at", nil).Error
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to restore conversation")
	}
	return nil
}

// HardDelete implements conversation.Store. Items, lineage and usage rows go
// in the same transaction as the conversation row.
func (s *GormStore) HardDelete(ctx context.Context, conversationID string) error {
	err := s.db.GetTx(ctx).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Unscoped().Where("public_id = ?", conversationID).
			Delete(&dbschema.Conversation{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := tx.Unscoped().Where("conversation_public_id = ?", conversationID).
			Delete(&dbschema.ConversationItem{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("conversation_public_id = ?", conversationID).
			Delete(&dbschema.ConversationBranch{}).Error; err != nil {
			return err
		}
		return tx.Where("conversation_public_id = ?", conversationID).
			Delete(&dbschema.UsageRecord{}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound, "conversation not found", err,
				"a2c94e57-8b01-4f3d-96e8-d05c7b1a62f9")
		}
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to hard delete conversation")
	}
	return nil
}

// ListBranches implements conversation.Store. Only branches whose own
// conversation row is live are returned.
func (s *GormStore) ListBranches(ctx context.Context, parentID string) ([]*conversation.Branch, error) {
	var rows []*dbschema.ConversationBranch
	err := s.db.GetTx(ctx).WithContext(ctx).
		Joins("JOIN conversations ON conversations.public_id = conversation_branches.conversation_public_id AND conversations.deleted_at IS NULL").
		Where("conversation_branches.parent_public_id = ?", parentID).
		Order("conversation_branches.created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to list branches")
	}
	return functional.Map(rows, func(r *dbschema.ConversationBranch) *conversation.Branch {
		return r.EtoD()
	}), nil
}

// ListSoftDeletedBefore implements conversation.Store.
func (s *GormStore) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.GetTx(ctx).WithContext(ctx).Unscoped().
		Model(&dbschema.Conversation{}).
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
		Order("deleted_at ASC").
		Limit(limit).
		Pluck("public_id", &ids).Error
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to list expired conversations")
	}
	return ids, nil
}

// WriteUsage implements conversation.Store.
func (s *GormStore) WriteUsage(ctx context.Context, rec *conversation.UsageRecord) error {
	row := dbschema.NewSchemaUsageRecord(rec)
	if err := s.db.GetTx(ctx).WithContext(ctx).Create(row).Error; err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to write usage record")
	}
	rec.ID = row.ID
	rec.CreatedAt = row.CreatedAt
	return nil
}

// ReadUsage implements conversation.Store.
func (s *GormStore) ReadUsage(ctx context.Context, conversationID string) ([]*conversation.UsageRecord, error) {
	var rows []*dbschema.UsageRecord
	err := s.db.GetTx(ctx).WithContext(ctx).
		Where("conversation_public_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to read usage records")
	}
	return functional.Map(rows, func(r *dbschema.UsageRecord) *conversation.UsageRecord {
		return r.EtoD()
	}), nil
}
