// Package kvstore implements the storage backend contract on Redis. Item
// logs live in lists, sequence counters in plain keys, and per-conversation
// append linearization comes from a redsync distributed mutex, so multiple
// engine replicas can share one Redis.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/contextd/contextd/internal/domain/conversation"
	"github.com/contextd/contextd/internal/infrastructure/metrics"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

const keyPrefix = "contextd"

type RedisStore struct {
	client redis.UniversalClient
	rs     *redsync.Redsync
}

var _ conversation.Store = (*RedisStore)(nil)

// Options configure the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(opts Options) (*RedisStore, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{opts.Addr},
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
	}, nil
}

// NewRedisStoreWithClient wraps an existing client, for tests.
func NewRedisStoreWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
	}
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Key layout. Everything belonging to one conversation hangs off its public
// id so a hard delete is a bounded DEL.
func ConvKey(id string) string     { return fmt.Sprintf("%s:conv:%s", keyPrefix, id) }
func ItemsKey(id string) string    { return fmt.Sprintf("%s:items:%s", keyPrefix, id) }
func SeqKey(id string) string      { return fmt.Sprintf("%s:seq:%s", keyPrefix, id) }
func UsageKey(id string) string    { return fmt.Sprintf("%s:usage:%s", keyPrefix, id) }
func BranchesKey(id string) string { return fmt.Sprintf("%s:branches:%s", keyPrefix, id) }
func LockKey(id string) string     { return fmt.Sprintf("%s:lock:%s", keyPrefix, id) }

func deletedKey() string { return keyPrefix + ":deleted" }

// convDoc is the stored shape of a conversation.
type convDoc struct {
	ID        uint                 `json:"id"`
	PublicID  string               `json:"public_id"`
	Object    string               `json:"object"`
	Metadata  map[string]string    `json:"metadata,omitempty"`
	Branch    *conversation.Branch `json:"branch,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
	DeletedAt *time.Time           `json:"deleted_at,omitempty"`
}

func toDoc(c *conversation.Conversation) *convDoc {
	return &convDoc{
		ID:        c.ID,
		PublicID:  c.PublicID,
		Object:    c.Object,
		Metadata:  c.Metadata,
		Branch:    c.Branch,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		DeletedAt: c.DeletedAt,
	}
}

func (d *convDoc) toDomain() *conversation.Conversation {
	return &conversation.Conversation{
		ID:        d.ID,
		PublicID:  d.PublicID,
		Object:    d.Object,
		Metadata:  d.Metadata,
		Branch:    d.Branch,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		DeletedAt: d.DeletedAt,
	}
}

func (s *RedisStore) lock(ctx context.Context, conversationID string) (*redsync.Mutex, error) {
	mutex := s.rs.NewMutex(LockKey(conversationID),
		redsync.WithExpiry(10*time.Second),
		redsync.WithTries(8))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to acquire conversation lock")
	}
	return mutex, nil
}

func (s *RedisStore) unlock(ctx context.Context, mutex *redsync.Mutex) {
	if _, err := mutex.UnlockContext(ctx); err != nil {
		// Lock expiry bounds the damage of a failed unlock.
		_ = err
	}
}

func (s *RedisStore) loadConv(ctx context.Context, conversationID string) (*convDoc, error) {
	raw, err := s.client.Get(ctx, ConvKey(conversationID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, s.notFound(ctx)
	}
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to load conversation")
	}
	var doc convDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to decode conversation")
	}
	return &doc, nil
}

func (s *RedisStore) saveConv(ctx context.Context, doc *convDoc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to encode conversation")
	}
	if err := s.client.Set(ctx, ConvKey(doc.PublicID), raw, 0).Err(); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to save conversation")
	}
	return nil
}

// CreateConversation implements conversation.Store.
func (s *RedisStore) CreateConversation(ctx context.Context, conv *conversation.Conversation) error {
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	raw, err := json.Marshal(toDoc(conv))
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to encode conversation")
	}

	ok, err := s.client.SetNX(ctx, ConvKey(conv.PublicID), raw, 0).Result()
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to create conversation")
	}
	if !ok {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository,
			platformerrors.ErrorTypeStorage, "conversation already exists", nil,
			"e0d52c87-391a-4b6f-8e24-7c05a1d96b38")
	}

	if conv.Branch != nil {
		if err := s.client.SAdd(ctx, BranchesKey(conv.Branch.ParentID), conv.PublicID).Err(); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to register branch")
		}
		// Branch logs continue the sequence after the fork point, keeping
		// the effective view on one monotonic sequence.
		if err := s.client.Set(ctx, SeqKey(conv.PublicID), conv.Branch.ForkPointSeq, 0).Err(); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to seed branch sequence")
		}
	}
	return nil
}

// GetConversation implements conversation.Store.
func (s *RedisStore) GetConversation(ctx context.Context, publicID string, includeDeleted bool) (*conversation.Conversation, error) {
	doc, err := s.loadConv(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if doc.DeletedAt != nil && !includeDeleted {
		return nil, s.notFound(ctx)
	}
	return doc.toDomain(), nil
}

// AppendItems implements conversation.Store. The per-conversation mutex
// serializes appends across engine replicas; the optional write-time trim
// runs under the same hold.
func (s *RedisStore) AppendItems(ctx context.Context, conversationID string, items []*conversation.Item, opts conversation.AppendOptions) ([]*conversation.Item, error) {
	mutex, err := s.lock(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer s.unlock(ctx, mutex)

	doc, err := s.loadConv(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if doc.DeletedAt != nil {
		return nil, s.notFound(ctx)
	}

	latest, err := s.client.IncrBy(ctx, SeqKey(conversationID), int64(len(items))).Result()
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to advance sequence")
	}
	base := latest - int64(len(items))

	now := time.Now().UTC()
	payloads := make([]interface{}, len(items))
	for i, item := range items {
		item.ConversationID = conversationID
		item.Seq = base + int64(i) + 1
		item.CreatedAt = now
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to encode item")
		}
		payloads[i] = raw
	}

	if err := s.client.RPush(ctx, ItemsKey(conversationID), payloads...).Err(); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to append items")
	}

	if opts.TrimAfterTurns > 0 {
		if err := s.trimLocked(ctx, conversationID, opts.TrimAfterTurns); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// trimLocked drops list entries before the turn-budget cutoff. Caller holds
// the conversation mutex.
func (s *RedisStore) trimLocked(ctx context.Context, conversationID string, maxTurns int) error {
	items, err := s.readAll(ctx, conversationID)
	if err != nil {
		return err
	}
	cut, ok := conversation.TrimCutoff(items, maxTurns)
	if !ok {
		return nil
	}
	if err := s.client.LTrim(ctx, ItemsKey(conversationID), int64(cut), -1).Err(); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to trim items")
	}
	metrics.TrimsTotal.WithLabelValues("drop").Inc()
	return nil
}

func (s *RedisStore) readAll(ctx context.Context, conversationID string) ([]*conversation.Item, error) {
	raws, err := s.client.LRange(ctx, ItemsKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to read items")
	}
	items := make([]*conversation.Item, 0, len(raws))
	for _, raw := range raws {
		var item conversation.Item
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to decode item")
		}
		items = append(items, &item)
	}
	return items, nil
}

// ReadItems implements conversation.Store.
func (s *RedisStore) ReadItems(ctx context.Context, conversationID string, rng conversation.ReadRange) ([]*conversation.Item, error) {
	items, err := s.readAll(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if rng.FromSeq == 0 && rng.ToSeq == 0 {
		return items, nil
	}
	out := make([]*conversation.Item, 0, len(items))
	for _, item := range items {
		if rng.FromSeq > 0 && item.Seq < rng.FromSeq {
			continue
		}
		if rng.ToSeq > 0 && item.Seq > rng.ToSeq {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// ReplaceItemsBefore implements conversation.Store.
func (s *RedisStore) ReplaceItemsBefore(ctx context.Context, conversationID string, beforeSeq int64, summary *conversation.Item) error {
	mutex, err := s.lock(ctx, conversationID)
	if err != nil {
		return err
	}
	defer s.unlock(ctx, mutex)

	items, err := s.readAll(ctx, conversationID)
	if err != nil {
		return err
	}

	var lowest int64
	if len(items) > 0 {
		lowest = items[0].Seq
	}

	kept := make([]*conversation.Item, 0, len(items))
	for _, item := range items {
		if item.Seq >= beforeSeq {
			kept = append(kept, item)
		}
	}
	if summary != nil {
		summary.ConversationID = conversationID
		summary.Seq = lowest
		summary.CreatedAt = time.Now().UTC()
		kept = append([]*conversation.Item{summary}, kept...)
	}

	// Rewrite the list in one transaction so readers never observe a
	// half-replaced log.
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, ItemsKey(conversationID))
	for _, item := range kept {
		raw, err := json.Marshal(item)
		if err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to encode item")
		}
		pipe.RPush(ctx, ItemsKey(conversationID), raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to replace items")
	}
	return nil
}

// CountUserTurns implements conversation.Store.
func (s *RedisStore) CountUserTurns(ctx context.Context, conversationID string) (int, error) {
	items, err := s.readAll(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	return conversation.CountTurns(items), nil
}

// LatestSeq implements conversation.Store.
func (s *RedisStore) LatestSeq(ctx context.Context, conversationID string) (int64, error) {
	latest, err := s.client.Get(ctx, SeqKey(conversationID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to read latest sequence")
	}
	return latest, nil
}

// SoftDelete implements conversation.Store.
func (s *RedisStore) SoftDelete(ctx context.Context, conversationID string) error {
	mutex, err := s.lock(ctx, conversationID)
	if err != nil {
		return err
	}
	defer s.unlock(ctx, mutex)

	doc, err := s.loadConv(ctx, conversationID)
	if err != nil {
		return err
	}
	if doc.DeletedAt != nil {
		return s.notFound(ctx)
	}

	now := time.Now().UTC()
	doc.DeletedAt = &now
	doc.UpdatedAt = now
	if err := s.saveConv(ctx, doc); err != nil {
		return err
	}
	if err := s.client.ZAdd(ctx, deletedKey(), redis.Z{
		Score:  float64(now.Unix()),
		Member: conversationID,
	}).Err(); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to index deleted conversation")
	}
	return nil
}

// Restore implements conversation.Store.
func (s *RedisStore) Restore(ctx context.Context, conversationID string) error {
	mutex, err := s.lock(ctx, conversationID)
	if err != nil {
		return err
	}
	defer s.unlock(ctx, mutex)

	doc, err := s.loadConv(ctx, conversationID)
	if err != nil {
		return err
	}
	if doc.DeletedAt == nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository,
			platformerrors.ErrorTypeNotDeleted, "conversation is not deleted", nil,
			"92f4a0d6-5b3e-4871-ac29-e07d16c5b842")
	}

	doc.DeletedAt = nil
	doc.UpdatedAt = time.Now().UTC()
	if err := s.saveConv(ctx, doc); err != nil {
		return err
	}
	if err := s.client.ZRem(ctx, deletedKey(), conversationID).Err(); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to unindex restored conversation")
	}
	return nil
}

// HardDelete implements conversation.Store.
func (s *RedisStore) HardDelete(ctx context.Context, conversationID string) error {
	mutex, err := s.lock(ctx, conversationID)
	if err != nil {
		return err
	}
	defer s.unlock(ctx, mutex)

	doc, err := s.loadConv(ctx, conversationID)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, ConvKey(conversationID), ItemsKey(conversationID), SeqKey(conversationID), UsageKey(conversationID), BranchesKey(conversationID))
	pipe.ZRem(ctx, deletedKey(), conversationID)
	if doc.Branch != nil {
		pipe.SRem(ctx, BranchesKey(doc.Branch.ParentID), conversationID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to hard delete conversation")
	}
	return nil
}

// ListBranches implements conversation.Store.
func (s *RedisStore) ListBranches(ctx context.Context, parentID string) ([]*conversation.Branch, error) {
	ids, err := s.client.SMembers(ctx, BranchesKey(parentID)).Result()
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to list branches")
	}

	branches := make([]*conversation.Branch, 0, len(ids))
	for _, id := range ids {
		doc, err := s.loadConv(ctx, id)
		if err != nil {
			if platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
				continue
			}
			return nil, err
		}
		if doc.DeletedAt != nil || doc.Branch == nil {
			continue
		}
		branches = append(branches, doc.Branch)
	}
	return branches, nil
}

// ListSoftDeletedBefore implements conversation.Store.
func (s *RedisStore) ListSoftDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, deletedKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("(%d", cutoff.Unix()),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to list expired conversations")
	}
	return ids, nil
}

// WriteUsage implements conversation.Store.
func (s *RedisStore) WriteUsage(ctx context.Context, rec *conversation.UsageRecord) error {
	if _, err := s.loadConv(ctx, rec.ConversationID); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to encode usage record")
	}
	if err := s.client.RPush(ctx, UsageKey(rec.ConversationID), raw).Err(); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to write usage record")
	}
	return nil
}

// ReadUsage implements conversation.Store.
func (s *RedisStore) ReadUsage(ctx context.Context, conversationID string) ([]*conversation.UsageRecord, error) {
	raws, err := s.client.LRange(ctx, UsageKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to read usage records")
	}
	records := make([]*conversation.UsageRecord, 0, len(raws))
	for _, raw := range raws {
		var rec conversation.UsageRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to decode usage record")
		}
		records = append(records, &rec)
	}
	return records, nil
}

func (s *RedisStore) notFound(ctx context.Context) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository,
		platformerrors.ErrorTypeNotFound, "conversation not found", nil,
		"d68c2a05-17f4-4b9e-8352-0fa6e9d41c73")
}
