package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/contextd/contextd/internal/domain/conversation"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

// newTestStore runs an in-process Redis so the adapter is exercised against
// real command semantics, the append mutex included.
func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStoreWithClient(client)
}

var redisItemCounter int

func redisItem(role conversation.ItemRole) *conversation.Item {
	redisItemCounter++
	return conversation.NewItem(fmt.Sprintf("item_kv_%06d", redisItemCounter),
		role, json.RawMessage(`{"text":"x"}`))
}

func createConv(t *testing.T, store *RedisStore, id string) *conversation.Conversation {
	t.Helper()
	conv := conversation.NewConversation(id, nil)
	if err := store.CreateConversation(context.Background(), conv); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conv
}

func appendTurns(t *testing.T, store *RedisStore, id string, turns int, opts conversation.AppendOptions) {
	t.Helper()
	for i := 0; i < turns; i++ {
		turn := []*conversation.Item{
			redisItem(conversation.ItemRoleUser),
			redisItem(conversation.ItemRoleAssistant),
		}
		if _, err := store.AppendItems(context.Background(), id, turn, opts); err != nil {
			t.Fatalf("append turn %d: %v", i, err)
		}
	}
}

func TestAppendAssignsContiguousSequences(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	conv := createConv(t, store, "conv_kv_seq")

	appendTurns(t, store, conv.PublicID, 2, conversation.AppendOptions{})

	items, err := store.ReadItems(ctx, conv.PublicID, conversation.ReadRange{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}
	for i, item := range items {
		if item.Seq != int64(i+1) {
			t.Fatalf("expected seq %d at position %d, got %d", i+1, i, item.Seq)
		}
		if item.ConversationID != conv.PublicID {
			t.Fatalf("expected owner %q, got %q", conv.PublicID, item.ConversationID)
		}
	}

	latest, err := store.LatestSeq(ctx, conv.PublicID)
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if latest != 4 {
		t.Fatalf("expected latest seq 4, got %d", latest)
	}
}

func TestAppendTrimsWithinSameHold(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	conv := createConv(t, store, "conv_kv_trim")

	appendTurns(t, store, conv.PublicID, 3, conversation.AppendOptions{TrimAfterTurns: 2})

	items, err := store.ReadItems(ctx, conv.PublicID, conversation.ReadRange{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 2 retained turns (4 items), got %d items", len(items))
	}
	if items[0].Seq != 3 {
		t.Fatalf("expected first retained seq 3, got %d", items[0].Seq)
	}

	turns, err := store.CountUserTurns(ctx, conv.PublicID)
	if err != nil {
		t.Fatalf("count turns: %v", err)
	}
	if turns != 2 {
		t.Fatalf("expected 2 turns, got %d", turns)
	}
}

func TestAppendToSoftDeletedConversationFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	conv := createConv(t, store, "conv_kv_deleted")

	if err := store.SoftDelete(ctx, conv.PublicID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	_, err := store.AppendItems(ctx, conv.PublicID,
		[]*conversation.Item{redisItem(conversation.ItemRoleUser)}, conversation.AppendOptions{})
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		t.Fatalf("expected not_found appending to deleted conversation, got %v", err)
	}
}

func TestBranchSequenceSeededAtForkPoint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	parent := createConv(t, store, "conv_kv_parent")
	appendTurns(t, store, parent.PublicID, 2, conversation.AppendOptions{})

	branch := conversation.NewConversation("conv_kv_child", nil)
	branch.Branch = &conversation.Branch{
		PublicID:     "br_kv_000001",
		ParentID:     parent.PublicID,
		Name:         "alt",
		ForkPointSeq: 4,
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.CreateConversation(ctx, branch); err != nil {
		t.Fatalf("create branch: %v", err)
	}

	appended, err := store.AppendItems(ctx, branch.PublicID,
		[]*conversation.Item{redisItem(conversation.ItemRoleUser)}, conversation.AppendOptions{})
	if err != nil {
		t.Fatalf("append to branch: %v", err)
	}
	if appended[0].Seq != 5 {
		t.Fatalf("expected branch log to continue at seq 5, got %d", appended[0].Seq)
	}

	branches, err := store.ListBranches(ctx, parent.PublicID)
	if err != nil {
		t.Fatalf("list branches: %v", err)
	}
	if len(branches) != 1 || branches[0].PublicID != "br_kv_000001" {
		t.Fatalf("unexpected branches: %+v", branches)
	}

	// A soft-deleted branch conversation leaves the listing.
	if err := store.SoftDelete(ctx, branch.PublicID); err != nil {
		t.Fatalf("soft delete branch: %v", err)
	}
	branches, err = store.ListBranches(ctx, parent.PublicID)
	if err != nil {
		t.Fatalf("list branches: %v", err)
	}
	if len(branches) != 0 {
		t.Fatalf("expected no live branches, got %d", len(branches))
	}
}

func TestReplaceItemsBeforeInsertsSummary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	conv := createConv(t, store, "conv_kv_replace")
	appendTurns(t, store, conv.PublicID, 3, conversation.AppendOptions{})

	summary := conversation.NewSyntheticItem("item_kv_summary", conversation.ItemRoleSystem,
		json.RawMessage(`{"type":"summary","text":"earlier turns"}`))
	if err := store.ReplaceItemsBefore(ctx, conv.PublicID, 5, summary); err != nil {
		t.Fatalf("replace: %v", err)
	}

	items, err := store.ReadItems(ctx, conv.PublicID, conversation.ReadRange{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected summary plus 2 retained items, got %d", len(items))
	}
	if !items[0].IsSynthetic || items[0].Seq != 1 {
		t.Fatalf("expected synthetic summary at seq 1, got seq %d synthetic=%v", items[0].Seq, items[0].IsSynthetic)
	}
	if items[1].Seq != 5 || items[2].Seq != 6 {
		t.Fatalf("expected retained seqs 5 and 6, got %d and %d", items[1].Seq, items[2].Seq)
	}
}

func TestLifecycleRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	conv := createConv(t, store, "conv_kv_life")
	appendTurns(t, store, conv.PublicID, 1, conversation.AppendOptions{})

	if err := store.SoftDelete(ctx, conv.PublicID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := store.GetConversation(ctx, conv.PublicID, false); !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		t.Fatalf("expected not_found for soft-deleted conversation, got %v", err)
	}
	got, err := store.GetConversation(ctx, conv.PublicID, true)
	if err != nil {
		t.Fatalf("get with includeDeleted: %v", err)
	}
	if got.DeletedAt == nil {
		t.Fatal("expected deleted_at marker set")
	}

	ids, err := store.ListSoftDeletedBefore(ctx, time.Now().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("list soft deleted: %v", err)
	}
	if len(ids) != 1 || ids[0] != conv.PublicID {
		t.Fatalf("expected [%s], got %v", conv.PublicID, ids)
	}

	if err := store.Restore(ctx, conv.PublicID); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if err := store.Restore(ctx, conv.PublicID); !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotDeleted) {
		t.Fatalf("expected not_deleted restoring a live conversation, got %v", err)
	}
	ids, err = store.ListSoftDeletedBefore(ctx, time.Now().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("list soft deleted: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("restore must unindex the conversation, got %v", ids)
	}

	if err := store.SoftDelete(ctx, conv.PublicID); err != nil {
		t.Fatalf("soft delete again: %v", err)
	}
	if err := store.HardDelete(ctx, conv.PublicID); err != nil {
		t.Fatalf("hard delete: %v", err)
	}
	if _, err := store.GetConversation(ctx, conv.PublicID, true); !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		t.Fatalf("expected not_found after hard delete, got %v", err)
	}
	items, err := store.ReadItems(ctx, conv.PublicID, conversation.ReadRange{})
	if err != nil {
		t.Fatalf("read after purge: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("hard delete left %d items", len(items))
	}
}

func TestUsageRecordsPreserveOrderAndCost(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	conv := createConv(t, store, "conv_kv_usage")

	for i := 0; i < 2; i++ {
		err := store.WriteUsage(ctx, &conversation.UsageRecord{
			PublicID:         fmt.Sprintf("usage_kv_%d", i),
			ConversationID:   conv.PublicID,
			RunID:            "run_kv_1",
			Model:            "gpt-4o",
			PromptTokens:     100 * (i + 1),
			CompletionTokens: 50,
			EstimatedCostUSD: decimal.NewFromFloat(0.000125),
		})
		if err != nil {
			t.Fatalf("write usage %d: %v", i, err)
		}
	}

	records, err := store.ReadUsage(ctx, conv.PublicID)
	if err != nil {
		t.Fatalf("read usage: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].PromptTokens != 100 || records[1].PromptTokens != 200 {
		t.Fatalf("records out of order: %d, %d", records[0].PromptTokens, records[1].PromptTokens)
	}
	if !records[0].EstimatedCostUSD.Equal(decimal.NewFromFloat(0.000125)) {
		t.Fatalf("cost not preserved: %s", records[0].EstimatedCostUSD)
	}

	err = store.WriteUsage(ctx, &conversation.UsageRecord{
		PublicID:       "usage_kv_missing",
		ConversationID: "conv_kv_absent",
		RunID:          "run_kv_1",
	})
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		t.Fatalf("expected not_found for unknown conversation, got %v", err)
	}
}
