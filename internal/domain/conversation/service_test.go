package conversation_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/contextd/contextd/internal/domain/conversation"
	"github.com/contextd/contextd/internal/infrastructure/memstore"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

func userItem(text string) *conversation.Item {
	content, _ := json.Marshal(map[string]string{"type": "text", "text": text})
	return conversation.NewItem("", conversation.ItemRoleUser, content)
}

func assistantItem(text string) *conversation.Item {
	content, _ := json.Marshal(map[string]string{"type": "text", "text": text})
	return conversation.NewItem("", conversation.ItemRoleAssistant, content)
}

// seedTurns appends n user/assistant turn pairs.
func seedTurns(t *testing.T, svc *conversation.Service, convID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := svc.AddItems(context.Background(), convID, []*conversation.Item{
			userItem(fmt.Sprintf("question %d", i)),
			assistantItem(fmt.Sprintf("answer %d", i)),
		})
		if err != nil {
			t.Fatalf("AddItems turn %d: %v", i, err)
		}
	}
}

func TestCreateConversationAssignsIdentity(t *testing.T) {
	svc := conversation.NewService(memstore.NewMemoryStore(), conversation.DefaultTrimPolicy(), nil)

	conv, err := svc.CreateConversation(context.Background(), map[string]string{"owner": "tester"})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if conv.PublicID == "" {
		t.Fatal("expected a public id")
	}
	if conv.Object != "conversation" {
		t.Fatalf("expected object conversation, got %q", conv.Object)
	}
	if conv.Metadata["owner"] != "tester" {
		t.Fatal("metadata not preserved")
	}
}

func TestAddItemsAssignsContiguousSequences(t *testing.T) {
	store := memstore.NewMemoryStore()
	svc := conversation.NewService(store, conversation.DefaultTrimPolicy(), nil)

	conv, err := svc.CreateConversation(context.Background(), nil)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	appended, err := svc.AddItems(context.Background(), conv.PublicID, []*conversation.Item{
		userItem("hello"), assistantItem("hi"), userItem("more"),
	})
	if err != nil {
		t.Fatalf("AddItems: %v", err)
	}
	for i, item := range appended {
		if item.Seq != int64(i)+1 {
			t.Fatalf("item %d: expected seq %d, got %d", i, i+1, item.Seq)
		}
		if item.PublicID == "" {
			t.Fatalf("item %d: missing public id", i)
		}
	}
}

func TestTrimOnWriteDropsOldTurns(t *testing.T) {
	store := memstore.NewMemoryStore()
	policy := conversation.TrimPolicy{MaxTurns: 2, TrimOnWrite: true}
	svc := conversation.NewService(store, policy, nil)

	conv, err := svc.CreateConversation(context.Background(), nil)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	seedTurns(t, svc, conv.PublicID, 5)

	stored, err := store.ReadItems(context.Background(), conv.PublicID, conversation.ReadRange{})
	if err != nil {
		t.Fatalf("ReadItems: %v", err)
	}
	if got := conversation.CountTurns(stored); got != 2 {
		t.Fatalf("expected 2 stored turns, got %d", got)
	}
	if !stored[0].IsUserTurn() {
		t.Fatal("stored log must start at a user turn boundary")
	}
	// 5 turns of 2 items each, budget 2: turns 4 and 5 survive.
	if stored[0].Seq != 7 {
		t.Fatalf("expected first surviving seq 7, got %d", stored[0].Seq)
	}
}

func TestTrimOnReadLeavesStoreUntouched(t *testing.T) {
	store := memstore.NewMemoryStore()
	policy := conversation.TrimPolicy{MaxTurns: 2, TrimOnRead: true}
	svc := conversation.NewService(store, policy, nil)

	conv, err := svc.CreateConversation(context.Background(), nil)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	seedTurns(t, svc, conv.PublicID, 4)

	visible, err := svc.GetItems(context.Background(), conv.PublicID, conversation.ReadRange{})
	if err != nil {
		t.Fatalf("GetItems: %v", err)
	}
	if got := conversation.CountTurns(visible); got != 2 {
		t.Fatalf("expected 2 visible turns, got %d", got)
	}

	stored, err := store.ReadItems(context.Background(), conv.PublicID, conversation.ReadRange{})
	if err != nil {
		t.Fatalf("ReadItems: %v", err)
	}
	if len(stored) != 8 {
		t.Fatalf("expected all 8 items stored, got %d", len(stored))
	}
}

func TestAddItemsRejectsUnknownConversation(t *testing.T) {
	svc := conversation.NewService(memstore.NewMemoryStore(), conversation.DefaultTrimPolicy(), nil)

	_, err := svc.AddItems(context.Background(), "conv_doesnotexist001", []*conversation.Item{userItem("x")})
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestAddItemsRejectsInvalidRole(t *testing.T) {
	svc := conversation.NewService(memstore.NewMemoryStore(), conversation.DefaultTrimPolicy(), nil)

	conv, err := svc.CreateConversation(context.Background(), nil)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	bad := conversation.NewItem("", conversation.ItemRole("narrator"), json.RawMessage(`{}`))
	_, err = svc.AddItems(context.Background(), conv.PublicID, []*conversation.Item{bad})
	if !platformerrors.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type stubSummarizer struct {
	payload json.RawMessage
	err     error
	calls   int
}

func (s *stubSummarizer) Summarize(ctx context.Context, items []*conversation.Item) (json.RawMessage, error) {
	s.calls++
	return s.payload, s.err
}

func TestSummarizeModeInsertsSyntheticItem(t *testing.T) {
	store := memstore.NewMemoryStore()
	summ := &stubSummarizer{payload: json.RawMessage(`{"type":"summary","text":"earlier chat"}`)}
	policy := conversation.TrimPolicy{MaxTurns: 2, TrimOnWrite: true, Summarize: true}
	svc := conversation.NewService(store, policy, summ)

	conv, err := svc.CreateConversation(context.Background(), nil)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	seedTurns(t, svc, conv.PublicID, 4)

	if summ.calls == 0 {
		t.Fatal("expected summarizer to be called")
	}

	stored, err := store.ReadItems(context.Background(), conv.PublicID, conversation.ReadRange{})
	if err != nil {
		t.Fatalf("ReadItems: %v", err)
	}
	if !stored[0].IsSynthetic {
		t.Fatal("expected a synthetic summary item at the head")
	}
	if stored[0].Role != conversation.ItemRoleSystem {
		t.Fatalf("expected system role, got %q", stored[0].Role)
	}
	// The synthetic item must not count toward the budget.
	if got := conversation.CountTurns(stored); got != 2 {
		t.Fatalf("expected 2 real turns after summarization, got %d", got)
	}
}

func TestSummarizeModeDegradesToDropOnFailure(t *testing.T) {
	store := memstore.NewMemoryStore()
	summ := &stubSummarizer{err: errors.New("model unavailable")}
	policy := conversation.TrimPolicy{MaxTurns: 2, TrimOnWrite: true, Summarize: true}
	svc := conversation.NewService(store, policy, summ)

	conv, err := svc.CreateConversation(context.Background(), nil)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	seedTurns(t, svc, conv.PublicID, 4)

	stored, err := store.ReadItems(context.Background(), conv.PublicID, conversation.ReadRange{})
	if err != nil {
		t.Fatalf("ReadItems: %v", err)
	}
	for _, item := range stored {
		if item.IsSynthetic {
			t.Fatal("no synthetic item expected after summarizer failure")
		}
	}
	if got := conversation.CountTurns(stored); got != 2 {
		t.Fatalf("expected 2 turns after drop fallback, got %d", got)
	}
}
