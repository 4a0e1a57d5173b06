package usage_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/contextd/contextd/internal/domain/conversation"
	"github.com/contextd/contextd/internal/domain/usage"
	"github.com/contextd/contextd/internal/infrastructure/memstore"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

func newLiveConversation(t *testing.T, store conversation.Store) string {
	t.Helper()
	svc := conversation.NewService(store, conversation.DefaultTrimPolicy(), nil)
	conv, err := svc.CreateConversation(context.Background(), nil)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	return conv.PublicID
}

func TestRecordAssignsIDAndTotals(t *testing.T) {
	store := memstore.NewMemoryStore()
	convID := newLiveConversation(t, store)
	svc := usage.NewService(store)

	rec, err := svc.Record(context.Background(), &usage.Record{
		ConversationID:   convID,
		RunID:            "run_1",
		Model:            "gpt-4o",
		PromptTokens:     1000,
		CompletionTokens: 500,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected a record id")
	}
	if rec.TotalTokens != 1500 {
		t.Fatalf("expected total 1500, got %d", rec.TotalTokens)
	}
	// 1000*0.000005 + 500*0.000015
	want := decimal.NewFromFloat(0.0125)
	if !rec.EstimatedCostUSD.Equal(want) {
		t.Fatalf("expected cost %s, got %s", want, rec.EstimatedCostUSD)
	}
}

func TestRecordUsesDefaultPricingForUnknownModel(t *testing.T) {
	cost := usage.CalculateCost("homegrown-model", 1000, 1000)
	want := decimal.NewFromFloat(0.000003).Mul(decimal.NewFromInt(1000)).
		Add(decimal.NewFromFloat(0.000006).Mul(decimal.NewFromInt(1000)))
	if !cost.Equal(want) {
		t.Fatalf("expected default pricing %s, got %s", want, cost)
	}
}

func TestRecordValidation(t *testing.T) {
	store := memstore.NewMemoryStore()
	convID := newLiveConversation(t, store)
	svc := usage.NewService(store)

	tests := []struct {
		name string
		rec  *usage.Record
	}{
		{"missing conversation id", &usage.Record{RunID: "run_1"}},
		{"missing run id", &usage.Record{ConversationID: convID}},
		{"negative prompt tokens", &usage.Record{ConversationID: convID, RunID: "run_1", PromptTokens: -1}},
		{"negative completion tokens", &usage.Record{ConversationID: convID, RunID: "run_1", CompletionTokens: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Record(context.Background(), tt.rec)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !platformerrors.IsValidationError(err) {
				t.Fatalf("expected a validation error, got %v", err)
			}
		})
	}
}

func TestRecordRejectsDeletedConversation(t *testing.T) {
	store := memstore.NewMemoryStore()
	convID := newLiveConversation(t, store)
	if err := store.SoftDelete(context.Background(), convID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	svc := usage.NewService(store)
	_, err := svc.Record(context.Background(), &usage.Record{ConversationID: convID, RunID: "run_1"})
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListFilters(t *testing.T) {
	store := memstore.NewMemoryStore()
	convID := newLiveConversation(t, store)
	svc := usage.NewService(store)

	for _, rec := range []*usage.Record{
		{ConversationID: convID, RunID: "run_1", Model: "gpt-4o", PromptTokens: 10},
		{ConversationID: convID, RunID: "run_1", Model: "gpt-4o-mini", PromptTokens: 20},
		{ConversationID: convID, RunID: "run_2", Model: "gpt-4o", PromptTokens: 30},
	} {
		if _, err := svc.Record(context.Background(), rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	byRun, err := svc.List(context.Background(), convID, usage.Filter{RunID: "run_1"})
	if err != nil {
		t.Fatalf("List by run: %v", err)
	}
	if len(byRun) != 2 {
		t.Fatalf("expected 2 records for run_1, got %d", len(byRun))
	}

	byModel, err := svc.List(context.Background(), convID, usage.Filter{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("List by model: %v", err)
	}
	if len(byModel) != 2 {
		t.Fatalf("expected 2 records for gpt-4o, got %d", len(byModel))
	}

	none, err := svc.List(context.Background(), convID, usage.Filter{EndDate: time.Now().Add(-time.Hour)})
	if err != nil {
		t.Fatalf("List by date: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no records before one hour ago, got %d", len(none))
	}
}

func TestAggregateByRun(t *testing.T) {
	store := memstore.NewMemoryStore()
	convID := newLiveConversation(t, store)
	svc := usage.NewService(store)

	for _, rec := range []*usage.Record{
		{ConversationID: convID, RunID: "run_a", Model: "gpt-4o", PromptTokens: 100, CompletionTokens: 50},
		{ConversationID: convID, RunID: "run_a", Model: "gpt-4o", PromptTokens: 200, CompletionTokens: 100},
		{ConversationID: convID, RunID: "run_b", Model: "gpt-4o", PromptTokens: 10, CompletionTokens: 5},
	} {
		if _, err := svc.Record(context.Background(), rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	summaries, err := svc.Aggregate(context.Background(), convID, usage.GroupByRun)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(summaries))
	}
	runA := summaries[0]
	if runA.Key != "run_a" {
		t.Fatalf("expected run_a first, got %s", runA.Key)
	}
	if runA.TotalPromptTokens != 300 || runA.TotalCompletionTokens != 150 {
		t.Fatalf("unexpected run_a totals: %+v", runA)
	}
	if runA.TotalTokens != 450 || runA.RecordCount != 2 {
		t.Fatalf("unexpected run_a totals: %+v", runA)
	}
	if summaries[1].Key != "run_b" || summaries[1].TotalTokens != 15 {
		t.Fatalf("unexpected run_b summary: %+v", summaries[1])
	}
}

func TestAggregateByConversation(t *testing.T) {
	store := memstore.NewMemoryStore()
	convID := newLiveConversation(t, store)
	svc := usage.NewService(store)

	for i := 0; i < 3; i++ {
		if _, err := svc.Record(context.Background(), &usage.Record{
			ConversationID: convID, RunID: "run_1", Model: "gpt-4o-mini",
			PromptTokens: 100, CompletionTokens: 100,
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	summaries, err := svc.Aggregate(context.Background(), convID, usage.GroupByConversation)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected a single group, got %d", len(summaries))
	}
	if summaries[0].Key != convID || summaries[0].RecordCount != 3 || summaries[0].TotalTokens != 600 {
		t.Fatalf("unexpected summary: %+v", summaries[0])
	}
}

func TestAggregateRejectsUnknownDimension(t *testing.T) {
	store := memstore.NewMemoryStore()
	convID := newLiveConversation(t, store)
	svc := usage.NewService(store)

	_, err := svc.Aggregate(context.Background(), convID, usage.GroupBy("model"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if !platformerrors.IsValidationError(err) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}
