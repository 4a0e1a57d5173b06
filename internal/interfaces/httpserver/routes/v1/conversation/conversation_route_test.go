package conversation_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	domainconv "github.com/contextd/contextd/internal/domain/conversation"
	"github.com/contextd/contextd/internal/domain/session"
	"github.com/contextd/contextd/internal/infrastructure/memstore"
	"github.com/contextd/contextd/internal/interfaces/httpserver/handlers/conversationhandler"
	conversationresponses "github.com/contextd/contextd/internal/interfaces/httpserver/responses/conversation"
	conversationroute "github.com/contextd/contextd/internal/interfaces/httpserver/routes/v1/conversation"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := session.NewEngine(memstore.NewMemoryStore(),
		domainconv.TrimPolicy{MaxTurns: 100}, nil)

	router := gin.New()
	group := router.Group("/v1")
	conversationroute.NewConversationRoute(conversationhandler.NewConversationHandler(engine)).RegisterRouter(group)
	conversationroute.NewBranchRoute(conversationhandler.NewBranchHandler(engine)).RegisterRouter(group)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createConversation(t *testing.T, router *gin.Engine) conversationresponses.ConversationResponse {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/v1/conversations",
		map[string]any{"metadata": map[string]string{"owner": "tester"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create conversation: status %d body %s", rec.Code, rec.Body.String())
	}
	var resp conversationresponses.ConversationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func appendTurn(t *testing.T, router *gin.Engine, convID string) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/v1/conversations/"+convID+"/items",
		map[string]any{"items": []map[string]any{
			{"role": "user", "content": map[string]string{"type": "text", "text": "hello"}},
			{"role": "assistant", "content": map[string]string{"type": "text", "text": "hi"}},
		}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("append items: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestConversationRoundTrip(t *testing.T) {
	router := newTestRouter(t)

	conv := createConversation(t, router)
	if conv.ID == "" || conv.Object != "conversation" {
		t.Fatalf("unexpected create response: %+v", conv)
	}
	if conv.Metadata["owner"] != "tester" {
		t.Fatalf("metadata not echoed: %+v", conv.Metadata)
	}

	appendTurn(t, router, conv.ID)

	rec := doJSON(t, router, http.MethodGet, "/v1/conversations/"+conv.ID+"/items", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list items: status %d body %s", rec.Code, rec.Body.String())
	}
	var items conversationresponses.ItemListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	if len(items.Data) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items.Data))
	}
	if items.Data[0].Seq != 1 || items.Data[0].Role != "user" {
		t.Fatalf("unexpected first item: %+v", items.Data[0])
	}
}

func TestGetUnknownConversationReturns404(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/v1/conversations/conv_missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if _, ok := body["error"]; !ok {
		t.Fatalf("expected an error envelope, got %s", rec.Body.String())
	}
}

func TestCreateItemsRejectsMissingRole(t *testing.T) {
	router := newTestRouter(t)
	conv := createConversation(t, router)

	rec := doJSON(t, router, http.MethodPost, "/v1/conversations/"+conv.ID+"/items",
		map[string]any{"items": []map[string]any{
			{"content": map[string]string{"type": "text", "text": "no role"}},
		}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteRestorePurgeFlow(t *testing.T) {
	router := newTestRouter(t)
	conv := createConversation(t, router)
	appendTurn(t, router, conv.ID)

	rec := doJSON(t, router, http.MethodDelete, "/v1/conversations/"+conv.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d body %s", rec.Code, rec.Body.String())
	}
	var deleted conversationresponses.DeletedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &deleted); err != nil {
		t.Fatalf("decode delete response: %v", err)
	}
	if !deleted.Deleted || deleted.ID != conv.ID {
		t.Fatalf("unexpected delete response: %+v", deleted)
	}

	if rec := doJSON(t, router, http.MethodGet, "/v1/conversations/"+conv.ID, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}

	if rec := doJSON(t, router, http.MethodPost, "/v1/conversations/"+conv.ID+"/restore", nil); rec.Code != http.StatusOK {
		t.Fatalf("restore: status %d body %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, router, http.MethodGet, "/v1/conversations/"+conv.ID, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after restore, got %d", rec.Code)
	}

	// Restoring a live conversation is a conflict.
	if rec := doJSON(t, router, http.MethodPost, "/v1/conversations/"+conv.ID+"/restore", nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 restoring a live conversation, got %d", rec.Code)
	}

	if rec := doJSON(t, router, http.MethodDelete, "/v1/conversations/"+conv.ID+"/purge", nil); rec.Code != http.StatusOK {
		t.Fatalf("purge: status %d body %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, router, http.MethodGet, "/v1/conversations/"+conv.ID, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after purge, got %d", rec.Code)
	}
}

func TestBranchRoutes(t *testing.T) {
	router := newTestRouter(t)
	conv := createConversation(t, router)
	appendTurn(t, router, conv.ID)

	rec := doJSON(t, router, http.MethodPost, "/v1/conversations/"+conv.ID+"/branches",
		map[string]any{"fork_point_seq": 2, "name": "alt"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create branch: status %d body %s", rec.Code, rec.Body.String())
	}
	var branch conversationresponses.ConversationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &branch); err != nil {
		t.Fatalf("decode branch: %v", err)
	}
	if branch.Branch == nil || branch.Branch.ParentID != conv.ID {
		t.Fatalf("unexpected branch response: %+v", branch)
	}

	// Fork point past the parent's latest item is a client error.
	rec = doJSON(t, router, http.MethodPost, "/v1/conversations/"+conv.ID+"/branches",
		map[string]any{"fork_point_seq": 99, "name": "bad"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid fork point, got %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/conversations/"+conv.ID+"/branches", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list branches: status %d body %s", rec.Code, rec.Body.String())
	}
	var list conversationresponses.BranchListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode branch list: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].Name != "alt" {
		t.Fatalf("unexpected branch list: %+v", list.Data)
	}
}
