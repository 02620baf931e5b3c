package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/datastream-chat/backend/internal/service/ai/aitest"
	"github.com/zhouzirui/datastream-chat/backend/internal/service/conversation"
	"github.com/zhouzirui/datastream-chat/backend/internal/service/session"
	"github.com/zhouzirui/datastream-chat/backend/internal/storage"
	"github.com/zhouzirui/datastream-chat/backend/internal/view"
)

func setupRouter(t *testing.T, client *aitest.Client) (*chi.Mux, *conversation.Controller, *view.Transcript) {
	t.Helper()
	transcript := view.NewTranscript()
	store := session.NewStore(storage.NewMemoryStore())
	ctrl := conversation.NewController(store, client, transcript, zerolog.Nop())
	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	r := chi.NewRouter()
	New(ctrl, transcript).RegisterRoutes(r)
	return r, ctrl, transcript
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCreateAndListSessions(t *testing.T) {
	r, _, _ := setupRouter(t, aitest.Echo("Pong"))

	resp := do(r, http.MethodPost, "/sessions", nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	var created map[string]string
	_ = json.Unmarshal(resp.Body.Bytes(), &created)

	resp = do(r, http.MethodGet, "/sessions", nil)
	var list sessionList
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Sessions) != 2 || list.Sessions[0].ID != created["id"] || list.ActiveID != created["id"] {
		t.Fatalf("unexpected list %+v (created %v)", list, created)
	}
}

func TestSwitchSession(t *testing.T) {
	r, ctrl, _ := setupRouter(t, aitest.Echo("Pong"))
	first := ctrl.ActiveID()
	do(r, http.MethodPost, "/sessions", nil)

	if resp := do(r, http.MethodPut, "/sessions/active", map[string]string{"id": first}); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if ctrl.ActiveID() != first {
		t.Fatalf("session not switched")
	}
	if resp := do(r, http.MethodPut, "/sessions/active", map[string]string{"id": "missing"}); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if resp := do(r, http.MethodPut, "/sessions/active", map[string]string{}); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSendMessage(t *testing.T) {
	r, _, transcript := setupRouter(t, aitest.Echo("Pong"))

	resp := do(r, http.MethodPost, "/messages", map[string]string{"text": "Ping"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var ex conversation.Exchange
	if err := json.Unmarshal(resp.Body.Bytes(), &ex); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ex.Reply.Text() != "Pong" || ex.Failed || ex.Title != "PING" {
		t.Fatalf("unexpected exchange %+v", ex)
	}

	resp = do(r, http.MethodGet, "/transcript", nil)
	var snap view.Snapshot
	_ = json.Unmarshal(resp.Body.Bytes(), &snap)
	if n := len(snap.Entries); n != 3 || snap.Entries[n-1].Text != "Pong" || snap.Loading {
		t.Fatalf("unexpected transcript %+v", snap)
	}
	if snap.Sessions[0].Title != "PING" {
		t.Fatalf("sidebar not refreshed: %+v", snap.Sessions)
	}
	if direct := transcript.Snapshot(); len(direct.Entries) != len(snap.Entries) || direct.ActiveID != snap.ActiveID {
		t.Fatalf("served transcript differs from view state: %+v vs %+v", snap, direct)
	}
}

func TestSendMessageValidation(t *testing.T) {
	r, _, _ := setupRouter(t, aitest.Echo("Pong"))

	if resp := do(r, http.MethodPost, "/messages", map[string]string{"text": "   "}); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader([]byte("{oops")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", resp.Code)
	}
}

func TestSendMessageRemoteFailureIsNotAnHTTPError(t *testing.T) {
	r, _, _ := setupRouter(t, &aitest.Client{Reply: func(string) (string, error) { return "", errors.New("down") }})

	resp := do(r, http.MethodPost, "/messages", map[string]string{"text": "Ping"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var ex conversation.Exchange
	_ = json.Unmarshal(resp.Body.Bytes(), &ex)
	if !ex.Failed {
		t.Fatalf("expected failed exchange, got %+v", ex)
	}
}

func TestStatusForSendError(t *testing.T) {
	cases := map[error]int{
		conversation.ErrEmptyMessage:   http.StatusBadRequest,
		conversation.ErrBusy:           http.StatusConflict,
		conversation.ErrNoConversation: http.StatusServiceUnavailable,
		errors.New("other"):            http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := StatusForSendError(err); got != want {
			t.Fatalf("StatusForSendError(%v) = %d, want %d", err, got, want)
		}
	}
}
