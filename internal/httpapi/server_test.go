package httpapi

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/JPaulGrayson/QuackQuack/internal/apikeys"
	"github.com/JPaulGrayson/QuackQuack/internal/audit"
	"github.com/JPaulGrayson/QuackQuack/internal/blobstore"
	"github.com/JPaulGrayson/QuackQuack/internal/bridge"
	"github.com/JPaulGrayson/QuackQuack/internal/convo"
	"github.com/JPaulGrayson/QuackQuack/internal/mailbox"
	"github.com/JPaulGrayson/QuackQuack/internal/recorder"
	"github.com/JPaulGrayson/QuackQuack/internal/registry"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
	"github.com/JPaulGrayson/QuackQuack/internal/webhook"
)

// testDeps holds every collaborator NewServer needs, so a test can build
// one set of stores and stand up a server with a different devBypass value
// against the same underlying state (e.g. to exercise real auth after
// provisioning a key through a dev-bypass server).
type testDeps struct {
	logger        *log.Logger
	mailboxStore  mailbox.Store
	registryStore *registry.MemoryStore
	blobStore     blobstore.Store
	subs          *webhook.SubscriptionStore
	fanout        *webhook.Fanout
	auditLogger   *audit.Logger
	convoRegistry *convo.Registry
	recorderSvc   *recorder.Recorder
	keyStore      apikeys.Store
	bridgeHub     *bridge.Hub
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()
	logger := log.New(os.Stdout, "", 0)
	dir := t.TempDir()

	registryStore := registry.NewMemoryStore()
	auditLogger := audit.NewLogger(logger, audit.NewMemoryStore())
	t.Cleanup(func() { _ = auditLogger.Close() })
	convoRegistry := convo.New(convo.NewMemoryStore())
	recorderSvc := recorder.New(recorder.NewMemoryStore())
	keyStore := apikeys.NewMemoryStore()

	mailboxStore, err := mailbox.NewMemoryStore(logger, registryStore, auditLogger, filepath.Join(dir, "mailbox.json"))
	if err != nil {
		t.Fatalf("new mailbox store: %v", err)
	}
	blobStore, err := blobstore.NewFileStore(logger, filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("new blob store: %v", err)
	}
	subs, err := webhook.NewSubscriptionStore(filepath.Join(dir, "webhooks.json"))
	if err != nil {
		t.Fatalf("new webhook store: %v", err)
	}
	fanout := webhook.New(logger, subs, registryStore)
	bridgeHub := bridge.NewHub(logger, mailboxStore, registryStore, auditLogger, "bridge-secret", false)

	return &testDeps{
		logger: logger, mailboxStore: mailboxStore, registryStore: registryStore,
		blobStore: blobStore, subs: subs, fanout: fanout, auditLogger: auditLogger,
		convoRegistry: convoRegistry, recorderSvc: recorderSvc, keyStore: keyStore,
		bridgeHub: bridgeHub,
	}
}

func (d *testDeps) handler(devBypass bool) http.Handler {
	srv := NewServer(
		d.logger, ":0",
		d.mailboxStore, d.registryStore, d.blobStore, d.subs, d.fanout,
		d.auditLogger, d.convoRegistry, d.recorderSvc, d.keyStore, d.bridgeHub,
		"webhook-secret", devBypass,
	)
	return srv.Handler
}

func newTestHandler(t *testing.T, devBypass bool) (http.Handler, *registry.MemoryStore, apikeys.Store) {
	t.Helper()
	deps := newTestDeps(t)
	return deps.handler(devBypass), deps.registryStore, deps.keyStore
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
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
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestSendAndCheckInboxRoundTrip(t *testing.T) {
	h, _, _ := newTestHandler(t, true)

	rr := doJSON(t, h, http.MethodPost, "/api/send", sendRequestBody{
		From: "alice/bot", To: "bob/bot", Task: "review the PR",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var sendResp sendResponseBody
	if err := json.Unmarshal(rr.Body.Bytes(), &sendResp); err != nil {
		t.Fatalf("decode send response: %v", err)
	}
	if !sendResp.Success || sendResp.MessageID == "" {
		t.Fatalf("expected a successful send with a message id, got %+v", sendResp)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/inbox/bob/bot", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("check inbox: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var inbox checkInboxResponseBody
	if err := json.Unmarshal(rr.Body.Bytes(), &inbox); err != nil {
		t.Fatalf("decode inbox response: %v", err)
	}
	if inbox.Count != 1 || len(inbox.Messages) != 1 {
		t.Fatalf("expected exactly one pending message, got %+v", inbox)
	}
}

func TestSendRejectsMalformedBody(t *testing.T) {
	h, _, _ := newTestHandler(t, true)

	req := httptest.NewRequest(http.MethodPost, "/api/send", bytes.NewReader([]byte(`{"to": "bob"`)))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", rr.Code)
	}
}

func TestMailboxRoutesRequireAuthWithoutDevBypass(t *testing.T) {
	h, _, _ := newTestHandler(t, false)

	rr := doJSON(t, h, http.MethodGet, "/api/threads", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without an API key, got %d", rr.Code)
	}
}

func TestKeyRoutesRequireAdminAuth(t *testing.T) {
	h, _, _ := newTestHandler(t, false)

	rr := doJSON(t, h, http.MethodPost, "/api/keys", createKeyRequestBody{
		OwnerID:     "ops",
		Permissions: []types.APIKeyPermission{types.PermAdmin},
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("creating a key itself requires admin auth, expected 401, got %d", rr.Code)
	}
}

func TestCreateKeyThenAuthenticateWithIt(t *testing.T) {
	deps := newTestDeps(t)
	bypassed := deps.handler(true)
	authed := deps.handler(false)

	rr := doJSON(t, bypassed, http.MethodPost, "/api/keys", createKeyRequestBody{
		OwnerID:     "ops",
		Permissions: []types.APIKeyPermission{types.PermRead},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("create key: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var created createKeyResponseBody
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created key: %v", err)
	}
	if created.Token == "" {
		t.Fatalf("expected a raw token to be returned on creation")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/threads", nil)
	req.Header.Set("Authorization", "Bearer "+created.Token)
	rr = httptest.NewRecorder()
	authed.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected the issued key to authenticate a read call, got %d body=%s", rr.Code, rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/keys", bytes.NewReader(nil))
	req.Header.Set("Authorization", "Bearer "+created.Token)
	rr = httptest.NewRecorder()
	authed.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected a read-only key to be refused admin access, got %d", rr.Code)
	}
}

func TestAgentLifecycle(t *testing.T) {
	h, _, _ := newTestHandler(t, true)

	agent := types.Agent{Name: "bot", Platform: "acme", Category: types.CategoryAutonomous}
	rr := doJSON(t, h, http.MethodPost, "/api/agents", agent)
	if rr.Code != http.StatusOK {
		t.Fatalf("create agent: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodGet, "/api/agents/acme/bot", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get agent: expected 200, got %d", rr.Code)
	}
	var got types.Agent
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode agent: %v", err)
	}
	if got.ID != "acme/bot" {
		t.Fatalf("expected agent id acme/bot, got %q", got.ID)
	}

	rr = doJSON(t, h, http.MethodPost, "/api/agents/acme/bot/ping", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("ping agent: expected 200, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/agents/acme/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown agent, got %d", rr.Code)
	}
}

func TestWebhookSubscribeListUnsubscribe(t *testing.T) {
	h, _, _ := newTestHandler(t, true)

	rr := doJSON(t, h, http.MethodPost, "/api/webhooks", subscribeRequestBody{
		Inbox: "bob/bot", URL: "https://example.com/hook",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("subscribe: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var sub struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &sub); err != nil {
		t.Fatalf("decode subscription: %v", err)
	}
	if sub.ID == "" {
		t.Fatalf("expected a subscription id")
	}

	rr = doJSON(t, h, http.MethodGet, "/api/webhooks", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list webhooks: expected 200, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodDelete, "/api/webhooks/"+sub.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("unsubscribe: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodDelete, "/api/webhooks/"+sub.ID, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a double unsubscribe, got %d", rr.Code)
	}
}

func TestUploadAndFetchFile(t *testing.T) {
	h, _, _ := newTestHandler(t, true)

	rr := doJSON(t, h, http.MethodPost, "/api/files", uploadFileRequestBody{
		Name:     "notes.txt",
		Content:  "aGVsbG8=", // base64("hello")
		Type:     types.BlobDoc,
		MIMEType: "text/plain",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var meta struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &meta); err != nil {
		t.Fatalf("decode blob meta: %v", err)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/files/"+meta.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get file: expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != "hello" {
		t.Fatalf("expected decoded payload %q, got %q", "hello", rr.Body.String())
	}
}

func TestJournalEntryCreatesSession(t *testing.T) {
	h, _, _ := newTestHandler(t, true)

	rr := doJSON(t, h, http.MethodPost, "/api/v1/agent/journal", journalRequestBody{
		AgentID: "alice/bot", Content: "started the task",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("journal: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodGet, "/api/v1/agent/context/agent/alice/bot", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("context for agent: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestBridgeStatusAndAgentsRoutes(t *testing.T) {
	h, _, _ := newTestHandler(t, true)

	rr := doJSON(t, h, http.MethodGet, "/bridge/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("bridge status: expected 200, got %d", rr.Code)
	}
	var status struct {
		OnlineCount int `json:"onlineCount"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.OnlineCount != 0 {
		t.Fatalf("expected zero online agents with no open connections, got %d", status.OnlineCount)
	}

	rr = doJSON(t, h, http.MethodGet, "/bridge/agents", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("bridge agents: expected 200, got %d", rr.Code)
	}
}

func TestBridgeSendFallsBackToMailboxWhenOffline(t *testing.T) {
	h, _, _ := newTestHandler(t, true)

	rr := doJSON(t, h, http.MethodPost, "/bridge/send", map[string]string{
		"from": "alice/bot", "to": "bob/bot", "content": "ping",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("bridge send: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodGet, "/api/inbox/bob/bot", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("check inbox: expected 200, got %d", rr.Code)
	}
	var inbox checkInboxResponseBody
	if err := json.Unmarshal(rr.Body.Bytes(), &inbox); err != nil {
		t.Fatalf("decode inbox: %v", err)
	}
	if inbox.Count != 1 {
		t.Fatalf("expected the offline send to fall back to the mailbox, got count=%d", inbox.Count)
	}
}
