package bridge

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/JPaulGrayson/QuackQuack/internal/mailbox"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
	"github.com/JPaulGrayson/QuackQuack/internal/signing"
)

type alwaysApprove struct{}

func (alwaysApprove) ShouldAutoApprove(ctx context.Context, from, to string) (bool, error) {
	return true, nil
}

type noopArchive struct{}

func (noopArchive) ArchiveThread(ctx context.Context, threadID string, messages []types.Message) error {
	return nil
}

type fakeAgents struct {
	agents map[string]types.Agent
}

func (f *fakeAgents) Get(ctx context.Context, id string) (types.Agent, error) {
	agent, ok := f.agents[id]
	if !ok {
		return types.Agent{}, mailbox.ErrNotFound
	}
	return agent, nil
}

type recordedAudit struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordedAudit) Record(action types.AuditAction, actor, targetType, targetID string, details map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, string(action)+":"+targetID)
}

func (r *recordedAudit) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func newTestHub(t *testing.T, agents *fakeAgents, devBypass bool) *Hub {
	t.Helper()
	store, err := mailbox.NewMemoryStore(nil, alwaysApprove{}, noopArchive{}, "")
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	if agents == nil {
		agents = &fakeAgents{agents: map[string]types.Agent{}}
	}
	return NewHub(nil, store, agents, &recordedAudit{}, "bridge-secret", devBypass)
}

func dialAndAuth(t *testing.T, server *httptest.Server, agentID string, devBypass bool) *gorillaws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/bridge/connect"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	var welcome envelope
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if welcome.Type != FrameWelcome {
		t.Fatalf("expected welcome frame, got %s", welcome.Type)
	}

	token := "dev"
	if !devBypass {
		token = signing.BridgeAuthToken("bridge-secret", agentID)
	}
	authBody, _ := marshalPayload(authFrame{AgentID: agentID, Token: token})
	if err := conn.WriteJSON(envelope{Type: FrameAuth, Payload: authBody}); err != nil {
		t.Fatalf("write auth: %v", err)
	}

	var reply envelope
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read auth reply: %v", err)
	}
	if reply.Type != FrameAuthSuccess {
		t.Fatalf("expected auth_success, got %s payload=%s", reply.Type, reply.Payload)
	}
	return conn
}

// expectPresence reads the presence frame an already-connected agent gets
// when another agent authenticates.
func expectPresence(t *testing.T, conn *gorillaws.Conn, agentID, status string) {
	t.Helper()
	var frame envelope
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read presence: %v", err)
	}
	if frame.Type != FramePresence {
		t.Fatalf("expected presence frame, got %s", frame.Type)
	}
	var payload presencePayload
	if err := unmarshalPayload(frame.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.AgentID != agentID || payload.Status != status {
		t.Fatalf("unexpected presence payload: %+v", payload)
	}
}

func TestAuthSuccessWithDevBypass(t *testing.T) {
	hub := newTestHub(t, nil, true)
	server := httptest.NewServer(hub.ConnectHandler())
	defer server.Close()

	conn := dialAndAuth(t, server, "cursor/dev", true)
	defer conn.Close()
}

func TestAuthRejectsWrongToken(t *testing.T) {
	hub := newTestHub(t, nil, false)
	server := httptest.NewServer(hub.ConnectHandler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/bridge/connect"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var welcome envelope
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	authBody, _ := marshalPayload(authFrame{AgentID: "cursor/dev", Token: "wrong"})
	if err := conn.WriteJSON(envelope{Type: FrameAuth, Payload: authBody}); err != nil {
		t.Fatalf("write auth: %v", err)
	}
	var reply envelope
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply.Type != FrameError {
		t.Fatalf("expected error frame for bad token, got %s", reply.Type)
	}
}

func TestPingPong(t *testing.T) {
	hub := newTestHub(t, nil, true)
	server := httptest.NewServer(hub.ConnectHandler())
	defer server.Close()

	conn := dialAndAuth(t, server, "cursor/dev", true)
	defer conn.Close()

	if err := conn.WriteJSON(envelope{Type: FramePing}); err != nil {
		t.Fatal(err)
	}
	var reply envelope
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != FramePong {
		t.Fatalf("expected pong, got %s", reply.Type)
	}
}

func TestMessageDeliversDirectlyWhenRecipientOnline(t *testing.T) {
	hub := newTestHub(t, nil, true)
	server := httptest.NewServer(hub.ConnectHandler())
	defer server.Close()

	sender := dialAndAuth(t, server, "cursor/dev", true)
	defer sender.Close()
	recipient := dialAndAuth(t, server, "replit/agent", true)
	defer recipient.Close()
	expectPresence(t, sender, "replit/agent", "online")

	body, _ := marshalPayload(messageFrame{To: "replit/agent", Content: "hi"})
	if err := sender.WriteJSON(envelope{Type: FrameMessage, Payload: body}); err != nil {
		t.Fatal(err)
	}

	var sentReply envelope
	if err := sender.ReadJSON(&sentReply); err != nil {
		t.Fatal(err)
	}
	if sentReply.Type != FrameMessageSent {
		t.Fatalf("expected message_sent, got %s", sentReply.Type)
	}

	var delivered envelope
	if err := recipient.ReadJSON(&delivered); err != nil {
		t.Fatal(err)
	}
	if delivered.Type != FrameMessage {
		t.Fatalf("expected message frame delivered to recipient, got %s", delivered.Type)
	}
}

func TestMessageFallsBackToMailboxWhenRecipientOffline(t *testing.T) {
	audit := &recordedAudit{}
	store, err := mailbox.NewMemoryStore(nil, alwaysApprove{}, noopArchive{}, "")
	if err != nil {
		t.Fatal(err)
	}
	agents := &fakeAgents{agents: map[string]types.Agent{
		"claude": {Platform: "claude", Category: types.CategoryConversational},
	}}
	hub := NewHub(nil, store, agents, audit, "bridge-secret", true)
	server := httptest.NewServer(hub.ConnectHandler())
	defer server.Close()

	sender := dialAndAuth(t, server, "cursor/dev", true)
	defer sender.Close()

	body, _ := marshalPayload(messageFrame{To: "claude/web", Content: "hi"})
	if err := sender.WriteJSON(envelope{Type: FrameMessage, Payload: body}); err != nil {
		t.Fatal(err)
	}
	var reply envelope
	if err := sender.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != FrameMessageSent {
		t.Fatalf("expected message_sent, got %s", reply.Type)
	}

	deadline := time.Now().Add(time.Second)
	for {
		msgs, err := store.CheckInbox(context.Background(), "claude", true, false)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) == 1 {
			if msgs[0].Status != types.StatusApproved {
				t.Fatalf("expected approved status, got %s", msgs[0].Status)
			}
			found := false
			for _, tag := range msgs[0].Tags {
				if tag == "bridge" {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected bridge tag, got %v", msgs[0].Tags)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("message never appeared in coalesced root inbox")
		}
		time.Sleep(time.Millisecond)
	}
	if audit.count() == 0 {
		t.Fatalf("expected an audit entry for the fallback approval")
	}
}

func TestListAgentsFiltersByPlatform(t *testing.T) {
	hub := newTestHub(t, nil, true)
	server := httptest.NewServer(hub.ConnectHandler())
	defer server.Close()

	a := dialAndAuth(t, server, "cursor/dev", true)
	defer a.Close()
	b := dialAndAuth(t, server, "replit/agent", true)
	defer b.Close()
	expectPresence(t, a, "replit/agent", "online")

	body, _ := marshalPayload(listAgentsFrame{Filter: &agentFilter{Platform: "cursor"}})
	if err := a.WriteJSON(envelope{Type: FrameListAgents, Payload: body}); err != nil {
		t.Fatal(err)
	}
	var reply envelope
	if err := a.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != FrameListAgents {
		t.Fatalf("expected list_agents reply, got %s", reply.Type)
	}
	var payload listAgentsPayload
	if err := unmarshalPayload(reply.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Agents) != 1 || payload.Agents[0].AgentID != "cursor/dev" {
		t.Fatalf("unexpected filtered agents: %+v", payload.Agents)
	}
}

func TestSubscribeAndBroadcast(t *testing.T) {
	hub := newTestHub(t, nil, true)
	server := httptest.NewServer(hub.ConnectHandler())
	defer server.Close()

	listener := dialAndAuth(t, server, "cursor/dev", true)
	defer listener.Close()
	speaker := dialAndAuth(t, server, "replit/agent", true)
	defer speaker.Close()
	expectPresence(t, listener, "replit/agent", "online")

	subBody, _ := marshalPayload(subscribeFrame{Channels: []string{"ops"}})
	if err := listener.WriteJSON(envelope{Type: FrameSubscribe, Payload: subBody}); err != nil {
		t.Fatal(err)
	}
	var subReply envelope
	if err := listener.ReadJSON(&subReply); err != nil {
		t.Fatal(err)
	}
	if subReply.Type != FrameSubscribed {
		t.Fatalf("expected subscribed, got %s", subReply.Type)
	}

	castBody, _ := marshalPayload(broadcastFrame{Channel: "ops", Content: "deploying"})
	if err := speaker.WriteJSON(envelope{Type: FrameBroadcast, Payload: castBody}); err != nil {
		t.Fatal(err)
	}

	var got envelope
	if err := listener.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.Type != FrameBroadcast {
		t.Fatalf("expected broadcast delivery, got %s", got.Type)
	}
}

func TestReapStaleClosesIdleConnections(t *testing.T) {
	hub := newTestHub(t, nil, true)
	server := httptest.NewServer(hub.ConnectHandler())
	defer server.Close()

	conn := dialAndAuth(t, server, "cursor/dev", true)
	defer conn.Close()

	hub.mu.RLock()
	c := hub.connections["cursor/dev"]
	hub.mu.RUnlock()
	c.mu.Lock()
	c.lastSeen = time.Now().UTC().Add(-time.Hour)
	c.mu.Unlock()

	hub.ReapStale(time.Now().UTC())

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected reaped connection to be closed")
	}
}

func marshalPayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

func unmarshalPayload(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
