package toolhost

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JPaulGrayson/QuackQuack/internal/mailbox"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

type alwaysApprove struct{}

func (alwaysApprove) ShouldAutoApprove(ctx context.Context, from, to string) (bool, error) {
	return true, nil
}

type noopArchive struct{}

func (noopArchive) ArchiveThread(ctx context.Context, threadID string, messages []types.Message) error {
	return nil
}

// sseClient drives one SSE connection against a test server and lets the
// test wait for the next event frame.
type sseClient struct {
	t        *testing.T
	resp     *http.Response
	reader   *bufio.Reader
	endpoint string
}

func connectSSE(t *testing.T, server *httptest.Server) *sseClient {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, server.URL+"/toolhost/sse", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	c := &sseClient{t: t, resp: resp, reader: bufio.NewReader(resp.Body)}
	_, data := c.nextEvent()
	c.endpoint = server.URL + data
	return c
}

func (c *sseClient) nextEvent() (string, string) {
	c.t.Helper()
	var eventType, data string
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			c.t.Fatalf("read SSE line: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if eventType != "" {
				return eventType, data
			}
		}
	}
}

func (c *sseClient) close() {
	c.resp.Body.Close()
}

func postJSONRPC(t *testing.T, endpoint string, req jsonrpcRequest) {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 accepted, got %d", resp.StatusCode)
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	store, err := mailbox.NewMemoryStore(nil, alwaysApprove{}, noopArchive{}, "")
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	toolHost := New(nil, store)
	mux := http.NewServeMux()
	mux.HandleFunc("/toolhost/sse", toolHost.SSEHandler("/toolhost/messages"))
	mux.HandleFunc("/toolhost/messages", toolHost.MessagesHandler())
	server := httptest.NewServer(mux)
	return toolHost, server
}

func TestToolsListOverSSE(t *testing.T) {
	_, server := newTestServer(t)
	defer server.Close()

	client := connectSSE(t, server)
	defer client.close()

	postJSONRPC(t, client.endpoint, jsonrpcRequest{JSONRPC: jsonrpcVersion, ID: json.RawMessage(`1`), Method: "tools/list"})

	eventType, data := client.nextEvent()
	if eventType != "message" {
		t.Fatalf("expected a message event, got %s", eventType)
	}
	var resp jsonrpcResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		t.Fatal(err)
	}
	var result toolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Tools) != 5 {
		t.Fatalf("expected 5 tools, got %d", len(result.Tools))
	}
}

func callTool(t *testing.T, client *sseClient, name string, args any) jsonrpcResponse {
	t.Helper()
	encodedArgs, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	params, err := json.Marshal(toolCallParams{Name: name, Arguments: encodedArgs})
	if err != nil {
		t.Fatal(err)
	}
	postJSONRPC(t, client.endpoint, jsonrpcRequest{JSONRPC: jsonrpcVersion, ID: json.RawMessage(`2`), Method: "tools/call", Params: params})

	eventType, data := client.nextEvent()
	if eventType != "message" {
		t.Fatalf("expected a message event, got %s", eventType)
	}
	var resp jsonrpcResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestSendCheckReceiveCompleteReplyRoundTrip(t *testing.T) {
	_, server := newTestServer(t)
	defer server.Close()

	client := connectSSE(t, server)
	defer client.close()

	sendResp := callTool(t, client, "send", sendArgs{To: "claude/web", From: "cursor/dev", Task: "review this PR"})
	if sendResp.Error != nil {
		t.Fatalf("send failed: %+v", sendResp.Error)
	}
	var sentResult toolCallResult
	if err := json.Unmarshal(sendResp.Result, &sentResult); err != nil {
		t.Fatal(err)
	}
	var sentMsg types.Message
	if err := json.Unmarshal([]byte(sentResult.Content[0].Text), &sentMsg); err != nil {
		t.Fatal(err)
	}
	if sentMsg.Status != types.StatusApproved {
		t.Fatalf("expected auto-approved message, got %s", sentMsg.Status)
	}

	checkResp := callTool(t, client, "check", checkArgs{Path: "claude/web"})
	if checkResp.Error != nil {
		t.Fatalf("check failed: %+v", checkResp.Error)
	}

	receiveResp := callTool(t, client, "receive", idArgs{ID: sentMsg.ID})
	if receiveResp.Error != nil {
		t.Fatalf("receive failed: %+v", receiveResp.Error)
	}

	completeResp := callTool(t, client, "complete", idArgs{ID: sentMsg.ID})
	if completeResp.Error != nil {
		t.Fatalf("complete failed: %+v", completeResp.Error)
	}
	var completedResult toolCallResult
	if err := json.Unmarshal(completeResp.Result, &completedResult); err != nil {
		t.Fatal(err)
	}
	var completedMsg types.Message
	if err := json.Unmarshal([]byte(completedResult.Content[0].Text), &completedMsg); err != nil {
		t.Fatal(err)
	}
	if completedMsg.Status != types.StatusCompleted {
		t.Fatalf("expected completed status, got %s", completedMsg.Status)
	}

	replyResp := callTool(t, client, "reply", replyArgs{ID: sentMsg.ID, Task: "looks good"})
	if replyResp.Error != nil {
		t.Fatalf("reply failed: %+v", replyResp.Error)
	}
	var replyResult toolCallResult
	if err := json.Unmarshal(replyResp.Result, &replyResult); err != nil {
		t.Fatal(err)
	}
	var replyMsg types.Message
	if err := json.Unmarshal([]byte(replyResult.Content[0].Text), &replyMsg); err != nil {
		t.Fatal(err)
	}
	if replyMsg.To != "cursor/dev" || replyMsg.From != "claude/web" {
		t.Fatalf("expected reply to swap sender/recipient, got to=%s from=%s", replyMsg.To, replyMsg.From)
	}
	if replyMsg.ThreadID != sentMsg.ID && replyMsg.ThreadID != sentMsg.ThreadID {
		t.Fatalf("expected reply to be threaded onto the original, got threadId=%s", replyMsg.ThreadID)
	}
}

func TestUnknownToolReturnsIsError(t *testing.T) {
	_, server := newTestServer(t)
	defer server.Close()

	client := connectSSE(t, server)
	defer client.close()

	resp := callTool(t, client, "nonexistent", map[string]any{})
	var result toolCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Fatalf("expected isError true for an unknown tool")
	}
}

func TestMessagesHandlerRejectsUnknownSession(t *testing.T) {
	_, server := newTestServer(t)
	defer server.Close()

	resp, err := http.Post(server.URL+"/toolhost/messages?sessionId=bogus", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", resp.StatusCode)
	}
}

func TestConcurrentSessionsDoNotCrossDeliver(t *testing.T) {
	_, server := newTestServer(t)
	defer server.Close()

	clientA := connectSSE(t, server)
	defer clientA.close()
	clientB := connectSSE(t, server)
	defer clientB.close()

	if clientA.endpoint == clientB.endpoint {
		t.Fatalf("expected distinct session endpoints")
	}

	postJSONRPC(t, clientA.endpoint, jsonrpcRequest{JSONRPC: jsonrpcVersion, ID: json.RawMessage(`1`), Method: "tools/list"})

	eventType, _ := clientA.nextEvent()
	if eventType != "message" {
		t.Fatalf("expected message on client A, got %s", eventType)
	}
}
