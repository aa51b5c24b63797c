package toolhost

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JPaulGrayson/QuackQuack/internal/mailbox"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

func toolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "send",
			Description: "Send a task to another agent's mailbox.",
			InputSchema: json.RawMessage(`{"type":"object","required":["to","from","task"],"properties":{"to":{"type":"string"},"from":{"type":"string"},"task":{"type":"string"},"context":{"type":"string"},"project":{"type":"string"},"priority":{"type":"string"}}}`),
		},
		{
			Name:        "check",
			Description: "Check an inbox for messages.",
			InputSchema: json.RawMessage(`{"type":"object","required":["path"],"properties":{"path":{"type":"string"},"includeRead":{"type":"boolean"},"autoApprove":{"type":"boolean"}}}`),
		},
		{
			Name:        "receive",
			Description: "Mark a message as read.",
			InputSchema: json.RawMessage(`{"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}`),
		},
		{
			Name:        "complete",
			Description: "Mark a message as completed.",
			InputSchema: json.RawMessage(`{"type":"object","required":["id"],"properties":{"id":{"type":"string"}}}`),
		},
		{
			Name:        "reply",
			Description: "Reply to a message, sending a new task back to its sender.",
			InputSchema: json.RawMessage(`{"type":"object","required":["id","task"],"properties":{"id":{"type":"string"},"task":{"type":"string"}}}`),
		},
	}
}

type sendArgs struct {
	To       string         `json:"to"`
	From     string         `json:"from"`
	Task     string         `json:"task"`
	Context  string         `json:"context,omitempty"`
	Project  string         `json:"project,omitempty"`
	Priority types.Priority `json:"priority,omitempty"`
}

func (s *Server) toolSend(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args sendArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid send arguments: %w", err)
	}
	if args.To == "" || args.From == "" || args.Task == "" {
		return nil, fmt.Errorf("send requires to, from, and task")
	}

	msg, err := s.mailbox.Send(ctx, mailbox.SendRequest{
		To: args.To, From: args.From, Task: args.Task,
		Context: args.Context, Project: args.Project, Priority: args.Priority,
	})
	if err != nil {
		return nil, err
	}
	return textResult(msg)
}

type checkArgs struct {
	Path        string `json:"path"`
	IncludeRead bool   `json:"includeRead,omitempty"`
	AutoApprove bool   `json:"autoApprove,omitempty"`
}

func (s *Server) toolCheck(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args checkArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid check arguments: %w", err)
	}
	if args.Path == "" {
		return nil, fmt.Errorf("check requires path")
	}

	messages, err := s.mailbox.CheckInbox(ctx, args.Path, args.IncludeRead, args.AutoApprove)
	if err != nil {
		return nil, err
	}
	return textResult(map[string]any{"inbox": args.Path, "messages": messages, "count": len(messages)})
}

type idArgs struct {
	ID string `json:"id"`
}

func (s *Server) toolReceive(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args idArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid receive arguments: %w", err)
	}
	if args.ID == "" {
		return nil, fmt.Errorf("receive requires id")
	}
	msg, err := s.mailbox.MarkRead(ctx, args.ID)
	if err != nil {
		return nil, err
	}
	return textResult(msg)
}

func (s *Server) toolComplete(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args idArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid complete arguments: %w", err)
	}
	if args.ID == "" {
		return nil, fmt.Errorf("complete requires id")
	}
	msg, err := s.mailbox.Complete(ctx, args.ID)
	if err != nil {
		return nil, err
	}
	return textResult(msg)
}

type replyArgs struct {
	ID   string `json:"id"`
	Task string `json:"task"`
}

// toolReply implements spec §4.J "reply resolves the original message to
// get its sender before calling send": the new message's To is the
// original's From, its From is the original's To, and ReplyTo threads it
// onto the original's thread.
func (s *Server) toolReply(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var args replyArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid reply arguments: %w", err)
	}
	if args.ID == "" || args.Task == "" {
		return nil, fmt.Errorf("reply requires id and task")
	}

	original, err := s.mailbox.GetMessage(ctx, args.ID)
	if err != nil {
		return nil, err
	}

	msg, err := s.mailbox.Send(ctx, mailbox.SendRequest{
		To:      original.From,
		From:    original.To,
		Task:    args.Task,
		ReplyTo: original.ID,
	})
	if err != nil {
		return nil, err
	}
	return textResult(msg)
}
