package llmproxy

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/mailbox"
	"github.com/JPaulGrayson/QuackQuack/internal/registry"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// defaultMaxTokens bounds a drafted reply's length.
const defaultMaxTokens = 1024

// Worker polls every polling-mode conversational agent's inbox and drafts a
// reply for each pending message via an LLM Provider, letting such an
// agent operate without a human at the keyboard. It depends on the
// registry and mailbox stores directly: unlike the inter-component wiring
// elsewhere in this repo, nothing downstream of either package needs to
// call back into llmproxy, so there is no cycle to break with a narrowed
// local interface.
type Worker struct {
	logger   *log.Logger
	registry registry.Store
	mailbox  mailbox.Store
	provider Provider
	model    string
}

// NewWorker constructs a Worker. model names the completion model the
// provider should be asked to run (e.g. "claude-3-5-sonnet-20241022").
func NewWorker(logger *log.Logger, registryStore registry.Store, mailboxStore mailbox.Store, provider Provider, model string) *Worker {
	if logger == nil {
		logger = log.New(log.Writer(), "llmproxy ", log.LstdFlags)
	}
	return &Worker{logger: logger, registry: registryStore, mailbox: mailboxStore, provider: provider, model: model}
}

// Run polls every eligible agent's inbox once per interval until ctx is
// canceled.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.PollOnce(ctx); err != nil {
				w.logger.Printf("llmproxy: poll failed: %v", err)
			}
		}
	}
}

// PollOnce drafts and sends one reply for every pending or approved message
// sitting in a polling-mode conversational agent's inbox.
func (w *Worker) PollOnce(ctx context.Context) error {
	agents, err := w.registry.List(ctx, registry.ListFilter{})
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}

	for _, agent := range agents {
		if agent.Category != types.CategoryConversational || agent.NotificationMode != types.NotifyPolling {
			continue
		}
		inbox := agent.Identifier()
		pending, err := w.mailbox.CheckInbox(ctx, inbox, false, false)
		if err != nil {
			w.logger.Printf("llmproxy: check inbox %s: %v", inbox, err)
			continue
		}
		for _, msg := range pending {
			if msg.Status != types.StatusPending && msg.Status != types.StatusApproved {
				continue
			}
			if err := w.draftAndSend(ctx, agent, msg); err != nil {
				w.logger.Printf("llmproxy: draft reply for %s: %v", msg.ID, err)
			}
		}
	}
	return nil
}

// draftAndSend composes a reply for one message from its thread history and
// sends it back to the original sender.
func (w *Worker) draftAndSend(ctx context.Context, agent types.Agent, msg types.Message) error {
	history, err := w.mailbox.GetThread(ctx, threadKey(msg))
	if err != nil {
		history = []types.Message{msg}
	}

	completion, err := w.provider.Complete(ctx, CompletionRequest{
		Model:        w.model,
		MaxTokens:    defaultMaxTokens,
		SystemPrompt: systemPromptFor(agent),
		Messages:     buildHistory(history, agent.Identifier()),
	})
	if err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	if strings.TrimSpace(completion.Content) == "" {
		return fmt.Errorf("provider returned an empty draft")
	}

	_, err = w.mailbox.Send(ctx, mailbox.SendRequest{
		To:      msg.From,
		From:    msg.To,
		Task:    completion.Content,
		ReplyTo: msg.ID,
	})
	return err
}

func threadKey(msg types.Message) string {
	if msg.ThreadID != "" {
		return msg.ThreadID
	}
	return msg.ID
}

func systemPromptFor(agent types.Agent) string {
	prompt := strings.TrimSpace(agent.NotifyPrompt)
	if prompt != "" {
		return prompt
	}
	return fmt.Sprintf("You are %s, a conversational agent replying to messages in your mailbox. Draft a concise, helpful reply to the latest message in the thread.", agent.Identifier())
}

// buildHistory converts a reconstructed thread into completion messages,
// from the perspective of selfID: messages addressed to self are the user
// turn, messages sent by self are the assistant turn.
func buildHistory(history []types.Message, selfID string) []Message {
	built := make([]Message, 0, len(history))
	for _, msg := range history {
		role := RoleUser
		if strings.EqualFold(msg.From, selfID) {
			role = RoleAssistant
		}
		content := msg.Task
		if msg.Context != "" {
			content = content + "\n\n" + msg.Context
		}
		built = append(built, Message{Role: role, Content: content})
	}
	return built
}
