package registry

import "github.com/JPaulGrayson/QuackQuack/internal/sdk/types"

// defaultSeeds are the platform-level agent records created on first start
// (spec §4.B "Default seeding"). Each is identified by its platform alone
// (Agent.ID = platform), so the routing policy's root-platform lookup finds
// them even when a caller addresses a specific "platform/name" sub-agent
// that was never registered individually.
func defaultSeeds() []types.Agent {
	conversational := []string{"claude", "gpt", "gemini", "grok", "copilot"}
	autonomous := []string{"replit", "cursor", "antigravity"}

	seeds := make([]types.Agent, 0, len(conversational)+len(autonomous))
	for _, platform := range conversational {
		seeds = append(seeds, types.Agent{
			ID:               platform,
			Platform:         platform,
			Category:         types.CategoryConversational,
			RequiresApproval: true,
			NotificationMode: types.NotifyPolling,
			PlatformURL:      "https://" + platform + ".ai",
			NotifyPrompt:     "You have new messages waiting in your QuackQuack inbox. Check and respond when ready.",
		})
	}
	for _, platform := range autonomous {
		seeds = append(seeds, types.Agent{
			ID:               platform,
			Platform:         platform,
			Category:         types.CategoryAutonomous,
			RequiresApproval: false,
			NotificationMode: types.NotifyWebhook,
			PlatformURL:      "https://" + platform + ".dev",
			NotifyPrompt:     "A task has been routed to you automatically. Act on it and report status via updateStatus.",
		})
	}
	return seeds
}
