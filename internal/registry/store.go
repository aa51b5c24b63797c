// Package registry implements Component B: agent metadata CRUD plus the
// auto-approval routing policy consulted by the mailbox store.
package registry

import (
	"context"
	"strings"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// ListFilter narrows a discovery listing (spec §6 GET /api/agents query
// parameters, and the bridge's list_agents{filter} in spec §4.G).
type ListFilter struct {
	Platform   string
	Capability string
	Public     *bool
}

// Store is Component B's full operation surface (spec §4.B). It also
// implements mailbox.ApprovalPolicy so it can be wired directly into the
// mailbox store without an adapter.
type Store interface {
	Create(ctx context.Context, agent types.Agent) (types.Agent, error)
	Get(ctx context.Context, id string) (types.Agent, error)
	Update(ctx context.Context, agent types.Agent) (types.Agent, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]types.Agent, error)

	UpdateLastActivity(ctx context.Context, id string, at time.Time) error
	Ping(ctx context.Context, id string) (types.Agent, error)

	ShouldAutoApprove(ctx context.Context, from, to string) (bool, error)
	EnsureSeeded(ctx context.Context) error

	Close() error
}

// RootPlatform extracts the first "/"-separated segment of a normalized
// agent address, used to look up the registry entry that governs a whole
// platform's policy default (spec §4.B "extract root platform"). Exported so
// the dispatcher, webhook fan-out, and bridge can resolve the same platform
// record without duplicating the parsing rule.
func RootPlatform(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		return addr[:i]
	}
	return addr
}

func rootPlatform(addr string) string { return RootPlatform(addr) }

// decideAutoApprove implements the routing policy table in spec §4.B given
// the (possibly absent) sender and destination records.
func decideAutoApprove(from types.Agent, fromOK bool, to types.Agent, toOK bool) bool {
	if !fromOK && !toOK {
		return true
	}
	if toOK && to.RequiresApproval {
		return false
	}
	if fromOK && from.Category == types.CategoryConversational {
		return false
	}
	return true
}
