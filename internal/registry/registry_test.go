package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

func TestCreateGetUpdateDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	agent := types.Agent{Platform: "cursor", Name: "dev", Category: types.CategoryAutonomous}
	created, err := s.Create(ctx, agent)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "cursor/dev" {
		t.Fatalf("expected derived id cursor/dev, got %q", created.ID)
	}

	if _, err := s.Create(ctx, agent); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate create, got %v", err)
	}

	got, err := s.Get(ctx, "cursor/dev")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Platform != "cursor" {
		t.Fatalf("unexpected agent: %+v", got)
	}

	got.RequiresApproval = true
	updated, err := s.Update(ctx, got)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !updated.RequiresApproval {
		t.Fatalf("expected RequiresApproval true after update")
	}

	if err := s.Delete(ctx, "cursor/dev"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "cursor/dev"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestUpdateAndDeleteMissingReturnNotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Update(ctx, types.Agent{Platform: "ghost", Name: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "ghost/x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListFiltersByPlatformCapabilityAndPublic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	pub := true
	if _, err := s.Create(ctx, types.Agent{Platform: "cursor", Name: "a", Capabilities: []string{"code"}, Public: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, types.Agent{Platform: "cursor", Name: "b", Capabilities: []string{"chat"}, Public: false}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, types.Agent{Platform: "replit", Name: "c", Capabilities: []string{"code"}, Public: true}); err != nil {
		t.Fatal(err)
	}

	results, err := s.List(ctx, ListFilter{Platform: "cursor"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 cursor agents, got %d", len(results))
	}

	results, err = s.List(ctx, ListFilter{Capability: "code"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 agents with capability code, got %d", len(results))
	}

	results, err = s.List(ctx, ListFilter{Public: &pub})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 public agents, got %d", len(results))
	}
}

func TestPingUpdatesLastSeenAndOnline(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Create(ctx, types.Agent{Platform: "cursor", Name: "dev"}); err != nil {
		t.Fatal(err)
	}
	agent, err := s.Ping(ctx, "cursor/dev")
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !agent.IsOnline(time.Now().UTC()) {
		t.Fatalf("expected agent to be online right after ping")
	}
}

func TestEnsureSeededIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.EnsureSeeded(ctx); err != nil {
		t.Fatalf("EnsureSeeded: %v", err)
	}
	first, err := s.List(ctx, ListFilter{})
	if err != nil {
		t.Fatal(err)
	}

	claude, err := s.Get(ctx, "claude")
	if err != nil {
		t.Fatalf("expected seeded claude agent: %v", err)
	}
	if claude.Category != types.CategoryConversational || !claude.RequiresApproval {
		t.Fatalf("unexpected claude seed: %+v", claude)
	}
	cursor, err := s.Get(ctx, "cursor")
	if err != nil {
		t.Fatalf("expected seeded cursor agent: %v", err)
	}
	if cursor.Category != types.CategoryAutonomous || cursor.RequiresApproval {
		t.Fatalf("unexpected cursor seed: %+v", cursor)
	}

	if err := s.EnsureSeeded(ctx); err != nil {
		t.Fatalf("second EnsureSeeded: %v", err)
	}
	second, err := s.List(ctx, ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatalf("expected seeding to be idempotent, got %d then %d", len(first), len(second))
	}
}

func TestAutoApprovalMatchesPolicyTable(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.EnsureSeeded(ctx); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name     string
		from, to string
		want     bool
	}{
		{"both unregistered approves", "unknown/a", "unknown/b", true},
		{"destination requires approval holds", "cursor/dev", "claude/chat", false},
		{"conversational sender holds even to autonomous dest", "claude/chat", "cursor/dev", false},
		{"autonomous to autonomous approves", "cursor/dev", "replit/agent", true},
		{"unregistered sender to autonomous dest approves", "unknown/a", "replit/agent", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.ShouldAutoApprove(ctx, tc.from, tc.to)
			if err != nil {
				t.Fatalf("ShouldAutoApprove: %v", err)
			}
			if got != tc.want {
				t.Fatalf("ShouldAutoApprove(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestRootPlatformExtractsFirstSegment(t *testing.T) {
	cases := map[string]string{
		"claude/web":   "claude",
		"Cursor/Dev":   "cursor",
		"replit":       "replit",
		" gpt/chat ":   "gpt",
	}
	for in, want := range cases {
		if got := rootPlatform(in); got != want {
			t.Errorf("rootPlatform(%q) = %q, want %q", in, got, want)
		}
	}
}
