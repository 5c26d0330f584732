package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/core/ports"
)

func newSession(id string, mode domain.Mode) *domain.Session {
	return &domain.Session{
		ID:           id,
		Mode:         mode,
		Prompt:       "What next?",
		PlannedSteps: 3,
		Status:       domain.StatusRunning,
	}
}

func TestMemoryStore_CreateSession(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.CreateSession(ctx, newSession("chain_1", domain.ModeConferenceChain)); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := store.CreateSession(ctx, newSession("chain_1", domain.ModeConferenceChain)); err == nil {
		t.Error("CreateSession() with duplicate ID should fail")
	}

	got, err := store.GetSession(ctx, "chain_1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.StartedAt.IsZero() {
		t.Error("StartedAt should be set")
	}
}

func TestMemoryStore_GetSessionReturnsSnapshot(t *testing.T) {
	store := New()
	ctx := context.Background()
	store.CreateSession(ctx, newSession("chain_1", domain.ModeConferenceChain))

	snap, _ := store.GetSession(ctx, "chain_1")

	out := "R1"
	if err := store.AppendStep(ctx, "chain_1", domain.Step{Index: 0, Output: &out}); err != nil {
		t.Fatalf("AppendStep() error = %v", err)
	}
	out = "mutated"

	if len(snap.Steps) != 0 {
		t.Errorf("snapshot Steps = %d, want 0", len(snap.Steps))
	}

	got, _ := store.GetSession(ctx, "chain_1")
	if *got.Steps[0].Output != "R1" {
		t.Errorf("stored output = %q, want R1", *got.Steps[0].Output)
	}
	if got.CurrentContext != "R1" {
		t.Errorf("CurrentContext = %q, want R1", got.CurrentContext)
	}
}

func TestMemoryStore_MarkTerminalOnce(t *testing.T) {
	store := New()
	ctx := context.Background()
	store.CreateSession(ctx, newSession("panel_1", domain.ModeExpertPanel))

	if err := store.MarkCancelled(ctx, "panel_1", time.Now()); err != nil {
		t.Fatalf("MarkCancelled() error = %v", err)
	}
	if err := store.MarkCompleted(ctx, "panel_1", time.Now()); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	got, _ := store.GetSession(ctx, "panel_1")
	if got.Status != domain.StatusCancelled {
		t.Errorf("Status = %s, want cancelled", got.Status)
	}
	if got.EndedAt == nil {
		t.Error("EndedAt should be set")
	}

	if err := store.MarkCompleted(ctx, "missing", time.Now()); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("MarkCompleted() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_AppendStepAfterCancelIsRejected(t *testing.T) {
	store := New()
	ctx := context.Background()
	store.CreateSession(ctx, newSession("chain_2", domain.ModeConferenceChain))

	out := "R1"
	if err := store.MarkCancelled(ctx, "chain_2", time.Now()); err != nil {
		t.Fatalf("MarkCancelled() error = %v", err)
	}
	err := store.AppendStep(ctx, "chain_2", domain.Step{Index: 0, PairIndex: -1, Output: &out})
	if !errors.Is(err, ports.ErrSessionClosed) {
		t.Fatalf("AppendStep() error = %v, want ErrSessionClosed", err)
	}

	got, _ := store.GetSession(ctx, "chain_2")
	if len(got.Steps) != 0 || got.CurrentContext != "" {
		t.Errorf("session = %+v, want no steps and empty context", got)
	}
	if err := store.AppendStep(ctx, "missing", domain.Step{}); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("AppendStep() on missing session error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_ListSessions(t *testing.T) {
	store := New()
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		sess := newSession(id, domain.ModeExpertPanel)
		sess.StartedAt = base.Add(time.Duration(i) * time.Minute)
		store.CreateSession(ctx, sess)
	}

	list, err := store.ListSessions(ctx, 2)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListSessions() returned %d, want 2", len(list))
	}
	if list[0].ID != "c" || list[1].ID != "b" {
		t.Errorf("ListSessions() order = [%s %s], want [c b]", list[0].ID, list[1].ID)
	}
}

func TestMemoryStore_ConcurrentReaders(t *testing.T) {
	store := New()
	ctx := context.Background()
	store.CreateSession(ctx, newSession("chain_1", domain.ModeConferenceChain))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			out := "step"
			store.AppendStep(ctx, "chain_1", domain.Step{Index: i, Output: &out})
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := store.GetSession(ctx, "chain_1"); err != nil {
					t.Errorf("GetSession() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, _ := store.GetSession(ctx, "chain_1")
	if len(got.Steps) != 50 {
		t.Errorf("Steps = %d, want 50", len(got.Steps))
	}
}
