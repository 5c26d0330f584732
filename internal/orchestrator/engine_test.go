package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/promptlink-gateway/internal/core/domain"
	"github.com/tjfontaine/promptlink-gateway/internal/ledger"
	"github.com/tjfontaine/promptlink-gateway/internal/registry"
	"github.com/tjfontaine/promptlink-gateway/internal/storage/memory"
	"github.com/tjfontaine/promptlink-gateway/internal/storage/sqldb"
)

type call struct {
	model  string
	system string
	prompt string
}

// scriptedClient answers by model. A missing reply is an upstream failure.
type scriptedClient struct {
	mu      sync.Mutex
	replies map[string]string
	calls   []call
	block   map[string]chan struct{} // model -> closed when the call starts
	late    map[string]chan struct{} // like block, but answers after the cancel
}

func (c *scriptedClient) Complete(ctx context.Context, model string, messages []domain.Message, maxTokens int, temperature float64) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, call{model: model, system: messages[0].Content, prompt: messages[1].Content})
	started, blocks := c.block[model]
	arrived, lags := c.late[model]
	reply, ok := c.replies[model]
	c.mu.Unlock()

	if lags {
		close(arrived)
		<-ctx.Done()
		return reply, nil
	}
	if blocks {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}
	if !ok {
		return "", errors.New("upstream bad status 500")
	}
	return reply, nil
}

func (c *scriptedClient) Calls() []call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]call, len(c.calls))
	copy(out, c.calls)
	return out
}

func testRegistry(t *testing.T, n int) *registry.Registry {
	t.Helper()
	agents := make([]domain.Agent, n)
	for i := range agents {
		agents[i] = domain.Agent{
			ID:        fmt.Sprintf("agent-%d", i),
			Name:      fmt.Sprintf("Agent %d", i),
			Model:     fmt.Sprintf("vendor/model-%d", i),
			Specialty: fmt.Sprintf("specialty %d", i),
		}
	}
	reg, err := registry.New(agents)
	require.NoError(t, err)
	return reg
}

func TestRun_ConferenceChainThreadsLastSuccessfulOutput(t *testing.T) {
	client := &scriptedClient{replies: map[string]string{
		"vendor/model-0": "R1",
		"vendor/model-2": "R3",
	}}
	engine := New(testRegistry(t, 5), client, memory.New())

	sess, err := engine.Run(context.Background(), Request{
		Prompt:    "  X  ",
		Mode:      domain.ModeConferenceChain,
		MaxAgents: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, sess.Status)
	require.Len(t, sess.Steps, 3)
	assert.Equal(t, 2, len(sess.SuccessfulSteps()))
	assert.Nil(t, sess.Steps[1].Output)
	assert.NotEmpty(t, sess.Steps[1].Error)
	assert.True(t, sess.PartialFailure())

	calls := client.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "X", calls[0].prompt)
	assert.Contains(t, calls[1].prompt, "R1")
	assert.Contains(t, calls[2].prompt, "R1")
	assert.NotContains(t, calls[2].prompt, "R3")
	assert.Contains(t, calls[2].prompt, "specialty 2 expertise")
	assert.Contains(t, calls[0].system, "AI specialist in specialty 0")
	assert.Equal(t, "R3", sess.CurrentContext)
}

func TestRun_ConferenceChainAgentCount(t *testing.T) {
	tests := []struct {
		name      string
		maxAgents int
		want      int
		wantErr   bool
	}{
		{name: "default capped at registry", maxAgents: 0, want: 4},
		{name: "explicit", maxAgents: 2, want: 2},
		{name: "whole registry", maxAgents: 4, want: 4},
		{name: "negative", maxAgents: -1, wantErr: true},
		{name: "too many", maxAgents: 5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &scriptedClient{replies: map[string]string{}}
			engine := New(testRegistry(t, 4), client, memory.New())

			sess, err := engine.Run(context.Background(), Request{Prompt: "X", Mode: domain.ModeConferenceChain, MaxAgents: tt.maxAgents})
			if tt.wantErr {
				var apiErr *domain.APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, "max_agents", apiErr.Param)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sess.PlannedSteps)
			assert.Len(t, sess.Steps, tt.want, "failed steps are still recorded")
			assert.Equal(t, domain.StatusCompleted, sess.Status)
		})
	}
}

func TestRun_ExpertPanelPairs(t *testing.T) {
	client := &scriptedClient{replies: map[string]string{
		"vendor/model-0": "A0 analysis",
		"vendor/model-1": "B0 analysis",
		"vendor/model-3": "B1 analysis",
	}}
	engine := New(testRegistry(t, 5), client, memory.New())

	sess, err := engine.Run(context.Background(), Request{Prompt: "Should we expand?", Mode: domain.ModeExpertPanel})
	require.NoError(t, err)

	// Five agents make two full pairs.
	assert.Equal(t, 4, sess.PlannedSteps)
	require.Len(t, sess.Steps, 4)
	for i, st := range sess.Steps {
		assert.Equal(t, i, st.Index)
		assert.Equal(t, i/2, st.PairIndex)
	}
	assert.Equal(t, "A", sess.Steps[0].Role)
	assert.Equal(t, "B", sess.Steps[1].Role)

	calls := client.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, "Should we expand?", calls[0].prompt)
	assert.Contains(t, calls[1].prompt, "COLLEAGUE'S ANALYSIS: A0 analysis")
	// Agent A of pair 1 failed, so B sees the raw prompt.
	assert.Equal(t, "Should we expand?", calls[3].prompt)
	assert.Empty(t, sess.CurrentContext)
}

func TestRun_ExpertPanelHonoursConfiguredPairs(t *testing.T) {
	client := &scriptedClient{replies: map[string]string{}}
	engine := New(testRegistry(t, 20), client, memory.New(), WithConfig(Config{PanelPairs: 3}))

	sess, err := engine.Run(context.Background(), Request{Prompt: "X", Mode: domain.ModeExpertPanel})
	require.NoError(t, err)
	assert.Len(t, sess.Steps, 6)
}

func TestRun_Validation(t *testing.T) {
	engine := New(testRegistry(t, 3), &scriptedClient{}, memory.New())

	tests := []struct {
		name string
		req  Request
	}{
		{name: "empty prompt", req: Request{Prompt: "   ", Mode: domain.ModeConferenceChain}},
		{name: "unknown mode", req: Request{Prompt: "X", Mode: "round_robin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Run(context.Background(), tt.req)
			var apiErr *domain.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, domain.ErrorTypeInvalidRequest, apiErr.Type)
		})
	}
}

func TestRun_DuplicateSessionID(t *testing.T) {
	engine := New(testRegistry(t, 2), &scriptedClient{}, memory.New())
	ctx := context.Background()

	_, err := engine.Run(ctx, Request{Prompt: "X", Mode: domain.ModeConferenceChain, SessionID: "mine"})
	require.NoError(t, err)

	_, err = engine.Run(ctx, Request{Prompt: "X", Mode: domain.ModeConferenceChain, SessionID: "mine"})
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "session_id", apiErr.Param)
}

func TestStart_InsufficientCreditsLeavesLedgerUnchanged(t *testing.T) {
	store, err := sqldb.NewSQLite("file:orchestrator_credits?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	plans := []domain.Plan{{ID: "free", Credits: 40, DailyLimit: 40}}
	led, err := ledger.New(store, plans, "free")
	require.NoError(t, err)

	client := &scriptedClient{replies: map[string]string{}}
	sessions := memory.New()
	engine := New(testRegistry(t, 5), client, sessions,
		WithCharger(led),
		WithConfig(Config{CostPerStep: 10}))

	ctx := context.Background()
	_, err = engine.Start(ctx, Request{Prompt: "X", Mode: domain.ModeConferenceChain, UserID: "u1"})
	assert.ErrorIs(t, err, ledger.ErrInsufficient)

	acct, err := led.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), acct.DailyRemaining)
	assert.Equal(t, int64(40), acct.Credits)

	list, err := sessions.ListSessions(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, list, "no session starts without credits")
	assert.Empty(t, client.Calls())
}

func TestStart_ChargesPlannedSteps(t *testing.T) {
	store, err := sqldb.NewSQLite("file:orchestrator_charge?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	led, err := ledger.New(store, []domain.Plan{{ID: "free", Credits: 100, DailyLimit: 100}}, "free")
	require.NoError(t, err)

	engine := New(testRegistry(t, 6), &scriptedClient{replies: map[string]string{}}, memory.New(), WithCharger(led))
	ctx := context.Background()

	_, err = engine.Start(ctx, Request{Prompt: "X", Mode: domain.ModeExpertPanel})
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr, "user_id is required when charging")

	_, err = engine.Start(ctx, Request{Prompt: "X", Mode: domain.ModeExpertPanel, UserID: "u1"})
	require.NoError(t, err)
	require.NoError(t, engine.Shutdown(ctx))

	acct, err := led.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(94), acct.DailyRemaining)
}

func TestStart_RunsInBackground(t *testing.T) {
	client := &scriptedClient{replies: map[string]string{"vendor/model-0": "R1", "vendor/model-1": "R2"}}
	engine := New(testRegistry(t, 2), client, memory.New())
	ctx := context.Background()

	sess, err := engine.Start(ctx, Request{Prompt: "X", Mode: domain.ModeConferenceChain})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, sess.Status)

	require.NoError(t, engine.Shutdown(ctx))

	got, err := engine.Status(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Len(t, got.Steps, 2)
	assert.NotNil(t, got.EndedAt)
	assert.Equal(t, 0, engine.Running())
}

func TestCancel(t *testing.T) {
	started := make(chan struct{})
	client := &scriptedClient{
		replies: map[string]string{"vendor/model-0": "R1"},
		block:   map[string]chan struct{}{"vendor/model-1": started},
	}
	engine := New(testRegistry(t, 4), client, memory.New())
	ctx := context.Background()

	sess, err := engine.Start(ctx, Request{Prompt: "X", Mode: domain.ModeConferenceChain})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("second step never started")
	}

	got, err := engine.Cancel(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)

	require.NoError(t, engine.Shutdown(ctx))

	got, err = engine.Status(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.Len(t, got.Steps, 1, "the aborted step is not recorded")
	assert.Len(t, client.Calls(), 2, "no step starts after cancellation")

	// Cancelling again is a no-op.
	again, err := engine.Cancel(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, again.Status)
}

func TestCancel_ReplyArrivingDuringCancelIsDropped(t *testing.T) {
	for _, mode := range []domain.Mode{domain.ModeConferenceChain, domain.ModeExpertPanel} {
		t.Run(string(mode), func(t *testing.T) {
			started := make(chan struct{})
			client := &scriptedClient{
				replies: map[string]string{"vendor/model-0": "R1", "vendor/model-1": "R2"},
				late:    map[string]chan struct{}{"vendor/model-1": started},
			}
			engine := New(testRegistry(t, 4), client, memory.New())
			ctx := context.Background()

			sess, err := engine.Start(ctx, Request{Prompt: "X", Mode: mode})
			require.NoError(t, err)

			select {
			case <-started:
			case <-time.After(5 * time.Second):
				t.Fatal("second step never started")
			}

			_, err = engine.Cancel(ctx, sess.ID)
			require.NoError(t, err)
			require.NoError(t, engine.Shutdown(ctx))

			got, err := engine.Status(ctx, sess.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusCancelled, got.Status)
			require.Len(t, got.Steps, 1, "the reply that raced the cancel is not recorded")
			assert.Equal(t, "R1", *got.Steps[0].Output)
		})
	}
}

func TestShutdownCancelsRunningSessions(t *testing.T) {
	started := make(chan struct{})
	client := &scriptedClient{block: map[string]chan struct{}{"vendor/model-0": started}}
	engine := New(testRegistry(t, 2), client, memory.New())
	ctx := context.Background()

	sess, err := engine.Start(ctx, Request{Prompt: "X", Mode: domain.ModeConferenceChain})
	require.NoError(t, err)
	<-started

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, engine.Shutdown(shutdownCtx))

	got, err := engine.Status(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
}

func TestStatus_NotFound(t *testing.T) {
	engine := New(testRegistry(t, 2), &scriptedClient{}, memory.New())

	_, err := engine.Status(context.Background(), "nope")
	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, domain.ErrorTypeNotFound, apiErr.Type)

	_, err = engine.Cancel(context.Background(), "nope")
	require.ErrorAs(t, err, &apiErr)
}
