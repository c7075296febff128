package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/phaseline/internal/agent"
	"github.com/felixgeelhaar/phaseline/internal/config"
	"github.com/felixgeelhaar/phaseline/internal/plan"
	"github.com/felixgeelhaar/phaseline/internal/store"
	"github.com/felixgeelhaar/phaseline/internal/workspace"
)

func testGates() config.Gates {
	return config.Gates{Review: 3, SpecializedReview: 2, Tests: 3, PostLoop: 3}
}

func twoPhasePlan() *plan.Plan {
	return &plan.Plan{
		ID:             plan.NewID(1, "search"),
		Seq:            1,
		Slug:           "search",
		FeatureRequest: "add full-text search",
		Status:         plan.StatusPending,
		CreatedAt:      time.Now().UTC(),
		Phases: []plan.Phase{
			{
				ID: "a", Name: "Index", Description: "build the index",
				Owns: []string{"a.go"}, Estimate: 2, Status: plan.PhasePending,
			},
			{
				ID: "b", Name: "Query", Description: "build the query side",
				Owns: []string{"b.go"}, DependsOn: []string{"a"}, Estimate: 2,
				Status: plan.PhasePending,
			},
		},
	}
}

func newFixture(t *testing.T, gw agent.Gateway, checks config.Checks) (*Engine, *store.Store, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.go"), []byte("package b"), 0o644))

	st := store.New(t.TempDir())
	ws := workspace.New(root, checks)
	return New(gw, ws, st, testGates()), st, root
}

func TestEngine_Run_CompletesPlan(t *testing.T) {
	gw := agent.NewScripted()
	e, st, _ := newFixture(t, gw, config.Checks{Test: []string{"sh", "-c", "true"}})
	p := twoPhasePlan()

	outcome, err := e.Run(context.Background(), p, false)
	require.NoError(t, err)

	assert.True(t, outcome.Completed)
	assert.Equal(t, plan.StatusCompleted, p.Status)
	assert.NotNil(t, p.StartedAt)
	assert.NotNil(t, p.CompletedAt)
	for i := range p.Phases {
		assert.Equal(t, plan.PhaseCompleted, p.Phases[i].Status)
	}

	// Phase a runs its entire sub-step sequence before phase b starts.
	sawB := false
	for _, call := range gw.Calls() {
		if call.Context.PhaseID == "b" {
			sawB = true
		}
		if call.Context.PhaseID == "a" {
			assert.False(t, sawB, "phase a invocation after phase b started")
		}
	}
	assert.True(t, sawB)

	loaded, err := st.Load(p.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusCompleted, loaded.Status)
}

func TestEngine_Run_HaltsOnEscalatedPhase(t *testing.T) {
	gw := agent.NewScripted()
	for i := 0; i < 4; i++ {
		gw.Queue(agent.RoleReviewer, &agent.Report{Verdict: agent.VerdictNeedsChanges, Issues: []string{"broken"}})
	}
	e, st, _ := newFixture(t, gw, config.Checks{Test: []string{"sh", "-c", "true"}})
	p := twoPhasePlan()

	outcome, err := e.Run(context.Background(), p, false)
	require.NoError(t, err)

	assert.False(t, outcome.Completed)
	require.NotNil(t, outcome.Stuck)
	assert.Equal(t, "a", outcome.Stuck.PhaseID)
	assert.Equal(t, plan.PhaseEscalated, outcome.Stuck.Status)
	assert.Equal(t, 3, outcome.Stuck.ReviewCycles)

	// Phase b never started.
	assert.Equal(t, plan.PhasePending, p.Phases[1].Status)
	for _, call := range gw.Calls() {
		assert.NotEqual(t, "b", call.Context.PhaseID)
	}

	// The plan stays in_progress pending operator decision.
	loaded, err := st.Load(p.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusInProgress, loaded.Status)
}

func TestEngine_Run_ResumeRestartsInProgressPhase(t *testing.T) {
	gw := agent.NewScripted()

	now := time.Now().UTC()
	p := &plan.Plan{
		ID: plan.NewID(2, "resume"), Seq: 2, Slug: "resume",
		FeatureRequest: "resume test", Status: plan.StatusPaused,
		CreatedAt: now, StartedAt: &now,
		Phases: []plan.Phase{
			{
				ID: "one", Name: "One", Description: "first", Owns: []string{"a.go"},
				Estimate: 1, Status: plan.PhaseCompleted,
				Record: plan.ExecutionRecord{ReviewCycles: 2, CompletedAt: &now},
			},
			{
				ID: "two", Name: "Two", Description: "second", Owns: []string{"c.go"},
				Estimate: 1, Status: plan.PhaseCompleted,
				Record: plan.ExecutionRecord{ReviewCycles: 1, CompletedAt: &now},
			},
			{
				ID: "three", Name: "Three", Description: "third", Owns: []string{"b.go"},
				Estimate: 1, Status: plan.PhaseInProgress,
				Record: plan.ExecutionRecord{ReviewCycles: 2, TestCycles: 1, StartedAt: &now},
			},
		},
	}

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.go"), []byte("package b"), 0o644))
	st := store.New(t.TempDir())
	ws := workspace.New(root, config.Checks{Test: []string{"sh", "-c", "true"}})
	e := New(gw, ws, st, testGates())

	outcome, err := e.Run(context.Background(), p, true)
	require.NoError(t, err)
	assert.True(t, outcome.Completed)

	// Completed phases are untouched.
	assert.Equal(t, 2, p.Phases[0].Record.ReviewCycles)
	assert.Equal(t, 1, p.Phases[1].Record.ReviewCycles)

	// The interrupted phase restarted from implement with a reset record.
	assert.Equal(t, plan.PhaseCompleted, p.Phases[2].Status)
	assert.Equal(t, 0, p.Phases[2].Record.ReviewCycles)
	assert.Equal(t, 0, p.Phases[2].Record.TestCycles)
	assert.Contains(t, strings.Join(p.Phases[2].Record.Notes, "\n"), "restarting phase from implement")

	// Only phase three invoked any agents.
	for _, call := range gw.Calls() {
		if call.Context.PhaseID != "" {
			assert.Equal(t, "three", call.Context.PhaseID)
		}
	}
}

func TestEngine_Run_ResumeSurfacesStuckPhase(t *testing.T) {
	gw := agent.NewScripted()
	e, _, _ := newFixture(t, gw, config.Checks{})

	p := twoPhasePlan()
	p.Status = plan.StatusInProgress
	p.Phases[0].Status = plan.PhaseEscalated
	p.Phases[0].Record.Escalated = true

	outcome, err := e.Run(context.Background(), p, true)
	require.NoError(t, err)

	require.NotNil(t, outcome.Stuck)
	assert.Equal(t, "a", outcome.Stuck.PhaseID)
	// No silent retry of an already-stuck phase.
	assert.Empty(t, gw.Calls())
}

func TestEngine_Run_IntegrationCorrectiveCycle(t *testing.T) {
	gw := agent.NewScripted().
		Queue(agent.RoleReviewer, &agent.Report{Verdict: agent.VerdictApproved}).
		Queue(agent.RoleReviewer, &agent.Report{Verdict: agent.VerdictApproved, CriteriaSatisfied: true}).
		Queue(agent.RoleReviewer, &agent.Report{Verdict: agent.VerdictNeedsChanges, Issues: []string{"stale import"}}).
		Queue(agent.RoleReviewer, &agent.Report{Verdict: agent.VerdictApproved})
	e, _, _ := newFixture(t, gw, config.Checks{Test: []string{"sh", "-c", "true"}})

	p := twoPhasePlan()
	p.Phases = p.Phases[:1]

	outcome, err := e.Run(context.Background(), p, false)
	require.NoError(t, err)

	assert.True(t, outcome.Completed)
	assert.Equal(t, 1, outcome.IntegrationCycles)
	assert.Equal(t, 0, outcome.BuildCycles)
	// Phase implement plus one integration correction.
	assert.Equal(t, 2, gw.CallCount(agent.RoleImplementer))
}

func TestEngine_Run_BuildGateExhausted(t *testing.T) {
	gw := agent.NewScripted()
	e, st, _ := newFixture(t, gw, config.Checks{
		Test:  []string{"sh", "-c", "true"},
		Build: []string{"sh", "-c", "echo undefined symbol; exit 1"},
	})

	p := twoPhasePlan()
	p.Phases = p.Phases[:1]

	outcome, err := e.Run(context.Background(), p, false)
	require.NoError(t, err)

	assert.False(t, outcome.Completed)
	assert.Equal(t, "build", outcome.PostLoopEscalated)
	assert.Equal(t, 3, outcome.BuildCycles)
	require.NotEmpty(t, outcome.PostLoopIssues)
	assert.Contains(t, outcome.PostLoopIssues[0], "undefined symbol")

	// All phases completed, but the plan cannot be completed while the
	// post-loop build check fails.
	assert.Equal(t, plan.PhaseCompleted, p.Phases[0].Status)
	assert.Equal(t, plan.StatusInProgress, p.Status)
	loaded, err := st.Load(p.ID)
	require.NoError(t, err)
	assert.NotEqual(t, plan.StatusCompleted, loaded.Status)
}

func TestEngine_Run_AlreadyCompleted(t *testing.T) {
	gw := agent.NewScripted()
	e, _, _ := newFixture(t, gw, config.Checks{})

	p := twoPhasePlan()
	p.Status = plan.StatusCompleted
	for i := range p.Phases {
		p.Phases[i].Status = plan.PhaseCompleted
	}

	outcome, err := e.Run(context.Background(), p, false)
	require.NoError(t, err)
	assert.True(t, outcome.Completed)
	assert.Empty(t, gw.Calls())
}
