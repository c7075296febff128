package plan

import (
	stderrors "errors"
	"strings"
	"testing"
	"time"

	pherrors "github.com/felixgeelhaar/phaseline/internal/errors"
)

func validPlan() *Plan {
	return &Plan{
		ID:             NewID(1, "user-auth"),
		Seq:            1,
		Slug:           "user-auth",
		FeatureRequest: "add user authentication",
		Status:         StatusPending,
		CreatedAt:      time.Now(),
		Phases: []Phase{
			{
				ID:          "phase-1",
				Name:        "Session model",
				Description: "Create the session model and storage layer",
				Owns:        []string{"internal/session/session.go"},
				Estimate:    3,
				Status:      PhasePending,
			},
			{
				ID:           "phase-2",
				Name:         "Login form",
				Description:  "Build the login form wired to the session layer",
				Owns:         []string{"internal/web/login.go"},
				DependsOn:    []string{"phase-1"},
				Estimate:     2,
				Presentation: true,
				Status:       PhasePending,
			},
		},
	}
}

func TestPlan_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Plan)
		wantCode pherrors.ErrorCode
	}{
		{
			name:   "valid plan",
			mutate: func(p *Plan) {},
		},
		{
			name:     "empty plan ID",
			mutate:   func(p *Plan) { p.ID = "" },
			wantCode: pherrors.ErrCodePlanInvalid,
		},
		{
			name:     "no phases",
			mutate:   func(p *Plan) { p.Phases = nil },
			wantCode: pherrors.ErrCodePlanInvalid,
		},
		{
			name:     "duplicate phase ID",
			mutate:   func(p *Plan) { p.Phases[1].ID = "phase-1"; p.Phases[1].DependsOn = nil },
			wantCode: pherrors.ErrCodePlanDuplicateID,
		},
		{
			name:     "unknown dependency",
			mutate:   func(p *Plan) { p.Phases[1].DependsOn = []string{"phase-99"} },
			wantCode: pherrors.ErrCodePlanUnknownDep,
		},
		{
			name: "dependency listed after dependent",
			mutate: func(p *Plan) {
				p.Phases[0].DependsOn = []string{"phase-2"}
				p.Phases[1].DependsOn = nil
			},
			wantCode: pherrors.ErrCodePlanBadOrder,
		},
		{
			name: "overlapping ownership",
			mutate: func(p *Plan) {
				p.Phases[1].Owns = []string{"internal/session/session.go"}
			},
			wantCode: pherrors.ErrCodePlanOwnsOverlap,
		},
		{
			name: "completed plan with pending phase",
			mutate: func(p *Plan) {
				p.Status = StatusCompleted
				p.Phases[0].Status = PhaseCompleted
			},
			wantCode: pherrors.ErrCodePlanInvalid,
		},
		{
			name:     "empty phase description",
			mutate:   func(p *Plan) { p.Phases[0].Description = "  " },
			wantCode: pherrors.ErrCodePlanInvalid,
		},
		{
			name:     "phase owns nothing",
			mutate:   func(p *Plan) { p.Phases[0].Owns = nil },
			wantCode: pherrors.ErrCodePlanInvalid,
		},
		{
			name:     "non-positive estimate",
			mutate:   func(p *Plan) { p.Phases[0].Estimate = 0 },
			wantCode: pherrors.ErrCodePlanInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPlan()
			tt.mutate(p)
			err := p.Validate()

			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("expected valid plan, got %v", err)
				}
				return
			}

			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			var pe *pherrors.PipelineError
			if !stderrors.As(err, &pe) {
				t.Fatalf("expected *PipelineError, got %T", err)
			}
			if pe.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, pe.Code)
			}
		})
	}
}

func TestPlan_Validate_SelfDependency(t *testing.T) {
	p := validPlan()
	p.Phases[0].DependsOn = []string{"phase-1"}

	err := p.Validate()
	if err == nil {
		t.Fatal("expected self-dependency to be rejected")
	}
	if !strings.Contains(err.Error(), "phase-1") {
		t.Errorf("error should name the offending phase, got %v", err)
	}
}

func TestPlan_CheckCircularDependencies(t *testing.T) {
	p := validPlan()
	// A two-phase cycle. The list-order check catches this first during full
	// validation, but the graph walk must reject it on its own as well.
	p.Phases[0].DependsOn = []string{"phase-2"}

	err := p.checkCircularDependencies()
	if err == nil {
		t.Fatal("expected circular dependency to be detected")
	}
	if !strings.Contains(err.Error(), "circular dependency") {
		t.Errorf("expected cycle message, got %v", err)
	}
}

func TestPlan_FirstUnresolved(t *testing.T) {
	p := validPlan()
	if got := p.FirstUnresolved(); got != 0 {
		t.Errorf("fresh plan should start at phase 0, got %d", got)
	}

	p.Phases[0].Status = PhaseCompleted
	if got := p.FirstUnresolved(); got != 1 {
		t.Errorf("expected resumption at phase 1, got %d", got)
	}

	p.Phases[1].Status = PhaseCompleted
	if got := p.FirstUnresolved(); got != -1 {
		t.Errorf("fully completed plan should return -1, got %d", got)
	}
	if !p.AllPhasesCompleted() {
		t.Error("AllPhasesCompleted should be true")
	}
}

func TestPhaseStatus_IsTerminal(t *testing.T) {
	terminal := []PhaseStatus{PhaseCompleted, PhaseEscalated, PhaseFailed}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []PhaseStatus{PhasePending, PhaseInProgress} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestExecutionRecord_Reset(t *testing.T) {
	now := time.Now()
	r := ExecutionRecord{
		StartedAt:               &now,
		ReviewCycles:            2,
		SpecializedReviewCycles: 1,
		TestCycles:              3,
		TestsAuthored:           5,
		Escalated:               true,
	}
	r.AddNote("interrupted mid-phase")

	r.Reset()

	if r.StartedAt != nil || r.ReviewCycles != 0 || r.SpecializedReviewCycles != 0 ||
		r.TestCycles != 0 || r.TestsAuthored != 0 || r.Escalated {
		t.Errorf("Reset should clear counters and flags, got %+v", r)
	}
	if len(r.Notes) != 1 {
		t.Error("Reset should keep the note history")
	}
}

func TestNewID(t *testing.T) {
	if got := NewID(7, "user-auth"); got != "0007-user-auth" {
		t.Errorf("NewID = %q, want 0007-user-auth", got)
	}
}
