package agent

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
)

func TestParseReport(t *testing.T) {
	tests := []struct {
		name    string
		role    Role
		raw     string
		wantErr bool
		check   func(t *testing.T, r *Report)
	}{
		{
			name: "reviewer approval",
			role: RoleReviewer,
			raw:  `{"verdict":"approved","criteria_satisfied":true,"summary":"looks good"}`,
			check: func(t *testing.T, r *Report) {
				if r.Verdict != VerdictApproved {
					t.Errorf("expected approved, got %s", r.Verdict)
				}
				if r.Role != RoleReviewer {
					t.Errorf("role should be set from the invocation, got %s", r.Role)
				}
			},
		},
		{
			name: "reviewer needs changes with issues",
			role: RoleReviewer,
			raw:  `{"verdict":"needs_changes","issues":["missing error handling","no input validation"]}`,
			check: func(t *testing.T, r *Report) {
				if len(r.Issues) != 2 {
					t.Errorf("expected 2 issues, got %d", len(r.Issues))
				}
			},
		},
		{
			name: "markdown fenced response",
			role: RoleImplementer,
			raw:  "```json\n{\"summary\":\"implemented session model\"}\n```",
			check: func(t *testing.T, r *Report) {
				if r.Summary != "implemented session model" {
					t.Errorf("unexpected summary %q", r.Summary)
				}
			},
		},
		{
			name: "test author with count",
			role: RoleTestAuthor,
			raw:  `{"summary":"wrote table tests","tests_authored":4}`,
			check: func(t *testing.T, r *Report) {
				if r.TestsAuthored != 4 {
					t.Errorf("expected 4 tests authored, got %d", r.TestsAuthored)
				}
			},
		},
		{
			name:    "reviewer with unknown verdict",
			role:    RoleReviewer,
			raw:     `{"verdict":"maybe"}`,
			wantErr: true,
		},
		{
			name:    "planner without phases",
			role:    RolePlanner,
			raw:     `{"plan":{"slug":"x","phases":[]}}`,
			wantErr: true,
		},
		{
			name:    "not json at all",
			role:    RoleImplementer,
			raw:     "I did the thing!",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := ParseReport(tt.role, tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, report)
		})
	}
}

func TestFailure_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := error(&Failure{Role: RoleImplementer, Err: cause})

	if !IsFailure(err) {
		t.Error("IsFailure should detect a Failure")
	}
	if !IsFailure(fmt.Errorf("invoke: %w", err)) {
		t.Error("IsFailure should see through wrapping")
	}
	if !stderrors.Is(err, cause) {
		t.Error("Failure should unwrap to its cause")
	}
	if IsFailure(fmt.Errorf("plain error")) {
		t.Error("plain errors are not agent failures")
	}
}

func TestScriptedGateway(t *testing.T) {
	g := NewScripted().
		Queue(RoleReviewer, &Report{Verdict: VerdictNeedsChanges, Issues: []string{"fix naming"}}).
		Queue(RoleReviewer, &Report{Verdict: VerdictApproved})
	g.QueueFailure(RoleImplementer, fmt.Errorf("agent crashed"))

	ctx := context.Background()

	r1, err := g.Invoke(ctx, RoleReviewer, PromptContext{PhaseID: "phase-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r1.Verdict != VerdictNeedsChanges {
		t.Errorf("first scripted answer should be needs_changes, got %s", r1.Verdict)
	}

	r2, _ := g.Invoke(ctx, RoleReviewer, PromptContext{})
	if r2.Verdict != VerdictApproved {
		t.Errorf("second scripted answer should be approved, got %s", r2.Verdict)
	}

	// Exhausted queue falls back to the benign default.
	r3, _ := g.Invoke(ctx, RoleReviewer, PromptContext{})
	if r3.Verdict != VerdictApproved {
		t.Errorf("default reviewer answer should be approved, got %s", r3.Verdict)
	}

	if _, err := g.Invoke(ctx, RoleImplementer, PromptContext{}); !IsFailure(err) {
		t.Error("queued failure should surface as a Failure")
	}

	if g.CallCount(RoleReviewer) != 3 {
		t.Errorf("expected 3 reviewer calls, got %d", g.CallCount(RoleReviewer))
	}
	if got := g.Calls()[0].Context.PhaseID; got != "phase-1" {
		t.Errorf("recorded call should keep the prompt context, got %q", got)
	}
}

func TestPlannerGeneratePlan(t *testing.T) {
	g := NewScripted().Queue(RolePlanner, &Report{
		Plan: &PlannedDocument{
			Slug:          "User Auth!",
			SharedContext: "go service, chi router",
			TestStrategy:  "unit tests per phase",
			Phases: []PlannedPhase{
				{ID: "phase-1", Name: "Sessions", Description: "session storage", Owns: []string{"session.go"}, Estimate: 3},
				{ID: "phase-2", Name: "Login UI", Description: "login form", Owns: []string{"login.go"},
					DependsOn: []string{"phase-1"}, Estimate: 2, Presentation: true},
			},
		},
	})

	p, err := NewPlanner(g).GeneratePlan(context.Background(), 3, "add user auth", "ctx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "0003-user-auth" {
		t.Errorf("expected sanitized ID 0003-user-auth, got %s", p.ID)
	}
	if len(p.Phases) != 2 || p.Phases[1].Presentation != true {
		t.Errorf("planned phases not carried over: %+v", p.Phases)
	}
	if p.Phases[0].Status != "pending" {
		t.Errorf("new phases must start pending, got %s", p.Phases[0].Status)
	}
}

func TestPlannerRejectsInvalidPlan(t *testing.T) {
	// Overlapping ownership violates the disjointness invariant.
	g := NewScripted().Queue(RolePlanner, &Report{
		Plan: &PlannedDocument{
			Slug: "bad",
			Phases: []PlannedPhase{
				{ID: "phase-1", Name: "A", Description: "a", Owns: []string{"x.go"}, Estimate: 1},
				{ID: "phase-2", Name: "B", Description: "b", Owns: []string{"x.go"}, Estimate: 1},
			},
		},
	})

	if _, err := NewPlanner(g).GeneratePlan(context.Background(), 1, "feature", ""); err == nil {
		t.Fatal("planner output violating plan invariants must be rejected")
	}
}

func TestSanitizeSlug(t *testing.T) {
	tests := []struct{ in, want string }{
		{"User Auth", "user-auth"},
		{"  Fancy_Slug!  ", "fancy-slug"},
		{"---", ""},
		{"simple", "simple"},
	}
	for _, tt := range tests {
		if got := sanitizeSlug(tt.in); got != tt.want {
			t.Errorf("sanitizeSlug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
