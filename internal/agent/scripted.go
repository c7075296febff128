package agent

import (
	"context"
	"sync"
)

// Call records one gateway invocation for later inspection
type Call struct {
	Role    Role
	Context PromptContext
}

type scriptedAnswer struct {
	report *Report
	err    error
}

// ScriptedGateway is a test double that returns queued reports (or failures)
// per role, in order. A role with an empty queue gets a benign default:
// approval for reviewer roles, an empty completion report otherwise.
type ScriptedGateway struct {
	mu      sync.Mutex
	answers map[Role][]scriptedAnswer
	calls   []Call
}

// NewScripted creates an empty scripted gateway
func NewScripted() *ScriptedGateway {
	return &ScriptedGateway{answers: make(map[Role][]scriptedAnswer)}
}

// Queue appends a report to return for the role's next invocation
func (g *ScriptedGateway) Queue(role Role, report *Report) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	report.Role = role
	g.answers[role] = append(g.answers[role], scriptedAnswer{report: report})
	return g
}

// QueueFailure appends a transport failure for the role's next invocation
func (g *ScriptedGateway) QueueFailure(role Role, err error) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.answers[role] = append(g.answers[role], scriptedAnswer{err: &Failure{Role: role, Err: err}})
	return g
}

// Invoke pops the next scripted answer for the role
func (g *ScriptedGateway) Invoke(ctx context.Context, role Role, pc PromptContext) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{Role: role, Context: pc})

	queue := g.answers[role]
	if len(queue) == 0 {
		return defaultReport(role), nil
	}
	next := queue[0]
	g.answers[role] = queue[1:]
	if next.err != nil {
		return nil, next.err
	}
	return next.report, nil
}

// Calls returns a copy of all recorded invocations
func (g *ScriptedGateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallCount returns how often the role was invoked
func (g *ScriptedGateway) CallCount(role Role) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Role == role {
			n++
		}
	}
	return n
}

func defaultReport(role Role) *Report {
	switch role {
	case RoleReviewer, RoleSpecializedReviewer:
		return &Report{Role: role, Verdict: VerdictApproved, CriteriaSatisfied: true}
	case RoleTestAuthor:
		return &Report{Role: role, Summary: "tests written", TestsAuthored: 1}
	default:
		return &Report{Role: role, Summary: "done"}
	}
}
