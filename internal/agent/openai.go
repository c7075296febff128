package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/felixgeelhaar/phaseline/internal/log"
)

// roleSystemPrompts fix the report contract per role. The content of the
// judgment is the model's; the shape of the answer is ours.
var roleSystemPrompts = map[Role]string{
	RolePlanner: "You are a software planning agent. Given a feature request and codebase context, " +
		"respond with a single JSON object: {\"role\":\"planner\",\"plan\":{\"slug\":...,\"shared_context\":...," +
		"\"test_strategy\":...,\"phases\":[{\"id\":...,\"name\":...,\"description\":...,\"acceptance\":[...]," +
		"\"owns\":[...],\"depends_on\":[...],\"estimate\":N,\"presentation\":bool}]}}. " +
		"Phase descriptions must be self-sufficient and owned file lists must not overlap.",
	RoleImplementer: "You are an implementation agent. Carry out the described work in the owned files only. " +
		"Respond with a single JSON object: {\"role\":\"implementer\",\"summary\":\"what you did\"}.",
	RoleReviewer: "You are a code review agent. Respond with a single JSON object: " +
		"{\"role\":\"reviewer\",\"verdict\":\"approved|needs_changes|blocked\",\"issues\":[...]," +
		"\"criteria_satisfied\":bool,\"summary\":...}. Use blocked only for structural problems " +
		"no code change within this phase can fix.",
	RoleSpecializedReviewer: "You are a presentation review agent for user-facing work. Respond with a single " +
		"JSON object: {\"role\":\"specialized_reviewer\",\"verdict\":\"approved|needs_changes|blocked\"," +
		"\"issues\":[...],\"summary\":...}.",
	RoleTestAuthor: "You are a test authoring agent. Write tests for the described phase. Respond with a " +
		"single JSON object: {\"role\":\"test_author\",\"summary\":...,\"tests_authored\":N}.",
}

// OpenAIGateway invokes collaborators through the OpenAI chat completion API
type OpenAIGateway struct {
	client *openai.Client
	model  string
	logger *log.Logger
}

// NewOpenAIGateway creates a gateway backed by the OpenAI API
func NewOpenAIGateway(apiKey, model string) (*OpenAIGateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is not set")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGateway{
		client: openai.NewClient(apiKey),
		model:  model,
		logger: log.DefaultLogger().With("component", "agent", "gateway", "openai"),
	}, nil
}

// Invoke serializes the prompt context, calls the model for the given role,
// and parses the structured report out of the response
func (g *OpenAIGateway) Invoke(ctx context.Context, role Role, pc PromptContext) (*Report, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("unknown agent role %q", role)
	}

	payload, err := json.Marshal(pc)
	if err != nil {
		return nil, fmt.Errorf("marshal prompt context: %w", err)
	}

	invocationID := uuid.NewString()
	g.logger.Debug("invoking agent", "role", string(role), "invocation", invocationID, "model", g.model)

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: roleSystemPrompts[role]},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
	})
	if err != nil {
		g.logger.WithError(err).Warn("agent call failed", "role", string(role), "invocation", invocationID)
		return nil, &Failure{Role: role, Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &Failure{Role: role, Err: fmt.Errorf("model returned no choices")}
	}

	report, err := ParseReport(role, resp.Choices[0].Message.Content)
	if err != nil {
		g.logger.WithError(err).Warn("agent returned unparseable report",
			"role", string(role), "invocation", invocationID)
		return nil, &Failure{Role: role, Err: err}
	}

	g.logger.Debug("agent report received", "role", string(role), "invocation", invocationID,
		"verdict", string(report.Verdict))
	return report, nil
}

// ParseReport decodes a collaborator response into a Report. Models tend to
// wrap JSON in markdown fences, so those are stripped first.
func ParseReport(role Role, raw string) (*Report, error) {
	text := strings.TrimSpace(raw)
	if after, found := strings.CutPrefix(text, "```json"); found {
		text = after
	} else if after, found := strings.CutPrefix(text, "```"); found {
		text = after
	}
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))

	var report Report
	if err := json.Unmarshal([]byte(text), &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	report.Role = role

	switch role {
	case RoleReviewer, RoleSpecializedReviewer:
		switch report.Verdict {
		case VerdictApproved, VerdictNeedsChanges, VerdictBlocked:
		default:
			return nil, fmt.Errorf("reviewer returned unknown verdict %q", report.Verdict)
		}
	case RolePlanner:
		if report.Plan == nil || len(report.Plan.Phases) == 0 {
			return nil, fmt.Errorf("planner returned no phases")
		}
	}

	return &report, nil
}
