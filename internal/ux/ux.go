// Package ux renders operator-facing output in text, JSON, or YAML.
package ux

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/phaseline/internal/plan"
)

// Format selects the output rendering
type Format string

const (
	// FormatText is the human-readable default
	FormatText Format = "text"
	// FormatJSON emits indented JSON
	FormatJSON Format = "json"
	// FormatYAML emits YAML
	FormatYAML Format = "yaml"
)

// ParseFormat parses a --format flag value
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, json, or yaml)", s)
	}
}

// Formatter writes a value in the selected format. The text rendering is
// supplied by the caller since it is view-specific.
type Formatter struct {
	w      io.Writer
	format Format
}

// NewFormatter creates a formatter writing to w
func NewFormatter(w io.Writer, format Format) *Formatter {
	return &Formatter{w: w, format: format}
}

// Print renders v as JSON or YAML, or calls text() for the text format
func (f *Formatter) Print(v any, text func() string) error {
	switch f.format {
	case FormatJSON:
		enc := json.NewEncoder(f.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = f.w.Write(data)
		return err
	default:
		_, err := fmt.Fprintln(f.w, strings.TrimRight(text(), "\n"))
		return err
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	statusColors = map[string]lipgloss.Style{
		"pending":     lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
		"in_progress": lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		"completed":   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		"paused":      lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"escalated":   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		"failed":      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

func styleStatus(status string) string {
	if style, ok := statusColors[status]; ok {
		return style.Render(status)
	}
	return status
}

// RenderPlanStatus renders the per-phase status view for one plan
func RenderPlanStatus(p *plan.Plan) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("Plan %s", p.ID)))
	b.WriteString(fmt.Sprintf("  [%s]\n", styleStatus(string(p.Status))))
	b.WriteString(dimStyle.Render(p.FeatureRequest) + "\n\n")

	for i := range p.Phases {
		phase := &p.Phases[i]
		b.WriteString(fmt.Sprintf("  %-16s %-24s %s", phase.ID, phase.Name, styleStatus(string(phase.Status))))

		var detail []string
		if phase.Record.ReviewCycles > 0 {
			detail = append(detail, fmt.Sprintf("review cycles %d", phase.Record.ReviewCycles))
		}
		if phase.Record.SpecializedReviewCycles > 0 {
			detail = append(detail, fmt.Sprintf("specialized cycles %d", phase.Record.SpecializedReviewCycles))
		}
		if phase.Record.TestCycles > 0 {
			detail = append(detail, fmt.Sprintf("test cycles %d", phase.Record.TestCycles))
		}
		if phase.Record.TestsAuthored > 0 {
			detail = append(detail, fmt.Sprintf("%d tests", phase.Record.TestsAuthored))
		}
		if len(detail) > 0 {
			b.WriteString(dimStyle.Render("  (" + strings.Join(detail, ", ") + ")"))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// RenderHistory renders the plan history listing, newest first
func RenderHistory(plans []*plan.Plan) string {
	if len(plans) == 0 {
		return "no plans yet"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-20s %-12s %-8s %s", "PLAN", "STATUS", "PHASES", "CREATED")) + "\n")
	for _, p := range plans {
		completed := 0
		for i := range p.Phases {
			if p.Phases[i].Status == plan.PhaseCompleted {
				completed++
			}
		}
		b.WriteString(fmt.Sprintf("%-20s %-12s %d/%-6d %s\n",
			p.ID, styleStatus(string(p.Status)), completed, len(p.Phases),
			p.CreatedAt.Format("2006-01-02 15:04")))
	}
	return b.String()
}
