package graph

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/botfactory/pkg/domain"
)

// Overlay marks the position of an active wizard on the graph.
type Overlay struct {
	FlowID    string
	StepIndex int
}

// OverlayFromState builds an Overlay for an active wizard.
func OverlayFromState(s *domain.WizardState) *Overlay {
	if s == nil {
		return nil
	}
	return &Overlay{FlowID: s.FlowID, StepIndex: s.StepIndex}
}

// GenerateMermaid produces a Mermaid flowchart of every flow of spec.
// Shapes:
// - Entry command: ((Circle))
// - Action: [[Subroutine]]
// - Step (question): [/Parallelogram/]
// - Done: ([Stadium])
// A step with a validator gets a dotted self loop labelled with its pattern.
func GenerateMermaid(spec *domain.BotSpec, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	if spec == nil {
		return sb.String()
	}

	current := ""
	for i := range spec.Flows {
		flow := &spec.Flows[i]
		prefix := fmt.Sprintf("f%d", i)
		entry := prefix + "_entry"
		fmt.Fprintf(&sb, "    %s((\"%s\"))\n", entry, escape(flow.EntryCmd))

		prev := entry
		link := func(id string) {
			fmt.Fprintf(&sb, "    %s --> %s\n", prev, id)
			prev = id
		}

		for j, a := range flow.OnEnter {
			id := fmt.Sprintf("%s_enter%d", prefix, j)
			fmt.Fprintf(&sb, "    %s[[\"%s\"]]\n", id, actionLabel(a))
			link(id)
		}
		for j, step := range flow.Steps {
			id := fmt.Sprintf("%s_step%d", prefix, j)
			fmt.Fprintf(&sb, "    %s[/\"%s <br/> %s\"/]\n", id, escape(step.Ask), escape(step.Var))
			link(id)
			if v := step.Validate; v != nil && v.Regex != "" {
				fmt.Fprintf(&sb, "    %s -. \"%s\" .-> %s\n", id, escape(v.Regex), id)
			}
			if overlay != nil && overlay.FlowID == flow.EntryCmd && overlay.StepIndex == j {
				current = id
			}
		}
		for j, a := range flow.OnComplete {
			id := fmt.Sprintf("%s_done%d", prefix, j)
			fmt.Fprintf(&sb, "    %s[[\"%s\"]]\n", id, actionLabel(a))
			link(id)
		}
		end := prefix + "_end"
		fmt.Fprintf(&sb, "    %s([\"done\"])\n", end)
		link(end)
	}

	if current != "" {
		sb.WriteString("\n    classDef current fill:#f9f,stroke:#333,stroke-width:4px;\n")
		fmt.Fprintf(&sb, "    class %s current\n", current)
	}
	return sb.String()
}

func actionLabel(a domain.Action) string {
	if a.Kind == domain.ActionUnknown {
		return "unknown: " + escape(a.Tag)
	}
	label := string(a.Kind)
	if v, ok := a.Params["result_var"].(string); ok && v != "" {
		label += " -> " + escape(v)
	}
	return label
}

var unsafeChars = regexp.MustCompile(`["<>]`)

// escape makes text safe inside a quoted Mermaid label.
func escape(s string) string {
	return unsafeChars.ReplaceAllStringFunc(s, func(c string) string {
		switch c {
		case `"`:
			return "'"
		case "<":
			return "&lt;"
		default:
			return "&gt;"
		}
	})
}
