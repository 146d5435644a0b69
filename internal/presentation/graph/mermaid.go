package graph

import (
	"fmt"
	"strings"
)

// Operation is one step of a dataflow: Func applied to Operands, optionally
// stored under Into.
type Operation struct {
	Func     string
	Operands []string
	Into     string
}

// Overlay contains run outcome data to visualize on the graph.
type Overlay struct {
	Removed []string
	Failed  string
}

// GenerateMermaid produces a Mermaid flowchart of a tensor dataflow.
// It applies semantic styling:
// - Declared tensor: [Rectangle]
// - Operation: [[Subroutine]]
// - Stored result: ([Stadium])
// Operations are numbered so repeated calls of one func stay distinct.
func GenerateMermaid(tensors []string, ops []Operation, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	declared := make(map[string]bool)
	for _, id := range tensors {
		safeID := sanitizeMermaidID(id)
		declared[safeID] = true
		fmt.Fprintf(&sb, "    %s[\"%s\"]\n", safeID, id)
	}

	for i, op := range ops {
		opID := fmt.Sprintf("op%d", i+1)
		fmt.Fprintf(&sb, "    %s[[\"%s\"]]\n", opID, strings.ReplaceAll(op.Func, "\"", "'"))
		for pos, operand := range op.Operands {
			arrow := "-->"
			if len(op.Operands) > 1 {
				arrow = fmt.Sprintf("-- \"%d\" -->", pos)
			}
			fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(operand), arrow, opID)
		}
		if op.Into != "" {
			safeInto := sanitizeMermaidID(op.Into)
			if !declared[safeInto] {
				declared[safeInto] = true
				fmt.Fprintf(&sb, "    %s([\"%s\"])\n", safeInto, op.Into)
			}
			fmt.Fprintf(&sb, "    %s --> %s\n", opID, safeInto)
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef removed fill:#eeeeee,stroke:#9e9e9e,stroke-dasharray:4,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#c62828,stroke-width:3px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.Removed {
			safeID := sanitizeMermaidID(id)
			if !seen[safeID] && safeID != "" {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s removed;\n", safeID)
			}
		}
		if overlay.Failed != "" {
			fmt.Fprintf(&sb, "    class %s failed;\n", sanitizeMermaidID(overlay.Failed))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
