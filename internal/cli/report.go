package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// Markdown renders the report as a markdown document.
func (r *Report) Markdown() string {
	var sb strings.Builder
	sb.WriteString("# Syft run\n\n")

	sb.WriteString("## Steps\n\n")
	if len(r.Steps) == 0 {
		sb.WriteString("_No steps executed._\n\n")
	} else {
		sb.WriteString("| # | Step | Detail | Result |\n")
		sb.WriteString("|---|------|--------|--------|\n")
		for i, s := range r.Steps {
			fmt.Fprintf(&sb, "| %d | %s | %s | %s |\n", i+1, s.Kind, s.detail(), resultCell(s))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Tensors\n\n")
	if len(r.Tensors) == 0 {
		sb.WriteString("_The client holds no tensors._\n")
		return sb.String()
	}
	sb.WriteString("| ID | Shape | Values |\n")
	sb.WriteString("|----|-------|--------|\n")
	for _, rec := range r.Tensors {
		fmt.Fprintf(&sb, "| `%s` | %v | `%s` |\n", rec.ID, rec.Tensor.Shape(), rec.Tensor)
	}
	return sb.String()
}

func (s Step) detail() string {
	switch s.Kind {
	case StepOperation:
		d := fmt.Sprintf("%s(%s)", s.Func, strings.Join(s.Operands, ", "))
		if s.ID != "" {
			d += " -> " + s.ID
		}
		return d
	default:
		return s.ID
	}
}

func resultCell(s Step) string {
	if s.Result == nil {
		return ""
	}
	return "`" + s.Result.String() + "`"
}

// Print writes the report as colored plain text. Pass termenv.Ascii to
// disable colors.
func (r *Report) Print(w io.Writer, profile termenv.Profile) {
	out := termenv.NewOutput(w, termenv.WithProfile(profile))
	kind := func(k StepKind) termenv.Style {
		color := "#818cf8"
		switch k {
		case StepOperation:
			color = "#c084fc"
		case StepRemove:
			color = "#fb7185"
		}
		return out.String(fmt.Sprintf("%-9s", k)).Foreground(out.Color(color)).Bold()
	}

	for _, s := range r.Steps {
		line := fmt.Sprintf("%s %s", kind(s.Kind), s.detail())
		if s.Result != nil {
			line += " = " + s.Result.String()
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, out.String(fmt.Sprintf(">>> %d tensors held", len(r.Tensors))).Faint())
}
