package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the syft banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct{ text, color string }{
		{"   ___  _  _  ___  _____ ", "#818cf8"},
		{"  / __|| || || __||_   _|", "#a78bfa"},
		{"  \\__ \\ \\_. || _|   | |  ", "#c084fc"},
		{"  |___/ |__/ |_|    |_|  ", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
