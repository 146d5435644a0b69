package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates the client logger. When verbose is false every record is
// dropped, otherwise records at Debug and above are written to w
// (Stderr when w is nil). It standardizes common keys (e.g., "error" -> "err").
func New(verbose bool, w io.Writer) *slog.Logger {
	if !verbose {
		return NewNop()
	}
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Standardize 'error' key to 'err'
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}))
}

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
