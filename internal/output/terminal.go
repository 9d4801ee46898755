package output

import (
	"io"
	"os"
	"runtime"

	"github.com/mattn/go-isatty"
)

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// supportsColors checks the environment for colour preferences.
func supportsColors() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	if runtime.GOOS == "windows" {
		return true
	}
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

// ColorsEnabled reports whether output written to w should be coloured.
func ColorsEnabled(w io.Writer) bool {
	return isTerminal(w) && supportsColors()
}
